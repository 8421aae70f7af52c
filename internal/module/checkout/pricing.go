package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/shared/config"
)

// ShippingMethod is one selectable delivery option.
type ShippingMethod struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Cost          decimal.Decimal `json:"cost"`
	EstimatedDays int             `json:"estimated_days"`
}

// Totals is the price breakdown of a checkout.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Pricing holds the shipping catalogue and tax rate.
type Pricing struct {
	methods []ShippingMethod
	taxRate decimal.Decimal
}

// NewPricing builds pricing from configuration.
func NewPricing(cfg *config.CheckoutConfig) (*Pricing, error) {
	rate := decimal.Zero
	if cfg.TaxRate != "" {
		var err error
		rate, err = decimal.NewFromString(cfg.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("parse tax rate %q: %w", cfg.TaxRate, err)
		}
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate %s out of range", rate)
	}

	methods := make([]ShippingMethod, 0, len(cfg.Shipping))
	seen := make(map[string]bool, len(cfg.Shipping))
	for _, m := range cfg.Shipping {
		if m.ID == "" || seen[m.ID] {
			return nil, fmt.Errorf("invalid or duplicate shipping method id %q", m.ID)
		}
		seen[m.ID] = true
		cost, err := decimal.NewFromString(m.Cost)
		if err != nil {
			return nil, fmt.Errorf("parse cost of shipping method %q: %w", m.ID, err)
		}
		if cost.IsNegative() {
			return nil, fmt.Errorf("shipping method %q has a negative cost", m.ID)
		}
		methods = append(methods, ShippingMethod{
			ID:            m.ID,
			Name:          m.Name,
			Cost:          cost,
			EstimatedDays: m.Days,
		})
	}
	return &Pricing{methods: methods, taxRate: rate}, nil
}

// ShippingMethods returns the catalogue in configured order.
func (p *Pricing) ShippingMethods() []ShippingMethod {
	return append([]ShippingMethod(nil), p.methods...)
}

// Method looks up a shipping method.
func (p *Pricing) Method(id string) (ShippingMethod, bool) {
	for _, m := range p.methods {
		if m.ID == id {
			return m, true
		}
	}
	return ShippingMethod{}, false
}

// Totals prices a subtotal with the given shipping method. Tax applies to
// the subtotal only and is rounded to cents.
func (p *Pricing) Totals(subtotal decimal.Decimal, methodID string) Totals {
	t := Totals{
		Subtotal: subtotal,
		Shipping: decimal.Zero,
		Tax:      subtotal.Mul(p.taxRate).Round(2),
	}
	if m, ok := p.Method(methodID); ok {
		t.Shipping = m.Cost
	}
	t.Total = t.Subtotal.Add(t.Shipping).Add(t.Tax)
	return t
}
