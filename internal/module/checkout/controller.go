package checkout

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/module/cart"
	"github.com/storefront/server/internal/module/order"
	"go.uber.org/zap"
)

// Step is a checkout wizard step.
type Step string

const (
	StepInformation Step = "information"
	StepShipping    Step = "shipping"
	StepPayment     Step = "payment"
	StepReview      Step = "review"
)

var stepOrder = []Step{StepInformation, StepShipping, StepPayment, StepReview}

func (s Step) index() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Information is the contact and address form.
type Information struct {
	Email                 string         `json:"email" validate:"required,email"`
	ShippingAddress       order.Address  `json:"shipping_address" validate:"-"`
	BillingSameAsShipping bool           `json:"billing_same_as_shipping"`
	BillingAddress        *order.Address `json:"billing_address,omitempty" validate:"-"`
}

// Billing returns the effective billing address.
func (i *Information) Billing() order.Address {
	if i.BillingSameAsShipping || i.BillingAddress == nil {
		return i.ShippingAddress
	}
	return *i.BillingAddress
}

// SubmitInput carries the session data needed to place the order.
type SubmitInput struct {
	CartID           string
	UserID           string
	Currency         string
	PaymentProvider  string
	PaymentReference string
	// PaidAmount is the amount the payment was initiated for; zero skips the check.
	PaidAmount decimal.Decimal
}

// Controller gates the checkout steps. It is not safe for concurrent use;
// the owning Session serialises access.
type Controller struct {
	validate *validator.Validate
	pricing  *Pricing
	carts    CartService
	orders   OrderCreator
	logger   *zap.Logger

	step           Step
	info           *Information
	shippingMethod string
	paymentValid   bool
	submitted      bool
}

// NewController creates a controller at the information step.
func NewController(pricing *Pricing, carts CartService, orders OrderCreator, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		validate: newValidator(),
		pricing:  pricing,
		carts:    carts,
		orders:   orders,
		logger:   logger,
		step:     StepInformation,
	}
}

// Step returns the current step.
func (c *Controller) Step() Step {
	return c.step
}

// Information returns the saved information form, or nil.
func (c *Controller) Information() *Information {
	return c.info
}

// ShippingMethod returns the selected shipping method id.
func (c *Controller) ShippingMethod() string {
	return c.shippingMethod
}

// PaymentValid reports whether the payment step is satisfied.
func (c *Controller) PaymentValid() bool {
	return c.paymentValid
}

// SetInformation validates and stores the information form, advancing past
// the information step when it is current.
func (c *Controller) SetInformation(info Information) error {
	if err := c.editable(); err != nil {
		return err
	}
	if verrs := c.validateInformation(&info); len(verrs) > 0 {
		return verrs
	}
	c.info = &info
	if c.step == StepInformation {
		c.step = StepShipping
	}
	return nil
}

// SelectShipping stores the shipping method, advancing past the shipping
// step when it is current.
func (c *Controller) SelectShipping(methodID string) error {
	if err := c.editable(); err != nil {
		return err
	}
	if c.step == StepInformation {
		return ErrInvalidStep
	}
	if _, ok := c.pricing.Method(methodID); !ok {
		return ValidationErrors{"shipping_method": ErrUnknownShippingMethod.Error()}
	}
	c.shippingMethod = methodID
	if c.step == StepShipping {
		c.step = StepPayment
	}
	return nil
}

// SetPaymentValid records whether the payment has been confirmed. Losing a
// valid payment at review moves the checkout back to the payment step.
func (c *Controller) SetPaymentValid(valid bool) {
	c.paymentValid = valid
	if !valid && c.step == StepReview {
		c.step = StepPayment
	}
}

// Next advances one step when the current step's gate passes.
func (c *Controller) Next() error {
	if c.submitted {
		return ErrAlreadySubmitted
	}
	switch c.step {
	case StepInformation:
		if c.info == nil {
			return ValidationErrors{"shipping_address": "is required", "email": "is required"}
		}
		if verrs := c.validateInformation(c.info); len(verrs) > 0 {
			return verrs
		}
	case StepShipping:
		if _, ok := c.pricing.Method(c.shippingMethod); !ok {
			return ValidationErrors{"shipping_method": "select a shipping method"}
		}
	case StepPayment:
		if !c.paymentValid {
			return ValidationErrors{"payment": "payment has not been completed"}
		}
	case StepReview:
		return ErrInvalidStep
	}
	c.step = stepOrder[c.step.index()+1]
	return nil
}

// Back moves one step back. It is a no-op at the first step.
func (c *Controller) Back() {
	if c.submitted {
		return
	}
	if i := c.step.index(); i > 0 {
		c.step = stepOrder[i-1]
	}
}

// Quote prices the cart with the selected shipping method.
func (c *Controller) Quote(ctx context.Context, cartID string) (Totals, *cart.Cart, error) {
	cr, err := c.carts.GetCart(ctx, cartID)
	if err != nil {
		return Totals{}, nil, fmt.Errorf("load cart: %w", err)
	}
	if cr.IsEmpty() {
		return Totals{}, nil, ErrCartEmpty
	}
	return c.pricing.Totals(cr.Subtotal(), c.shippingMethod), cr, nil
}

// Submit places the order. It is only allowed at the review step.
func (c *Controller) Submit(ctx context.Context, in SubmitInput) (*order.Order, error) {
	if c.submitted {
		return nil, ErrAlreadySubmitted
	}
	if c.step != StepReview || !c.paymentValid || c.info == nil {
		return nil, ErrInvalidStep
	}

	totals, cr, err := c.Quote(ctx, in.CartID)
	if err != nil {
		return nil, err
	}
	if !in.PaidAmount.IsZero() && !totals.Total.Equal(in.PaidAmount) {
		return nil, fmt.Errorf("%w: paid %s, cart total %s", ErrCartChanged, in.PaidAmount, totals.Total)
	}

	items := make([]order.Item, 0, len(cr.Items))
	for _, item := range cr.Items {
		items = append(items, order.Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	placed, err := c.orders.CreateOrder(ctx, &order.CreateOrderInput{
		UserID:           in.UserID,
		Email:            c.info.Email,
		Items:            items,
		ShippingAddress:  c.info.ShippingAddress,
		BillingAddress:   c.info.Billing(),
		ShippingMethod:   c.shippingMethod,
		Subtotal:         totals.Subtotal,
		ShippingCost:     totals.Shipping,
		Tax:              totals.Tax,
		Total:            totals.Total,
		Currency:         in.Currency,
		PaymentProvider:  in.PaymentProvider,
		PaymentReference: in.PaymentReference,
	})
	if err != nil {
		return nil, err
	}
	c.submitted = true

	if err := c.carts.ClearCart(ctx, in.CartID); err != nil {
		c.logger.Warn("clear cart after order failed",
			zap.String("cart_id", in.CartID),
			zap.String("order_id", placed.ID.String()),
			zap.Error(err),
		)
	}
	return placed, nil
}

// Submitted reports whether the order has been placed.
func (c *Controller) Submitted() bool {
	return c.submitted
}

// editable rejects form changes once the order is placed or the payment is
// confirmed.
func (c *Controller) editable() error {
	if c.submitted {
		return ErrAlreadySubmitted
	}
	if c.paymentValid {
		return ErrInvalidStep
	}
	return nil
}

func (c *Controller) validateInformation(info *Information) ValidationErrors {
	verrs := validateStruct(c.validate, info, "")
	verrs = verrs.merge(validateStruct(c.validate, info.ShippingAddress, "shipping_address."))
	if !info.BillingSameAsShipping {
		if info.BillingAddress == nil {
			verrs = verrs.merge(ValidationErrors{"billing_address": "is required"})
		} else {
			verrs = verrs.merge(validateStruct(c.validate, info.BillingAddress, "billing_address."))
		}
	}
	return verrs
}
