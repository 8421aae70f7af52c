package order

import "github.com/storefront/server/internal/shared/pagination"

// OrderListResponse is a page of orders.
type OrderListResponse struct {
	Orders []*Order `json:"orders"`
	pagination.PageInfo
}
