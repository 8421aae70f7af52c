package order

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/shared/middleware"
	"github.com/storefront/server/internal/shared/pagination"
	"github.com/storefront/server/internal/shared/response"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new order handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers order routes open to guests.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/orders/:id", h.GetOrder)
}

// RegisterProtectedRoutes registers order routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/orders", h.ListOrders)
}

// ListOrders returns the current user's orders.
func (h *Handler) ListOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "")
		return
	}

	p := pagination.New()
	if err := c.ShouldBindQuery(p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	orders, total, err := h.service.GetUserOrders(c.Request.Context(), userID, p)
	if err != nil {
		h.logger.Error("list orders failed", zap.String("user_id", userID), zap.Error(err))
		response.InternalError(c, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*Order{}
	}

	c.JSON(http.StatusOK, OrderListResponse{Orders: orders, PageInfo: p.Info(total)})
}

// GetOrder returns a single order. Orders of other users are reported as
// not found.
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order ID")
		return
	}

	order, err := h.service.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			response.NotFound(c, "order not found")
			return
		}
		h.logger.Error("get order failed", zap.String("order_id", orderID.String()), zap.Error(err))
		response.InternalError(c, "failed to load order")
		return
	}
	if !order.VisibleTo(middleware.GetUserID(c)) {
		response.NotFound(c, "order not found")
		return
	}

	c.JSON(http.StatusOK, order)
}
