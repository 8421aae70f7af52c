package cart

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/server/internal/shared/response"
	"go.uber.org/zap"
)

var errorMappings = []response.ErrorMapping{
	{Err: ErrInvalidCartID, Status: http.StatusBadRequest, Code: "INVALID_CART_ID"},
	{Err: ErrInvalidItem, Status: http.StatusBadRequest, Code: "INVALID_ITEM"},
	{Err: ErrItemNotInCart, Status: http.StatusNotFound, Code: "ITEM_NOT_FOUND"},
}

// CartResponse is a cart with its subtotal.
type CartResponse struct {
	*Cart
	Subtotal string `json:"subtotal"`
}

func toResponse(c *Cart) CartResponse {
	return CartResponse{Cart: c, Subtotal: c.Subtotal().StringFixed(2)}
}

// Handler handles HTTP requests for carts.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new cart handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the cart routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	carts := r.Group("/carts")
	{
		carts.GET("/:id", h.GetCart)
		carts.PUT("/:id/items", h.SetItem)
		carts.DELETE("/:id/items/:product_id", h.RemoveItem)
		carts.DELETE("/:id", h.ClearCart)
	}
}

// GetCart returns a cart.
func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.service.GetCart(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(cart))
}

// SetItem adds or updates a cart line.
func (h *Handler) SetItem(c *gin.Context) {
	var item Item
	if err := c.ShouldBindJSON(&item); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cart, err := h.service.SetItem(c.Request.Context(), c.Param("id"), item)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(cart))
}

// RemoveItem removes a cart line.
func (h *Handler) RemoveItem(c *gin.Context) {
	cart, err := h.service.RemoveItem(c.Request.Context(), c.Param("id"), c.Param("product_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(cart))
}

// ClearCart empties a cart.
func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.service.ClearCart(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if response.HandleError(c, err, errorMappings) {
		return
	}
	h.logger.Error("cart request failed", zap.String("cart_id", c.Param("id")), zap.Error(err))
	response.InternalError(c, "")
}
