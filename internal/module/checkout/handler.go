package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/server/internal/module/cart"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/payment/provider"
	apperrors "github.com/storefront/server/internal/shared/errors"
	"github.com/storefront/server/internal/shared/middleware"
	"github.com/storefront/server/internal/shared/response"
	"go.uber.org/zap"
)

var errorMappings = []response.ErrorMapping{
	{Err: ErrSessionNotFound, Status: http.StatusNotFound, Code: "SESSION_NOT_FOUND"},
	{Err: ErrInvalidStep, Status: http.StatusConflict, Code: "INVALID_STEP"},
	{Err: ErrAlreadySubmitted, Status: http.StatusConflict, Code: "ALREADY_SUBMITTED"},
	{Err: ErrCartChanged, Status: http.StatusConflict, Code: "CART_CHANGED"},
	{Err: ErrCartEmpty, Status: http.StatusUnprocessableEntity, Code: "CART_EMPTY"},
	{Err: ErrSandboxDisabled, Status: http.StatusForbidden, Code: "SANDBOX_DISABLED"},
	{Err: ErrShuttingDown, Status: http.StatusServiceUnavailable, Code: "SHUTTING_DOWN"},
	{Err: cart.ErrInvalidCartID, Status: http.StatusBadRequest, Code: "INVALID_CART_ID"},
	{Err: payment.ErrProviderNotFound, Status: http.StatusBadRequest, Code: "PROVIDER_NOT_FOUND"},
	{Err: payment.ErrNoPaymentIdentifier, Status: http.StatusConflict, Code: "NO_PAYMENT"},
	{Err: payment.ErrNoActivePayment, Status: http.StatusConflict, Code: "NO_ACTIVE_PAYMENT"},
	{Err: payment.ErrCancelNotSupported, Status: http.StatusUnprocessableEntity, Code: "CANCEL_NOT_SUPPORTED"},
	{Err: order.ErrNoItems, Status: http.StatusUnprocessableEntity, Code: "INVALID_ORDER"},
	{Err: order.ErrInvalidItem, Status: http.StatusUnprocessableEntity, Code: "INVALID_ORDER"},
	{Err: order.ErrInvalidTotal, Status: http.StatusUnprocessableEntity, Code: "INVALID_ORDER"},
	{Err: order.ErrEmailRequired, Status: http.StatusUnprocessableEntity, Code: "INVALID_ORDER"},
}

type createSessionRequest struct {
	CartID string `json:"cart_id" binding:"required"`
	Email  string `json:"email" binding:"omitempty,email"`
}

type shippingRequest struct {
	Method string `json:"method" binding:"required"`
}

type providerRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// Handler handles HTTP requests for checkout sessions.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHandler creates a new checkout handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, logger: logger}
}

// RegisterRoutes registers the checkout routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	checkout := r.Group("/checkout")
	{
		checkout.GET("/shipping-methods", h.ListShippingMethods)
		checkout.POST("/sessions", h.CreateSession)

		sessions := checkout.Group("/sessions/:id")
		sessions.GET("", h.GetSession)
		sessions.DELETE("", h.CloseSession)
		sessions.POST("/information", h.SetInformation)
		sessions.POST("/shipping", h.SelectShipping)
		sessions.POST("/payment", h.ConfirmPayment)
		sessions.POST("/back", h.Back)
		sessions.POST("/submit", h.Submit)
		sessions.GET("/notifications", h.Notifications)

		pay := sessions.Group("/payment")
		pay.PUT("/provider", h.SelectPaymentMethod)
		pay.POST("/initiate", h.InitiatePayment)
		pay.POST("/status", h.CheckStatus)
		pay.POST("/cancel", h.CancelPayment)
		pay.POST("/simulate", h.SimulateCompletion)
	}
}

// ListShippingMethods returns the shipping catalogue.
func (h *Handler) ListShippingMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"shipping_methods": h.manager.ShippingMethods()})
}

// CreateSession opens a checkout for a cart.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	email := req.Email
	if email == "" {
		email = middleware.GetEmail(c)
	}

	s, err := h.manager.Create(c.Request.Context(), CreateInput{
		CartID: req.CartID,
		Email:  email,
		UserID: middleware.GetUserID(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.View(c.Request.Context()))
}

// GetSession returns the session snapshot.
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View(c.Request.Context()))
}

// CloseSession abandons a checkout.
func (h *Handler) CloseSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.manager.Close(s.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetInformation saves the contact and address form.
func (h *Handler) SetInformation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var info Information
	if err := c.ShouldBindJSON(&info); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.SetInformation(info); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View(c.Request.Context()))
}

// SelectShipping picks the shipping method.
func (h *Handler) SelectShipping(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req shippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.SelectShipping(req.Method); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View(c.Request.Context()))
}

// ConfirmPayment advances from the payment step to review.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.ConfirmPayment(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View(c.Request.Context()))
}

// Back moves the checkout one step back.
func (h *Handler) Back(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Back()
	c.JSON(http.StatusOK, s.View(c.Request.Context()))
}

// Submit places the order and closes the session.
func (h *Handler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	placed, err := s.Submit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.manager.Close(s.ID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		h.logger.Warn("close submitted session failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, gin.H{"order": placed})
}

// Notifications drains the pending payment notifications.
func (h *Handler) Notifications(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": s.Notifications()})
}

// SelectPaymentMethod switches the payment provider.
func (h *Handler) SelectPaymentMethod(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.SelectPaymentMethod(req.Provider); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View(c.Request.Context()))
}

// InitiatePayment starts a payment with the selected provider.
func (h *Handler) InitiatePayment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var in PaymentInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	resp, err := s.StartPayment(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": resp, "session": s.View(c.Request.Context())})
}

// CheckStatus refreshes the payment status. The optional body carries
// payment_id, reference or transaction_id overrides.
func (h *Handler) CheckStatus(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req provider.StatusRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	resp, err := s.CheckStatus(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": resp, "session": s.View(c.Request.Context())})
}

// CancelPayment cancels the in-flight payment.
func (h *Handler) CancelPayment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	resp, err := s.CancelPayment(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": resp, "session": s.View(c.Request.Context())})
}

// SimulateCompletion completes a sandbox payment.
func (h *Handler) SimulateCompletion(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	resp, err := s.SimulateCompletion(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": resp, "session": s.View(c.Request.Context())})
}

// session resolves the path session and hides sessions owned by another user.
func (h *Handler) session(c *gin.Context) (*Session, bool) {
	s, err := h.manager.Get(c.Param("id"))
	if err == nil && s.UserID != "" && s.UserID != middleware.GetUserID(c) {
		err = ErrSessionNotFound
	}
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		response.AppError(c, apperrors.ValidationError("checkout form is invalid").WithDetails(verrs.Details()))
		return
	}
	if response.HandleError(c, err, errorMappings) {
		return
	}
	h.logger.Error("checkout request failed", zap.String("path", c.FullPath()), zap.Error(err))
	response.InternalError(c, "")
}
