package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storefront/server/internal/shared/response"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for payment metadata.
type Handler struct {
	registry  *ProviderRegistry
	analytics SummaryReader
	logger    *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(registry *ProviderRegistry, analytics SummaryReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, analytics: analytics, logger: logger}
}

// RegisterRoutes registers the payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.GET("/providers", h.ListProviders)
		payments.GET("/analytics", h.GetAnalytics)
	}
}

// ListProviders returns the available payment providers.
func (h *Handler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.registry.Configs()})
}

// GetAnalytics returns the payment analytics summary.
func (h *Handler) GetAnalytics(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, http.StatusServiceUnavailable, "ANALYTICS_UNAVAILABLE", "payment analytics are not enabled")
		return
	}
	summary, err := h.analytics.Summary(c.Request.Context())
	if err != nil {
		h.logger.Error("load payment analytics failed", zap.Error(err))
		response.InternalError(c, "failed to load payment analytics")
		return
	}
	c.JSON(http.StatusOK, summary)
}
