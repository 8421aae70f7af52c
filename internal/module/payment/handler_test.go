package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/storefront/server/internal/module/payment/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSummary struct {
	view analytics.SummaryView
	err  error
}

func (s stubSummary) Summary(context.Context) (analytics.SummaryView, error) {
	return s.view, s.err
}

func setupHandler(summary SummaryReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registry := NewProviderRegistry(newFakeProvider("stripe", false), newFakeProvider("mpesa", true))
	NewHandler(registry, summary, nil).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestHandler_ListProviders(t *testing.T) {
	router := setupHandler(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/providers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Providers []struct {
			Name              string `json:"name"`
			AsyncConfirmation bool   `json:"async_confirmation"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "mpesa", body.Providers[0].Name)
	assert.True(t, body.Providers[0].AsyncConfirmation)
}

func TestHandler_GetAnalytics(t *testing.T) {
	t.Run("summary", func(t *testing.T) {
		view := analytics.Summary(analytics.Apply(analytics.Analytics{}, analytics.OutcomeAttempt, "mpesa"))
		router := setupHandler(stubSummary{view: view})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/analytics", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var got analytics.SummaryView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, view, got)
	})

	t.Run("store failure", func(t *testing.T) {
		router := setupHandler(stubSummary{err: errors.New("redis down")})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/analytics", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	})

	t.Run("disabled", func(t *testing.T) {
		router := setupHandler(nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/payments/analytics", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
