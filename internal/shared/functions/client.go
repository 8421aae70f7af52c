// Package functions invokes hosted serverless functions.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/storefront/server/internal/shared/config"
	"github.com/storefront/server/internal/shared/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned when no function endpoint is configured.
	ErrNotConfigured = errors.New("hosted functions not configured")
	// ErrCircuitOpen is returned while a function's breaker rejects calls.
	ErrCircuitOpen = errors.New("function circuit open")
)

// maxResponseBody bounds how much of a function response is read.
const maxResponseBody = 1 << 20

// Error is a non-2xx response from a hosted function.
type Error struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("function %s: status %d: %s", e.Function, e.StatusCode, e.Message)
}

// Invoker calls a hosted function by name.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload any, out any) error
}

// Client invokes functions at {base_url}/functions/v1/{name}.
// Each function name gets its own circuit breaker.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
	threshold   uint32
	openTimeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a hosted function client.
func NewClient(cfg *config.FunctionsConfig, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  httpClient,
		logger:      logger.Named("functions"),
		metrics:     m,
		threshold:   threshold,
		openTimeout: openTimeout,
		breakers:    make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// Invoke posts payload as JSON to the named function and decodes the
// response into out. out may be nil.
func (c *Client) Invoke(ctx context.Context, name string, payload any, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	respBody, err := c.breaker(name).Execute(func() ([]byte, error) {
		return c.do(ctx, name, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, name)
		}
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

// BreakerState returns the breaker state of a function.
func (c *Client) BreakerState(name string) gobreaker.State {
	return c.breaker(name).State()
}

func (c *Client) do(ctx context.Context, name string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Function:   name,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.Status),
		}
	}
	return respBody, nil
}

func (c *Client) breaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[name]; ok {
		return cb
	}

	threshold := c.threshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors say nothing about the function's health.
		IsSuccessful: func(err error) bool {
			var fnErr *Error
			if errors.As(err, &fnErr) {
				return fnErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("function breaker state changed",
				zap.String("function", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
	})
	c.breakers[name] = cb
	return cb
}

// errorMessage extracts {"error": ...} or {"message": ...} from a response body.
func errorMessage(body []byte, fallback string) string {
	var parsed struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch v := parsed.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		return text
	}
	return fallback
}
