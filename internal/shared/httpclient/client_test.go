package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/storefront/server/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	client := New(config.HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     4,
		IdleConnTimeout:     time.Minute,
		DialTimeout:         time.Second,
		TLSHandshakeTimeout: time.Second,
		ResponseTimeout:     5 * time.Second,
	})

	assert.Equal(t, 5*time.Second, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, transport.MaxIdleConns)
	assert.Equal(t, 2, transport.MaxIdleConnsPerHost)
	assert.Equal(t, 4, transport.MaxConnsPerHost)
}
