package provider

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"
)

// mockInvoker stubs hosted function calls. The first return value is the raw
// JSON response body.
type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Invoke(ctx context.Context, name string, payload any, out any) error {
	args := m.Called(ctx, name, payload)
	if body, ok := args.Get(0).(string); ok && body != "" && out != nil {
		if err := json.Unmarshal([]byte(body), out); err != nil {
			return err
		}
	}
	return args.Error(1)
}
