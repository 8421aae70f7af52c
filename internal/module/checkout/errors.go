package checkout

import (
	"errors"
	"sort"
	"strings"
)

// Module errors.
var (
	ErrSessionNotFound       = errors.New("checkout session not found")
	ErrInvalidStep           = errors.New("operation not allowed at the current checkout step")
	ErrCartEmpty             = errors.New("cart is empty")
	ErrSandboxDisabled       = errors.New("sandbox mode is disabled")
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
	ErrAlreadySubmitted      = errors.New("checkout already submitted")
	ErrCartChanged           = errors.New("cart changed after payment")
)

// ValidationErrors maps form field paths to messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, field := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(field)
		b.WriteString(" ")
		b.WriteString(v[field])
	}
	return b.String()
}

// Details returns the field messages as a generic map.
func (v ValidationErrors) Details() map[string]any {
	out := make(map[string]any, len(v))
	for field, msg := range v {
		out[field] = msg
	}
	return out
}
