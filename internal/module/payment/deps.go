package payment

import (
	"context"
	"time"

	"github.com/storefront/server/internal/module/payment/analytics"
	"github.com/storefront/server/internal/module/payment/provider"
)

// OutcomeRecorder counts payment outcomes. It is satisfied by *analytics.Tracker.
type OutcomeRecorder interface {
	Record(ctx context.Context, outcome analytics.Outcome, provider string) error
}

// SummaryReader exposes the analytics summary. It is satisfied by *analytics.Tracker.
type SummaryReader interface {
	Summary(ctx context.Context) (analytics.SummaryView, error)
}

// StatusChecker is the part of the gateway the poller drives.
type StatusChecker interface {
	CheckPaymentStatus(ctx context.Context, req *provider.StatusRequest, providerName string) (*provider.StatusResponse, error)
}

// NotificationLevel is the severity of a user-facing notification.
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationSuccess NotificationLevel = "success"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a user-facing message raised by a payment transition.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message,omitempty"`
	Time    time.Time         `json:"time"`
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
