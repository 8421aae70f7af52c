package checkout

import (
	"sync"

	"github.com/storefront/server/internal/module/payment"
)

const defaultNotificationBacklog = 32

// notificationBuffer keeps the most recent notifications until drained.
type notificationBuffer struct {
	mu    sync.Mutex
	items []payment.Notification
	limit int
}

func newNotificationBuffer(limit int) *notificationBuffer {
	if limit <= 0 {
		limit = defaultNotificationBacklog
	}
	return &notificationBuffer{limit: limit}
}

// Notify appends n, dropping the oldest entry when full.
func (b *notificationBuffer) Notify(n payment.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == b.limit {
		copy(b.items, b.items[1:])
		b.items = b.items[:len(b.items)-1]
	}
	b.items = append(b.items, n)
}

// Drain returns the buffered notifications oldest first and empties the buffer.
func (b *notificationBuffer) Drain() []payment.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		out = []payment.Notification{}
	}
	return out
}
