package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/storefront/server/internal/module/payment/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStatusChecker replays scripted statuses; the last one repeats.
type MockStatusChecker struct {
	mu       sync.Mutex
	statuses []provider.Status
	err      error
	calls    int
}

func (m *MockStatusChecker) CheckPaymentStatus(_ context.Context, _ *provider.StatusRequest, _ string) (*provider.StatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	i := m.calls - 1
	if i >= len(m.statuses) {
		i = len(m.statuses) - 1
	}
	return &provider.StatusResponse{Success: true, Status: m.statuses[i]}, nil
}

func (m *MockStatusChecker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fastPollerConfig(maxAttempts int) PollerConfig {
	return PollerConfig{
		Interval:     time.Millisecond,
		SlowInterval: 2 * time.Millisecond,
		SlowAfter:    10,
		MaxAttempts:  maxAttempts,
	}
}

func TestPollerConfig_Defaults(t *testing.T) {
	cfg := PollerConfig{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 5*time.Second, cfg.SlowInterval)
	assert.Equal(t, 10, cfg.SlowAfter)
	assert.Equal(t, 24, cfg.MaxAttempts)

	assert.Equal(t, DefaultPollerConfig(), DefaultPollerConfig().withDefaults())
}

func TestPollerConfig_IntervalAfter(t *testing.T) {
	cfg := DefaultPollerConfig()
	tests := []struct {
		polls    int
		expected time.Duration
	}{
		{1, 5 * time.Second},
		{10, 5 * time.Second},
		{11, 10 * time.Second},
		{23, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, cfg.intervalAfter(tt.polls), "after %d polls", tt.polls)
	}
}

func TestPoller_StopsOnTerminalStatus(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{
		provider.StatusPending, provider.StatusPending, provider.StatusCompleted,
	}}
	poller := NewPoller(checker, fastPollerConfig(24), nil, nil)

	settled := make(chan provider.Status, 1)
	require.True(t, poller.Start(context.Background(), "pesapal", PollHooks{
		OnTerminal: func(s provider.Status) { settled <- s },
		OnTimeout:  func() { t.Error("unexpected timeout") },
	}))

	select {
	case s := <-settled:
		assert.Equal(t, provider.StatusCompleted, s)
	case <-time.After(time.Second):
		t.Fatal("poller did not settle")
	}
	require.Eventually(t, func() bool { return !poller.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, 3, checker.Calls())
}

func TestPoller_Timeout(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{provider.StatusPending}}
	poller := NewPoller(checker, fastPollerConfig(3), nil, nil)

	timedOut := make(chan struct{})
	poller.Start(context.Background(), "mpesa", PollHooks{
		OnTimeout: func() { close(timedOut) },
	})

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("poller did not time out")
	}
	assert.Equal(t, 3, checker.Calls())
	require.Eventually(t, func() bool { return !poller.Running() }, time.Second, time.Millisecond)
}

func TestPoller_Stop(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{provider.StatusPending}}
	poller := NewPoller(checker, fastPollerConfig(1_000_000), nil, nil)

	poller.Start(context.Background(), "pesapal", PollHooks{
		OnTimeout: func() { t.Error("unexpected timeout") },
	})
	require.Eventually(t, func() bool { return checker.Calls() >= 2 }, time.Second, time.Millisecond)

	poller.Stop()
	assert.False(t, poller.Running())
	calls := checker.Calls()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, checker.Calls(), "no status checks after Stop")

	// Idempotent.
	poller.Stop()
}

func TestPoller_StartIsIdempotent(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{provider.StatusPending}}
	poller := NewPoller(checker, PollerConfig{Interval: time.Hour}, nil, nil)
	defer poller.Stop()

	assert.True(t, poller.Start(context.Background(), "pesapal", PollHooks{}))
	assert.False(t, poller.Start(context.Background(), "pesapal", PollHooks{}))
	assert.True(t, poller.Running())
}

func TestPoller_RestartAfterStop(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{provider.StatusPending}}
	poller := NewPoller(checker, PollerConfig{Interval: time.Hour}, nil, nil)

	require.True(t, poller.Start(context.Background(), "pesapal", PollHooks{}))
	poller.Stop()
	require.True(t, poller.Start(context.Background(), "pesapal", PollHooks{}))
	poller.Stop()
	assert.Equal(t, 0, checker.Calls())
}

func TestPoller_ContextCancel(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{provider.StatusPending}}
	poller := NewPoller(checker, fastPollerConfig(1_000_000), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	poller.Start(ctx, "pesapal", PollHooks{
		OnTimeout: func() { t.Error("unexpected timeout") },
	})
	cancel()

	require.Eventually(t, func() bool { return !poller.Running() }, time.Second, time.Millisecond)
}

func TestPoller_StopsWithoutIdentifier(t *testing.T) {
	checker := &MockStatusChecker{err: ErrNoPaymentIdentifier}
	poller := NewPoller(checker, fastPollerConfig(24), nil, nil)

	poller.Start(context.Background(), "pesapal", PollHooks{
		OnTimeout: func() { t.Error("unexpected timeout") },
	})

	require.Eventually(t, func() bool { return !poller.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, checker.Calls())
}

func TestPoller_HookMayStopPoller(t *testing.T) {
	checker := &MockStatusChecker{statuses: []provider.Status{provider.StatusFailed}}
	poller := NewPoller(checker, fastPollerConfig(24), nil, nil)

	done := make(chan struct{})
	poller.Start(context.Background(), "pesapal", PollHooks{
		OnTerminal: func(provider.Status) {
			poller.Stop()
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hook deadlocked")
	}
}

func TestPoller_DrivesGateway(t *testing.T) {
	f := newGatewayFixture(t)
	_, err := f.gateway.InitiatePayment(context.Background(), testRequest(), "pesapal")
	require.NoError(t, err)

	var polls int
	f.async.setStatus(func(*provider.StatusRequest) *provider.StatusResponse {
		polls++
		if polls < 3 {
			return &provider.StatusResponse{Success: true, Status: provider.StatusPending}
		}
		return &provider.StatusResponse{Success: true, Status: provider.StatusCompleted}
	})

	settled := make(chan provider.Status, 1)
	poller := NewPoller(f.gateway, fastPollerConfig(24), nil, nil)
	poller.Start(context.Background(), "", PollHooks{
		OnTerminal: func(s provider.Status) { settled <- s },
	})

	select {
	case s := <-settled:
		assert.Equal(t, provider.StatusCompleted, s)
	case <-time.After(time.Second):
		t.Fatal("poller did not settle")
	}
	assert.Equal(t, LoadingCompleted, f.gateway.State().LoadingState)
	assert.Equal(t, 3, f.async.StatusCalls())
}
