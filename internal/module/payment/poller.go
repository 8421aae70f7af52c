package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/storefront/server/internal/module/payment/provider"
	"github.com/storefront/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// PollerConfig controls status polling.
type PollerConfig struct {
	// Interval between polls.
	Interval time.Duration
	// SlowInterval replaces Interval once more than SlowAfter polls have run.
	SlowInterval time.Duration
	SlowAfter    int
	// MaxAttempts is the poll budget before OnTimeout fires.
	MaxAttempts int
}

// DefaultPollerConfig returns the default polling schedule.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     5 * time.Second,
		SlowInterval: 10 * time.Second,
		SlowAfter:    10,
		MaxAttempts:  24,
	}
}

func (c PollerConfig) withDefaults() PollerConfig {
	d := DefaultPollerConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.SlowInterval <= 0 {
		c.SlowInterval = c.Interval
	}
	if c.SlowAfter <= 0 {
		c.SlowAfter = d.SlowAfter
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// intervalAfter returns the wait before the next poll once polls have run.
func (c PollerConfig) intervalAfter(polls int) time.Duration {
	if polls > c.SlowAfter {
		return c.SlowInterval
	}
	return c.Interval
}

// PollHooks are invoked from the poll goroutine after it has finished.
type PollHooks struct {
	// OnTerminal receives the first terminal status observed.
	OnTerminal func(status provider.Status)
	// OnTimeout fires when the attempt budget is spent.
	OnTimeout func()
}

// Poller repeatedly checks a payment's status until it settles. At most one
// poll loop runs at a time.
type Poller struct {
	checker StatusChecker
	config  PollerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller driving checker.
func NewPoller(checker StatusChecker, cfg PollerConfig, m *metrics.Metrics, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		checker: checker,
		config:  cfg.withDefaults(),
		metrics: m,
		logger:  logger.Named("poller"),
	}
}

// Start begins polling providerName. It returns false without doing anything
// when a loop is already running.
func (p *Poller) Start(ctx context.Context, providerName string, hooks PollHooks) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.run(ctx, providerName, hooks, done)
	return true
}

// Stop ends the running loop and waits for it to exit. After Stop returns no
// further status checks are issued. Calling Stop when idle is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

func (p *Poller) run(ctx context.Context, providerName string, hooks PollHooks, done chan struct{}) {
	var finish func()
	defer func() {
		stopped := ctx.Err() != nil
		p.release(done)
		if finish != nil && !stopped {
			finish()
		}
	}()

	polls := 0
	timer := time.NewTimer(p.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		polls++
		p.metrics.RecordStatusPoll(providerName)
		resp, err := p.checker.CheckPaymentStatus(ctx, nil, providerName)
		if ctx.Err() != nil {
			return
		}

		switch {
		case errors.Is(err, ErrNoPaymentIdentifier), errors.Is(err, ErrProviderNotFound):
			p.logger.Warn("polling stopped", zap.String("provider", providerName), zap.Error(err))
			return
		case err != nil:
			p.logger.Warn("status poll failed", zap.String("provider", providerName), zap.Error(err))
		case resp.Success && resp.Status.IsTerminal():
			status := resp.Status
			p.logger.Debug("payment settled",
				zap.String("provider", providerName),
				zap.String("status", string(status)),
				zap.Int("polls", polls),
			)
			if hooks.OnTerminal != nil {
				finish = func() { hooks.OnTerminal(status) }
			}
			return
		}

		if polls >= p.config.MaxAttempts {
			p.logger.Info("payment verification timed out",
				zap.String("provider", providerName),
				zap.Int("polls", polls),
			)
			if hooks.OnTimeout != nil {
				finish = hooks.OnTimeout
			}
			return
		}
		timer.Reset(p.config.intervalAfter(polls))
	}
}

// release clears the running loop if it is still the one identified by done
// and signals waiters.
func (p *Poller) release(done chan struct{}) {
	p.mu.Lock()
	if p.done == done {
		p.cancel()
		p.cancel, p.done = nil, nil
	}
	p.mu.Unlock()
	close(done)
}
