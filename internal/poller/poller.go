// Package poller re-reads a payment until it is paid, the caller stops
// watching, or the configured time budget runs out. It is the fallback for
// gateway webhooks that arrive late or never arrive at all.
package poller

import (
	"context"
	"sync"
	"time"

	"siakad_payment_echo/internal/models"
)

type State string

const (
	StatePolling State = "polling"
	StateDone    State = "done"
	StateStopped State = "stopped"
	StateExpired State = "expired"
)

// Config is the polling and termination policy
type Config struct {
	// Interval is the wait before every read
	Interval time.Duration
	// BackoffFactor multiplies the wait after each consecutive failed read. Values <= 1 keep it fixed.
	BackoffFactor float64
	// MaxInterval caps the backed off wait. Zero means no cap.
	MaxInterval time.Duration
	// MaxDuration ends polling in StateExpired. Zero polls until paid or stopped.
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      8 * time.Second,
		BackoffFactor: 2,
		MaxInterval:   time.Minute,
		MaxDuration:   30 * time.Minute,
	}
}

// Fetcher reads the current state of a payment
type Fetcher interface {
	Fetch(ctx context.Context, paymentID string) (*models.Payment, error)
}

// Callbacks run on the polling goroutine while the poller is locked, so they
// never observe a stopped poller. They must not call Stop.
type Callbacks struct {
	// OnUpdate receives every non-paid read, for refreshing VA or redirect data
	OnUpdate func(p *models.Payment)
	// OnError receives transient read failures; polling continues
	OnError func(err error)
	// OnDone receives the paid payment
	OnDone func(p *models.Payment)
}

type Poller struct {
	fetcher   Fetcher
	paymentID string
	cfg       Config
	cb        Callbacks

	mu     sync.Mutex
	state  State
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetcher Fetcher, paymentID string, cfg Config, cb Callbacks) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		fetcher:   fetcher,
		paymentID: paymentID,
		cfg:       cfg,
		cb:        cb,
		state:     StatePolling,
		done:      make(chan struct{}),
	}
}

// Start begins polling in the background. It must be called once.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.active = true
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop ends polling. A read still in flight is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.active = false
	p.state = StateStopped
	p.cancel()
}

// Wait blocks until polling has ended and returns the final state
func (p *Poller) Wait() State {
	<-p.done
	return p.State()
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	start := time.Now()
	wait := p.cfg.Interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return
		case <-timer.C:
		}

		payment, err := p.fetcher.Fetch(ctx, p.paymentID)
		if !p.apply(payment, err) {
			return
		}

		if err != nil {
			wait = p.backoff(wait)
		} else {
			wait = p.cfg.Interval
		}

		if p.cfg.MaxDuration > 0 && time.Since(start)+wait > p.cfg.MaxDuration {
			p.finish(StateExpired)
			return
		}
		timer.Reset(wait)
	}
}

// apply hands one read result to the callbacks and reports whether polling continues
func (p *Poller) apply(payment *models.Payment, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return false
	}

	switch {
	case err != nil:
		if p.cb.OnError != nil {
			p.cb.OnError(err)
		}
	case payment.Status == models.PaymentStatusPaid:
		p.active = false
		p.state = StateDone
		p.cancel()
		if p.cb.OnDone != nil {
			p.cb.OnDone(payment)
		}
		return false
	default:
		if p.cb.OnUpdate != nil {
			p.cb.OnUpdate(payment)
		}
	}
	return true
}

func (p *Poller) finish(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.active = false
	p.state = state
	p.cancel()
}

func (p *Poller) backoff(wait time.Duration) time.Duration {
	if p.cfg.BackoffFactor <= 1 {
		return wait
	}
	next := time.Duration(float64(wait) * p.cfg.BackoffFactor)
	if p.cfg.MaxInterval > 0 && next > p.cfg.MaxInterval {
		next = p.cfg.MaxInterval
	}
	return next
}
