package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"siakad_payment_echo/internal/models"
)

type step struct {
	status models.PaymentStatus
	err    error
}

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context, paymentID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.steps[len(f.steps)-1]
	if f.calls < len(f.steps) {
		s = f.steps[f.calls]
	}
	f.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payment{ID: paymentID, Status: s.status}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu      sync.Mutex
	updates []models.PaymentStatus
	errs    []error
	done    []*models.Payment
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnUpdate: func(p *models.Payment) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, p.Status)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
		OnDone: func(p *models.Payment) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.done = append(r.done, p)
		},
	}
}

func fastConfig() Config {
	return Config{Interval: time.Millisecond, BackoffFactor: 2, MaxInterval: 4 * time.Millisecond, MaxDuration: 5 * time.Second}
}

func waitFor(t *testing.T, p *Poller) State {
	t.Helper()
	result := make(chan State, 1)
	go func() { result <- p.Wait() }()
	select {
	case s := <-result:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish")
		return ""
	}
}

func TestPollerStopsWhenPaid(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{
		{status: models.PaymentStatusPending},
		{status: models.PaymentStatusPending},
		{status: models.PaymentStatusPaid},
	}}
	rec := &recorder{}
	p := New(fetcher, "pay-1", fastConfig(), rec.callbacks())
	p.Start(context.Background())

	if got := waitFor(t, p); got != StateDone {
		t.Fatalf("state = %s, want %s", got, StateDone)
	}
	// no read after the paid one
	time.Sleep(10 * time.Millisecond)
	if fetcher.Calls() != 3 {
		t.Errorf("reads = %d, want 3", fetcher.Calls())
	}
	if len(rec.updates) != 2 || len(rec.done) != 1 || len(rec.errs) != 0 {
		t.Errorf("updates = %v, done = %d, errs = %v", rec.updates, len(rec.done), rec.errs)
	}
	if rec.done[0].ID != "pay-1" {
		t.Errorf("done payment = %+v", rec.done[0])
	}
}

func TestPollerKeepsPollingAfterErrors(t *testing.T) {
	netErr := errors.New("connection reset")
	fetcher := &scriptedFetcher{steps: []step{
		{err: netErr},
		{err: netErr},
		{status: models.PaymentStatusUnpaid},
		{status: models.PaymentStatusPaid},
	}}
	rec := &recorder{}
	p := New(fetcher, "pay-1", fastConfig(), rec.callbacks())
	p.Start(context.Background())

	if got := waitFor(t, p); got != StateDone {
		t.Fatalf("state = %s, want %s", got, StateDone)
	}
	if len(rec.errs) != 2 || len(rec.updates) != 1 {
		t.Errorf("errs = %v, updates = %v", rec.errs, rec.updates)
	}
}

func TestPollerIgnoresInFlightReadAfterStop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := fetchFunc(func(ctx context.Context, id string) (*models.Payment, error) {
		once.Do(func() { close(started) })
		<-release
		return &models.Payment{ID: id, Status: models.PaymentStatusPaid}, nil
	})
	rec := &recorder{}
	p := New(fetcher, "pay-1", fastConfig(), rec.callbacks())
	p.Start(context.Background())

	<-started
	p.Stop()
	close(release)

	if got := waitFor(t, p); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
	if len(rec.done) != 0 || len(rec.updates) != 0 {
		t.Errorf("result applied after stop: done = %d, updates = %v", len(rec.done), rec.updates)
	}
}

func TestPollerStopsWithParentContext(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{status: models.PaymentStatusPending}}}
	ctx, cancel := context.WithCancel(context.Background())
	p := New(fetcher, "pay-1", Config{Interval: time.Hour}, Callbacks{})
	p.Start(ctx)
	cancel()

	if got := waitFor(t, p); got != StateStopped {
		t.Fatalf("state = %s, want %s", got, StateStopped)
	}
	if fetcher.Calls() != 0 {
		t.Errorf("reads = %d, want 0", fetcher.Calls())
	}
}

func TestPollerExpires(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []step{{status: models.PaymentStatusPending}}}
	cfg := fastConfig()
	cfg.MaxDuration = 20 * time.Millisecond
	p := New(fetcher, "pay-1", cfg, Callbacks{})
	p.Start(context.Background())

	if got := waitFor(t, p); got != StateExpired {
		t.Fatalf("state = %s, want %s", got, StateExpired)
	}
	if fetcher.Calls() == 0 {
		t.Error("expected at least one read before expiry")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		in   time.Duration
		want time.Duration
	}{
		{name: "doubles", cfg: Config{BackoffFactor: 2, MaxInterval: time.Minute}, in: 8 * time.Second, want: 16 * time.Second},
		{name: "capped", cfg: Config{BackoffFactor: 2, MaxInterval: time.Minute}, in: 40 * time.Second, want: time.Minute},
		{name: "no cap", cfg: Config{BackoffFactor: 3}, in: time.Minute, want: 3 * time.Minute},
		{name: "fixed interval", cfg: Config{BackoffFactor: 1}, in: 8 * time.Second, want: 8 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil, "", tt.cfg, Callbacks{})
			if got := p.backoff(tt.in); got != tt.want {
				t.Errorf("backoff(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

type fetchFunc func(ctx context.Context, id string) (*models.Payment, error)

func (f fetchFunc) Fetch(ctx context.Context, id string) (*models.Payment, error) {
	return f(ctx, id)
}
