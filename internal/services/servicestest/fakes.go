// Package servicestest provides in-memory implementations of the payment ports
// for tests of the services and of the layers built on top of them.
package servicestest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

// Ledger is an in-memory PaymentLedger with the same version semantics as the GORM one
type Ledger struct {
	mu       sync.Mutex
	payments map[string]models.Payment

	// StaleWrites makes the next n updates lose the race against a concurrent writer
	StaleWrites int
	Updates     int
}

func NewLedger() *Ledger {
	return &Ledger{payments: make(map[string]models.Payment)}
}

func (l *Ledger) Insert(_ context.Context, p *models.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.payments {
		if existing.PaymentCode == p.PaymentCode {
			return services.ErrDuplicatePaymentCode
		}
	}
	if p.Version == 0 {
		p.Version = 1
	}
	l.payments[p.ID] = *p
	return nil
}

func (l *Ledger) FindByID(_ context.Context, id string) (*models.Payment, error) {
	return l.find(func(p models.Payment) bool { return p.ID == id })
}

func (l *Ledger) FindByPaymentCode(_ context.Context, code string) (*models.Payment, error) {
	return l.find(func(p models.Payment) bool { return p.PaymentCode == code })
}

func (l *Ledger) FindByGatewayOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	return l.find(func(p models.Payment) bool { return p.Gateway.OrderID == orderID })
}

func (l *Ledger) find(match func(models.Payment) bool) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if match(p) {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("payment %w", services.ErrNotFound)
}

func (l *Ledger) List(_ context.Context, filter services.PaymentFilter) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Payment
	for _, p := range l.payments {
		if filter.StudentID > 0 && p.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.HasGatewayOrder && p.Gateway.OrderID == "" {
			continue
		}
		if !filter.UpdatedBefore.IsZero() && !p.UpdatedAt.Before(filter.UpdatedBefore) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *Ledger) Update(_ context.Context, p *models.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.payments[p.ID]
	if !ok || stored.Version != p.Version {
		return services.ErrStaleWrite
	}
	if l.StaleWrites > 0 {
		l.StaleWrites--
		stored.Version++
		l.payments[p.ID] = stored
		return services.ErrStaleWrite
	}
	l.Updates++
	p.Version++
	l.payments[p.ID] = *p
	return nil
}

func (l *Ledger) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.payments[id]; !ok {
		return fmt.Errorf("payment %w", services.ErrNotFound)
	}
	delete(l.payments, id)
	return nil
}

// Count returns the number of stored payments
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

// Directory serves students and tuition quotes from maps
type Directory struct {
	Students map[uint]models.Student
	Quotes   map[uint]services.TuitionQuote
}

func NewDirectory(students ...models.Student) *Directory {
	d := &Directory{Students: make(map[uint]models.Student), Quotes: make(map[uint]services.TuitionQuote)}
	for _, s := range students {
		d.Students[s.ID] = s
	}
	return d
}

func (d *Directory) FindStudent(_ context.Context, id uint) (*models.Student, error) {
	s, ok := d.Students[id]
	if !ok {
		return nil, fmt.Errorf("student %d %w", id, services.ErrNotFound)
	}
	return &s, nil
}

func (d *Directory) DefaultTuition(ctx context.Context, studentID uint, semester string) (*services.TuitionQuote, error) {
	if _, err := d.FindStudent(ctx, studentID); err != nil {
		return nil, err
	}
	q, ok := d.Quotes[studentID]
	if !ok {
		return nil, fmt.Errorf("tuition schedule %w", services.ErrNotFound)
	}
	q.Semester = semester
	return &q, nil
}

// Gateway is a scripted payment gateway. CheckStatus walks through Statuses
// and repeats the last one once the script runs out.
type Gateway struct {
	mu sync.Mutex

	ServerKey string
	Status    services.TransactionStatus
	ChargeErr error
	Statuses  []services.TransactionStatus
	StatusErr error

	Charges []services.ChargeRequest
	Checks  int
}

func (g *Gateway) Charge(_ context.Context, req services.ChargeRequest) (*services.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Charges = append(g.Charges, req)
	if g.ChargeErr != nil {
		return nil, g.ChargeErr
	}
	status := g.Status
	if status == "" {
		status = services.TransactionStatusPending
	}
	return &services.ChargeResult{
		OrderID:              req.OrderID,
		TransactionID:        "trx-" + req.OrderID,
		TransactionStatus:    status,
		VirtualAccountNumber: "8808123456789",
	}, nil
}

func (g *Gateway) CheckStatus(_ context.Context, orderID string) (*services.GatewayStatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Checks++
	if g.StatusErr != nil {
		return nil, g.StatusErr
	}
	status := services.TransactionStatusPending
	if len(g.Statuses) > 0 {
		status = g.Statuses[0]
		if len(g.Statuses) > 1 {
			g.Statuses = g.Statuses[1:]
		}
	}
	return &services.GatewayStatusResult{
		OrderID:           orderID,
		TransactionID:     "trx-" + orderID,
		TransactionStatus: status,
	}, nil
}

func (g *Gateway) VerifyNotification(n *services.MidtransNotification) bool {
	if n == nil || g.ServerKey == "" {
		return false
	}
	return n.SignatureKey == services.NotificationSignature(n.OrderID, n.StatusCode, n.GrossAmount, g.ServerKey)
}

// Dispatch is one call recorded by Sink
type Dispatch struct {
	StudentID uint
	Kind      models.NotificationKind
	Args      services.NotificationArgs
}

// Sink records notification dispatches. Err and Panic simulate a broken sink.
type Sink struct {
	mu         sync.Mutex
	Dispatches []Dispatch
	Err        error
	Panic      bool
}

func (s *Sink) Dispatch(_ context.Context, studentID uint, kind models.NotificationKind, args services.NotificationArgs) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Panic {
		panic("notification sink exploded")
	}
	if s.Err != nil {
		return nil, s.Err
	}
	s.Dispatches = append(s.Dispatches, Dispatch{StudentID: studentID, Kind: kind, Args: args})
	title, message := services.BuildNotification(kind, args)
	return &models.Notification{
		ID:        uint(len(s.Dispatches)),
		StudentID: studentID,
		Kind:      kind,
		Title:     title,
		Message:   message,
	}, nil
}

// Kinds returns the kinds dispatched so far, in order
func (s *Sink) Kinds() []models.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]models.NotificationKind, 0, len(s.Dispatches))
	for _, d := range s.Dispatches {
		kinds = append(kinds, d.Kind)
	}
	return kinds
}
