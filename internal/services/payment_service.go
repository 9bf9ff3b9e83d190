package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"siakad_payment_echo/internal/models"
)

// maxWriteAttempts bounds the re-read loop when an optimistic write loses a race
const maxWriteAttempts = 3

// CreatePaymentInput is the caller supplied part of a new payment
type CreatePaymentInput struct {
	StudentID   uint
	PaymentCode string
	Semester    string
	Components  models.TuitionComponents
	Method      models.PaymentMethod
	// Status is only honoured by direct creation; empty means unpaid
	Status models.PaymentStatus
}

// ComponentsPatch replaces the components that are non-nil. A non-nil
// component that is not Valid removes it from the payment.
type ComponentsPatch struct {
	BasePayment         *decimal.NullDecimal
	DepartmentSurcharge *decimal.NullDecimal
	LabFee              *decimal.NullDecimal
	ExamFee             *decimal.NullDecimal
	ActivityFee         *decimal.NullDecimal
}

func (c ComponentsPatch) apply(dst *models.TuitionComponents) bool {
	changed := false
	for _, f := range []struct {
		patch *decimal.NullDecimal
		dst   *decimal.NullDecimal
	}{
		{c.BasePayment, &dst.BasePayment},
		{c.DepartmentSurcharge, &dst.DepartmentSurcharge},
		{c.LabFee, &dst.LabFee},
		{c.ExamFee, &dst.ExamFee},
		{c.ActivityFee, &dst.ActivityFee},
	} {
		if f.patch != nil {
			*f.dst = *f.patch
			changed = true
		}
	}
	return changed
}

// PaymentUpdate is an administrative change to a payment; nil fields are left alone
type PaymentUpdate struct {
	Semester   *string
	Method     *models.PaymentMethod
	Status     *models.PaymentStatus
	Components ComponentsPatch
}

type updateSource int

const (
	sourceAdmin updateSource = iota
	sourceGateway
)

// PaymentService orchestrates the payment lifecycle: creation, gateway delegation,
// status reconciliation and the notification side effects of status changes.
type PaymentService struct {
	ledger    PaymentLedger
	directory StudentDirectory
	gateway   Gateway
	notifier  NotificationSink
	locker    Locker
	now       func() time.Time
}

func NewPaymentService(ledger PaymentLedger, directory StudentDirectory, gateway Gateway, notifier NotificationSink, locker Locker) *PaymentService {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &PaymentService{
		ledger:    ledger,
		directory: directory,
		gateway:   gateway,
		notifier:  notifier,
		locker:    locker,
		now:       time.Now,
	}
}

// Create records a payment without involving the gateway (manual and offline methods)
func (s *PaymentService) Create(ctx context.Context, in CreatePaymentInput) (*models.Payment, error) {
	status := in.Status
	if status == "" {
		status = models.PaymentStatusUnpaid
	}
	if !status.Valid() {
		return nil, validationErrorf("unknown status %q", status)
	}

	total, err := s.validateNew(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.FindStudent(ctx, in.StudentID); err != nil {
		return nil, err
	}

	p := s.newPayment(in, total, status)
	if err := s.insert(ctx, p); err != nil {
		return nil, err
	}

	if status != models.PaymentStatusUnpaid {
		s.notify(ctx, p, models.NotificationKindFor(status))
	}
	return p, nil
}

// CreateWithGateway validates the request, charges it at the gateway and only
// then writes the ledger. A gateway failure leaves no trace in the ledger.
func (s *PaymentService) CreateWithGateway(ctx context.Context, in CreatePaymentInput) (*models.Payment, error) {
	total, err := s.validateNew(ctx, in)
	if err != nil {
		return nil, err
	}

	student, err := s.directory.FindStudent(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}

	// A new order id per attempt, so a retry after a failed charge never collides at the gateway
	orderID := fmt.Sprintf("PAY-%s-%d", in.PaymentCode, s.now().UnixMilli())

	result, err := s.gateway.Charge(ctx, ChargeRequest{
		OrderID:       orderID,
		Method:        in.Method,
		GrossAmount:   total.IntPart(),
		PaymentCode:   in.PaymentCode,
		Semester:      in.Semester,
		Items:         chargeItems(in.Components),
		CustomerName:  student.Name,
		CustomerEmail: student.Email,
		CustomerPhone: student.Phone,
	})
	if err != nil {
		log.Printf("Gateway charge failed for payment code %s (order %s): %v", in.PaymentCode, orderID, err)
		return nil, err
	}

	status := MapGatewayStatus(result.TransactionStatus)
	p := s.newPayment(in, total, status)
	p.Gateway = models.GatewayInfo{
		OrderID:              result.OrderID,
		TransactionID:        result.TransactionID,
		PaymentURL:           result.PaymentURL,
		VirtualAccountNumber: result.VirtualAccountNumber,
		BillKey:              result.BillKey,
		BillerCode:           result.BillerCode,
	}
	if p.Gateway.OrderID == "" {
		p.Gateway.OrderID = orderID
	}

	if err := s.insert(ctx, p); err != nil {
		log.Printf("Ledger write failed after charge of order %s; the gateway order is left to expire: %v", orderID, err)
		return nil, err
	}

	s.notify(ctx, p, models.NotificationKindFor(status))
	return p, nil
}

// UpdateStatus sets the status of a payment. Writing the status it already has
// only refreshes gateway metadata and dispatches no notification, which is what
// makes repeated webhook deliveries harmless.
func (s *PaymentService) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, meta *models.GatewayInfo) (*models.Payment, error) {
	return s.updateStatus(ctx, id, status, meta, sourceAdmin)
}

// ApplyGatewayStatus is UpdateStatus for reconciliation channels. Deliveries
// arrive unordered, so a paid payment is never moved away from paid, and a
// charged payment that already failed is never moved back to pending.
func (s *PaymentService) ApplyGatewayStatus(ctx context.Context, id string, status models.PaymentStatus, meta *models.GatewayInfo) (*models.Payment, error) {
	return s.updateStatus(ctx, id, status, meta, sourceGateway)
}

func (s *PaymentService) updateStatus(ctx context.Context, id string, status models.PaymentStatus, meta *models.GatewayInfo, source updateSource) (*models.Payment, error) {
	if !status.Valid() {
		return nil, validationErrorf("unknown status %q", status)
	}

	unlock, err := s.locker.Lock(ctx, "payment:"+id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		p, err := s.ledger.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if source == sourceGateway && gatewayTerminal(p, status) {
			log.Printf("Ignoring gateway status %s for %s payment %s", status, p.Status, p.ID)
			return p, nil
		}

		changed := p.Status != status
		metaChanged := mergeGatewayInfo(&p.Gateway, meta)
		if !changed && !metaChanged {
			return p, nil
		}

		p.Status = status
		err = s.ledger.Update(ctx, p)
		if errors.Is(err, ErrStaleWrite) && attempt < maxWriteAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		if changed {
			log.Printf("Payment %s (%s) status changed to %s", p.ID, p.PaymentCode, status)
			s.notify(ctx, p, models.NotificationKindFor(status))
		}
		return p, nil
	}
}

// gatewayTerminal reports whether the gateway may not move p to status.
// A failed charge may still settle later, so unpaid to paid stays allowed.
func gatewayTerminal(p *models.Payment, status models.PaymentStatus) bool {
	switch p.Status {
	case models.PaymentStatusPaid:
		return status != models.PaymentStatusPaid
	case models.PaymentStatusUnpaid:
		charged := p.Gateway.OrderID != "" || p.Gateway.TransactionID != ""
		return charged && status == models.PaymentStatusPending
	}
	return false
}

// Update applies an administrative change. The total is recomputed whenever
// components change, and a status change notifies like any other transition.
func (s *PaymentService) Update(ctx context.Context, id string, upd PaymentUpdate) (*models.Payment, error) {
	if upd.Method != nil && !upd.Method.Valid() {
		return nil, validationErrorf("unknown payment method %q", *upd.Method)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, validationErrorf("unknown status %q", *upd.Status)
	}

	unlock, err := s.locker.Lock(ctx, "payment:"+id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		p, err := s.ledger.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if upd.Components.apply(&p.TuitionComponents) {
			if err := validateComponents(p.TuitionComponents); err != nil {
				return nil, err
			}
			p.TotalAmount = p.TuitionComponents.Total()
		}
		if upd.Semester != nil {
			p.Semester = *upd.Semester
		}
		if upd.Method != nil {
			p.Method = *upd.Method
		}
		statusChanged := upd.Status != nil && *upd.Status != p.Status
		if upd.Status != nil {
			p.Status = *upd.Status
		}

		err = s.ledger.Update(ctx, p)
		if errors.Is(err, ErrStaleWrite) && attempt < maxWriteAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}

		if statusChanged {
			s.notify(ctx, p, models.NotificationKindFor(p.Status))
		}
		return p, nil
	}
}

// SyncWithGateway asks the gateway for the order's status and reconciles the ledger with it
func (s *PaymentService) SyncWithGateway(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Gateway.OrderID == "" {
		return nil, validationErrorf("payment %s has no gateway order", p.ID)
	}

	res, err := s.gateway.CheckStatus(ctx, p.Gateway.OrderID)
	if err != nil {
		return nil, err
	}

	return s.ApplyGatewayStatus(ctx, p.ID, MapGatewayStatus(res.TransactionStatus), &models.GatewayInfo{
		TransactionID: res.TransactionID,
	})
}

func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	return s.ledger.FindByID(ctx, id)
}

// FindByGatewayOrderID resolves the payment a gateway notification refers to
func (s *PaymentService) FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return s.ledger.FindByGatewayOrderID(ctx, orderID)
}

func (s *PaymentService) List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationErrorf("unknown status %q", filter.Status)
	}
	return s.ledger.List(ctx, filter)
}

func (s *PaymentService) Delete(ctx context.Context, id string) error {
	return s.ledger.Delete(ctx, id)
}

// DefaultTuition returns the fee components a student is expected to pay for a semester
func (s *PaymentService) DefaultTuition(ctx context.Context, studentID uint, semester string) (*TuitionQuote, error) {
	return s.directory.DefaultTuition(ctx, studentID, semester)
}

// validateNew runs the checks shared by both creation paths and returns the total
func (s *PaymentService) validateNew(ctx context.Context, in CreatePaymentInput) (decimal.Decimal, error) {
	if in.PaymentCode == "" {
		return decimal.Zero, validationErrorf("payment code is required")
	}
	if !in.Method.Valid() {
		return decimal.Zero, validationErrorf("unknown payment method %q", in.Method)
	}

	existing, err := s.ledger.FindByPaymentCode(ctx, in.PaymentCode)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return decimal.Zero, err
	}
	if existing != nil {
		return decimal.Zero, validationErrorf("payment code %s already exists", in.PaymentCode)
	}

	if err := validateComponents(in.Components); err != nil {
		return decimal.Zero, err
	}
	total := in.Components.Total()
	if !total.IsPositive() {
		return decimal.Zero, validationErrorf("total amount must be greater than zero")
	}
	return total, nil
}

func (s *PaymentService) newPayment(in CreatePaymentInput, total decimal.Decimal, status models.PaymentStatus) *models.Payment {
	now := s.now()
	return &models.Payment{
		ID:                uuid.NewString(),
		StudentID:         in.StudentID,
		PaymentCode:       in.PaymentCode,
		Semester:          in.Semester,
		TuitionComponents: in.Components,
		TotalAmount:       total,
		Status:            status,
		Method:            in.Method,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *PaymentService) insert(ctx context.Context, p *models.Payment) error {
	err := s.ledger.Insert(ctx, p)
	if errors.Is(err, ErrDuplicatePaymentCode) {
		return validationErrorf("payment code %s already exists", p.PaymentCode)
	}
	return err
}

// notify is fire-and-forget: the payment is already committed, so nothing here
// may fail the caller, and a cancelled request must not abort the dispatch.
func (s *PaymentService) notify(ctx context.Context, p *models.Payment, kind models.NotificationKind) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Notification dispatch panicked for payment %s: %v", p.ID, r)
		}
	}()

	args := NotificationArgs{PaymentCode: p.PaymentCode, Semester: p.Semester}
	if _, err := s.notifier.Dispatch(context.WithoutCancel(ctx), p.StudentID, kind, args); err != nil {
		log.Printf("Failed to dispatch %s notification for payment %s: %v", kind, p.ID, err)
	}
}

// mergeGatewayInfo refreshes the transaction id and fills gateway references
// that are still empty. It reports whether anything changed.
func mergeGatewayInfo(dst *models.GatewayInfo, src *models.GatewayInfo) bool {
	if src == nil {
		return false
	}
	changed := false
	if src.TransactionID != "" && src.TransactionID != dst.TransactionID {
		dst.TransactionID = src.TransactionID
		changed = true
	}
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&dst.OrderID, src.OrderID},
		{&dst.PaymentURL, src.PaymentURL},
		{&dst.VirtualAccountNumber, src.VirtualAccountNumber},
		{&dst.BillKey, src.BillKey},
		{&dst.BillerCode, src.BillerCode},
	} {
		if *f.dst == "" && f.src != "" {
			*f.dst = f.src
			changed = true
		}
	}
	return changed
}

func validateComponents(c models.TuitionComponents) error {
	for name, v := range c.Present() {
		if v.IsNegative() {
			return validationErrorf("%s must not be negative", name)
		}
		if !v.Equal(v.Truncate(0)) {
			return validationErrorf("%s must be a whole amount", name)
		}
	}
	return nil
}

var componentLabels = []struct {
	id    string
	label string
	get   func(models.TuitionComponents) decimal.NullDecimal
}{
	{"base", "Base tuition", func(c models.TuitionComponents) decimal.NullDecimal { return c.BasePayment }},
	{"department", "Department surcharge", func(c models.TuitionComponents) decimal.NullDecimal { return c.DepartmentSurcharge }},
	{"lab", "Lab fee", func(c models.TuitionComponents) decimal.NullDecimal { return c.LabFee }},
	{"exam", "Exam fee", func(c models.TuitionComponents) decimal.NullDecimal { return c.ExamFee }},
	{"activity", "Activity fee", func(c models.TuitionComponents) decimal.NullDecimal { return c.ActivityFee }},
}

// chargeItems lists the non-zero components as gateway line items
func chargeItems(c models.TuitionComponents) []ChargeItem {
	var items []ChargeItem
	for _, l := range componentLabels {
		v := l.get(c)
		if !v.Valid || v.Decimal.IsZero() {
			continue
		}
		items = append(items, ChargeItem{ID: l.id, Name: l.label, Price: v.Decimal.IntPart()})
	}
	return items
}
