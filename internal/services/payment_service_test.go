package services_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
	"siakad_payment_echo/internal/services/servicestest"
)

func amount(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

type fixture struct {
	ledger  *servicestest.Ledger
	gateway *servicestest.Gateway
	sink    *servicestest.Sink
	svc     *services.PaymentService
}

func newFixture() *fixture {
	f := &fixture{
		ledger:  servicestest.NewLedger(),
		gateway: &servicestest.Gateway{ServerKey: "server-key"},
		sink:    &servicestest.Sink{},
	}
	dir := servicestest.NewDirectory(models.Student{ID: 7, NIM: "2101001", Name: "Siti Rahma", Email: "siti@example.ac.id", Phone: "081234567890"})
	f.svc = services.NewPaymentService(f.ledger, dir, f.gateway, f.sink, services.NewKeyedMutex())
	return f
}

func scenarioInput(code string) services.CreatePaymentInput {
	return services.CreatePaymentInput{
		StudentID:   7,
		PaymentCode: code,
		Semester:    "2024/2025-1",
		Method:      models.PaymentMethodBankTransfer,
		Components: models.TuitionComponents{
			BasePayment: amount(2580000),
			LabFee:      amount(1200000),
		},
	}
}

func TestCreateWithGatewayPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-001"))
	if err != nil {
		t.Fatalf("CreateWithGateway returned error: %v", err)
	}

	if !p.TotalAmount.Equal(decimal.NewFromInt(3780000)) {
		t.Errorf("total = %s; want 3780000", p.TotalAmount)
	}
	if p.Status != models.PaymentStatusPending {
		t.Errorf("status = %s; want pending", p.Status)
	}
	if !strings.HasPrefix(p.Gateway.OrderID, "PAY-SPP-001-") {
		t.Errorf("order id %q should start with PAY-SPP-001-", p.Gateway.OrderID)
	}
	if p.Gateway.VirtualAccountNumber == "" || p.Gateway.TransactionID == "" {
		t.Errorf("gateway references not stored: %+v", p.Gateway)
	}

	if len(f.gateway.Charges) != 1 {
		t.Fatalf("charges = %d; want 1", len(f.gateway.Charges))
	}
	charge := f.gateway.Charges[0]
	if charge.GrossAmount != 3780000 {
		t.Errorf("gross amount = %d; want 3780000", charge.GrossAmount)
	}
	if len(charge.Items) != 2 || charge.Items[0].Price+charge.Items[1].Price != charge.GrossAmount {
		t.Errorf("charge items %+v should add up to the gross amount", charge.Items)
	}
	if charge.CustomerEmail != "siti@example.ac.id" {
		t.Errorf("customer email = %q", charge.CustomerEmail)
	}

	stored, err := f.ledger.FindByID(ctx, p.ID)
	if err != nil || stored.Status != models.PaymentStatusPending {
		t.Fatalf("stored payment = %+v, %v", stored, err)
	}

	kinds := f.sink.Kinds()
	if len(kinds) != 1 || kinds[0] != models.NotificationKindPaymentPending {
		t.Errorf("notifications = %v; want [payment_pending]", kinds)
	}
	if f.sink.Dispatches[0].StudentID != 7 || f.sink.Dispatches[0].Args.PaymentCode != "SPP-001" {
		t.Errorf("unexpected dispatch %+v", f.sink.Dispatches[0])
	}
}

func TestCreateWithGatewayRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*services.CreatePaymentInput)
		wantErr error
	}{
		{
			name:    "duplicate payment code",
			mutate:  func(in *services.CreatePaymentInput) { in.PaymentCode = "SPP-TAKEN" },
			wantErr: services.ErrValidation,
		},
		{
			name: "zero total",
			mutate: func(in *services.CreatePaymentInput) {
				in.Components = models.TuitionComponents{BasePayment: amount(0)}
			},
			wantErr: services.ErrValidation,
		},
		{
			name: "no components",
			mutate: func(in *services.CreatePaymentInput) {
				in.Components = models.TuitionComponents{}
			},
			wantErr: services.ErrValidation,
		},
		{
			name: "negative component",
			mutate: func(in *services.CreatePaymentInput) {
				in.Components.ExamFee = amount(-5000)
			},
			wantErr: services.ErrValidation,
		},
		{
			name: "fractional component",
			mutate: func(in *services.CreatePaymentInput) {
				in.Components.ExamFee = decimal.NewNullDecimal(decimal.RequireFromString("100.50"))
			},
			wantErr: services.ErrValidation,
		},
		{
			name:    "unknown method",
			mutate:  func(in *services.CreatePaymentInput) { in.Method = "cash" },
			wantErr: services.ErrValidation,
		},
		{
			name:    "unknown student",
			mutate:  func(in *services.CreatePaymentInput) { in.StudentID = 99 },
			wantErr: services.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			if _, err := f.svc.Create(ctx, scenarioInput("SPP-TAKEN")); err != nil {
				t.Fatalf("seeding payment: %v", err)
			}

			in := scenarioInput("SPP-NEW")
			tt.mutate(&in)
			_, err := f.svc.CreateWithGateway(ctx, in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v; want %v", err, tt.wantErr)
			}
			if len(f.gateway.Charges) != 0 {
				t.Errorf("gateway was charged %d times for a rejected request", len(f.gateway.Charges))
			}
			if f.ledger.Count() != 1 {
				t.Errorf("ledger holds %d payments; want only the seeded one", f.ledger.Count())
			}
		})
	}
}

func TestCreateWithGatewayFailureThenRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.gateway.ChargeErr = &services.GatewayError{Op: "charge", Message: "connection reset by peer"}
	_, err := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-002"))
	var gwErr *services.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("err = %v; want a GatewayError", err)
	}
	if f.ledger.Count() != 0 {
		t.Fatalf("a failed charge must not write the ledger; found %d rows", f.ledger.Count())
	}
	if len(f.sink.Dispatches) != 0 {
		t.Errorf("a failed charge must not notify")
	}

	f.gateway.ChargeErr = nil
	p, err := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-002"))
	if err != nil {
		t.Fatalf("retry with the same payment code failed: %v", err)
	}
	if p.PaymentCode != "SPP-002" || f.ledger.Count() != 1 {
		t.Errorf("retry did not store the payment")
	}
}

func TestCreateDirect(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := scenarioInput("SPP-CASH")
	p, err := f.svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.Status != models.PaymentStatusUnpaid {
		t.Errorf("status = %s; want unpaid", p.Status)
	}
	if !p.Gateway.IsZero() {
		t.Errorf("direct creation must not carry gateway data: %+v", p.Gateway)
	}
	if len(f.gateway.Charges) != 0 || len(f.sink.Dispatches) != 0 {
		t.Errorf("direct unpaid creation must not charge or notify")
	}

	in = scenarioInput("SPP-CASH-2")
	in.Status = models.PaymentStatusPaid
	if _, err := f.svc.Create(ctx, in); err != nil {
		t.Fatalf("Create paid returned error: %v", err)
	}
	if kinds := f.sink.Kinds(); len(kinds) != 1 || kinds[0] != models.NotificationKindPaymentSuccess {
		t.Errorf("notifications = %v; want [payment_success]", kinds)
	}
}

func TestUpdateStatusNotifiesOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-003"))
	if err != nil {
		t.Fatal(err)
	}

	meta := &models.GatewayInfo{TransactionID: "trx-settled"}
	for i := 0; i < 2; i++ {
		got, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPaid, meta)
		if err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
		if got.Status != models.PaymentStatusPaid {
			t.Fatalf("delivery %d: status = %s", i+1, got.Status)
		}
	}

	want := []models.NotificationKind{models.NotificationKindPaymentPending, models.NotificationKindPaymentSuccess}
	kinds := f.sink.Kinds()
	if len(kinds) != len(want) || kinds[0] != want[0] || kinds[1] != want[1] {
		t.Errorf("notifications = %v; want %v", kinds, want)
	}
	if f.ledger.Updates != 1 {
		t.Errorf("ledger updates = %d; the repeated delivery should not write", f.ledger.Updates)
	}

	stored, _ := f.ledger.FindByID(ctx, p.ID)
	if stored.Gateway.TransactionID != "trx-settled" {
		t.Errorf("transaction id = %q; want refreshed value", stored.Gateway.TransactionID)
	}
}

func TestUpdateStatusSameStatusRefreshesMeta(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-004"))
	got, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPending, &models.GatewayInfo{TransactionID: "trx-new", VirtualAccountNumber: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Gateway.TransactionID != "trx-new" {
		t.Errorf("transaction id = %q; want trx-new", got.Gateway.TransactionID)
	}
	if got.Gateway.VirtualAccountNumber != p.Gateway.VirtualAccountNumber {
		t.Errorf("virtual account number was overwritten: %q", got.Gateway.VirtualAccountNumber)
	}
	if len(f.sink.Dispatches) != 1 {
		t.Errorf("a same-status update must not notify; dispatches = %d", len(f.sink.Dispatches))
	}
}

func TestGatewayCannotLeavePaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-005"))
	if _, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPaid, nil); err != nil {
		t.Fatal(err)
	}

	// a late "pending" delivery arriving after settlement
	got, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPending, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.PaymentStatusPaid {
		t.Errorf("status = %s; a gateway update must not leave paid", got.Status)
	}

	// an administrator still can
	got, err = f.svc.UpdateStatus(ctx, p.ID, models.PaymentStatusUnpaid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.PaymentStatusUnpaid {
		t.Errorf("status = %s; want unpaid after admin update", got.Status)
	}
	kinds := f.sink.Kinds()
	if kinds[len(kinds)-1] != models.NotificationKindPaymentError {
		t.Errorf("last notification = %s; want payment_error", kinds[len(kinds)-1])
	}
}

func TestGatewayCannotReopenFailedCharge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-015"))
	if _, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusUnpaid, nil); err != nil {
		t.Fatal(err)
	}

	// the "pending" delivery for the same charge arrives after the expiry
	got, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPending, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.PaymentStatusUnpaid {
		t.Errorf("status = %s; a late pending must not reopen a failed charge", got.Status)
	}
	want := []models.NotificationKind{models.NotificationKindPaymentPending, models.NotificationKindPaymentError}
	if kinds := f.sink.Kinds(); !reflect.DeepEqual(kinds, want) {
		t.Errorf("notifications = %v; want %v", kinds, want)
	}

	// a late settlement still wins
	got, err = f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPaid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.PaymentStatusPaid {
		t.Errorf("status = %s; want paid after settlement", got.Status)
	}
}

func TestUpdateStatusRetriesStaleWrite(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-006"))

	f.ledger.StaleWrites = 1
	got, err := f.svc.UpdateStatus(ctx, p.ID, models.PaymentStatusPaid, nil)
	if err != nil {
		t.Fatalf("UpdateStatus should retry a stale write: %v", err)
	}
	if got.Status != models.PaymentStatusPaid {
		t.Errorf("status = %s; want paid", got.Status)
	}

	f.ledger.StaleWrites = 10
	_, err = f.svc.UpdateStatus(ctx, p.ID, models.PaymentStatusUnpaid, nil)
	if !errors.Is(err, services.ErrStaleWrite) {
		t.Errorf("err = %v; want ErrStaleWrite after exhausting retries", err)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.UpdateStatus(ctx, "missing", models.PaymentStatusPaid, nil); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("err = %v; want ErrNotFound", err)
	}
	p, _ := f.svc.Create(ctx, scenarioInput("SPP-007"))
	if _, err := f.svc.UpdateStatus(ctx, p.ID, "refunded", nil); !errors.Is(err, services.ErrValidation) {
		t.Errorf("err = %v; want ErrValidation", err)
	}
}

func TestConcurrentDeliveriesNotifyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-008"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPaid, nil); err != nil {
				t.Errorf("ApplyGatewayStatus: %v", err)
			}
		}()
	}
	wg.Wait()

	success := 0
	for _, k := range f.sink.Kinds() {
		if k == models.NotificationKindPaymentSuccess {
			success++
		}
	}
	if success != 1 {
		t.Errorf("payment_success notifications = %d; want 1", success)
	}
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	for _, tt := range []struct {
		name string
		sink *servicestest.Sink
	}{
		{"sink error", &servicestest.Sink{Err: errors.New("database is down")}},
		{"sink panic", &servicestest.Sink{Panic: true}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ledger := servicestest.NewLedger()
			dir := servicestest.NewDirectory(models.Student{ID: 7, Name: "Siti Rahma"})
			svc := services.NewPaymentService(ledger, dir, &servicestest.Gateway{}, tt.sink, nil)
			ctx := context.Background()

			p, err := svc.CreateWithGateway(ctx, scenarioInput("SPP-009"))
			if err != nil {
				t.Fatalf("creation must survive a broken sink: %v", err)
			}
			got, err := svc.ApplyGatewayStatus(ctx, p.ID, models.PaymentStatusPaid, nil)
			if err != nil || got.Status != models.PaymentStatusPaid {
				t.Fatalf("status update must survive a broken sink: %+v, %v", got, err)
			}
		})
	}
}

func TestUpdateRecomputesTotal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.Create(ctx, scenarioInput("SPP-010"))

	examFee := amount(300000)
	removed := decimal.NullDecimal{}
	status := models.PaymentStatusPaid
	got, err := f.svc.Update(ctx, p.ID, services.PaymentUpdate{
		Status: &status,
		Components: services.ComponentsPatch{
			ExamFee: &examFee,
			LabFee:  &removed,
		},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if !got.TotalAmount.Equal(decimal.NewFromInt(2880000)) {
		t.Errorf("total = %s; want 2880000", got.TotalAmount)
	}
	if !got.TotalAmount.Equal(got.TuitionComponents.Total()) {
		t.Errorf("total %s does not match the components", got.TotalAmount)
	}
	if kinds := f.sink.Kinds(); len(kinds) != 1 || kinds[0] != models.NotificationKindPaymentSuccess {
		t.Errorf("notifications = %v; want [payment_success]", kinds)
	}

	negative := amount(-1)
	if _, err := f.svc.Update(ctx, p.ID, services.PaymentUpdate{Components: services.ComponentsPatch{BasePayment: &negative}}); !errors.Is(err, services.ErrValidation) {
		t.Errorf("err = %v; want ErrValidation for a negative component", err)
	}
}

func TestSyncWithGateway(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-011"))

	f.gateway.Statuses = []services.TransactionStatus{services.TransactionStatusSettlement}
	got, err := f.svc.SyncWithGateway(ctx, p.ID)
	if err != nil {
		t.Fatalf("SyncWithGateway returned error: %v", err)
	}
	if got.Status != models.PaymentStatusPaid {
		t.Errorf("status = %s; want paid", got.Status)
	}

	direct, _ := f.svc.Create(ctx, scenarioInput("SPP-012"))
	if _, err := f.svc.SyncWithGateway(ctx, direct.ID); !errors.Is(err, services.ErrValidation) {
		t.Errorf("err = %v; want ErrValidation for a payment without gateway order", err)
	}

	f.gateway.StatusErr = &services.GatewayError{Op: "status", Message: "timeout"}
	var gwErr *services.GatewayError
	if _, err := f.svc.SyncWithGateway(ctx, p.ID); !errors.As(err, &gwErr) {
		t.Errorf("err = %v; want GatewayError", err)
	}
}

func TestFindByGatewayOrderIDAndDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreateWithGateway(ctx, scenarioInput("SPP-013"))

	found, err := f.svc.FindByGatewayOrderID(ctx, p.Gateway.OrderID)
	if err != nil || found.ID != p.ID {
		t.Fatalf("FindByGatewayOrderID = %+v, %v", found, err)
	}
	if _, err := f.svc.FindByGatewayOrderID(ctx, "PAY-UNKNOWN-1"); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("err = %v; want ErrNotFound", err)
	}

	if err := f.svc.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Delete(ctx, p.ID); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("second delete err = %v; want ErrNotFound", err)
	}
}
