package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

const ReconcilePendingTaskID = "reconcile_pending_payments"

// ReconcileRule runs the sweep every fifteen minutes
const ReconcileRule = "FREQ=MINUTELY;INTERVAL=15"

// ReconcileArgs defines the arguments for the pending payment sweep
type ReconcileArgs struct {
	// OlderThanMinutes skips payments touched more recently than this
	OlderThanMinutes int `json:"older_than_minutes"`
	Limit            int `json:"limit"`
}

// PaymentSyncer is the slice of the payment service the sweep needs
type PaymentSyncer interface {
	List(ctx context.Context, filter services.PaymentFilter) ([]models.Payment, error)
	SyncWithGateway(ctx context.Context, id string) (*models.Payment, error)
}

// ReconcilePendingTask asks the gateway about pending payments whose
// webhook never arrived
type ReconcilePendingTask struct {
	payments PaymentSyncer
	now      func() time.Time
}

func NewReconcilePendingTask(payments PaymentSyncer) *ReconcilePendingTask {
	return &ReconcilePendingTask{payments: payments, now: time.Now}
}

// TaskID returns the unique identifier for this task
func (t *ReconcilePendingTask) TaskID() string {
	return ReconcilePendingTaskID
}

// CreateTask builds the recurring ScheduledTask record for the sweep
func (t *ReconcilePendingTask) CreateTask(args ReconcileArgs, due time.Time) (*models.ScheduledTask, error) {
	rule := ReconcileRule
	return BuildScheduledTask(t.TaskID(), args, due, &rule, models.ScheduledTaskTypeRecurring, 1)
}

func (t *ReconcilePendingTask) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	var args ReconcileArgs
	if err := parseArgs(task, &args); err != nil {
		return nil, Permanent(err)
	}
	if args.OlderThanMinutes <= 0 {
		args.OlderThanMinutes = 10
	}
	if args.Limit <= 0 {
		args.Limit = 100
	}

	pending, err := t.payments.List(ctx, services.PaymentFilter{
		Status:          models.PaymentStatusPending,
		HasGatewayOrder: true,
		UpdatedBefore:   t.now().Add(-time.Duration(args.OlderThanMinutes) * time.Minute),
		Limit:           args.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	changed := 0
	failed := 0
	var failures []string
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		updated, err := t.payments.SyncWithGateway(ctx, p.ID)
		if err != nil {
			log.Printf("Failed to reconcile payment %s: %v", p.ID, err)
			failed++
			failures = append(failures, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		if updated.Status != p.Status {
			log.Printf("Payment %s reconciled: %s -> %s", p.ID, p.Status, updated.Status)
			changed++
		}
	}

	result := map[string]interface{}{
		"checked": len(pending),
		"changed": changed,
		"failure": failed,
	}
	if failed > 0 {
		result["errors"] = failures
		if failed == len(pending) {
			return result, fmt.Errorf("failed to reconcile all %d pending payments", failed)
		}
	}
	return result, nil
}
