package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"siakad_payment_echo/internal/models"
)

// NotificationArgs parameterize the payment notification templates
type NotificationArgs struct {
	PaymentCode string
	Semester    string
}

// NotificationSink is the port the payment orchestrator notifies through.
// Callers treat every error from Dispatch as ignorable.
type NotificationSink interface {
	Dispatch(ctx context.Context, studentID uint, kind models.NotificationKind, args NotificationArgs) (*models.Notification, error)
}

// DeliveryScheduler pushes an already persisted notification out to the
// student's own channel (email, WhatsApp)
type DeliveryScheduler interface {
	ScheduleDelivery(ctx context.Context, n *models.Notification) error
}

// BuildNotification renders the title and message of a payment notification
func BuildNotification(kind models.NotificationKind, args NotificationArgs) (string, string) {
	subject := "Your tuition payment " + args.PaymentCode
	if args.Semester != "" {
		subject += " for semester " + args.Semester
	}

	switch kind {
	case models.NotificationKindPaymentSuccess:
		return "Payment successful", subject + " has been received. Thank you."
	case models.NotificationKindPaymentPending:
		return "Waiting for payment", subject + " is waiting for payment. Complete it before the payment code expires."
	case models.NotificationKindPaymentError:
		return "Payment failed", subject + " was not completed. Please create a new payment."
	}
	return "Payment update", subject + " has been updated."
}

// NotificationService persists in-app notifications
type NotificationService struct {
	db       *gorm.DB
	delivery DeliveryScheduler
}

func NewNotificationService(db *gorm.DB, delivery DeliveryScheduler) *NotificationService {
	return &NotificationService{db: db, delivery: delivery}
}

// Dispatch formats and stores a notification. Push delivery is scheduled
// afterwards; a scheduling failure is logged and does not fail the dispatch.
func (s *NotificationService) Dispatch(ctx context.Context, studentID uint, kind models.NotificationKind, args NotificationArgs) (*models.Notification, error) {
	title, message := BuildNotification(kind, args)
	n := &models.Notification{
		StudentID: studentID,
		Kind:      kind,
		Title:     title,
		Message:   message,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	if s.delivery != nil {
		if err := s.delivery.ScheduleDelivery(ctx, n); err != nil {
			log.Printf("Failed to schedule delivery of notification %d: %v", n.ID, err)
		}
	}
	return n, nil
}

// List returns the notifications of a student, newest first
func (s *NotificationService) List(ctx context.Context, studentID uint, unreadOnly bool) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).Where("student_id = ?", studentID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var notifications []models.Notification
	if err := query.Order("created_at desc").Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *NotificationService) Get(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("notification %w", ErrNotFound)
		}
		return nil, err
	}
	return &n, nil
}

// MarkRead flips the read flag, the only mutable field of a notification
func (s *NotificationService) MarkRead(ctx context.Context, id uint) (*models.Notification, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	if err := s.db.WithContext(ctx).Model(n).Update("is_read", true).Error; err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}
