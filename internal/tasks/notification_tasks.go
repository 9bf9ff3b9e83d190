package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

const (
	SendNotificationTaskID = "send_notification"

	deliveryMaxAttempt = 3
	deliveryRetryDelay = 5 * time.Minute
)

// SendNotificationArgs defines the arguments for a notification delivery task
type SendNotificationArgs struct {
	NotificationID uint `json:"notification_id"`
	StudentID      uint `json:"mahasiswa_id"`
	AttemptCount   int  `json:"attempt_count"`
}

type NotificationLookup interface {
	Get(ctx context.Context, id uint) (*models.Notification, error)
}

type PreferenceLookup interface {
	Get(ctx context.Context, studentID uint) (*models.StudentNotifPreference, error)
}

type StudentLookup interface {
	FindStudent(ctx context.Context, id uint) (*models.Student, error)
}

type EmailSender interface {
	SendEmail(to []string, subject, body string) error
}

type WhatsappSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// NotificationDelivery pushes stored notifications to the channel the student picked
type NotificationDelivery struct {
	store         TaskStore
	notifications NotificationLookup
	preferences   PreferenceLookup
	students      StudentLookup
	email         EmailSender
	whatsapp      WhatsappSender
	now           func() time.Time
}

func NewNotificationDelivery(store TaskStore, notifications NotificationLookup, preferences PreferenceLookup, students StudentLookup, email EmailSender, whatsapp WhatsappSender) *NotificationDelivery {
	return &NotificationDelivery{
		store:         store,
		notifications: notifications,
		preferences:   preferences,
		students:      students,
		email:         email,
		whatsapp:      whatsapp,
		now:           time.Now,
	}
}

// TaskID returns the unique identifier for this task
func (d *NotificationDelivery) TaskID() string {
	return SendNotificationTaskID
}

func newDeliveryTask(args SendNotificationArgs, due time.Time) (*models.ScheduledTask, error) {
	return BuildScheduledTask(SendNotificationTaskID, args, due, nil, models.ScheduledTaskTypeOneTime, deliveryMaxAttempt)
}

// DeliveryScheduler queues a send_notification task for every stored notification
type DeliveryScheduler struct {
	store TaskStore
	now   func() time.Time
}

func NewDeliveryScheduler(store TaskStore) *DeliveryScheduler {
	return &DeliveryScheduler{store: store, now: time.Now}
}

func (s *DeliveryScheduler) ScheduleDelivery(ctx context.Context, n *models.Notification) error {
	task, err := newDeliveryTask(SendNotificationArgs{
		NotificationID: n.ID,
		StudentID:      n.StudentID,
		AttemptCount:   1,
	}, s.now())
	if err != nil {
		return err
	}
	return s.store.Create(ctx, task)
}

// HandleExecution sends one notification. A failed send is rescheduled until
// the task's MaxAttempt is reached.
func (d *NotificationDelivery) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	var args SendNotificationArgs
	if err := parseArgs(task, &args); err != nil {
		return nil, Permanent(err)
	}
	if args.AttemptCount < 1 {
		args.AttemptCount = 1
	}

	n, err := d.notifications.Get(ctx, args.NotificationID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			log.Printf("Skipping delivery of notification %d: not found", args.NotificationID)
			return map[string]interface{}{"status": "skipped", "reason": "notification not found"}, nil
		}
		return nil, err
	}

	pref, err := d.preferences.Get(ctx, n.StudentID)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"notification_id": n.ID,
		"channel":         string(pref.Channel),
		"attempt":         args.AttemptCount,
	}

	var sendErr error
	switch pref.Channel {
	case models.NotificationChannelNone:
		log.Printf("Notification disabled (none) for student %d", n.StudentID)
		result["status"] = "skipped"
		return result, nil
	case models.NotificationChannelEmail:
		sendErr = d.sendEmail(ctx, n)
	case models.NotificationChannelWhatsapp:
		sendErr = d.sendWhatsapp(ctx, n, pref)
	default:
		log.Printf("Unsupported notification channel %s for student %d", pref.Channel, n.StudentID)
		result["status"] = "skipped"
		return result, nil
	}

	if sendErr == nil {
		result["status"] = "sent"
		return result, nil
	}

	log.Printf("Failed to send notification %d via %s: %v", n.ID, pref.Channel, sendErr)
	result["status"] = "failed"
	result["error"] = sendErr.Error()

	if args.AttemptCount >= task.MaxAttempt {
		log.Printf("Max attempts (%d) reached for notification %d.", task.MaxAttempt, n.ID)
		return result, Permanent(fmt.Errorf("max attempts reached for notification %d: %w", n.ID, sendErr))
	}

	next := args
	next.AttemptCount++
	retry, err := newDeliveryTask(next, d.now().Add(deliveryRetryDelay))
	if err != nil {
		return result, Permanent(err)
	}
	if err := d.store.Create(ctx, retry); err != nil {
		// the send already ran once, so do not let the runner send again this tick
		return result, Permanent(fmt.Errorf("failed to create retry task: %w", err))
	}
	log.Printf("Rescheduled notification %d for attempt %d", n.ID, next.AttemptCount)
	result["rescheduled"] = true
	return result, nil
}

func (d *NotificationDelivery) sendEmail(ctx context.Context, n *models.Notification) error {
	if d.email == nil {
		return services.ErrEmailNotConfigured
	}
	student, err := d.students.FindStudent(ctx, n.StudentID)
	if err != nil {
		return err
	}
	if student.Email == "" {
		return fmt.Errorf("student %d has no email address", student.ID)
	}
	return d.email.SendEmail([]string{student.Email}, n.Title, n.Message)
}

func (d *NotificationDelivery) sendWhatsapp(ctx context.Context, n *models.Notification, pref *models.StudentNotifPreference) error {
	if d.whatsapp == nil {
		return errors.New("whatsapp is not configured")
	}

	var chatID string
	if pref.WhatsappTargetType == models.WhatsappTargetTypeGroup {
		chatID = pref.WhatsappGroupID
		if chatID == "" {
			return fmt.Errorf("group ID is empty")
		}
		if !strings.HasSuffix(chatID, "@g.us") {
			chatID = chatID + "@g.us"
		}
	} else {
		student, err := d.students.FindStudent(ctx, n.StudentID)
		if err != nil {
			return err
		}
		if student.Phone == "" {
			return fmt.Errorf("student %d has no phone number", student.ID)
		}
		chatID = student.Phone
	}

	return d.whatsapp.SendMessage(ctx, chatID, "*"+n.Title+"*\n"+n.Message)
}
