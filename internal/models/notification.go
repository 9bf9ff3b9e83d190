package models

import "time"

// NotificationKind identifies which payment template produced a notification
type NotificationKind string

const (
	NotificationKindPaymentSuccess NotificationKind = "payment_success"
	NotificationKindPaymentError   NotificationKind = "payment_error"
	NotificationKindPaymentPending NotificationKind = "payment_pending"
)

// NotificationKindFor returns the notification kind announcing a payment status
func NotificationKindFor(status PaymentStatus) NotificationKind {
	switch status {
	case PaymentStatusPaid:
		return NotificationKindPaymentSuccess
	case PaymentStatusPending:
		return NotificationKindPaymentPending
	case PaymentStatusUnpaid:
		return NotificationKindPaymentError
	}
	return NotificationKindPaymentError
}

// Notification is a user-visible message for a student. Only IsRead changes after creation.
type Notification struct {
	ID        uint             `gorm:"primarykey" json:"id"`
	StudentID uint             `gorm:"index;not null" json:"mahasiswaId"`
	Kind      NotificationKind `gorm:"type:varchar(30);not null" json:"kind"`
	Title     string           `gorm:"type:varchar(255)" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	IsRead    bool             `gorm:"default:false" json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}
