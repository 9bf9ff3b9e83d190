package models

import (
	"time"

	"gorm.io/gorm"
)

type NotificationChannel string

const (
	NotificationChannelNone     NotificationChannel = "none"
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelWhatsapp NotificationChannel = "whatsapp"
)

func (c NotificationChannel) Valid() bool {
	switch c {
	case NotificationChannelNone, NotificationChannelEmail, NotificationChannelWhatsapp:
		return true
	}
	return false
}

const (
	WhatsappTargetTypePersonal = "personal"
	WhatsappTargetTypeGroup    = "group"
)

// StudentNotifPreference controls how in-app notifications are also pushed to a student
type StudentNotifPreference struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	StudentID uint `gorm:"uniqueIndex" json:"mahasiswa_id"`

	Channel NotificationChannel `gorm:"type:varchar(20);default:'email'" json:"channel"`

	// WhatsApp specific options
	WhatsappTargetType string `gorm:"type:varchar(20);default:'personal'" json:"whatsapp_target_type"` // 'personal' or 'group'
	WhatsappGroupID    string `gorm:"type:varchar(100)" json:"whatsapp_group_id"`                      // Group ID if target type is group
}

// DefaultNotifPreference is used for students that never saved a preference
func DefaultNotifPreference(studentID uint) StudentNotifPreference {
	return StudentNotifPreference{
		StudentID:          studentID,
		Channel:            NotificationChannelEmail,
		WhatsappTargetType: WhatsappTargetTypePersonal,
	}
}
