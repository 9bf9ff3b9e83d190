package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"siakad_payment_echo/internal/models"
)

// PreferenceInput is a student's choice of push channel
type PreferenceInput struct {
	Channel            models.NotificationChannel
	WhatsappTargetType string
	WhatsappGroupID    string
}

// Validate checks the channel and the WhatsApp target
func (in PreferenceInput) Validate() error {
	if !in.Channel.Valid() {
		return validationErrorf("unknown notification channel %q", in.Channel)
	}
	if in.Channel != models.NotificationChannelWhatsapp {
		return nil
	}
	switch in.WhatsappTargetType {
	case "", models.WhatsappTargetTypePersonal:
	case models.WhatsappTargetTypeGroup:
		if in.WhatsappGroupID == "" {
			return validationErrorf("whatsapp group id is required for group delivery")
		}
	default:
		return validationErrorf("unknown whatsapp target type %q", in.WhatsappTargetType)
	}
	return nil
}

// PreferenceService stores notification preferences
type PreferenceService struct {
	db *gorm.DB
}

func NewPreferenceService(db *gorm.DB) *PreferenceService {
	return &PreferenceService{db: db}
}

// Get returns the stored preference, or the default one when the student never chose
func (s *PreferenceService) Get(ctx context.Context, studentID uint) (*models.StudentNotifPreference, error) {
	var pref models.StudentNotifPreference
	err := s.db.WithContext(ctx).Where("student_id = ?", studentID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := models.DefaultNotifPreference(studentID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// Save upserts the preference of a student
func (s *PreferenceService) Save(ctx context.Context, studentID uint, in PreferenceInput) (*models.StudentNotifPreference, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	pref, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	pref.Channel = in.Channel
	pref.WhatsappTargetType = in.WhatsappTargetType
	if pref.WhatsappTargetType == "" {
		pref.WhatsappTargetType = models.WhatsappTargetTypePersonal
	}
	pref.WhatsappGroupID = in.WhatsappGroupID
	if pref.WhatsappTargetType != models.WhatsappTargetTypeGroup {
		pref.WhatsappGroupID = ""
	}

	if err := s.db.WithContext(ctx).Save(pref).Error; err != nil {
		return nil, err
	}
	return pref, nil
}
