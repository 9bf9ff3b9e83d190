package services

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"siakad_payment_echo/internal/models"
)

// CallbackRecorder keeps an audit trail of webhook deliveries
type CallbackRecorder interface {
	Record(ctx context.Context, gateway models.PaymentGateway, orderID string, outcome models.CallbackOutcome, body []byte) error
}

type GormCallbackRecorder struct {
	db *gorm.DB
}

func NewGormCallbackRecorder(db *gorm.DB) *GormCallbackRecorder {
	return &GormCallbackRecorder{db: db}
}

func (r *GormCallbackRecorder) Record(ctx context.Context, gateway models.PaymentGateway, orderID string, outcome models.CallbackOutcome, body []byte) error {
	return r.db.WithContext(ctx).Create(&models.PaymentCallbackHistory{
		PaymentGateway: gateway,
		OrderID:        orderID,
		Outcome:        outcome,
		Metadata:       callbackMetadata(body),
	}).Error
}

// callbackMetadata keeps a body that is not JSON as a JSON string so the jsonb column accepts it
func callbackMetadata(body []byte) json.RawMessage {
	if len(body) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
