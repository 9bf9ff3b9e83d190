package models

import (
	"encoding/json"
	"time"
)

type PaymentGateway string

const (
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
	PaymentGatewayManual   PaymentGateway = "manual"
)

// CallbackOutcome is what the webhook receiver answered for one delivery
type CallbackOutcome string

const (
	CallbackOutcomeSuccess         CallbackOutcome = "success"
	CallbackOutcomeInvalid         CallbackOutcome = "invalid"
	CallbackOutcomePaymentNotFound CallbackOutcome = "payment_not_found"
	CallbackOutcomeError           CallbackOutcome = "error"
)

// PaymentCallbackHistory keeps every webhook body received from a gateway
type PaymentCallbackHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	OrderID        string          `gorm:"type:varchar(150);index" json:"order_id"`
	Outcome        CallbackOutcome `gorm:"type:varchar(30)" json:"outcome"`
	Metadata       json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}
