package services

import "siakad_payment_echo/internal/models"

// TransactionStatus is the raw transaction_status reported by Midtrans
type TransactionStatus string

const (
	TransactionStatusSettlement TransactionStatus = "settlement"
	TransactionStatusCapture    TransactionStatus = "capture"
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusDeny       TransactionStatus = "deny"
	TransactionStatusCancel     TransactionStatus = "cancel"
	TransactionStatusExpire     TransactionStatus = "expire"
	TransactionStatusFailure    TransactionStatus = "failure"
)

// MapGatewayStatus maps a gateway transaction status onto the ledger status.
// Statuses this table does not know map to unpaid.
func MapGatewayStatus(raw TransactionStatus) models.PaymentStatus {
	switch raw {
	case TransactionStatusSettlement, TransactionStatusCapture:
		return models.PaymentStatusPaid
	case TransactionStatusPending:
		return models.PaymentStatusPending
	case TransactionStatusDeny, TransactionStatusCancel, TransactionStatusExpire, TransactionStatusFailure:
		return models.PaymentStatusUnpaid
	default:
		return models.PaymentStatusUnpaid
	}
}
