package services

import (
	"errors"
	"fmt"

	"github.com/midtrans/midtrans-go"
)

var (
	// ErrValidation covers duplicate payment codes, non-positive totals and malformed amounts
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a student, payment or notification does not exist
	ErrNotFound = errors.New("not found")
	// ErrStaleWrite means the row changed between read and write
	ErrStaleWrite = errors.New("stale write")
	// ErrDuplicatePaymentCode is returned by the ledger when the unique code is taken
	ErrDuplicatePaymentCode = errors.New("payment code already exists")
)

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// GatewayError is any transport or gateway-side failure while talking to the payment gateway
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("midtrans %s error (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("midtrans %s error: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// newGatewayError converts the *midtrans.Error returned by the SDK. It returns a
// nil error for a nil input so callers can pass the SDK result straight through.
func newGatewayError(op string, mErr *midtrans.Error) error {
	if mErr == nil {
		return nil
	}
	return &GatewayError{
		Op:         op,
		StatusCode: mErr.StatusCode,
		Message:    mErr.Message,
		Err:        mErr.RawError,
	}
}
