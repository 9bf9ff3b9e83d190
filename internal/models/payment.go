package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the ledger status of a tuition payment
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
)

// Valid reports whether s is one of the known ledger statuses
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusUnpaid:
		return true
	}
	return false
}

// PaymentMethod is the channel the student pays through
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodEWallet      PaymentMethod = "e_wallet"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodEWallet, PaymentMethodCreditCard:
		return true
	}
	return false
}

// TuitionComponents are the fee line items that make up a payment.
// A component that is not Valid is absent and does not count towards the total.
type TuitionComponents struct {
	BasePayment         decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"basePayment"`
	DepartmentSurcharge decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"departmentSurcharge"`
	LabFee              decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"labFee"`
	ExamFee             decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"examFee"`
	ActivityFee         decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"activityFee"`
}

// Present returns the components that are set, keyed by their API name
func (c TuitionComponents) Present() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 5)
	for name, v := range map[string]decimal.NullDecimal{
		"basePayment":         c.BasePayment,
		"departmentSurcharge": c.DepartmentSurcharge,
		"labFee":              c.LabFee,
		"examFee":             c.ExamFee,
		"activityFee":         c.ActivityFee,
	} {
		if v.Valid {
			out[name] = v.Decimal
		}
	}
	return out
}

// Total sums every present component
func (c TuitionComponents) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range c.Present() {
		total = total.Add(v)
	}
	return total
}

// GatewayInfo holds the references issued by the payment gateway for one charge
type GatewayInfo struct {
	OrderID              string `gorm:"type:varchar(150);index" json:"orderId,omitempty"`
	TransactionID        string `gorm:"type:varchar(100)" json:"transactionId,omitempty"`
	PaymentURL           string `gorm:"type:text" json:"paymentUrl,omitempty"`
	VirtualAccountNumber string `gorm:"type:varchar(100)" json:"virtualAccountNumber,omitempty"`
	BillKey              string `gorm:"type:varchar(100)" json:"billKey,omitempty"`
	BillerCode           string `gorm:"type:varchar(100)" json:"billerCode,omitempty"`
}

// IsZero reports whether no gateway charge has been recorded
func (g GatewayInfo) IsZero() bool {
	return g == GatewayInfo{}
}

// Payment is a tuition payment owned by the payment ledger
type Payment struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID   uint            `gorm:"index;not null" json:"mahasiswaId"`
	PaymentCode string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"paymentCode"`
	Semester    string          `gorm:"type:varchar(20)" json:"semester"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"totalAmount"`
	Status      PaymentStatus   `gorm:"type:varchar(20);index;not null;default:'unpaid'" json:"status"`
	Method      PaymentMethod   `gorm:"type:varchar(30);not null" json:"paymentMethod"`

	TuitionComponents `gorm:"embedded"`
	Gateway           GatewayInfo `gorm:"embedded;embeddedPrefix:gateway_" json:"gateway"`

	// Version is bumped on every write; updates are conditional on the version read
	Version   int       `gorm:"not null;default:1" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Student *Student `gorm:"foreignKey:StudentID" json:"-"`
}
