package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"siakad_payment_echo/internal/models"
)

// PaymentFilter narrows a ledger listing. Zero values do not filter.
type PaymentFilter struct {
	StudentID uint
	Status    models.PaymentStatus
	// HasGatewayOrder limits the result to payments that were charged at the gateway
	HasGatewayOrder bool
	// UpdatedBefore limits the result to rows untouched since the given time
	UpdatedBefore time.Time
	Limit         int
}

// PaymentLedger is the durable store of payments and the single source of truth for status
type PaymentLedger interface {
	Insert(ctx context.Context, p *models.Payment) error
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByPaymentCode(ctx context.Context, code string) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)
	// Update writes p if the stored version still equals p.Version and bumps it.
	// ErrStaleWrite is returned when another writer got there first.
	Update(ctx context.Context, p *models.Payment) error
	Delete(ctx context.Context, id string) error
}

// GormPaymentLedger stores payments in Postgres through GORM
type GormPaymentLedger struct {
	db *gorm.DB
}

func NewGormPaymentLedger(db *gorm.DB) *GormPaymentLedger {
	return &GormPaymentLedger{db: db}
}

func (l *GormPaymentLedger) Insert(ctx context.Context, p *models.Payment) error {
	if p.Version == 0 {
		p.Version = 1
	}
	err := l.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatePaymentCode
	}
	return err
}

func (l *GormPaymentLedger) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	return l.first(ctx, "id = ?", id)
}

func (l *GormPaymentLedger) FindByPaymentCode(ctx context.Context, code string) (*models.Payment, error) {
	return l.first(ctx, "payment_code = ?", code)
}

func (l *GormPaymentLedger) FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return l.first(ctx, "gateway_order_id = ?", orderID)
}

func (l *GormPaymentLedger) first(ctx context.Context, query string, args ...interface{}) (*models.Payment, error) {
	var p models.Payment
	err := l.db.WithContext(ctx).Where(query, args...).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %w", ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (l *GormPaymentLedger) List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error) {
	query := l.db.WithContext(ctx).Model(&models.Payment{})

	if filter.StudentID > 0 {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.HasGatewayOrder {
		query = query.Where("gateway_order_id <> ''")
	}
	if !filter.UpdatedBefore.IsZero() {
		query = query.Where("updated_at < ?", filter.UpdatedBefore)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var payments []models.Payment
	if err := query.Order("created_at desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (l *GormPaymentLedger) Update(ctx context.Context, p *models.Payment) error {
	now := time.Now()
	updates := map[string]interface{}{
		"semester":                       p.Semester,
		"status":                         p.Status,
		"method":                         p.Method,
		"total_amount":                   p.TotalAmount,
		"base_payment":                   p.BasePayment,
		"department_surcharge":           p.DepartmentSurcharge,
		"lab_fee":                        p.LabFee,
		"exam_fee":                       p.ExamFee,
		"activity_fee":                   p.ActivityFee,
		"gateway_order_id":               p.Gateway.OrderID,
		"gateway_transaction_id":         p.Gateway.TransactionID,
		"gateway_payment_url":            p.Gateway.PaymentURL,
		"gateway_virtual_account_number": p.Gateway.VirtualAccountNumber,
		"gateway_bill_key":               p.Gateway.BillKey,
		"gateway_biller_code":            p.Gateway.BillerCode,
		"version":                        p.Version + 1,
		"updated_at":                     now,
	}

	res := l.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

func (l *GormPaymentLedger) Delete(ctx context.Context, id string) error {
	res := l.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Payment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment %w", ErrNotFound)
	}
	return nil
}
