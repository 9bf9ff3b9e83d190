package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"siakad_payment_echo/internal/models"
)

// StudentDirectory is the read-only view of the academic directory the payment flow needs
type StudentDirectory interface {
	FindStudent(ctx context.Context, id uint) (*models.Student, error)
	DefaultTuition(ctx context.Context, studentID uint, semester string) (*TuitionQuote, error)
}

// TuitionQuote is the fee schedule that applies to one student for one semester
type TuitionQuote struct {
	StudentID   uint                     `json:"mahasiswaId"`
	Semester    string                   `json:"semester"`
	Components  models.TuitionComponents `json:"components"`
	TotalAmount decimal.Decimal          `json:"totalAmount"`
}

// GormDirectory reads students and tuition schedules from the directory tables
type GormDirectory struct {
	db       *gorm.DB
	cache    *RedisCache
	cacheTTL time.Duration
}

func NewGormDirectory(db *gorm.DB, cache *RedisCache, cacheTTL time.Duration) *GormDirectory {
	return &GormDirectory{db: db, cache: cache, cacheTTL: cacheTTL}
}

func (d *GormDirectory) FindStudent(ctx context.Context, id uint) (*models.Student, error) {
	var student models.Student
	if err := d.db.WithContext(ctx).First(&student, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("student %d %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &student, nil
}

// DefaultTuition picks the department's schedule for the semester, falling back
// to the department-wide row with an empty semester.
func (d *GormDirectory) DefaultTuition(ctx context.Context, studentID uint, semester string) (*TuitionQuote, error) {
	student, err := d.FindStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tuition:%d:%s", student.DepartmentID, semester)
	schedule, err := GetOrSet(d.cache, ctx, key, d.cacheTTL, func() (models.TuitionSchedule, error) {
		var s models.TuitionSchedule
		err := d.db.WithContext(ctx).
			Where("department_id = ? AND semester IN ?", student.DepartmentID, []string{semester, ""}).
			Order("semester desc").
			First(&s).Error
		return s, err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tuition schedule for department %d %w", student.DepartmentID, ErrNotFound)
		}
		return nil, err
	}

	components := schedule.Components()
	return &TuitionQuote{
		StudentID:   student.ID,
		Semester:    semester,
		Components:  components,
		TotalAmount: components.Total(),
	}, nil
}
