package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Faculty groups departments
type Faculty struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name string `gorm:"type:varchar(255)" json:"name"`
}

// Department is the study program a student is enrolled in
type Department struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FacultyID uint   `gorm:"index" json:"faculty_id"`
	Name      string `gorm:"type:varchar(255)" json:"name"`

	Faculty Faculty `gorm:"foreignKey:FacultyID" json:"faculty,omitempty"`
}

// Student (mahasiswa) is the payer of a tuition payment
type Student struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	NIM          string `gorm:"type:varchar(30);uniqueIndex" json:"nim"`
	Name         string `gorm:"type:varchar(255)" json:"name"`
	Email        string `gorm:"type:varchar(255)" json:"email"`
	Phone        string `gorm:"type:varchar(50)" json:"phone"`
	DepartmentID uint   `gorm:"index" json:"department_id"`

	Department Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}

// TuitionSchedule is the fee table for a department. A row with an empty
// Semester applies to every semester without a dedicated row.
type TuitionSchedule struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DepartmentID uint   `gorm:"uniqueIndex:idx_tuition_department_semester" json:"department_id"`
	Semester     string `gorm:"type:varchar(20);uniqueIndex:idx_tuition_department_semester" json:"semester"`

	BasePayment         decimal.Decimal `gorm:"type:decimal(15,2)" json:"base_payment"`
	DepartmentSurcharge decimal.Decimal `gorm:"type:decimal(15,2)" json:"department_surcharge"`
	LabFee              decimal.Decimal `gorm:"type:decimal(15,2)" json:"lab_fee"`
	ExamFee             decimal.Decimal `gorm:"type:decimal(15,2)" json:"exam_fee"`
	ActivityFee         decimal.Decimal `gorm:"type:decimal(15,2)" json:"activity_fee"`
}

// Components converts the schedule into payment components. Zero fees are
// left out so they do not show up as line items.
func (t TuitionSchedule) Components() TuitionComponents {
	nd := func(d decimal.Decimal) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: d, Valid: !d.IsZero()}
	}
	return TuitionComponents{
		BasePayment:         nd(t.BasePayment),
		DepartmentSurcharge: nd(t.DepartmentSurcharge),
		LabFee:              nd(t.LabFee),
		ExamFee:             nd(t.ExamFee),
		ActivityFee:         nd(t.ActivityFee),
	}
}
