package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"siakad_payment_echo/internal/middleware"
	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

// Amount is a component amount sent as a string of whole currency units.
// Numbers are accepted too. An explicit null clears the component on update.
type Amount struct {
	Set   bool
	Value decimal.NullDecimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	a.Set = true
	raw := bytes.TrimSpace(b)
	if bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(raw), `"`))
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.Value = decimal.NewNullDecimal(d)
	return nil
}

func (a Amount) patch() *decimal.NullDecimal {
	if !a.Set {
		return nil
	}
	v := a.Value
	return &v
}

// ComponentsInput carries the tuition components of a create or update request
type ComponentsInput struct {
	BasePayment         Amount `json:"basePayment"`
	DepartmentSurcharge Amount `json:"departmentSurcharge"`
	LabFee              Amount `json:"labFee"`
	ExamFee             Amount `json:"examFee"`
	ActivityFee         Amount `json:"activityFee"`
}

func (in ComponentsInput) components() models.TuitionComponents {
	return models.TuitionComponents{
		BasePayment:         in.BasePayment.Value,
		DepartmentSurcharge: in.DepartmentSurcharge.Value,
		LabFee:              in.LabFee.Value,
		ExamFee:             in.ExamFee.Value,
		ActivityFee:         in.ActivityFee.Value,
	}
}

func (in ComponentsInput) patch() services.ComponentsPatch {
	return services.ComponentsPatch{
		BasePayment:         in.BasePayment.patch(),
		DepartmentSurcharge: in.DepartmentSurcharge.patch(),
		LabFee:              in.LabFee.patch(),
		ExamFee:             in.ExamFee.patch(),
		ActivityFee:         in.ActivityFee.patch(),
	}
}

// CreatePaymentRequest is the body of POST /payment and POST /payment/midtrans
type CreatePaymentRequest struct {
	StudentID     uint   `json:"mahasiswaId"`
	PaymentCode   string `json:"paymentCode"`
	Semester      string `json:"semester"`
	PaymentMethod string `json:"paymentMethod"`
	// Status is only used by direct creation
	Status string `json:"status"`
	ComponentsInput
}

func (r CreatePaymentRequest) input() services.CreatePaymentInput {
	return services.CreatePaymentInput{
		StudentID:   r.StudentID,
		PaymentCode: strings.TrimSpace(r.PaymentCode),
		Semester:    strings.TrimSpace(r.Semester),
		Components:  r.components(),
		Method:      models.PaymentMethod(r.PaymentMethod),
		Status:      models.PaymentStatus(r.Status),
	}
}

// UpdatePaymentRequest is the body of PATCH /payment/:id
type UpdatePaymentRequest struct {
	Semester      *string `json:"semester"`
	PaymentMethod *string `json:"paymentMethod"`
	Status        *string `json:"status"`
	ComponentsInput
}

func (r UpdatePaymentRequest) update() services.PaymentUpdate {
	upd := services.PaymentUpdate{
		Semester:   r.Semester,
		Components: r.patch(),
	}
	if r.PaymentMethod != nil {
		m := models.PaymentMethod(*r.PaymentMethod)
		upd.Method = &m
	}
	if r.Status != nil {
		s := models.PaymentStatus(*r.Status)
		upd.Status = &s
	}
	return upd
}

// PreferenceRequest is the body of PUT /notification-preferences/:mahasiswaId
type PreferenceRequest struct {
	Channel            string `json:"channel"`
	WhatsappTargetType string `json:"whatsapp_target_type"`
	WhatsappGroupID    string `json:"whatsapp_group_id"`
}

// WebhookResponse is always sent with HTTP 200
type WebhookResponse struct {
	Status models.CallbackOutcome `json:"status"`
}

func principal(c echo.Context) (middleware.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return middleware.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return p, nil
}

// authorizeStudent rejects callers that may not act for studentID
func authorizeStudent(c echo.Context, studentID uint) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if !p.CanAccessStudent(studentID) {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to access this student")
	}
	return nil
}

func parseStudentID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid mahasiswa ID")
	}
	return uint(id), nil
}
