package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePayment records a payment without the gateway (manual and offline methods)
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := authorizeStudent(c, req.StudentID); err != nil {
		return err
	}

	payment, err := h.payments.Create(c.Request().Context(), req.input())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, payment)
}

// CreateMidtransPayment creates a payment and its Midtrans charge
func (h *PaymentHandler) CreateMidtransPayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := authorizeStudent(c, req.StudentID); err != nil {
		return err
	}

	in := req.input()
	in.Status = ""
	payment, err := h.payments.CreateWithGateway(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, payment)
}

// DefaultTuition returns the fee components a student should pay for a semester
func (h *PaymentHandler) DefaultTuition(c echo.Context) error {
	studentID, err := parseStudentID(c.Param("mahasiswaId"))
	if err != nil {
		return err
	}
	if err := authorizeStudent(c, studentID); err != nil {
		return err
	}

	quote, err := h.payments.DefaultTuition(c.Request().Context(), studentID, c.QueryParam("semester"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quote)
}

// ListPayments lists payments filtered by student and status. Students only see their own.
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	filter := services.PaymentFilter{Status: models.PaymentStatus(c.QueryParam("status"))}
	if raw := c.QueryParam("mahasiswaId"); raw != "" {
		if filter.StudentID, err = parseStudentID(raw); err != nil {
			return err
		}
	}
	if !p.IsAdmin() {
		if filter.StudentID != 0 && filter.StudentID != p.StudentID {
			return echo.NewHTTPError(http.StatusForbidden, "not allowed to access this student")
		}
		filter.StudentID = p.StudentID
	}
	if raw := c.QueryParam("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid limit")
		}
	}

	payments, err := h.payments.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return c.JSON(http.StatusOK, payments)
}

// GetPayment returns one payment. With ?sync=true an unsettled gateway payment
// is first reconciled with Midtrans; a failed sync still answers from the ledger.
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	ctx := c.Request().Context()
	payment, err := h.payments.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if err := authorizeStudent(c, payment.StudentID); err != nil {
		return err
	}

	if c.QueryParam("sync") == "true" && payment.Gateway.OrderID != "" && payment.Status != models.PaymentStatusPaid {
		synced, err := h.payments.SyncWithGateway(ctx, payment.ID)
		if err != nil {
			log.Printf("Failed to sync payment %s with the gateway: %v", payment.ID, err)
		} else {
			payment = synced
		}
	}
	return c.JSON(http.StatusOK, payment)
}

// UpdatePayment applies an administrative change
func (h *PaymentHandler) UpdatePayment(c echo.Context) error {
	var req UpdatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	payment, err := h.payments.Update(c.Request().Context(), c.Param("id"), req.update())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) DeletePayment(c echo.Context) error {
	if err := h.payments.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
