package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

// maxWebhookBody caps how much of a notification body is read
const maxWebhookBody = 1 << 20

// PaymentReconciler is what the webhook needs from the payment orchestrator
type PaymentReconciler interface {
	FindByGatewayOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	ApplyGatewayStatus(ctx context.Context, id string, status models.PaymentStatus, meta *models.GatewayInfo) (*models.Payment, error)
}

// NotificationVerifier checks the authenticity of a gateway notification
type NotificationVerifier interface {
	VerifyNotification(n *services.MidtransNotification) bool
}

type WebhookHandler struct {
	payments PaymentReconciler
	verifier NotificationVerifier
	recorder services.CallbackRecorder
}

func NewWebhookHandler(payments PaymentReconciler, verifier NotificationVerifier, recorder services.CallbackRecorder) *WebhookHandler {
	return &WebhookHandler{payments: payments, verifier: verifier, recorder: recorder}
}

// MidtransNotification receives Midtrans HTTP notifications. It always answers
// 200; the outcome is reported in the body so Midtrans stops retrying.
func (h *WebhookHandler) MidtransNotification(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	var outcome models.CallbackOutcome
	var orderID string
	if err != nil {
		log.Printf("Failed to read Midtrans notification: %v", err)
		outcome = models.CallbackOutcomeError
	} else {
		outcome, orderID = h.process(ctx, body)
	}

	h.record(ctx, orderID, outcome, body)
	return c.JSON(http.StatusOK, WebhookResponse{Status: outcome})
}

func (h *WebhookHandler) process(ctx context.Context, body []byte) (outcome models.CallbackOutcome, orderID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic while processing Midtrans notification for order %q: %v", orderID, r)
			outcome = models.CallbackOutcomeError
		}
	}()

	n, err := services.ParseNotification(body)
	if err != nil {
		log.Printf("Rejected Midtrans notification: %v", err)
		return models.CallbackOutcomeInvalid, ""
	}
	orderID = n.OrderID

	if !h.verifier.VerifyNotification(n) {
		log.Printf("Rejected Midtrans notification for order %q: signature verification failed", n.OrderID)
		return models.CallbackOutcomeInvalid, orderID
	}

	payment, err := h.payments.FindByGatewayOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			log.Printf("Midtrans notification for unknown order %q", n.OrderID)
			return models.CallbackOutcomePaymentNotFound, orderID
		}
		log.Printf("Failed to look up order %q: %v", n.OrderID, err)
		return models.CallbackOutcomeError, orderID
	}

	status := services.MapGatewayStatus(n.TransactionStatus)
	meta := &models.GatewayInfo{TransactionID: n.TransactionID}
	if _, err := h.payments.ApplyGatewayStatus(ctx, payment.ID, status, meta); err != nil {
		log.Printf("Failed to apply status %s (%s) to payment %s: %v", status, n.TransactionStatus, payment.ID, err)
		return models.CallbackOutcomeError, orderID
	}
	return models.CallbackOutcomeSuccess, orderID
}

func (h *WebhookHandler) record(ctx context.Context, orderID string, outcome models.CallbackOutcome, body []byte) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(context.WithoutCancel(ctx), models.PaymentGatewayMidtrans, orderID, outcome, body); err != nil {
		log.Printf("Failed to record Midtrans notification for order %q: %v", orderID, err)
	}
}
