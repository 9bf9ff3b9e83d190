package handlers

import (
	"github.com/labstack/echo/v4"

	authMiddleware "siakad_payment_echo/internal/middleware"
)

// Routes bundles the handlers mounted by RegisterRoutes
type Routes struct {
	Auth          *AuthHandler
	Payments      *PaymentHandler
	Webhooks      *WebhookHandler
	Notifications *NotificationHandler
}

// RegisterRoutes mounts the JSON API. The Midtrans webhook and the session
// endpoints are public. Every other route needs a Firebase identity, and
// changes to existing payments are restricted to administrators.
func RegisterRoutes(e *echo.Echo, r Routes, verifier authMiddleware.TokenVerifier) {
	e.POST("/payment/webhook/midtrans", r.Webhooks.MidtransNotification)
	if r.Auth != nil {
		e.POST("/auth/login", r.Auth.HandleLogin)
		e.POST("/auth/logout", r.Auth.HandleLogout)
	}

	api := e.Group("")
	api.Use(authMiddleware.RequireAuth(verifier))
	admin := authMiddleware.RequireRole(authMiddleware.RoleAdmin)

	api.POST("/payment", r.Payments.CreatePayment, admin)
	api.POST("/payment/midtrans", r.Payments.CreateMidtransPayment)
	api.GET("/payment/biaya-default/:mahasiswaId", r.Payments.DefaultTuition)
	api.GET("/payment", r.Payments.ListPayments)
	api.GET("/payment/:id", r.Payments.GetPayment)
	api.PATCH("/payment/:id", r.Payments.UpdatePayment, admin)
	api.DELETE("/payment/:id", r.Payments.DeletePayment, admin)

	api.GET("/notifications", r.Notifications.ListNotifications)
	api.PATCH("/notifications/:id/read", r.Notifications.MarkRead)
	api.GET("/notification-preferences/:mahasiswaId", r.Notifications.GetPreference)
	api.PUT("/notification-preferences/:mahasiswaId", r.Notifications.UpdatePreference)
}
