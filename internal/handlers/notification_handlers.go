package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/services"
)

// NotificationStore is the read side of the notification dispatcher
type NotificationStore interface {
	List(ctx context.Context, studentID uint, unreadOnly bool) ([]models.Notification, error)
	Get(ctx context.Context, id uint) (*models.Notification, error)
	MarkRead(ctx context.Context, id uint) (*models.Notification, error)
}

// PreferenceStore reads and writes notification preferences
type PreferenceStore interface {
	Get(ctx context.Context, studentID uint) (*models.StudentNotifPreference, error)
	Save(ctx context.Context, studentID uint, in services.PreferenceInput) (*models.StudentNotifPreference, error)
}

type NotificationHandler struct {
	notifications NotificationStore
	preferences   PreferenceStore
}

func NewNotificationHandler(notifications NotificationStore, preferences PreferenceStore) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, preferences: preferences}
}

// ListNotifications returns a student's notifications, newest first.
// Students without ?mahasiswaId= get their own.
func (h *NotificationHandler) ListNotifications(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	studentID := p.StudentID
	if raw := c.QueryParam("mahasiswaId"); raw != "" {
		if studentID, err = parseStudentID(raw); err != nil {
			return err
		}
	}
	if studentID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "mahasiswaId is required")
	}
	if err := authorizeStudent(c, studentID); err != nil {
		return err
	}

	list, err := h.notifications.List(c.Request().Context(), studentID, c.QueryParam("unread") == "true")
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return c.JSON(http.StatusOK, list)
}

// MarkRead flags a notification as read by its owner
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	ctx := c.Request().Context()
	n, err := h.notifications.Get(ctx, uint(id))
	if err != nil {
		return err
	}
	if err := authorizeStudent(c, n.StudentID); err != nil {
		return err
	}

	n, err = h.notifications.MarkRead(ctx, n.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) GetPreference(c echo.Context) error {
	studentID, err := parseStudentID(c.Param("mahasiswaId"))
	if err != nil {
		return err
	}
	if err := authorizeStudent(c, studentID); err != nil {
		return err
	}

	pref, err := h.preferences.Get(c.Request().Context(), studentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pref)
}

func (h *NotificationHandler) UpdatePreference(c echo.Context) error {
	studentID, err := parseStudentID(c.Param("mahasiswaId"))
	if err != nil {
		return err
	}
	if err := authorizeStudent(c, studentID); err != nil {
		return err
	}

	var req PreferenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	pref, err := h.preferences.Save(c.Request().Context(), studentID, services.PreferenceInput{
		Channel:            models.NotificationChannel(req.Channel),
		WhatsappTargetType: req.WhatsappTargetType,
		WhatsappGroupID:    req.WhatsappGroupID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pref)
}
