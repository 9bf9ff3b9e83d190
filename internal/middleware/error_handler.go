package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"siakad_payment_echo/internal/services"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps service errors onto HTTP status codes
func StatusFor(err error) int {
	var he *echo.HTTPError
	var gwErr *services.GatewayError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrStaleWrite):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// CustomErrorHandler renders errors as JSON
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusFor(err)
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}
	if code == http.StatusInternalServerError {
		c.Logger().Error(err)
		message = "Something went wrong. Please try again later."
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, ErrorResponse{Error: message})
	}
	if writeErr != nil {
		c.Logger().Error(writeErr)
	}
}
