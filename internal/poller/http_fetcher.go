package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"siakad_payment_echo/internal/models"
)

// HTTPFetcher reads payments from the payment API
type HTTPFetcher struct {
	client *resty.Client
}

func NewHTTPFetcher(baseURL, token string) *HTTPFetcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	var apiErr struct {
		Error string `json:"error"`
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&payment).
		SetError(&apiErr).
		Get("/payment/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to read payment: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("read payment %s failed with status %d: %s", paymentID, resp.StatusCode(), apiErr.Error)
	}
	return &payment, nil
}
