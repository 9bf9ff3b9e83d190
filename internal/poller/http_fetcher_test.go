package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"siakad_payment_echo/internal/models"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer student-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"missing credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/payment/pay-1":
			w.Write([]byte(`{"id":"pay-1","mahasiswaId":4,"paymentCode":"SPP-1","totalAmount":"3780000","status":"pending","paymentMethod":"bank_transfer","gateway":{"orderId":"PAY-SPP-1-1","virtualAccountNumber":"8808123456789"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"payment not found"}`))
		}
	}))
	defer srv.Close()

	t.Run("reads payment", func(t *testing.T) {
		p, err := NewHTTPFetcher(srv.URL, "student-token").Fetch(context.Background(), "pay-1")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if p.Status != models.PaymentStatusPending || p.Gateway.VirtualAccountNumber != "8808123456789" {
			t.Errorf("payment = %+v", p)
		}
		if p.TotalAmount.String() != "3780000" {
			t.Errorf("total = %s", p.TotalAmount)
		}
	})

	t.Run("api error", func(t *testing.T) {
		_, err := NewHTTPFetcher(srv.URL, "student-token").Fetch(context.Background(), "missing")
		if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "payment not found") {
			t.Errorf("Fetch() error = %v", err)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		_, err := NewHTTPFetcher(srv.URL, "").Fetch(context.Background(), "pay-1")
		if err == nil || !strings.Contains(err.Error(), "401") {
			t.Errorf("Fetch() error = %v", err)
		}
	})
}
