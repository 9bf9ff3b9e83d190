package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"siakad_payment_echo/internal/config"
	"siakad_payment_echo/internal/models"
	"siakad_payment_echo/internal/poller"
)

func main() {
	defaults := poller.DefaultConfig()

	paymentID := flag.String("payment", "", "Payment id to watch (mandatory)")
	token := flag.String("token", os.Getenv("API_TOKEN"), "Firebase ID token sent as Bearer credentials")
	baseURL := flag.String("api", "", "Payment API base URL (default: APP_URL)")
	interval := flag.Duration("interval", defaults.Interval, "Wait between reads")
	backoff := flag.Float64("backoff", defaults.BackoffFactor, "Wait multiplier after a failed read")
	maxInterval := flag.Duration("max_interval", defaults.MaxInterval, "Upper bound of the backed off wait")
	maxDuration := flag.Duration("max_duration", defaults.MaxDuration, "Give up after this long (0 = never)")
	flag.Parse()

	if *paymentID == "" {
		log.Fatal("Please provide a payment id using -payment flag")
	}
	if *baseURL == "" {
		*baseURL = config.Load().AppURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var last models.GatewayInfo
	p := poller.New(poller.NewHTTPFetcher(*baseURL, *token), *paymentID, poller.Config{
		Interval:      *interval,
		BackoffFactor: *backoff,
		MaxInterval:   *maxInterval,
		MaxDuration:   *maxDuration,
	}, poller.Callbacks{
		OnUpdate: func(payment *models.Payment) {
			log.Printf("Payment %s is %s (total %s)", payment.PaymentCode, payment.Status, payment.TotalAmount)
			if payment.Gateway != last {
				last = payment.Gateway
				logGateway(last)
			}
		},
		OnError: func(err error) {
			log.Printf("Warning: %v", err)
		},
		OnDone: func(payment *models.Payment) {
			log.Printf("Payment %s paid at %s", payment.PaymentCode, payment.UpdatedAt.Format(time.RFC3339))
		},
	})

	log.Printf("Watching payment %s every %s", *paymentID, *interval)
	p.Start(ctx)

	switch p.Wait() {
	case poller.StateDone:
		return
	case poller.StateExpired:
		log.Fatalf("Gave up after %s without a settled payment", *maxDuration)
	default:
		log.Println("Stopped.")
	}
}

func logGateway(g models.GatewayInfo) {
	if g.VirtualAccountNumber != "" {
		log.Printf("  Virtual account: %s", g.VirtualAccountNumber)
	}
	if g.BillerCode != "" || g.BillKey != "" {
		log.Printf("  Biller code: %s, bill key: %s", g.BillerCode, g.BillKey)
	}
	if g.PaymentURL != "" {
		log.Printf("  Pay at: %s", g.PaymentURL)
	}
}
