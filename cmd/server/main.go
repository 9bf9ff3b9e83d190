package main

import (
	"context"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"siakad_payment_echo/internal/config"
	"siakad_payment_echo/internal/handlers"
	authMiddleware "siakad_payment_echo/internal/middleware"
	"siakad_payment_echo/internal/services"
	"siakad_payment_echo/internal/tasks"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Initialize Firebase
	authClient, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Fatalf("Firebase initialization failed: %v", err)
	}

	// Initialize Database
	if cfg.Database.DSN == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Redis backs the tuition cache and the payment write lock; without it
	// the lock falls back to a single-process mutex
	var cache *services.RedisCache
	var locker services.Locker
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, caching disabled: %v", err)
			cache = nil
		} else {
			defer cache.Close()
			locker = services.NewRedisLocker(cache, cfg.LockTTL)
		}
	}
	if locker == nil {
		log.Println("Using in-process payment locks")
	}

	var delivery services.DeliveryScheduler
	if cfg.NotifyDeliveryEnabled {
		delivery = tasks.NewDeliveryScheduler(tasks.NewGormTaskStore(db))
	}

	gateway := services.NewMidtransService(cfg.Midtrans)
	notifications := services.NewNotificationService(db, delivery)
	payments := services.NewPaymentService(
		services.NewGormPaymentLedger(db),
		services.NewGormDirectory(db, cache, cfg.TuitionCacheTTL),
		gateway,
		notifications,
		locker,
	)

	e := echo.New()
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	handlers.RegisterRoutes(e, handlers.Routes{
		Auth:          handlers.NewAuthHandler(authClient, cfg.SecureCookies),
		Payments:      handlers.NewPaymentHandler(payments),
		Webhooks:      handlers.NewWebhookHandler(payments, gateway, services.NewGormCallbackRecorder(db)),
		Notifications: handlers.NewNotificationHandler(notifications, services.NewPreferenceService(db)),
	}, authClient)

	log.Printf("Server starting on port %s", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
