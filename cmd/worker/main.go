package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"siakad_payment_echo/internal/config"
	"siakad_payment_echo/internal/services"
	"siakad_payment_echo/internal/tasks"
)

func main() {
	cfg := config.Load()

	// Initialize Database
	if cfg.Database.DSN == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

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

	store := tasks.NewGormTaskStore(db)
	directory := services.NewGormDirectory(db, cache, cfg.TuitionCacheTTL)

	var scheduler services.DeliveryScheduler
	if cfg.NotifyDeliveryEnabled {
		scheduler = tasks.NewDeliveryScheduler(store)
	}
	notifications := services.NewNotificationService(db, scheduler)
	payments := services.NewPaymentService(
		services.NewGormPaymentLedger(db),
		directory,
		services.NewMidtransService(cfg.Midtrans),
		notifications,
		locker,
	)

	// Initialize Task Registry
	reconcile := tasks.NewReconcilePendingTask(payments)
	delivery := tasks.NewNotificationDelivery(
		store,
		notifications,
		services.NewPreferenceService(db),
		directory,
		services.NewEmailService(cfg.Email),
		services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey),
	)
	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, reconcile, delivery)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweep, err := reconcile.CreateTask(tasks.ReconcileArgs{}, time.Now())
	if err != nil {
		log.Fatalf("Failed to build reconcile task: %v", err)
	}
	created, err := store.EnsureRecurring(ctx, sweep)
	if err != nil {
		log.Fatalf("Failed to schedule reconcile task: %v", err)
	}
	if created {
		log.Printf("Scheduled recurring task %s (%s)", sweep.TaskName, *sweep.RecurringInterval)
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Printf("Worker started. Checking tasks every %s", cfg.WorkerTick)
	tasks.NewRunner(store, registry).Loop(ctx, cfg.WorkerTick)
}
