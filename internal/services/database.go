package services

import (
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"siakad_payment_echo/internal/models"
)

// DBConfig sizes the connection pool. Zero values take the defaults below.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Debug logs every statement instead of only slow ones and errors
	Debug bool
}

func (c DBConfig) withDefaults() DBConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns / 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

// InitDB opens the ledger database. Driver errors are translated so that a
// unique violation surfaces as gorm.ErrDuplicatedKey.
func InitDB(cfg DBConfig) (*gorm.DB, error) {
	cfg = cfg.withDefaults()

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Printf("Database connection established (max %d connections)", cfg.MaxOpenConns)
	return db, nil
}

// migrated lists every table owned by the payment service, directory tables first
// so foreign keys resolve
var migrated = []interface{}{
	&models.Faculty{},
	&models.Department{},
	&models.Student{},
	&models.TuitionSchedule{},
	&models.Payment{},
	&models.Notification{},
	&models.StudentNotifPreference{},
	&models.PaymentCallbackHistory{},
	&models.ScheduledTask{},
	&models.ScheduledTaskHistory{},
}

func AutoMigrate(db *gorm.DB) error {
	log.Printf("Migrating %d tables...", len(migrated))
	if err := db.AutoMigrate(migrated...); err != nil {
		return err
	}
	log.Println("Database migrations completed")
	return nil
}
