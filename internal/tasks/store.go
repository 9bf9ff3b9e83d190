package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"siakad_payment_echo/internal/models"
)

// TaskStore persists scheduled tasks and their execution history
type TaskStore interface {
	DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error)
	Create(ctx context.Context, task *models.ScheduledTask) error
	Update(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) error
	RecordHistory(ctx context.Context, history *models.ScheduledTaskHistory) error
}

type GormTaskStore struct {
	db *gorm.DB
}

func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db}
}

func (s *GormTaskStore) DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	var due []models.ScheduledTask
	err := s.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due asc").
		Find(&due).Error
	return due, err
}

func (s *GormTaskStore) Create(ctx context.Context, task *models.ScheduledTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task %s: %w", task.TaskName, err)
	}
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *GormTaskStore) Update(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Model(&models.ScheduledTask{}).Where("id = ?", task.ID).Updates(updates).Error
}

func (s *GormTaskStore) RecordHistory(ctx context.Context, history *models.ScheduledTaskHistory) error {
	return s.db.WithContext(ctx).Create(history).Error
}

// EnsureRecurring creates task unless an active task with the same name exists
func (s *GormTaskStore) EnsureRecurring(ctx context.Context, task *models.ScheduledTask) (bool, error) {
	var existing models.ScheduledTask
	err := s.db.WithContext(ctx).
		Where("task_name = ? AND status = ?", task.TaskName, models.ScheduledTaskStatusActive).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return true, s.Create(ctx, task)
}
