package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"siakad_payment_echo/internal/models"
)

// Runner executes the scheduled tasks whose due time has passed
type Runner struct {
	store    TaskStore
	registry *Registry
	now      func() time.Time
}

func NewRunner(store TaskStore, registry *Registry) *Runner {
	return &Runner{store: store, registry: registry, now: time.Now}
}

// RunDue processes every due task once and returns how many were picked up
func (r *Runner) RunDue(ctx context.Context) int {
	log.Println("Checking for pending tasks...")

	pending, err := r.store.DueTasks(ctx, r.now())
	if err != nil {
		log.Printf("Error fetching pending tasks: %v", err)
		return 0
	}
	if len(pending) == 0 {
		log.Println("No pending tasks found.")
		return 0
	}

	log.Printf("Found %d pending tasks.", len(pending))
	processed := 0
	for _, task := range pending {
		if ctx.Err() != nil {
			break
		}
		r.execute(ctx, task)
		processed++
	}
	return processed
}

// Loop runs RunDue on every tick until ctx is done
func (r *Runner) Loop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	r.RunDue(ctx)
	for {
		select {
		case <-ticker.C:
			r.RunDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) execute(ctx context.Context, task models.ScheduledTask) {
	log.Printf("Processing task: %s (ID: %d)", task.TaskName, task.ID)

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Printf("Task handler not found for: %s. Marking as failure.", task.TaskName)
		now := r.now()
		r.update(ctx, task, map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": &now,
		})
		r.history(ctx, &models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           now,
			Status:          models.TaskRunHandlerNotFound,
			AttemptNumber:   1,
			Arguments:       task.Arguments,
			Result:          map[string]interface{}{"error": "Handler not found"},
		})
		return
	}

	maxAttempt := task.MaxAttempt
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	var startTime time.Time
	var err error
	for attempt := 1; attempt <= maxAttempt; attempt++ {
		startTime = r.now()
		var result map[string]interface{}
		result, err = r.run(ctx, handler, task)
		runtimeMs := int(r.now().Sub(startTime).Milliseconds())

		status := models.TaskRunSuccess
		resultData := result
		if err != nil {
			status = models.TaskRunFailure
			if resultData == nil {
				resultData = map[string]interface{}{}
			}
			resultData["error"] = err.Error()
			log.Printf("Task %s failed (attempt %d/%d): %v", task.TaskName, attempt, maxAttempt, err)
		} else {
			log.Printf("Task %s completed successfully.", task.TaskName)
		}

		r.history(ctx, &models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           startTime,
			Runtime:         runtimeMs,
			Status:          status,
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Result:          resultData,
		})

		if err == nil || isPermanent(err) || ctx.Err() != nil {
			break
		}
	}

	updates := map[string]interface{}{"last_run": &startTime}
	switch {
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		// a failed run of a recurring task does not stop later runs
		nextDue := task.NextDue(r.now())
		if nextDue.After(task.Due) {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = nextDue
		} else if err != nil {
			updates["status"] = models.ScheduledTaskStatusFailure
		} else {
			updates["status"] = models.ScheduledTaskStatusDone
		}
	case err != nil:
		updates["status"] = models.ScheduledTaskStatusFailure
	default:
		updates["status"] = models.ScheduledTaskStatusDone
	}
	r.update(ctx, task, updates)
}

// run calls the handler and turns a panic into an error
func (r *Runner) run(ctx context.Context, handler TaskHandler, task models.ScheduledTask) (result map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = Permanent(panicError{rec})
		}
	}()
	return handler(ctx, task)
}

type panicError struct {
	value interface{}
}

func (p panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", p.value)
}

func (r *Runner) update(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) {
	if err := r.store.Update(ctx, task, updates); err != nil {
		log.Printf("Failed to update task %d: %v", task.ID, err)
	}
}

func (r *Runner) history(ctx context.Context, h *models.ScheduledTaskHistory) {
	if err := r.store.RecordHistory(ctx, h); err != nil {
		log.Printf("Failed to record history of task %d: %v", h.ScheduledTaskID, err)
	}
}
