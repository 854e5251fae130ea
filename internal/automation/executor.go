package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"kanbo/internal/auth"
	"kanbo/internal/metrics"
	"kanbo/internal/models"
)

// ChainLoader loads an automation definition with its step chain
// reconstructed in order. Implemented by services.AutomationService.
type ChainLoader interface {
	FindOne(ctx context.Context, id uuid.UUID) (*models.Automation, error)
}

// RunNotifier receives run status updates for live observability feeds.
type RunNotifier interface {
	NotifyRun(run *models.AutomationRun)
}

// Executor walks the action-step chain of one queued job: a deterministic
// forward-only interpreter over a linked list. Each step's handler runs
// under the system principal; its side effect commits independently, so a
// mid-chain failure leaves earlier effects applied (at-least-once, no
// compensation).
type Executor struct {
	db          *gorm.DB
	logger      *logrus.Logger
	registry    *Registry
	loader      ChainLoader
	placeholder *PlaceholderProcessor
	notifier    RunNotifier
}

func NewExecutor(db *gorm.DB, logger *logrus.Logger, registry *Registry, loader ChainLoader) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Executor{
		db:          db,
		logger:      logger,
		registry:    registry,
		loader:      loader,
		placeholder: NewPlaceholderProcessor(logger),
	}
}

// SetNotifier 注入可选的运行状态推送（未设置则仅写审计表）
func (e *Executor) SetNotifier(n RunNotifier) { e.notifier = n }

// ExecuteJob runs one job to completion and records the run and its step
// runs in the ledger. The returned error reflects the run outcome; the
// worker does not retry it.
func (e *Executor) ExecuteJob(ctx context.Context, job *models.AutomationJob) (err error) {
	run := &models.AutomationRun{
		AutomationID: job.AutomationID,
		CardID:       job.CardID,
		Status:       models.RunStatusRunning,
		StartedAt:    time.Now(),
	}
	if err := e.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	// A panicking handler must still leave a finalized ledger row behind.
	defer func() {
		if r := recover(); r != nil {
			err = e.failRun(ctx, run, fmt.Errorf("panic: %v", r))
		}
	}()

	am, err := e.loader.FindOne(ctx, job.AutomationID)
	if err != nil {
		return e.failRun(ctx, run, fmt.Errorf("load automation %s: %w", job.AutomationID, err))
	}

	var card models.Card
	if err := e.db.WithContext(ctx).Preload("List").First(&card, "id = ?", job.CardID).Error; err != nil {
		return e.failRun(ctx, run, fmt.Errorf("load card %s: %w", job.CardID, err))
	}

	// outputs[0] is the trigger payload; each executed step appends its own.
	outputs := []map[string]interface{}{DecodeData(job.Payload)}

	for i := range am.Steps {
		step := &am.Steps[i]
		if step.Value == nil || *step.Value == "" {
			return e.failRun(ctx, run, fmt.Errorf("step %s has no action kind", step.ID))
		}
		handler, ok := e.registry.Action(*step.Value)
		if !ok {
			// Unknown kind is fatal for the job, not retried.
			return e.failRun(ctx, run, fmt.Errorf("no action handler registered for %q", *step.Value))
		}

		input := e.placeholder.ProcessData(DecodeData(step.Data), outputs)
		started := time.Now()
		output, execErr := handler.Execute(auth.WithSystem(ctx), ActionInput{
			Automation: am,
			Step:       step,
			Card:       &card,
			Data:       input,
		})
		e.recordStepRun(ctx, run, step, i, input, output, started, execErr)
		if execErr != nil {
			return e.failRun(ctx, run, fmt.Errorf("step %d (%s): %w", i+1, *step.Value, execErr))
		}
		if output == nil {
			output = map[string]interface{}{}
		}
		outputs = append(outputs, output)
	}

	run.Status = models.RunStatusSuccess
	run.UpdatedAt = time.Now()
	if err := e.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     run.Status,
		"updated_at": run.UpdatedAt,
	}).Error; err != nil {
		e.logger.Warnf("executor: finalize run %s: %v", run.ID, err)
	}
	metrics.IncRun(models.RunStatusSuccess)
	e.notify(run)
	return nil
}

func (e *Executor) recordStepRun(ctx context.Context, run *models.AutomationRun, step *models.AutomationStep, index int, input, output map[string]interface{}, started time.Time, execErr error) {
	stepRun := &models.AutomationStepRun{
		RunID:      run.ID,
		StepID:     step.ID,
		OrderIndex: index,
		Input:      EncodeData(input),
		Output:     EncodeData(output),
		Status:     models.RunStatusSuccess,
		ExecutedAt: started,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if execErr != nil {
		msg := execErr.Error()
		stepRun.Status = models.RunStatusFailed
		stepRun.Error = &msg
	}
	// Ledger rows are observability only; a write failure must not fail the run.
	if err := e.db.WithContext(ctx).Create(stepRun).Error; err != nil {
		e.logger.Warnf("executor: record step run for %s: %v", run.ID, err)
	}
}

func (e *Executor) failRun(ctx context.Context, run *models.AutomationRun, cause error) error {
	msg := cause.Error()
	run.Status = models.RunStatusFailed
	run.Error = &msg
	run.UpdatedAt = time.Now()
	if err := e.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     run.Status,
		"error":      msg,
		"updated_at": run.UpdatedAt,
	}).Error; err != nil {
		e.logger.Warnf("executor: mark run %s failed: %v", run.ID, err)
	}
	e.logger.Warnf("executor: automation %s run %s failed: %v", run.AutomationID, run.ID, cause)
	metrics.IncRun(models.RunStatusFailed)
	e.notify(run)
	return cause
}

func (e *Executor) notify(run *models.AutomationRun) {
	if e.notifier != nil {
		e.notifier.NotifyRun(run)
	}
}
