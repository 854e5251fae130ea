// Package queue is the durable work queue between the automation dispatcher
// and its execution workers. Jobs live in a postgres table and are claimed
// oldest-first with FOR UPDATE SKIP LOCKED, giving at-least-once delivery:
// a worker that dies mid-job leaves a stale running row that a later claim
// recycles.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kanbo/internal/models"
)

// Queue persists and claims automation jobs.
type Queue struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewQueue(db *gorm.DB, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{db: db, logger: logger}
}

// Enqueue inserts a queued job row. When tx is non-nil the insert joins the
// caller's transaction.
func (q *Queue) Enqueue(ctx context.Context, tx *gorm.DB, job *models.AutomationJob) error {
	db := tx
	if db == nil {
		db = q.db
	}
	job.Status = models.JobStatusQueued
	return db.WithContext(ctx).Create(job).Error
}

// ClaimNext picks the oldest claimable job and marks it running. Claimable
// means queued, or running with a lock older than staleRunning (a worker
// crashed mid-job). Jobs claimed more than maxAttempts times are marked
// failed and skipped, so a poisoned head job cannot starve the ones behind
// it. Returns (nil, nil) when nothing is claimable.
func (q *Queue) ClaimNext(ctx context.Context, maxAttempts int, staleRunning time.Duration) (*models.AutomationJob, error) {
	staleCutoff := time.Now().Add(-staleRunning)
	var claimed *models.AutomationJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for {
			var job models.AutomationJob
			query := tx.
				Where(`status = ? OR (status = ? AND locked_at IS NOT NULL AND locked_at < ?)`,
					models.JobStatusQueued, models.JobStatusRunning, staleCutoff).
				Order("created_at ASC")
			// sqlite (tests) has no row locks; SKIP LOCKED applies on postgres only.
			if tx.Dialector.Name() == "postgres" {
				query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
			}
			if err := query.First(&job).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}

			now := time.Now()
			if job.Attempts >= maxAttempts {
				// 毒丸任务直接标失败，继续往后找可领取的
				if err := tx.Model(&job).Updates(map[string]interface{}{
					"status":     models.JobStatusFailed,
					"last_error": "claim attempts exhausted",
					"updated_at": now,
				}).Error; err != nil {
					return err
				}
				q.logger.Warnf("queue: job %s exhausted its claim attempts", job.ID)
				continue
			}
			// Updates with a map writes the new values back into job as well.
			if err := tx.Model(&job).Updates(map[string]interface{}{
				"status":     models.JobStatusRunning,
				"attempts":   job.Attempts + 1,
				"locked_at":  now,
				"updated_at": now,
			}).Error; err != nil {
				return err
			}
			claimed = &job
			return nil
		}
	})
	return claimed, err
}

// MarkSucceeded finalizes a job after a successful run.
func (q *Queue) MarkSucceeded(ctx context.Context, job *models.AutomationJob) error {
	return q.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
		"status":     models.JobStatusSucceeded,
		"updated_at": time.Now(),
	}).Error
}

// MarkFailed finalizes a job whose run failed. Handler failures are not
// retried; the run ledger carries the detail.
func (q *Queue) MarkFailed(ctx context.Context, job *models.AutomationJob, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
		"status":     models.JobStatusFailed,
		"last_error": msg,
		"updated_at": time.Now(),
	}).Error
}

// Depth returns the number of queued jobs, for the metrics endpoint.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&models.AutomationJob{}).
		Where("status = ?", models.JobStatusQueued).
		Count(&n).Error
	return n, err
}
