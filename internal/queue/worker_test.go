package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"kanbo/internal/models"
)

// stubExecutor 按任务 ID 决定成功、失败或 panic
type stubExecutor struct {
	mu       sync.Mutex
	executed []uuid.UUID
	fail     map[uuid.UUID]error
	panicOn  map[uuid.UUID]bool
}

func (s *stubExecutor) ExecuteJob(ctx context.Context, job *models.AutomationJob) error {
	s.mu.Lock()
	s.executed = append(s.executed, job.ID)
	s.mu.Unlock()
	if s.panicOn[job.ID] {
		panic("handler exploded")
	}
	return s.fail[job.ID]
}

func (s *stubExecutor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executed)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorker_ProcessesQueuedJobs(t *testing.T) {
	q := NewQueue(newQueueTestDB(t), nil)
	ids := enqueueN(t, q, 2)

	exec := &stubExecutor{}
	worker := NewWorker(q, exec, nil, WorkerOptions{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	waitFor(t, 3*time.Second, func() bool { return exec.count() == 2 })

	var rows []models.AutomationJob
	if err := q.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	for i, row := range rows {
		if row.ID != ids[i] || row.Status != models.JobStatusSucceeded {
			t.Fatalf("job %d = %+v", i, row)
		}
	}
}

func TestWorker_FailedAndPanickingJobsAreMarkedFailed(t *testing.T) {
	q := NewQueue(newQueueTestDB(t), nil)
	ids := enqueueN(t, q, 2)

	exec := &stubExecutor{
		fail:    map[uuid.UUID]error{ids[0]: errors.New("step failed")},
		panicOn: map[uuid.UUID]bool{ids[1]: true},
	}
	worker := NewWorker(q, exec, nil, WorkerOptions{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	waitFor(t, 3*time.Second, func() bool {
		var n int64
		if err := q.db.Model(&models.AutomationJob{}).
			Where("status = ?", models.JobStatusFailed).
			Count(&n).Error; err != nil {
			return false
		}
		return n == 2
	})

	var rows []models.AutomationJob
	if err := q.db.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	if rows[0].LastError == nil || *rows[0].LastError != "step failed" {
		t.Fatalf("first job error = %v", rows[0].LastError)
	}
	if rows[1].LastError == nil || *rows[1].LastError != "panic: handler exploded" {
		t.Fatalf("second job error = %v", rows[1].LastError)
	}
}
