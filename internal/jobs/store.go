// Package jobs tracks asynchronous analyses started over HTTP.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blueprintvision/internal/detection"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrClosed   = errors.New("job manager closed")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

type Job struct {
	ID       string            `json:"id"`
	Status   Status            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Result   *detection.Result `json:"result,omitempty"`
	Created  time.Time         `json:"created_at"`
	Finished time.Time         `json:"finished_at,omitempty"`
}

// Func performs the work of one job.
type Func func(ctx context.Context) (detection.Result, error)

// Manager owns job state and the goroutines running them. Finished jobs are
// kept for Retention and pruned on the next submission.
type Manager struct {
	Retention time.Duration

	mu     sync.RWMutex
	jobs   map[string]*Job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		Retention: time.Hour,
		jobs:      make(map[string]*Job),
		ctx:       ctx,
		cancel:    cancel,
		log:       logger,
	}
}

// Submit registers a job and runs fn in the background. The job context is
// detached from the caller and cancelled by Close.
func (m *Manager) Submit(fn Func) (Job, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Job{}, ErrClosed
	}
	m.pruneLocked(time.Now())
	j := &Job{ID: uuid.NewString(), Status: StatusPending, Created: time.Now()}
	m.jobs[j.ID] = j
	snapshot := *j
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(j.ID, fn)
	return snapshot, nil
}

func (m *Manager) run(id string, fn Func) {
	defer m.wg.Done()
	m.update(id, func(j *Job) { j.Status = StatusRunning })
	res, err := fn(m.ctx)
	m.update(id, func(j *Job) {
		j.Finished = time.Now()
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = StatusDone
		j.Result = &res
	})
	if err != nil {
		m.log.Warn("job failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	m.log.Info("job finished", zap.String("job_id", id))
}

func (m *Manager) update(id string, f func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		f(j)
	}
}

// Get returns a snapshot of the job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	out := *j
	if j.Result != nil {
		r := j.Result.Clone()
		out.Result = &r
	}
	return out, nil
}

func (m *Manager) pruneLocked(now time.Time) {
	if m.Retention <= 0 {
		return
	}
	for id, j := range m.jobs {
		if !j.Finished.IsZero() && now.Sub(j.Finished) > m.Retention {
			delete(m.jobs, id)
		}
	}
}

// Close cancels running jobs and waits for them to return.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}
