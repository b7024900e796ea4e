// Package jobs tracks long-running processing and export operations as
// addressable, pollable handles with time-based eviction.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Tracker owns the job map. All mutation goes through its methods so that
// polled snapshots never race with in-flight updates; no other component
// reaches into the map.
type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	retention time.Duration
	log       *zap.SugaredLogger

	done   chan struct{}
	ticker *time.Ticker
	once   sync.Once
}

// NewTracker creates a job tracker that sweeps completed jobs older than
// retention on the given interval.
func NewTracker(retention, sweepInterval time.Duration, log *zap.SugaredLogger) *Tracker {
	t := &Tracker{
		jobs:      make(map[string]*models.Job),
		retention: retention,
		log:       log.With("component", "jobs"),
		done:      make(chan struct{}),
		ticker:    time.NewTicker(sweepInterval),
	}
	go t.sweepLoop()
	return t
}

// Create registers a new pending job and returns a snapshot of it.
func (t *Tracker) Create(kind models.JobKind, sessionID string, total int) *models.Job {
	now := time.Now()
	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: sessionID,
		Status:    models.JobStatusPending,
		Progress:  models.JobProgress{Total: total},
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	snap := *job
	return &snap
}

// Get returns a snapshot of a job, or ErrNotFound.
func (t *Tracker) Get(id string) (*models.Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil, errs.Wrapf(errs.ErrNotFound, "job %s", id)
	}
	snap := *job
	snap.RecordErrors = append([]models.RecordError(nil), job.RecordErrors...)
	return &snap, nil
}

// Start marks a job running.
func (t *Tracker) Start(id string) {
	t.with(id, func(j *models.Job) { j.Start() })
}

// UpdateProgress advances a job's progress counter.
func (t *Tracker) UpdateProgress(id string, current int) {
	t.with(id, func(j *models.Job) { j.UpdateProgress(current) })
}

// RecordError appends one contained per-record failure to a job.
func (t *Tracker) RecordError(id, recordID, message string) {
	t.with(id, func(j *models.Job) { j.AddRecordError(recordID, message) })
}

// Complete marks a job completed. A job already in a final state is left
// untouched.
func (t *Tracker) Complete(id string) {
	t.with(id, func(j *models.Job) {
		if !j.Done() {
			j.Complete()
		}
	})
}

// Fail marks a job failed. A job already in a final state is left
// untouched.
func (t *Tracker) Fail(id string, err error) {
	t.with(id, func(j *models.Job) {
		if !j.Done() {
			j.Fail(err)
		}
	})
}

func (t *Tracker) with(id string, fn func(*models.Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		fn(job)
	}
}

// Sweep deletes jobs whose completion timestamp is older than the
// retention window. Callable synchronously for shutdown; also runs on the
// tracker's interval.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, job := range t.jobs {
		if job.CompletedAt != nil && now.Sub(*job.CompletedAt) > t.retention {
			delete(t.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		t.log.Infow("swept completed jobs", "removed", removed)
	}
	return removed
}

func (t *Tracker) sweepLoop() {
	for {
		select {
		case <-t.ticker.C:
			t.Sweep(time.Now())
		case <-t.done:
			return
		}
	}
}

// Shutdown stops the retention sweep.
func (t *Tracker) Shutdown() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
