// Package export runs asynchronous, format-keyed export jobs. Byte-level
// serialization lives behind the Writer interface; job state lives in the
// shared tracker.
package export

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/internal/jobs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Exporter fans export jobs out to worker goroutines bounded by a weighted
// semaphore. Submission returns the job handle immediately; failures are
// captured into the job's status and never reach the submitter's call
// stack.
type Exporter struct {
	tracker *jobs.Tracker
	writers map[string]Writer
	sem     *semaphore.Weighted
	baseDir string
	log     *zap.SugaredLogger
	wg      sync.WaitGroup
}

// NewExporter creates an exporter writing under baseDir with at most
// maxConcurrent jobs in flight.
func NewExporter(tracker *jobs.Tracker, writers map[string]Writer, baseDir string, maxConcurrent int64, log *zap.SugaredLogger) *Exporter {
	return &Exporter{
		tracker: tracker,
		writers: writers,
		sem:     semaphore.NewWeighted(maxConcurrent),
		baseDir: baseDir,
		log:     log.With("component", "export"),
	}
}

// Request describes one export submission.
type Request struct {
	SessionID string
	Records   []map[string]any
	Format    string
	Filename  string
	Path      string // optional; defaults to the exporter's base directory
	Metadata  map[string]any
}

// Submit registers an export job and starts it asynchronously. The
// returned handle reflects the pending job; callers poll the tracker for
// completion.
func (e *Exporter) Submit(req Request) *models.Job {
	job := e.tracker.Create(models.JobExport, req.SessionID, len(req.Records))

	e.wg.Add(1)
	go e.run(job.ID, req)

	return job
}

func (e *Exporter) run(jobID string, req Request) {
	defer e.wg.Done()

	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		e.tracker.Fail(jobID, errs.Wrap(errs.ErrExport, err.Error()))
		return
	}
	defer e.sem.Release(1)

	e.tracker.Start(jobID)
	if err := e.write(req); err != nil {
		// captured into job status, never rethrown to the submitter
		e.tracker.Fail(jobID, err)
		e.log.Warnw("export failed", "job", jobID, "session", req.SessionID, "error", err)
		return
	}
	e.tracker.UpdateProgress(jobID, len(req.Records))
	e.tracker.Complete(jobID)
	e.log.Infow("export completed", "job", jobID, "session", req.SessionID, "format", req.Format, "records", len(req.Records))
}

func (e *Exporter) write(req Request) error {
	writer, ok := e.writers[req.Format]
	if !ok {
		return errs.Wrapf(errs.ErrExport, "unknown export format %q", req.Format)
	}

	dir := req.Path
	if dir == "" {
		dir = e.baseDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrExport, err.Error())
	}

	f, err := os.Create(filepath.Join(dir, req.Filename))
	if err != nil {
		return errs.Wrap(errs.ErrExport, err.Error())
	}
	defer f.Close()

	if err := writer.Write(f, req.Records, req.Metadata); err != nil {
		return errs.Wrap(errs.ErrExport, err.Error())
	}
	return nil
}

// Close waits for in-flight export jobs to finish.
func (e *Exporter) Close() {
	e.wg.Wait()
}
