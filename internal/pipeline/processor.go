package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/internal/jobs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Processor runs the cleaning engine and quality assessor over record
// batches, tracking each batch as a processing job. It is stateless with
// respect to session data: batches come in by value and new batches go out.
type Processor struct {
	cleaner *Cleaner
	tracker *jobs.Tracker
	log     *zap.SugaredLogger
}

// NewProcessor creates a processor backed by the given cleaner and job
// tracker.
func NewProcessor(cleaner *Cleaner, tracker *jobs.Tracker, log *zap.SugaredLogger) *Processor {
	return &Processor{
		cleaner: cleaner,
		tracker: tracker,
		log:     log.With("component", "processor"),
	}
}

// ProcessData cleans and scores a batch of raw records in input order and
// returns the processed batch in the same order, paired with the job that
// tracked the run.
//
// Failure containment: a failure while processing one record is recorded
// against that record's id on the job and the batch continues; no single
// bad record aborts the batch. A failure outside the per-record loop marks
// the job failed and is returned to the caller.
func (p *Processor) ProcessData(sessionID string, raws []models.RawRecord, cleaning []models.CleaningRule, validation []models.ValidationRule) (result []models.ProcessedRecord, job *models.Job, err error) {
	job = p.tracker.Create(models.JobProcessing, sessionID, len(raws))
	p.tracker.Start(job.ID)

	defer func() {
		if r := recover(); r != nil {
			err = errs.Wrapf(errs.ErrPipeline, "processing batch for session %s: %v", sessionID, r)
			p.tracker.Fail(job.ID, err)
			p.log.Errorw("batch processing failed", "session", sessionID, "job", job.ID, "panic", r)
			result = nil
		}
		// return the job as the tracker now sees it
		if snap, getErr := p.tracker.Get(job.ID); getErr == nil {
			job = snap
		}
	}()

	result = make([]models.ProcessedRecord, 0, len(raws))
	for i, raw := range raws {
		rec, recErr := p.processOne(raw, cleaning, validation)
		if recErr != nil {
			p.tracker.RecordError(job.ID, raw.ID, recErr.Error())
			p.log.Warnw("record processing failed", "session", sessionID, "record", raw.ID, "error", recErr)
		} else {
			result = append(result, rec)
		}
		p.tracker.UpdateProgress(job.ID, i+1)
	}

	p.tracker.Complete(job.ID)
	return result, job, nil
}

// processOne cleans and scores a single record, converting any panic in
// the rule chain into a contained record-level error.
func (p *Processor) processOne(raw models.RawRecord, cleaning []models.CleaningRule, validation []models.ValidationRule) (rec models.ProcessedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("record %s: %v", raw.ID, r)
		}
	}()

	cleaned, trail := p.cleaner.Clean(raw.Fields, cleaning)
	rec = models.ProcessedRecord{
		ID:              uuid.New().String(),
		RawID:           raw.ID,
		Fields:          cleaned,
		Transformations: trail,
		Quality:         Assess(cleaned, validation),
		ProcessedAt:     time.Now(),
	}
	return rec, nil
}
