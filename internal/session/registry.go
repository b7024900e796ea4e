// Package session owns the scraping-session state machine: configuration,
// progress, the in-memory data store, capacity enforcement, time-based
// expiration, and lifecycle event fan-out.
package session

import (
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// maxMemorySnapshots bounds the rolling memory history per session.
const maxMemorySnapshots = 20

// validTransitions encodes the lifecycle state machine:
// created → configuring → running ⇄ paused → completed | failed.
// Expiry is cross-cutting and handled by the lazy expiry check, not here.
var validTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.StatusCreated:     {models.StatusConfiguring, models.StatusRunning, models.StatusFailed},
	models.StatusConfiguring: {models.StatusRunning, models.StatusFailed},
	models.StatusRunning:     {models.StatusPaused, models.StatusCompleted, models.StatusFailed},
	models.StatusPaused:      {models.StatusRunning, models.StatusCompleted, models.StatusFailed},
}

// IsExpired reports whether a session's wall-clock deadline has passed.
// Evaluated at every access boundary; the periodic sweep handles eviction
// separately.
func IsExpired(s *models.Session, now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Options configure a Registry.
type Options struct {
	MaxSessions   int
	DefaultTTL    time.Duration
	Retention     time.Duration // idle window before terminal sessions are evicted
	SweepInterval time.Duration
	DefaultConfig models.SessionConfig
}

// Registry owns one entry per scraping session. It exclusively owns each
// Session and everything nested in it; the pipeline never touches session
// state directly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	bus      *Bus
	opts     Options
	log      *zap.SugaredLogger

	done   chan struct{}
	ticker *time.Ticker
	once   sync.Once
}

// NewRegistry creates a session registry and starts its periodic
// expiry/cleanup sweep.
func NewRegistry(opts Options, bus *Bus, log *zap.SugaredLogger) *Registry {
	r := &Registry{
		sessions: make(map[string]*models.Session),
		bus:      bus,
		opts:     opts,
		log:      log.With("component", "sessions"),
		done:     make(chan struct{}),
		ticker:   time.NewTicker(opts.SweepInterval),
	}
	go r.sweepLoop()
	return r
}

// Create registers a new session. The supplied config overrides the
// registry defaults field by field; ExpiresAt is fixed here and never
// extended by later activity. Fails with ErrCapacity when the live-session
// count (after lazy expiry) meets the ceiling.
func (r *Registry) Create(config *models.SessionConfig, description string, tags []string) (*models.Session, error) {
	r.mu.Lock()

	now := time.Now()
	if r.liveCountLocked(now) >= r.opts.MaxSessions {
		r.mu.Unlock()
		return nil, errs.Wrapf(errs.ErrCapacity, "session limit %d reached", r.opts.MaxSessions)
	}

	cfg := r.opts.DefaultConfig
	if config != nil {
		if err := mergo.Merge(&cfg, *config, mergo.WithOverride); err != nil {
			r.mu.Unlock()
			return nil, errs.Wrap(err, "merge session config")
		}
	}
	ttl := r.opts.DefaultTTL
	if cfg.TimeoutSeconds > 0 {
		ttl = time.Duration(cfg.TimeoutSeconds) * time.Second
	} else {
		cfg.TimeoutSeconds = int(ttl.Seconds())
	}

	session := &models.Session{
		ID:     uuid.New().String(),
		Config: cfg,
		Progress: models.ProgressTracker{
			LastUpdate: now,
		},
		Metadata: models.SessionMetadata{
			StartTime:   now,
			Tags:        tags,
			Description: description,
		},
		Status:    models.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	r.sessions[session.ID] = session

	snap := cloneSession(session)
	r.mu.Unlock()

	r.bus.Publish(models.EventSessionCreated, session.ID, map[string]any{"status": string(session.Status)})
	r.log.Infow("session created", "session", session.ID, "expiresAt", session.ExpiresAt)
	return snap, nil
}

// Get returns a session snapshot, or ErrNotFound for unknown ids and for
// sessions whose deadline has lazily passed. Expiry is applied as a side
// effect here: the status flips to expired but the entry is not deleted.
func (r *Registry) Get(id string) (*models.Session, error) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, errs.Wrapf(errs.ErrNotFound, "session %s", id)
	}

	if session.Status != models.StatusExpired && IsExpired(session, time.Now()) {
		r.expireLocked(session)
		r.mu.Unlock()
		r.bus.Publish(models.EventSessionExpired, id, nil)
		return nil, errs.Wrapf(errs.ErrNotFound, "session %s expired", id)
	}
	if session.Status == models.StatusExpired {
		r.mu.Unlock()
		return nil, errs.Wrapf(errs.ErrNotFound, "session %s expired", id)
	}

	snap := cloneSession(session)
	r.mu.Unlock()
	return snap, nil
}

// List returns snapshots of every live session, applying lazy expiry along
// the way.
func (r *Registry) List() []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []*models.Session
	for _, session := range r.sessions {
		if session.Status != models.StatusExpired && IsExpired(session, now) {
			r.expireLocked(session)
			continue
		}
		if session.Status == models.StatusExpired {
			continue
		}
		out = append(out, cloneSession(session))
	}
	return out
}

// UpdateConfig merges a partial config into a session. Only non-zero
// fields of the partial override.
func (r *Registry) UpdateConfig(id string, partial models.SessionConfig) error {
	err := r.update(id, func(s *models.Session) error {
		return mergo.Merge(&s.Config, partial, mergo.WithOverride)
	})
	if err != nil {
		return err
	}
	r.bus.Publish(models.EventConfigUpdated, id, nil)
	return nil
}

// UpdateProgress merges partial progress counters into a session,
// recomputes the rolling performance metrics, and takes a memory snapshot.
func (r *Registry) UpdateProgress(id string, partial models.ProgressTracker) error {
	err := r.update(id, func(s *models.Session) error {
		if err := mergo.Merge(&s.Progress, partial, mergo.WithOverride); err != nil {
			return err
		}
		now := time.Now()
		s.Progress.LastUpdate = now

		if s.Progress.ProcessedPages > 0 {
			s.Progress.Performance.SuccessRate =
				float64(s.Progress.SuccessfulPages) / float64(s.Progress.ProcessedPages)
		}
		if elapsed := now.Sub(s.Metadata.StartTime).Minutes(); elapsed > 0 {
			s.Progress.Performance.PagesPerMinute = float64(s.Progress.ProcessedPages) / elapsed
		}

		if vm, err := mem.VirtualMemory(); err == nil {
			snaps := append(s.Progress.Performance.MemorySnapshots, models.MemorySnapshot{
				TakenAt:        now,
				UsedBytes:      vm.Used,
				AvailableBytes: vm.Available,
			})
			if len(snaps) > maxMemorySnapshots {
				snaps = snaps[len(snaps)-maxMemorySnapshots:]
			}
			s.Progress.Performance.MemorySnapshots = snaps
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.bus.Publish(models.EventProgressUpdated, id, nil)
	return nil
}

// SetStatus transitions a session's state machine. Transitions to a
// terminal state stamp EndTime and derive the duration.
func (r *Registry) SetStatus(id string, status models.SessionStatus) error {
	var from models.SessionStatus
	err := r.update(id, func(s *models.Session) error {
		if !transitionAllowed(s.Status, status) {
			return errs.Wrapf(errs.ErrInvalidRequest, "cannot transition session from %s to %s", s.Status, status)
		}
		from = s.Status
		s.Status = status
		if status.Terminal() {
			now := time.Now()
			s.Metadata.EndTime = &now
			s.Metadata.DurationMS = now.Sub(s.Metadata.StartTime).Milliseconds()
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.bus.Publish(models.EventStatusChanged, id, map[string]any{
		"from": string(from),
		"to":   string(status),
	})
	return nil
}

// AddExtractedData appends raw records to the session's buffer and bumps
// its data-point counter. It does not invoke the pipeline.
func (r *Registry) AddExtractedData(id string, records []models.RawRecord) error {
	err := r.update(id, func(s *models.Session) error {
		s.Data.Raw = append(s.Data.Raw, records...)
		s.Progress.DataPointsExtracted += len(records)
		return nil
	})
	if err != nil {
		return err
	}
	r.bus.Publish(models.EventDataAdded, id, map[string]any{"count": len(records)})
	return nil
}

// StoreProcessed writes a processed batch into the session's data store
// and folds its quality scores into the session-level quality metrics.
func (r *Registry) StoreProcessed(id string, records []models.ProcessedRecord) error {
	err := r.update(id, func(s *models.Session) error {
		s.Data.Processed = append(s.Data.Processed, records...)

		q := &s.Progress.Quality
		for _, rec := range records {
			total := q.AverageScore*float64(q.RecordsAssessed) + rec.Quality.Score
			q.RecordsAssessed++
			q.AverageScore = total / float64(q.RecordsAssessed)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.bus.Publish(models.EventDataProcessed, id, map[string]any{"count": len(records)})
	return nil
}

// StoreAggregated writes aggregated rows into the session's data store.
func (r *Registry) StoreAggregated(id string, rows []models.AggregatedData) error {
	return r.update(id, func(s *models.Session) error {
		s.Data.Aggregated = append(s.Data.Aggregated, rows...)
		return nil
	})
}

// SetConnectURL records the browser endpoint provisioned for a session.
func (r *Registry) SetConnectURL(id, url string) error {
	return r.update(id, func(s *models.Session) error {
		s.ConnectURL = url
		return nil
	})
}

// Subscribe registers an event callback; see Bus.Subscribe.
func (r *Registry) Subscribe(sessionID string, kinds []models.EventKind, callback EventCallback) string {
	return r.bus.Subscribe(sessionID, kinds, callback)
}

// Unsubscribe removes an event subscription.
func (r *Registry) Unsubscribe(subscriptionID string) {
	r.bus.Unsubscribe(subscriptionID)
}

// Cleanup deletes sessions that are expired, or terminal and idle past the
// retention window. Callable synchronously for shutdown; also runs on the
// registry's sweep interval.
func (r *Registry) Cleanup(now time.Time) int {
	r.mu.Lock()

	var removed []string
	for id, session := range r.sessions {
		if session.Status != models.StatusExpired && IsExpired(session, now) {
			r.expireLocked(session)
		}
		switch {
		case session.Status == models.StatusExpired:
			delete(r.sessions, id)
			removed = append(removed, id)
		case session.Status.Terminal() && now.Sub(session.UpdatedAt) > r.opts.Retention:
			delete(r.sessions, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	for _, id := range removed {
		r.bus.Publish(models.EventSessionDeleted, id, nil)
	}
	if len(removed) > 0 {
		r.log.Infow("cleaned up sessions", "removed", len(removed))
	}
	return len(removed)
}

// Shutdown stops the sweep and clears all subscriptions.
func (r *Registry) Shutdown() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
		r.bus.Clear()
	})
}

// update applies fn to a live session under the lock, bumping UpdatedAt on
// success. Absent or expired sessions yield ErrNotFound.
func (r *Registry) update(id string, fn func(*models.Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "session %s", id)
	}
	if session.Status == models.StatusExpired || IsExpired(session, time.Now()) {
		if session.Status != models.StatusExpired {
			r.expireLocked(session)
		}
		return errs.Wrapf(errs.ErrNotFound, "session %s expired", id)
	}

	if err := fn(session); err != nil {
		return err
	}
	session.UpdatedAt = time.Now()
	return nil
}

// expireLocked flips a session to expired in place. Caller holds the lock.
func (r *Registry) expireLocked(s *models.Session) {
	s.Status = models.StatusExpired
	now := time.Now()
	s.Metadata.EndTime = &now
	s.Metadata.DurationMS = now.Sub(s.Metadata.StartTime).Milliseconds()
	s.UpdatedAt = now
	r.log.Infow("session expired", "session", s.ID)
}

// liveCountLocked counts sessions still occupying capacity, applying lazy
// expiry first. Caller holds the lock.
func (r *Registry) liveCountLocked(now time.Time) int {
	count := 0
	for _, session := range r.sessions {
		if session.Status != models.StatusExpired && IsExpired(session, now) {
			r.expireLocked(session)
		}
		if !session.Status.Terminal() {
			count++
		}
	}
	return count
}

func transitionAllowed(from, to models.SessionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// cloneSession copies a session so callers never hold a reference into the
// registry's map.
func cloneSession(s *models.Session) *models.Session {
	snap := *s
	snap.Data.Raw = append([]models.RawRecord(nil), s.Data.Raw...)
	snap.Data.Processed = append([]models.ProcessedRecord(nil), s.Data.Processed...)
	snap.Data.Aggregated = append([]models.AggregatedData(nil), s.Data.Aggregated...)
	snap.Metadata.Tags = append([]string(nil), s.Metadata.Tags...)
	snap.Progress.Performance.MemorySnapshots = append([]models.MemorySnapshot(nil), s.Progress.Performance.MemorySnapshots...)
	return &snap
}

func (r *Registry) sweepLoop() {
	for {
		select {
		case <-r.ticker.C:
			r.Cleanup(time.Now())
		case <-r.done:
			return
		}
	}
}
