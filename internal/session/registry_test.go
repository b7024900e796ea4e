package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.MaxSessions == 0 {
		opts.MaxSessions = 10
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.Retention == 0 {
		opts.Retention = time.Hour
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = time.Hour
	}
	if opts.DefaultConfig.UserAgent == "" {
		opts.DefaultConfig = models.SessionConfig{
			RateLimitPerSecond: 1,
			MaxRetries:         3,
			RequestTimeoutMS:   30000,
			UserAgent:          "scrapeforge-test",
		}
	}
	r := NewRegistry(opts, NewBus(zap.NewNop().Sugar()), zap.NewNop().Sugar())
	t.Cleanup(r.Shutdown)
	return r
}

func TestCreateAppliesDefaults(t *testing.T) {
	r := newTestRegistry(t, Options{DefaultTTL: time.Hour})

	sess, err := r.Create(nil, "crawl", []string{"test"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCreated, sess.Status)
	assert.Equal(t, "scrapeforge-test", sess.Config.UserAgent)
	assert.Equal(t, 3, sess.Config.MaxRetries)
	assert.Equal(t, int(time.Hour.Seconds()), sess.Config.TimeoutSeconds)
	assert.Equal(t, "crawl", sess.Metadata.Description)
	assert.Equal(t, []string{"test"}, sess.Metadata.Tags)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, time.Minute)
}

func TestCreateMergesPartialConfig(t *testing.T) {
	r := newTestRegistry(t, Options{})

	sess, err := r.Create(&models.SessionConfig{MaxRetries: 7}, "", nil)
	require.NoError(t, err)

	// overridden field takes effect, untouched defaults survive
	assert.Equal(t, 7, sess.Config.MaxRetries)
	assert.Equal(t, "scrapeforge-test", sess.Config.UserAgent)
}

func TestCreateHonorsCustomTimeout(t *testing.T) {
	r := newTestRegistry(t, Options{DefaultTTL: time.Hour})

	sess, err := r.Create(&models.SessionConfig{TimeoutSeconds: 120}, "", nil)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(2*time.Minute), sess.ExpiresAt, time.Minute)
}

func TestCapacityCeiling(t *testing.T) {
	r := newTestRegistry(t, Options{MaxSessions: 2})

	_, err := r.Create(nil, "", nil)
	require.NoError(t, err)
	_, err = r.Create(nil, "", nil)
	require.NoError(t, err)

	_, err = r.Create(nil, "", nil)
	assert.True(t, errs.IsCapacity(err))
	assert.Len(t, r.List(), 2)
}

func TestCapacityFreedByTerminalSession(t *testing.T) {
	r := newTestRegistry(t, Options{MaxSessions: 1})

	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	_, err = r.Create(nil, "", nil)
	require.True(t, errs.IsCapacity(err))

	// completed sessions no longer occupy a slot
	require.NoError(t, r.SetStatus(sess.ID, models.StatusRunning))
	require.NoError(t, r.SetStatus(sess.ID, models.StatusCompleted))

	_, err = r.Create(nil, "", nil)
	assert.NoError(t, err)
}

func TestLazyExpiry(t *testing.T) {
	r := newTestRegistry(t, Options{DefaultTTL: 20 * time.Millisecond})

	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	time.Sleep(40 * time.Millisecond)

	_, err = r.Get(sess.ID)
	assert.True(t, errs.IsNotFound(err))
	assert.Empty(t, r.List())

	// mutation after expiry is also refused
	err = r.SetStatus(sess.ID, models.StatusRunning)
	assert.True(t, errs.IsNotFound(err))
}

func TestExpiryDeadlineIsFixedAtCreation(t *testing.T) {
	r := newTestRegistry(t, Options{DefaultTTL: 50 * time.Millisecond})

	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	// activity does not extend the deadline
	require.NoError(t, r.UpdateConfig(sess.ID, models.SessionConfig{MaxRetries: 5}))
	time.Sleep(80 * time.Millisecond)

	_, err = r.Get(sess.ID)
	assert.True(t, errs.IsNotFound(err))
}

func TestSetStatusTransitions(t *testing.T) {
	r := newTestRegistry(t, Options{})
	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	require.NoError(t, r.SetStatus(sess.ID, models.StatusConfiguring))
	require.NoError(t, r.SetStatus(sess.ID, models.StatusRunning))
	require.NoError(t, r.SetStatus(sess.ID, models.StatusPaused))
	require.NoError(t, r.SetStatus(sess.ID, models.StatusRunning))
	require.NoError(t, r.SetStatus(sess.ID, models.StatusCompleted))

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Metadata.EndTime)
	assert.GreaterOrEqual(t, got.Metadata.DurationMS, int64(0))
}

func TestSetStatusRejectsInvalidTransition(t *testing.T) {
	r := newTestRegistry(t, Options{})
	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	// created cannot jump straight to paused or completed
	err = r.SetStatus(sess.ID, models.StatusPaused)
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))
	err = r.SetStatus(sess.ID, models.StatusCompleted)
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))

	// terminal states accept nothing
	require.NoError(t, r.SetStatus(sess.ID, models.StatusFailed))
	err = r.SetStatus(sess.ID, models.StatusRunning)
	assert.True(t, errs.Is(err, errs.ErrInvalidRequest))
}

func TestUpdateProgressDerivesMetrics(t *testing.T) {
	r := newTestRegistry(t, Options{})
	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	err = r.UpdateProgress(sess.ID, models.ProgressTracker{
		TotalPages:      10,
		ProcessedPages:  4,
		SuccessfulPages: 3,
		FailedPages:     1,
	})
	require.NoError(t, err)

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Progress.ProcessedPages)
	assert.InDelta(t, 0.75, got.Progress.Performance.SuccessRate, 1e-9)
	assert.NotEmpty(t, got.Progress.Performance.MemorySnapshots)
}

func TestAddExtractedData(t *testing.T) {
	r := newTestRegistry(t, Options{})
	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	records := []models.RawRecord{
		{ID: "r1", Fields: map[string]any{"a": 1}},
		{ID: "r2", Fields: map[string]any{"a": 2}},
	}
	require.NoError(t, r.AddExtractedData(sess.ID, records))

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Data.Raw, 2)
	assert.Equal(t, 2, got.Progress.DataPointsExtracted)
}

func TestStoreProcessedFoldsQuality(t *testing.T) {
	r := newTestRegistry(t, Options{})
	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	require.NoError(t, r.StoreProcessed(sess.ID, []models.ProcessedRecord{
		{ID: "p1", Quality: models.DataQuality{Score: 0.8}},
		{ID: "p2", Quality: models.DataQuality{Score: 0.6}},
	}))
	require.NoError(t, r.StoreProcessed(sess.ID, []models.ProcessedRecord{
		{ID: "p3", Quality: models.DataQuality{Score: 1.0}},
	}))

	got, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Data.Processed, 3)
	assert.Equal(t, 3, got.Progress.Quality.RecordsAssessed)
	assert.InDelta(t, 0.8, got.Progress.Quality.AverageScore, 1e-9)
}

func TestGetReturnsSnapshot(t *testing.T) {
	r := newTestRegistry(t, Options{})
	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	snap, err := r.Get(sess.ID)
	require.NoError(t, err)
	snap.Status = models.StatusFailed
	snap.Data.Raw = append(snap.Data.Raw, models.RawRecord{ID: "rogue"})

	fresh, err := r.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, fresh.Status)
	assert.Empty(t, fresh.Data.Raw)
}

func TestCleanupEvictsExpiredAndStaleTerminal(t *testing.T) {
	r := newTestRegistry(t, Options{DefaultTTL: time.Hour, Retention: time.Minute})

	expired, err := r.Create(&models.SessionConfig{TimeoutSeconds: 1}, "", nil)
	require.NoError(t, err)
	completed, err := r.Create(nil, "", nil)
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(completed.ID, models.StatusRunning))
	require.NoError(t, r.SetStatus(completed.ID, models.StatusCompleted))
	live, err := r.Create(&models.SessionConfig{TimeoutSeconds: 7200}, "", nil)
	require.NoError(t, err)

	// well past the first session's deadline and the retention window,
	// still inside the live session's two-hour TTL
	removed := r.Cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 2, removed)

	_, err = r.Get(expired.ID)
	assert.True(t, errs.IsNotFound(err))
	_, err = r.Get(completed.ID)
	assert.True(t, errs.IsNotFound(err))
	_, err = r.Get(live.ID)
	assert.NoError(t, err)
}

func TestEventsPublishedInOrder(t *testing.T) {
	r := newTestRegistry(t, Options{})

	var kinds []models.EventKind
	r.Subscribe("", nil, func(e models.SessionEvent) {
		kinds = append(kinds, e.Kind)
	})

	sess, err := r.Create(nil, "", nil)
	require.NoError(t, err)
	require.NoError(t, r.UpdateConfig(sess.ID, models.SessionConfig{MaxRetries: 2}))
	require.NoError(t, r.SetStatus(sess.ID, models.StatusRunning))
	require.NoError(t, r.AddExtractedData(sess.ID, []models.RawRecord{{ID: "r1"}}))

	assert.Equal(t, []models.EventKind{
		models.EventSessionCreated,
		models.EventConfigUpdated,
		models.EventStatusChanged,
		models.EventDataAdded,
	}, kinds)
}

func TestEventFilteringBySessionAndKind(t *testing.T) {
	r := newTestRegistry(t, Options{})

	first, err := r.Create(nil, "", nil)
	require.NoError(t, err)
	second, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	var got []models.SessionEvent
	r.Subscribe(first.ID, []models.EventKind{models.EventStatusChanged}, func(e models.SessionEvent) {
		got = append(got, e)
	})

	require.NoError(t, r.SetStatus(first.ID, models.StatusRunning))
	require.NoError(t, r.SetStatus(second.ID, models.StatusRunning))
	require.NoError(t, r.UpdateConfig(first.ID, models.SessionConfig{MaxRetries: 2}))

	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].SessionID)
	assert.Equal(t, "created", got[0].Payload["from"])
	assert.Equal(t, "running", got[0].Payload["to"])
}

func TestPanickingSubscriberIsContained(t *testing.T) {
	r := newTestRegistry(t, Options{})

	r.Subscribe("", nil, func(models.SessionEvent) { panic("bad subscriber") })
	delivered := 0
	r.Subscribe("", nil, func(models.SessionEvent) { delivered++ })

	_, err := r.Create(nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := newTestRegistry(t, Options{})

	delivered := 0
	id := r.Subscribe("", nil, func(models.SessionEvent) { delivered++ })

	_, err := r.Create(nil, "", nil)
	require.NoError(t, err)
	r.Unsubscribe(id)
	_, err = r.Create(nil, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
}

func TestListSkipsExpired(t *testing.T) {
	r := newTestRegistry(t, Options{})

	short, err := r.Create(&models.SessionConfig{TimeoutSeconds: 1}, "", nil)
	require.NoError(t, err)
	long, err := r.Create(nil, "", nil)
	require.NoError(t, err)

	// simulate the short session's deadline passing
	r.mu.Lock()
	r.sessions[short.ID].ExpiresAt = time.Now().Add(-time.Second)
	r.mu.Unlock()

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, long.ID, list[0].ID)
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	s := &models.Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, IsExpired(s, now))
	assert.True(t, IsExpired(s, now.Add(2*time.Minute)))
}

func TestConcurrentCreateRespectsCeiling(t *testing.T) {
	r := newTestRegistry(t, Options{MaxSessions: 5})

	errCh := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := r.Create(nil, "", nil)
			errCh <- err
		}()
	}

	created := 0
	for i := 0; i < 20; i++ {
		if err := <-errCh; err == nil {
			created++
		} else {
			require.True(t, errs.IsCapacity(err), fmt.Sprintf("unexpected error: %v", err))
		}
	}
	assert.Equal(t, 5, created)
	assert.Len(t, r.List(), 5)
}
