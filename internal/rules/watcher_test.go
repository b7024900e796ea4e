package rules

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeRulebook(t, `
cleaning:
  live:
    - field: a
      operation: trim
`)
	l, err := NewLoader(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Len(t, l.CleaningSet("live"), 1)

	w, err := NewWatcher(l, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`
cleaning:
  live:
    - field: a
      operation: trim
    - field: b
      operation: trim
`), 0o644))

	// the reload fires after the debounce window
	assert.Eventually(t, func() bool {
		return len(l.CleaningSet("live")) == 2
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherMissingFile(t *testing.T) {
	l := &Loader{path: "/nonexistent/rules.yaml", log: zap.NewNop().Sugar()}
	_, err := NewWatcher(l, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := writeRulebook(t, "cleaning: {}")
	l, err := NewLoader(path, zap.NewNop().Sugar())
	require.NoError(t, err)

	w, err := NewWatcher(l, zap.NewNop().Sugar())
	require.NoError(t, err)

	w.Stop()
	w.Stop()
}
