package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/session"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

func newStreamFixture(t *testing.T) (*session.Registry, *httptest.Server) {
	t.Helper()
	log := zap.NewNop().Sugar()

	registry := session.NewRegistry(session.Options{
		MaxSessions:   10,
		DefaultTTL:    time.Hour,
		Retention:     time.Hour,
		SweepInterval: time.Hour,
	}, session.NewBus(log), log)
	t.Cleanup(registry.Shutdown)

	streamServer := NewServer(registry, log)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamServer.HandleEvents(w, r, r.URL.Query().Get("session"))
	}))
	t.Cleanup(srv.Close)

	return registry, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamDeliversEvents(t *testing.T) {
	registry, srv := newStreamFixture(t)
	conn := dial(t, srv, "")
	// give the handler a moment to register its subscription
	time.Sleep(50 * time.Millisecond)

	sess, err := registry.Create(nil, "", nil)
	require.NoError(t, err)
	require.NoError(t, registry.SetStatus(sess.ID, models.StatusRunning))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var created models.SessionEvent
	require.NoError(t, conn.ReadJSON(&created))
	assert.Equal(t, models.EventSessionCreated, created.Kind)
	assert.Equal(t, sess.ID, created.SessionID)

	var changed models.SessionEvent
	require.NoError(t, conn.ReadJSON(&changed))
	assert.Equal(t, models.EventStatusChanged, changed.Kind)
	assert.Equal(t, "running", changed.Payload["to"])
}

func TestStreamFiltersBySession(t *testing.T) {
	registry, srv := newStreamFixture(t)

	first, err := registry.Create(nil, "", nil)
	require.NoError(t, err)
	second, err := registry.Create(nil, "", nil)
	require.NoError(t, err)

	conn := dial(t, srv, "?session="+first.ID)
	time.Sleep(50 * time.Millisecond)

	// activity on the other session must not reach this stream
	require.NoError(t, registry.SetStatus(second.ID, models.StatusRunning))
	require.NoError(t, registry.SetStatus(first.ID, models.StatusRunning))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev models.SessionEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, first.ID, ev.SessionID)
	assert.Equal(t, models.EventStatusChanged, ev.Kind)
}

func TestStreamClientDisconnectUnsubscribes(t *testing.T) {
	registry, srv := newStreamFixture(t)
	conn := dial(t, srv, "")
	conn.Close()

	// publishing after disconnect must not block or panic
	_, err := registry.Create(nil, "", nil)
	assert.NoError(t, err)
}
