// Package stream bridges the session registry's event subscriptions onto
// websocket clients.
package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/session"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeTimeout = 10 * time.Second
	// eventBuffer absorbs bursts between registry publishes and the
	// websocket writer; overflow drops the event rather than blocking the
	// registry's operation path.
	eventBuffer = 64
)

// Server streams session lifecycle events to websocket clients.
type Server struct {
	registry *session.Registry
	log      *zap.SugaredLogger
}

// NewServer creates a stream server over the given registry.
func NewServer(registry *session.Registry, log *zap.SugaredLogger) *Server {
	return &Server{
		registry: registry,
		log:      log.With("component", "stream"),
	}
}

// HandleEvents upgrades the connection and forwards events for one session
// (or all sessions when sessionID is empty) until the client disconnects.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan models.SessionEvent, eventBuffer)
	subID := s.registry.Subscribe(sessionID, nil, func(ev models.SessionEvent) {
		select {
		case events <- ev:
		default:
			s.log.Debugw("event stream backlogged, dropping event", "session", ev.SessionID, "kind", ev.Kind)
		}
	})
	defer s.registry.Unsubscribe(subID)

	// Drain reads so close frames and pings are processed; client messages
	// themselves are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Infow("event stream connected", "session", sessionID, "remote", r.RemoteAddr)
	for {
		select {
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Warnw("event stream write failed", "error", err)
				}
				return
			}
		case <-closed:
			s.log.Infow("event stream disconnected", "session", sessionID, "remote", r.RemoteAddr)
			return
		}
	}
}
