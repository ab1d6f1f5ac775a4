package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aatumaykin/tradiecrm/internal/chat"
	"github.com/aatumaykin/tradiecrm/internal/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// wsSink writes one JSON frame per event.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(ev chat.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

func (r *router) websocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(r.deps.AllowedOrigins),
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.log.WarnCtx(req.Context(), "websocket upgrade failed",
				logger.Field{Key: "error", Value: err.Error()})
			return
		}
		defer conn.Close()
		conn.SetReadLimit(wsMaxMessage)

		sink := &wsSink{conn: conn}
		for {
			var payload chatPayload
			if err := conn.ReadJSON(&payload); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.log.DebugCtx(req.Context(), "websocket closed",
						logger.Field{Key: "error", Value: err.Error()})
				}
				return
			}

			cr, err := payload.request()
			if err != nil {
				if werr := sink.Send(chat.Event{Type: chat.EventError, Error: err.Error()}); werr != nil {
					return
				}
				continue
			}
			_ = r.deps.Chat.Handle(req.Context(), cr, sink)
		}
	})
}

// originChecker allows the listed origins. With no list it falls back to
// the same-origin check of the websocket package.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}
