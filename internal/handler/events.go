package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akruel/list-flix/internal/authstate"
	"github.com/akruel/list-flix/internal/kv"
	"github.com/akruel/list-flix/internal/middleware"
	"github.com/akruel/list-flix/internal/notify"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = (eventsPongWait * 9) / 10
)

// EventsHandler streams auth state changes to the browser over a websocket.
//
// The request Scope is cookie-backed and dies with the upgrade, so the
// connection gets a Scope of its own over a snapshot of the cookies. It
// shares the device with the browser's other requests, so a sign-in or
// sign-out in another tab shows up here.
type EventsHandler struct {
	factory  *middleware.ScopeFactory
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler creates an EventsHandler. checkOrigin may be nil, in which
// case only same-origin connections are accepted.
func NewEventsHandler(factory *middleware.ScopeFactory, checkOrigin func(*http.Request) bool, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		factory: factory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// HandleEvents
//
// HTTP: GET /api/auth/events  (websocket)
//
// MESSAGES (server → client): {"status":"authenticated","user":{...}}
// The first message is the resolved state; later ones follow each change.
// Client messages are read and discarded.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	cookies, ok := sc.Store.(*kv.CookieStore)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "events need a cookie-backed session",
		})
		return
	}
	seed := cookies.Snapshot()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := h.factory.BuildFollower(seed, notify.LogNotifier{Logger: h.logger})
	feed := newStateFeed()
	defer ws.Auth.Subscribe(feed.push)()

	ws.Auth.Mount(ctx)
	defer ws.Auth.Unmount()

	// The first commit after Mount reaches the feed like any later change.
	go h.readLoop(conn, cancel)

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	var last *authstate.State
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.ready:
			st := feed.take()
			if last != nil && sameState(*last, st) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(st); err != nil {
				h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
			last = &st
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop keeps the pong deadline moving and cancels when the client goes.
func (h *EventsHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// stateFeed keeps only the newest state. Listeners never block on a slow
// connection.
type stateFeed struct {
	mu     sync.Mutex
	latest authstate.State
	ready  chan struct{}
}

func newStateFeed() *stateFeed {
	return &stateFeed{ready: make(chan struct{}, 1)}
}

func (f *stateFeed) push(st authstate.State) {
	f.mu.Lock()
	f.latest = st
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *stateFeed) take() authstate.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func sameState(a, b authstate.State) bool {
	if a.Status != b.Status || (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}
