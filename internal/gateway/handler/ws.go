package handler

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"siteplan/internal/session"
)

const (
	watchWSWriteWait = 10 * time.Second
	watchWSPongWait  = 60 * time.Second
	watchWSPingEvery = (watchWSPongWait * 9) / 10
)

var watchWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchWSInbound struct {
	Type string `json:"type"`
}

type watchWSOutbound struct {
	Type    string       `json:"type"`
	State   *SessionView `json:"state,omitempty"`
	Message string       `json:"message,omitempty"`
}

// WatchHandler pushes the session view over a websocket after every
// accepted event, so clients do not poll while async work is running.
type WatchHandler struct {
	mgr *session.Manager

	mu   sync.Mutex
	subs map[string]map[chan SessionView]struct{}
}

func NewWatchHandler(mgr *session.Manager) *WatchHandler {
	return &WatchHandler{mgr: mgr, subs: make(map[string]map[chan SessionView]struct{})}
}

func (h *WatchHandler) subscribe(x *session.Executor, id string) chan SessionView {
	ch := make(chan SessionView, 8)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan SessionView]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	// The hub is the executor's single notify consumer; registering again
	// for the same session is harmless.
	x.SetNotify(func(s session.Session) { h.broadcast(id, viewOf(s)) })
	return ch
}

func (h *WatchHandler) unsubscribe(id string, ch chan SessionView) {
	h.mu.Lock()
	if set, ok := h.subs[id]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *WatchHandler) broadcast(id string, v SessionView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		select {
		case ch <- v:
		default:
			// Slow consumer; it will catch up on the next push.
		}
	}
}

func (h *WatchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}
	x := h.mgr.Get(r.Context(), id)

	conn, err := watchWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(watchWSPongWait)); err != nil {
		log.Printf("watch ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchWSPongWait))
	})

	updates := h.subscribe(x, id)
	defer h.unsubscribe(id, updates)

	writeCh := make(chan watchWSOutbound, 32)
	writerDone := make(chan struct{})
	readerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(watchWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-readerDone:
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case v := <-updates:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(watchWSOutbound{Type: "state", State: &v}); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	initial := viewOf(x.Snapshot())
	writeCh <- watchWSOutbound{Type: "state", State: &initial}

	for {
		var in watchWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			close(readerDone)
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			writeCh <- watchWSOutbound{Type: "pong"}
		case "refresh":
			v := viewOf(x.Snapshot())
			writeCh <- watchWSOutbound{Type: "state", State: &v}
		default:
			writeCh <- watchWSOutbound{Type: "error", Message: "unknown message type"}
		}
	}
}
