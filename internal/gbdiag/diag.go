// Package gbdiag streams periodic JSON snapshots of the job and resource
// systems to websocket clients, for live observability during development.
// Grounded on ternarybob-quaero/internal/handlers/websocket.go's connection
// registry (clients map + per-connection write mutex), upgrade handler, and
// ticker-driven broadcaster shape.
package gbdiag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var logger = arbor.NewLogger()

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Snapshot is one point-in-time view of system state, serialized as JSON to
// every connected client.
type Snapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	ThreadCount      int       `json:"thread_count"`
	FiberCount       int       `json:"fiber_count"`
	PendingJobs      int       `json:"pending_jobs"`
	WaitingFibers    int       `json:"waiting_fibers"`
	ResourcesLive    int       `json:"resources_live"`
	ResourcesVisible int       `json:"resources_visible"`
}

// SnapshotFunc produces the current Snapshot on demand.
type SnapshotFunc func() Snapshot

// Handler manages websocket clients and broadcasts Snapshots to all of
// them on an interval.
type Handler struct {
	mu          sync.RWMutex
	clients     map[*websocket.Conn]*sync.Mutex
	snapshot    SnapshotFunc
	stopBroadcast chan struct{}
}

// NewHandler returns a Handler that will call snapshot to build each
// broadcast payload.
func NewHandler(snapshot SnapshotFunc) *Handler {
	return &Handler{
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		snapshot: snapshot,
	}
}

// ServeHTTP upgrades the connection and registers the client until it
// disconnects. No inbound protocol is defined: messages the client sends
// are read and discarded, and reads only serve to detect close.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("gbdiag: failed to upgrade websocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()
	logger.Info().Int("clients", count).Msg("gbdiag: client connected")

	h.sendTo(conn, h.snapshot())

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		logger.Info().Int("clients", remaining).Msg("gbdiag: client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("gbdiag: websocket error")
			}
			break
		}
	}
}

func (h *Handler) sendTo(conn *websocket.Conn, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logger.Error().Err(err).Msg("gbdiag: failed to marshal snapshot")
		return
	}
	h.mu.RLock()
	writeMu := h.clients[conn]
	h.mu.RUnlock()
	if writeMu == nil {
		return
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Warn().Err(err).Msg("gbdiag: failed to write snapshot")
	}
}

// Broadcast sends snap to every connected client.
func (h *Handler) Broadcast(snap Snapshot) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.sendTo(conn, snap)
	}
}

// StartBroadcaster spawns a goroutine that calls h.snapshot and broadcasts
// the result every interval, until Stop is called.
func (h *Handler) StartBroadcaster(interval time.Duration) {
	h.stopBroadcast = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.Broadcast(h.snapshot())
			case <-h.stopBroadcast:
				return
			}
		}
	}()
}

// Stop ends the broadcaster goroutine started by StartBroadcaster, if any.
func (h *Handler) Stop() {
	if h.stopBroadcast != nil {
		close(h.stopBroadcast)
		h.stopBroadcast = nil
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Handler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
