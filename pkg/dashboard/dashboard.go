// Package dashboard exposes a small HTTP status and log surface over a
// running Pool (SPEC_FULL.md §11): a JSON stats endpoint and a websocket
// log tail, grounded on the corpus's noisefs-webui pattern of a
// gorilla/mux router plus a broadcasting websocket hub.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/kilnforge/filepool/pkg/pool"
)

// StatsProvider is anything that can report pool stats — *pool.Pool
// satisfies it directly; tests can substitute a fake.
type StatsProvider interface {
	Stats() pool.Stats
}

// Dashboard serves /api/stats and /ws/logs over an http.Server-compatible
// handler.
type Dashboard struct {
	pool StatsProvider

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan LogLine
}

// LogLine is one record broadcast to every connected /ws/logs client.
type LogLine struct {
	RunID   string         `json:"runId,omitempty"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// New builds a Dashboard fronting p.
func New(p StatsProvider) *Dashboard {
	return &Dashboard{
		pool: p,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan LogLine),
	}
}

// Handler builds the mux.Router serving this Dashboard's routes.
func (d *Dashboard) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/stats", d.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws/logs", d.handleLogs)
	return r
}

func (d *Dashboard) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(d.pool.Stats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (d *Dashboard) handleLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan LogLine, 100)
	d.mu.Lock()
	d.clients[conn] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.clients, conn)
		d.mu.Unlock()
	}()

	for line := range ch {
		if err := conn.WriteJSON(line); err != nil {
			return
		}
	}
}

// Broadcast fans line out to every connected /ws/logs client, dropping it
// for any client whose buffer is full rather than blocking the sender.
func (d *Dashboard) Broadcast(line LogLine) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, ch := range d.clients {
		select {
		case ch <- line:
		default:
		}
	}
}
