package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/tracker"
)

const (
	DefaultSubscriberBuffer = 8
	heartbeatInterval       = 15 * time.Second
)

// Hub fans tracker updates out to stream subscribers. A subscriber whose
// buffer is full misses updates instead of stalling the tracker.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[string]map[uuid.UUID]chan tracker.Update // vehicle id -> subscriber -> channel
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[uuid.UUID]chan tracker.Update)}
}

// Subscribe registers for updates of vehicleID. The returned func removes
// the subscription and closes the channel.
func (h *Hub) Subscribe(vehicleID string) (<-chan tracker.Update, func()) {
	id := uuid.New()
	ch := make(chan tracker.Update, h.buffer)

	h.mu.Lock()
	if h.subs[vehicleID] == nil {
		h.subs[vehicleID] = make(map[uuid.UUID]chan tracker.Update)
	}
	h.subs[vehicleID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[vehicleID], id)
			if len(h.subs[vehicleID]) == 0 {
				delete(h.subs, vehicleID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Send implements tracker.Sink.
func (h *Hub) Send(u tracker.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[u.VehicleID] {
		select {
		case ch <- u:
		default:
		}
	}
}

func (h *Hub) Subscribers(vehicleID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[vehicleID])
}

// streamHandler serves server-sent events for one vehicle. The current
// snapshot, if any, is sent first.
func (a *API) streamHandler(w http.ResponseWriter, r *http.Request) {
	id, err := a.vehicleID(r)
	if err != nil {
		a.sendError(w, r, err)
		return
	}
	rc := http.NewResponseController(w)
	updates, unsubscribe := a.Hub.Subscribe(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := logging.FromContext(r.Context()).With(slog.String("vehicle", id))
	write := func(u tracker.Update) bool {
		b, err := json.Marshal(u)
		if err != nil {
			logging.LogError(logger, "encode stream update", err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: update\ndata: %s\n\n", b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if snap, ok := a.Tracker.Snapshot(id); ok && snap.State != nil {
		if !write(tracker.Update{
			VehicleID: id,
			State:     *snap.State,
			Direction: snap.Direction,
			Track:     snap.Track,
			Timestamp: snap.UpdatedAt,
		}) {
			return
		}
	} else if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case u := <-updates:
			if !write(u) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}
