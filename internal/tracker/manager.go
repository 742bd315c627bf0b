// Package tracker runs one polling loop per tracked vehicle and keeps the
// latest state and accumulated track of each.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/vehicle"
)

const DefaultInterval = 2000 * time.Millisecond

// Update is emitted after every successful poll.
type Update struct {
	VehicleID string            `json:"vehicleId"`
	State     vehicle.State     `json:"state"`
	Direction network.Direction `json:"direction"`
	Track     []geo.Point       `json:"track"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink receives updates. Send is called from polling goroutines and must not block.
type Sink interface {
	Send(Update)
}

type Metrics interface {
	TrackedSet(n int)
	PollObserve(d time.Duration, ok bool)
}

// Snapshot is the last known state of a vehicle. State is nil until the
// first successful poll of the current session.
type Snapshot struct {
	VehicleID string            `json:"vehicleId"`
	Tracking  bool              `json:"tracking"`
	State     *vehicle.State    `json:"state,omitempty"`
	Direction network.Direction `json:"direction"`
	Track     []geo.Point       `json:"track"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Manager struct {
	src      vehicle.Source
	net      *network.Network
	interval time.Duration
	sink     Sink
	metrics  Metrics
	log      *slog.Logger

	root       context.Context
	rootCancel context.CancelFunc

	opMu     sync.Mutex // serializes Start/Stop per manager
	mu       sync.Mutex
	sessions map[string]*session // vehicle id -> running loop
	snaps    map[string]*Snapshot
}

func NewManager(src vehicle.Source, net *network.Network, interval time.Duration, sink Sink, metrics Metrics, logger *slog.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		src:        src,
		net:        net,
		interval:   interval,
		sink:       sink,
		metrics:    metrics,
		log:        logger.With(slog.String("component", "tracker")),
		root:       root,
		rootCancel: cancel,
		sessions:   make(map[string]*session),
		snaps:      make(map[string]*Snapshot),
	}
}

var ErrClosed = errors.New("tracker closed")

// Start begins polling id. If id is already tracked its loop is cancelled
// and awaited first, and the track starts over empty.
func (m *Manager) Start(id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.root.Err() != nil {
		return ErrClosed
	}

	m.stopLocked(id)

	ctx, cancel := context.WithCancel(m.root)
	s := &session{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.snaps[id] = &Snapshot{VehicleID: id, Tracking: true, Track: []geo.Point{}}
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.TrackedSet(n)
	}

	logging.LogOperation(m.log, "tracking_started", slog.String("vehicle", id))
	go m.run(ctx, id, s)
	return nil
}

// Stop ends polling of id. It reports whether a loop was running.
// The last snapshot stays readable with Tracking false.
func (m *Manager) Stop(id string) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	stopped := m.stopLocked(id)
	if stopped {
		logging.LogOperation(m.log, "tracking_stopped", slog.String("vehicle", id))
	}
	return stopped
}

func (m *Manager) stopLocked(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.cancel()
	<-s.done

	m.mu.Lock()
	if snap, ok := m.snaps[id]; ok {
		snap.Tracking = false
	}
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.TrackedSet(n)
	}
	return true
}

// Close stops every loop and waits for them.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.rootCancel()
	for _, id := range m.Tracked() {
		m.stopLocked(id)
	}
}

// Tracked lists the ids with a running loop, sorted.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of the last known state of id.
func (m *Manager) Snapshot(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, false
	}
	out := *snap
	out.Track = append([]geo.Point(nil), snap.Track...)
	if snap.State != nil {
		st := *snap.State
		out.State = &st
	}
	return out, true
}

func (m *Manager) run(ctx context.Context, id string, s *session) {
	var inflight sync.WaitGroup
	defer close(s.done)
	defer inflight.Wait()

	// Each fetch runs on its own goroutine so a slow provider never delays
	// the next tick.
	poll := func() {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			m.poll(ctx, id, s)
		}()
	}

	poll()
	tick := time.NewTicker(m.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			poll()
		}
	}
}

func (m *Manager) poll(ctx context.Context, id string, s *session) {
	start := time.Now()
	st, err := m.src.Fetch(ctx, id)
	if m.metrics != nil {
		m.metrics.PollObserve(time.Since(start), err == nil)
	}
	if err != nil {
		if ctx.Err() == nil {
			logging.LogWarn(m.log, "vehicle poll failed", err, slog.String("vehicle", id))
		}
		return
	}
	dir := m.net.ResolveDirection(id, st.Direction)

	m.mu.Lock()
	if ctx.Err() != nil || m.sessions[id] != s {
		m.mu.Unlock()
		return
	}
	snap := m.snaps[id]
	snap.Track = append(snap.Track, st.Point())
	snap.State = &st
	snap.Direction = dir
	snap.UpdatedAt = time.Now()
	upd := Update{
		VehicleID: id,
		State:     st,
		Direction: dir,
		Track:     append([]geo.Point(nil), snap.Track...),
		Timestamp: snap.UpdatedAt,
	}
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.Send(upd)
	}
}

// Sinks fans an update out to several sinks in order.
type Sinks []Sink

func (ss Sinks) Send(u Update) {
	for _, s := range ss {
		if s != nil {
			s.Send(u)
		}
	}
}
