package state

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
)

var (
	// ErrSessionExists indicates a session ID is already registered.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound indicates a requested session was not found.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInvalid indicates a session failed validation.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrRegistryFull indicates the session limit was reached.
	ErrRegistryFull = errors.New("session limit reached")
)

// SessionMetricsRecorder receives registry updates for Prometheus-friendly
// gauges. *observability.SimCollector satisfies it.
type SessionMetricsRecorder interface {
	SetActiveSessions(n int)
	DeleteSession(id string)
}

// SessionInfo is a point-in-time view of one streaming session.
type SessionInfo struct {
	ID        string        `json:"id"`
	Remote    string        `json:"remote,omitempty"`
	Started   time.Time     `json:"started"`
	Ticks     int           `json:"ticks"`
	LastFrame *driver.Frame `json:"last_frame,omitempty"`
}

// SessionRegistry tracks active sessions and their latest frame. It is safe
// for concurrent use by many session goroutines and HTTP readers.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionInfo

	log     logging.Logger
	metrics SessionMetricsRecorder
}

// SessionRegistryOption customises SessionRegistry construction.
type SessionRegistryOption func(*SessionRegistry)

// WithMetricsRecorder attaches an optional metrics recorder for session gauges.
func WithMetricsRecorder(m SessionMetricsRecorder) SessionRegistryOption {
	return func(r *SessionRegistry) {
		r.metrics = m
	}
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry(log logging.Logger, opts ...SessionRegistryOption) *SessionRegistry {
	if log == nil {
		log = logging.Noop()
	}
	r := &SessionRegistry{
		sessions: make(map[string]*SessionInfo),
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open registers a new session.
func (r *SessionRegistry) Open(id, remote string, started time.Time) error {
	return r.OpenIfBelow(id, remote, started, 0)
}

// OpenIfBelow registers a new session unless limit sessions are already
// registered, checking and inserting under one lock. A non-positive limit
// means unlimited.
func (r *SessionRegistry) OpenIfBelow(id, remote string, started time.Time, limit int) error {
	if id == "" {
		return ErrSessionInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return ErrSessionExists
	}
	if limit > 0 && len(r.sessions) >= limit {
		return ErrRegistryFull
	}
	r.sessions[id] = &SessionInfo{ID: id, Remote: remote, Started: started}
	r.updateMetricsLocked()

	r.log.Info(context.Background(), "session opened",
		logging.String("session_id", id),
		logging.String("remote", remote),
	)
	return nil
}

// Close deregisters a session and drops its per-session metrics.
func (r *SessionRegistry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	r.updateMetricsLocked()
	if r.metrics != nil {
		r.metrics.DeleteSession(id)
	}

	r.log.Info(context.Background(), "session closed",
		logging.String("session_id", id),
		logging.Int("ticks", info.Ticks),
	)
	return nil
}

// ObserveFrame records f as the latest frame of its session. Frames for
// unknown sessions are ignored.
func (r *SessionRegistry) ObserveFrame(ctx context.Context, f driver.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.sessions[f.Session]
	if !ok {
		r.log.Debug(ctx, "frame for unregistered session", logging.String("session_id", f.Session))
		return
	}
	frame := cloneFrame(f)
	info.LastFrame = &frame
	info.Ticks = f.Tick
}

// Get returns a copy of one session.
func (r *SessionRegistry) Get(id string) (SessionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.sessions[id]
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return cloneInfo(info), nil
}

// List returns copies of all sessions ordered by start time, then ID.
func (r *SessionRegistry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, cloneInfo(info))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.Before(out[j].Started)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of active sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) updateMetricsLocked() {
	if r.metrics == nil {
		return
	}
	r.metrics.SetActiveSessions(len(r.sessions))
}

func cloneInfo(info *SessionInfo) SessionInfo {
	out := *info
	if info.LastFrame != nil {
		frame := cloneFrame(*info.LastFrame)
		out.LastFrame = &frame
	}
	return out
}

func cloneFrame(f driver.Frame) driver.Frame {
	f.Actions = append([]string(nil), f.Actions...)
	return f
}
