package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Factory builds the coordinator for a new session id.
type Factory func(id string) *Coordinator

type entry struct {
	coord    *Coordinator
	lastSeen time.Time
	holds    int
}

// Manager maps session ids to coordinators and evicts idle ones.
type Manager struct {
	logger  *slog.Logger
	factory Factory
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(logger *slog.Logger, factory Factory) *Manager {
	return &Manager{
		logger:   logger,
		factory:  factory,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the coordinator for id. An empty or unknown id never names a new
// session; a fresh one is minted and must be handed back to the browser.
func (m *Manager) Get(id string) (string, *Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.sessions[id]; ok && id != "" {
		e.lastSeen = m.now()
		return id, e.coord
	}

	id = uuid.NewString()
	e := &entry{coord: m.factory(id), lastSeen: m.now()}
	m.sessions[id] = e
	m.logger.Debug("session created", "session_id", id)
	return id, e.coord
}

// Lookup returns an existing coordinator without creating one.
func (m *Manager) Lookup(id string) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.coord, true
}

// Hold keeps the session alive until release is called, e.g. while a websocket is attached.
func (m *Manager) Hold(id string) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return func() {}
	}
	e.holds++

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			e.holds--
			e.lastSeen = m.now()
		})
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) StartCleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanup(ttl)
			}
		}
	}()
}

func (m *Manager) cleanup(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)
	var expired []*Coordinator

	m.mu.Lock()
	for id, e := range m.sessions {
		if e.holds > 0 || e.coord.Polling() {
			continue
		}
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e.coord)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}

	if len(expired) > 0 {
		m.logger.Info("cleanup completed", "removed_sessions", len(expired))
	}
	return len(expired)
}

// CloseAll stops every session's polling loop.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range sessions {
		e.coord.Close()
	}
}
