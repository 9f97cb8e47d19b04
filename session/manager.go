package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jtejido/fingerlive/liveness"
)

// Manager tracks the open sessions of a server. Sessions never share state;
// the manager only maps ids to controllers.
type Manager struct {
	engine *liveness.Engine
	opts   []Option

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewManager returns a manager creating controllers with opts.
func NewManager(engine *liveness.Engine, opts ...Option) *Manager {
	return &Manager{
		engine:   engine,
		opts:     opts,
		sessions: make(map[string]*Controller),
	}
}

// Create opens a new session under a random id.
func (m *Manager) Create() *Controller {
	c := New(uuid.NewString(), m.engine, m.opts...)
	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()
	return c
}

func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Close tears down and forgets the session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	c.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Detached returns a controller built like the managed ones but never
// registered, for one-shot analyses owned by the caller.
func (m *Manager) Detached() *Controller {
	return New(uuid.NewString(), m.engine, m.opts...)
}

// Reap closes sessions idle for at least idle and returns how many went.
// Idle checks wait on each controller's lock, so they run outside m.mu.
func (m *Manager) Reap(idle time.Duration) int {
	m.mu.RLock()
	all := make([]*Controller, 0, len(m.sessions))
	for _, c := range m.sessions {
		all = append(all, c)
	}
	m.mu.RUnlock()

	var stale []*Controller
	for _, c := range all {
		if c.IdleFor() < idle {
			continue
		}
		m.mu.Lock()
		if m.sessions[c.ID()] == c {
			delete(m.sessions, c.ID())
			stale = append(stale, c)
		}
		m.mu.Unlock()
	}

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
