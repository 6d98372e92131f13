package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/modelshop-checkout/internal/obs"
	"github.com/noah-isme/modelshop-checkout/internal/shipping"
	"github.com/noah-isme/modelshop-checkout/internal/tax"
)

var (
	// ErrInvalidSessionID is returned for identifiers that are not UUIDs.
	ErrInvalidSessionID = errors.New("checkout: invalid session id")
	// ErrRestoreFailed is returned when persisted state could not be read.
	// The session is not kept, so the next access restores again.
	ErrRestoreFailed = errors.New("checkout: restore session failed")
)

// Manager owns the live sessions of this process. Sessions are restored from
// persistence on first access and evicted after a period of inactivity.
type Manager struct {
	deps *Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a manager. Missing collaborators fall back to the
// static shipping and tax tables.
func NewManager(deps Deps) *Manager {
	if deps.Rates == nil {
		deps.Rates = shipping.NewLocalRates()
	}
	if deps.Tax.Rates == nil {
		deps.Tax = tax.NewCalculator()
	}
	return &Manager{deps: &deps, sessions: make(map[string]*Session)}
}

// Create starts a new empty session with a random identifier.
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.deps)
	close(s.ready)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	obs.SetActiveSessions(n)
	return s
}

// Get returns the live session, restoring it from persistence when it is
// not in memory. Unknown identifiers yield an empty session under that id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrInvalidSessionID
	}
	id = parsed.String()

	for {
		m.mu.Lock()
		s, ok := m.sessions[id]
		if !ok {
			s = NewSession(id, m.deps)
			m.sessions[id] = s
		}
		// stamped under m.mu so a concurrent sweep cannot evict what it hands out
		s.touch()
		n := len(m.sessions)
		m.mu.Unlock()

		if !ok {
			obs.SetActiveSessions(n)
			if err := s.Restore(ctx); err != nil {
				s.restoreErr = err
				m.drop(id, s)
				close(s.ready)
				return nil, err
			}
			close(s.ready)
			return s, nil
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if s.restoreErr == nil {
			return s, nil
		}
		// another caller's restore failed; try again with this context
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) drop(id string, s *Session) {
	m.mu.Lock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	m.deps.Persist.Forget(id)
	obs.SetActiveSessions(n)
}

// Evict drops a session from memory. Persisted state is kept.
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if ok {
		m.deps.Persist.Forget(id)
		obs.SetActiveSessions(n)
	}
}

// Sweep evicts sessions idle for longer than idle and returns how many were
// evicted. A session whose lock is held by an in-flight request is kept.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.deps.now().Add(-idle)
	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if !s.LastSeen().Before(cutoff) || !s.mu.TryLock() {
			continue
		}
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
			delete(m.sessions, id)
		}
		s.mu.Unlock()
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, id := range stale {
		m.deps.Persist.Forget(id)
	}
	if len(stale) > 0 {
		m.deps.Logger.Debug().Int("evicted", len(stale)).Int("active", n).Msg("session sweep")
	}
	obs.SetActiveSessions(n)
	return len(stale)
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(idle)
		}
	}
}
