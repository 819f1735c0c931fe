// ABOUTME: Manager maps session ids to active sessions with atomic insert and remove.
// ABOUTME: Reaps idle sessions and enforces an optional session cap.

package session

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/instantly-mcp/internal/credential"
	"github.com/2389/instantly-mcp/internal/instantly"
)

// ErrSessionNotFound indicates no active session has the given id.
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions indicates the session cap has been reached.
var ErrTooManySessions = errors.New("too many active sessions")

// DefaultIdleTimeout is how long an untouched session survives.
const DefaultIdleTimeout = 30 * time.Minute

// Options configures sessions and the manager that owns them.
type Options struct {
	Logger *slog.Logger

	// IdleTimeout closes sessions with no activity for this long.
	// Zero uses DefaultIdleTimeout; negative disables reaping.
	IdleTimeout time.Duration

	// MaxSessions caps concurrently active sessions; zero means unlimited.
	MaxSessions int

	BackendTimeout time.Duration
	MaxRetries     *int
	HistoryTTL     time.Duration
	HTTPClient     *http.Client

	// OnRetry is passed to every session's backend client.
	OnRetry func(method, path string, attempt int)

	// OnCountChange is called with the active session count after each change.
	OnCountChange func(active int)
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) maxRetries() int {
	if o.MaxRetries == nil {
		return instantly.DefaultMaxRetries
	}
	return *o.MaxRetries
}

func (o Options) idleTimeout() time.Duration {
	if o.IdleTimeout == 0 {
		return DefaultIdleTimeout
	}
	return o.IdleTimeout
}

// Manager owns the id to Session map for the HTTP transport.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// notifyMu orders OnCountChange calls so the last one sees the final count.
	notifyMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a manager and starts its idle reaper.
func NewManager(opts Options) *Manager {
	m := &Manager{
		opts:     opts,
		logger:   opts.logger().With("component", "session"),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	if idle := opts.idleTimeout(); idle > 0 {
		m.wg.Add(1)
		go m.reapLoop(idle)
	}
	return m
}

// Create mints a new Active session bound to cred.
func (m *Manager) Create(cred credential.Credential, protocolVersion string) (*Session, error) {
	s, err := New(cred, protocolVersion, m.opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		s.Close()
		return nil, ErrTooManySessions
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		"session_id", s.ID,
		"credential", cred.Redacted(),
		"credential_origin", cred.Origin,
		"protocol_version", protocolVersion,
	)
	m.notify()
	return s, nil
}

// Get returns the active session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// Close removes and releases the session. It reports whether the session
// existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.logger.Info("session closed", "session_id", id)
	m.notify()
	return true
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the reaper and closes every session.
func (m *Manager) Shutdown() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()

	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	if len(all) > 0 {
		m.logger.Info("closed sessions on shutdown", "count", len(all))
		m.notify()
	}
}

func (m *Manager) reapLoop(idle time.Duration) {
	defer m.wg.Done()

	interval := idle / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reap(time.Now().Add(-idle))
		case <-m.done:
			return
		}
	}
}

// reap closes sessions inactive since before cutoff.
func (m *Manager) reap(cutoff time.Time) int {
	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
		m.logger.Info("reaped idle session", "session_id", s.ID, "last_active", s.LastActive())
	}
	if len(stale) > 0 {
		m.notify()
	}
	return len(stale)
}

// notify reports the current count rather than a value captured at the
// change, so reordered callbacks cannot leave a stale reading behind.
func (m *Manager) notify() {
	if m.opts.OnCountChange == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.opts.OnCountChange(m.Count())
}
