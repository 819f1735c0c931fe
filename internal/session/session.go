// ABOUTME: Session bundles a credential with its own backend client, catalog, and call history.
// ABOUTME: Serializes calls so responses follow dispatch order within the session.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/instantly-mcp/internal/credential"
	"github.com/2389/instantly-mcp/internal/history"
	"github.com/2389/instantly-mcp/internal/instantly"
	"github.com/2389/instantly-mcp/internal/tools"
)

// ErrClosed is returned when running a call on a closed session.
var ErrClosed = errors.New("session closed")

// Session is one client's bound state.
type Session struct {
	ID              string
	Credential      credential.Credential
	ProtocolVersion string
	CreatedAt       time.Time

	catalog *tools.Catalog
	client  *instantly.Client
	history *history.Tracker

	// turn holds one token; a call owns the session while holding it.
	turn chan struct{}
	done chan struct{}

	mu         sync.Mutex
	lastActive time.Time
	closed     bool
}

// New builds a session for cred with a fresh client, catalog, and history.
func New(cred credential.Credential, protocolVersion string, opts Options) (*Session, error) {
	catalog, err := tools.NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}

	id := uuid.New().String()
	logger := opts.logger().With("session_id", id)

	now := time.Now()
	s := &Session{
		ID:              id,
		Credential:      cred,
		ProtocolVersion: protocolVersion,
		CreatedAt:       now,
		catalog:         catalog,
		client: instantly.New(instantly.Options{
			BaseURL:    cred.BaseURL,
			APIKey:     cred.APIKey,
			Timeout:    opts.BackendTimeout,
			MaxRetries: opts.maxRetries(),
			Logger:     logger,
			HTTPClient: opts.HTTPClient,
			OnRetry:    opts.OnRetry,
		}),
		history:    history.New(opts.HistoryTTL, 0),
		turn:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		lastActive: now,
	}
	s.turn <- struct{}{}
	return s, nil
}

// Catalog returns the session's tool catalog.
func (s *Session) Catalog() *tools.Catalog { return s.catalog }

// Backend returns the session's Instantly client.
func (s *Session) Backend() tools.Backend { return s.client }

// Called reports whether any named tool succeeded in this session.
func (s *Session) Called(names ...string) bool { return s.history.Called(names...) }

// Record notes a successful tool call.
func (s *Session) Record(name string) { s.history.Record(name) }

// Run executes fn while holding the session's turn. Calls queue in arrival
// order. It fails fast if the session is or becomes closed, or if ctx ends
// while waiting.
func (s *Session) Run(ctx context.Context, fn func()) error {
	select {
	case <-s.turn:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.turn <- struct{}{} }()

	if s.Closed() {
		return ErrClosed
	}
	s.Touch()
	fn()
	s.Touch()
	return nil
}

// Touch records activity so the idle reaper leaves the session alone.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the most recent activity.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close releases the backend client and history. Safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.history.Close()
	s.client.Close()
}
