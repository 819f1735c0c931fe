// ABOUTME: Tests for session lifecycle, isolation, call serialization, and idle reaping.
// ABOUTME: Runs real backend clients against httptest servers to check per-session credentials.

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/instantly-mcp/internal/credential"
)

func testCred(key string) credential.Credential {
	return credential.Credential{APIKey: key, BaseURL: "http://127.0.0.1:1", Origin: credential.OriginHeader}
}

func noReap() Options { return Options{IdleTimeout: -1} }

func TestManager_CreateGetClose(t *testing.T) {
	m := NewManager(noReap())
	defer m.Shutdown()

	s, err := m.Create(testCred("key-aaaaaaaa1"), "2025-06-18")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "2025-06-18", s.ProtocolVersion)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, m.Close(s.ID))
	assert.False(t, m.Close(s.ID), "second close reports unknown")
	assert.True(t, s.Closed())

	_, ok = m.Get(s.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Count())
}

func TestManager_UnknownIDNeverCreates(t *testing.T) {
	m := NewManager(noReap())
	defer m.Shutdown()

	_, ok := m.Get("garbage")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Count())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Header.Get("Authorization")]++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	m := NewManager(noReap())
	defer m.Shutdown()

	a, err := m.Create(credential.Credential{APIKey: "key-a", BaseURL: srv.URL}, "2025-06-18")
	require.NoError(t, err)
	b, err := m.Create(credential.Credential{APIKey: "key-b", BaseURL: srv.URL}, "2025-06-18")
	require.NoError(t, err)
	same, err := m.Create(credential.Credential{APIKey: "key-a", BaseURL: srv.URL}, "2025-06-18")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotSame(t, a.Backend(), same.Backend(), "same key still gets its own client")
	assert.NotSame(t, a.Catalog(), b.Catalog())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, s := range []*Session{a, b} {
			wg.Add(1)
			go func(s *Session) {
				defer wg.Done()
				err := s.Run(context.Background(), func() {
					_, err := s.Backend().Call(context.Background(), http.MethodGet, "/campaigns", nil, nil)
					assert.NoError(t, err)
				})
				assert.NoError(t, err)
			}(s)
		}
	}
	wg.Wait()

	assert.Equal(t, 10, seen["Bearer key-a"])
	assert.Equal(t, 10, seen["Bearer key-b"])

	a.Record("list-campaigns")
	assert.True(t, a.Called("list-campaigns"))
	assert.False(t, b.Called("list-campaigns"))

	m.Close(a.ID)
	_, ok := m.Get(b.ID)
	assert.True(t, ok, "closing one session leaves others active")
	assert.Equal(t, "key-b", b.Credential.APIKey)
}

func TestSession_RunSerializesCalls(t *testing.T) {
	s, err := New(testCred("key-serial1"), "2025-06-18", Options{})
	require.NoError(t, err)
	defer s.Close()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(context.Background(), func() {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestSession_RunAfterClose(t *testing.T) {
	s, err := New(testCred("key-closed1"), "2025-06-18", Options{})
	require.NoError(t, err)
	s.Close()
	s.Close()

	ran := false
	err = s.Run(context.Background(), func() { ran = true })
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, ran)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestSession_RunWaitHonorsContext(t *testing.T) {
	s, err := New(testCred("key-waiter1"), "2025-06-18", Options{})
	require.NoError(t, err)
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Run(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestManager_MaxSessions(t *testing.T) {
	m := NewManager(Options{IdleTimeout: -1, MaxSessions: 1})
	defer m.Shutdown()

	s, err := m.Create(testCred("key-first01"), "2025-06-18")
	require.NoError(t, err)

	_, err = m.Create(testCred("key-second1"), "2025-06-18")
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Equal(t, 1, m.Count())

	m.Close(s.ID)
	_, err = m.Create(testCred("key-third01"), "2025-06-18")
	assert.NoError(t, err)
}

func TestManager_Reap(t *testing.T) {
	m := NewManager(noReap())
	defer m.Shutdown()

	old, err := m.Create(testCred("key-oldone1"), "2025-06-18")
	require.NoError(t, err)
	fresh, err := m.Create(testCred("key-fresh01"), "2025-06-18")
	require.NoError(t, err)

	old.mu.Lock()
	old.lastActive = time.Now().Add(-time.Hour)
	old.mu.Unlock()

	assert.Equal(t, 1, m.reap(time.Now().Add(-30*time.Minute)))
	assert.True(t, old.Closed())
	_, ok := m.Get(fresh.ID)
	assert.True(t, ok)
}

func TestManager_ReaperRuns(t *testing.T) {
	m := NewManager(Options{IdleTimeout: 30 * time.Millisecond})
	defer m.Shutdown()

	s, err := m.Create(testCred("key-reaped1"), "2025-06-18")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.Closed() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, m.Count())
}

func TestManager_CountCallbackAndShutdown(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	m := NewManager(Options{IdleTimeout: -1, OnCountChange: func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}})

	a, err := m.Create(testCred("key-count01"), "2025-06-18")
	require.NoError(t, err)
	_, err = m.Create(testCred("key-count02"), "2025-06-18")
	require.NoError(t, err)

	m.Shutdown()
	m.Shutdown()

	assert.True(t, a.Closed())
	assert.Equal(t, 0, m.Count())
	mu.Lock()
	assert.Equal(t, []int{1, 2, 0}, counts)
	mu.Unlock()
}

func TestManager_ConcurrentCreateClose(t *testing.T) {
	m := NewManager(noReap())
	defer m.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Create(testCred("key-concurrent"), "2025-06-18")
			if !assert.NoError(t, err) {
				return
			}
			_, ok := m.Get(s.ID)
			assert.True(t, ok)
			assert.True(t, m.Close(s.ID))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Count())
}

func TestManager_CountCallbackSettlesOnFinalCount(t *testing.T) {
	var mu sync.Mutex
	last := -1
	m := NewManager(Options{IdleTimeout: -1, OnCountChange: func(n int) {
		mu.Lock()
		last = n
		mu.Unlock()
	}})
	defer m.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Create(testCred("key-gauge"), "2025-06-18")
			if !assert.NoError(t, err) {
				return
			}
			if i%2 == 0 {
				m.Close(s.ID)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 25, m.Count())
	assert.Equal(t, m.Count(), last)
}
