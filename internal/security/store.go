// Package security holds the login lockout and rate limiting state machines
// and the stores their ephemeral state lives in.
package security

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Window is a counter that starts over at ResetAt.
type Window struct {
	Count    int         `json:"count"`
	ResetAt  time.Time   `json:"reset_at"`
	Failures []time.Time `json:"failures,omitempty"`
}

// Hit is one increment of a window. A missing or expired window starts over
// with ResetAt = Now + Window.
type Hit struct {
	Now    time.Time
	Window time.Duration
	Stamp  bool // append Now to Failures
}

func (h Hit) fresh(w Window, ok bool) bool {
	return !ok || !h.Now.Before(w.ResetAt)
}

// Lock denies a subject (username or request source) until Until.
type Lock struct {
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

type SweepStats struct {
	Windows int
	Locks   []string
}

// Store keeps windows and locks. Implementations must expire entries no
// later than the next Sweep after their deadline. Incr is atomic with respect
// to every other caller of the same store, including other processes.
type Store interface {
	Window(ctx context.Context, key string) (Window, bool, error)
	Incr(ctx context.Context, key string, h Hit) (Window, error)
	DeleteWindow(ctx context.Context, key string) error

	Lock(ctx context.Context, key string) (Lock, bool, error)
	SetLock(ctx context.Context, key string, l Lock) error
	DeleteLock(ctx context.Context, key string) error

	Sweep(ctx context.Context, now time.Time) (SweepStats, error)
}

func attemptKey(username, ip string) string { return "attempt:" + username + "|" + ip }
func rateKey(cat Category, source string) string {
	return "rate:" + string(cat) + "|" + source
}
func userLockKey(username string) string { return "lock:user:" + username }
func blockKey(source string) string      { return "lock:block:" + source }

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
	locks   map[string]Lock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]Window),
		locks:   make(map[string]Lock),
	}
}

func (s *MemoryStore) Window(_ context.Context, key string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if ok {
		w.Failures = append([]time.Time(nil), w.Failures...)
	}
	return w, ok, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, h Hit) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if h.fresh(w, ok) {
		w = Window{ResetAt: h.Now.Add(h.Window)}
	}
	w.Count++
	if h.Stamp {
		w.Failures = append(w.Failures, h.Now)
	}
	s.windows[key] = w
	w.Failures = append([]time.Time(nil), w.Failures...)
	return w, nil
}

func (s *MemoryStore) DeleteWindow(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

func (s *MemoryStore) Lock(_ context.Context, key string) (Lock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	return l, ok, nil
}

func (s *MemoryStore) SetLock(_ context.Context, key string, l Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[key] = l
	return nil
}

func (s *MemoryStore) DeleteLock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (SweepStats, error) {
	var st SweepStats
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, w := range s.windows {
		if now.After(w.ResetAt) {
			delete(s.windows, k)
			st.Windows++
		}
	}
	for k, l := range s.locks {
		if now.After(l.Until) {
			delete(s.locks, k)
			st.Locks = append(st.Locks, k)
		}
	}
	return st, nil
}

// Len reports live entries; used by tests and the health endpoint.
func (s *MemoryStore) Len() (windows, locks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows), len(s.locks)
}

// unlockedUser extracts the username from a swept user lock key.
func unlockedUser(key string) (string, bool) {
	return strings.CutPrefix(key, "lock:user:")
}
