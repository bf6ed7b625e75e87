package security

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/apperr"
	"printshop/internal/logging"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
	return nil
}

func newTestGuard(store Store, c *clock) (*Guard, *recordingPublisher) {
	pub := &recordingPublisher{}
	g := NewGuard(store, DefaultGuardConfig, pub, logging.Discard())
	g.Now = c.Now
	return g, pub
}

func TestGuard_SuccessClearsCounter(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	store := NewMemoryStore()
	g, _ := newTestGuard(store, c)

	for i := 0; i < 9; i++ {
		res, err := g.RecordAttempt(ctx, "budi", "10.0.0.1", false)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 10-(i+1), res.RemainingAttempts)
	}

	res, err := g.RecordAttempt(ctx, "budi", "10.0.0.1", true)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	locked, err := g.IsLocked(ctx, "budi")
	require.NoError(t, err)
	assert.False(t, locked)

	_, ok, _ := store.Window(ctx, attemptKey("budi", "10.0.0.1"))
	assert.False(t, ok, "counter should be cleared")

	// a fresh failure starts counting from one again
	res, err = g.RecordAttempt(ctx, "budi", "10.0.0.1", false)
	require.NoError(t, err)
	assert.Equal(t, 9, res.RemainingAttempts)
}

func TestGuard_LocksAfterThresholdAndExpires(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	g, pub := newTestGuard(NewMemoryStore(), c)

	var last AttemptResult
	for i := 0; i < 10; i++ {
		var err error
		last, err = g.RecordAttempt(ctx, "sari", "10.0.0.2", false)
		require.NoError(t, err)
	}
	assert.False(t, last.Allowed)
	assert.True(t, last.Locked)
	assert.Equal(t, []string{"security.account_locked"}, pub.topics)

	locked, err := g.IsLocked(ctx, "sari")
	require.NoError(t, err)
	assert.True(t, locked)

	c.Advance(15*time.Minute + time.Second)
	locked, err = g.IsLocked(ctx, "sari")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestGuard_LockIsUsernameScoped(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	g, _ := newTestGuard(NewMemoryStore(), c)

	for i := 0; i < 10; i++ {
		_, err := g.RecordAttempt(ctx, "sari", "10.0.0.2", false)
		require.NoError(t, err)
	}

	// another source is refused too
	err := g.CheckAllowed(ctx, "sari", "192.168.1.9")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Equal(t, http.StatusForbidden, apperr.Status(err))

	// other usernames from the same source are unaffected
	assert.NoError(t, g.CheckAllowed(ctx, "andi", "10.0.0.2"))
}

func TestGuard_CheckAllowedReportsMinutesWithoutConsuming(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	store := NewMemoryStore()
	g, _ := newTestGuard(store, c)

	for i := 0; i < 10; i++ {
		_, err := g.RecordAttempt(ctx, "sari", "10.0.0.2", false)
		require.NoError(t, err)
	}
	before, _, _ := store.Window(ctx, attemptKey("sari", "10.0.0.2"))

	c.Advance(4*time.Minute + 30*time.Second)
	err := g.CheckAllowed(ctx, "sari", "10.0.0.2")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Message, "11 minutes")

	after, _, _ := store.Window(ctx, attemptKey("sari", "10.0.0.2"))
	assert.Equal(t, before.Count, after.Count)
}

func TestGuard_LockOutlivesAttemptWindow(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	cfg := GuardConfig{MaxAttempts: 3, Window: time.Minute, LockDuration: 10 * time.Minute}
	g := NewGuard(NewMemoryStore(), cfg, nil, logging.Discard())
	g.Now = c.Now

	for i := 0; i < 3; i++ {
		_, err := g.RecordAttempt(ctx, "u", "ip", false)
		require.NoError(t, err)
	}
	c.Advance(2 * time.Minute)

	locked, err := g.IsLocked(ctx, "u")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestGuard_WindowResetsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	g, _ := newTestGuard(NewMemoryStore(), c)

	for i := 0; i < 9; i++ {
		_, err := g.RecordAttempt(ctx, "budi", "ip", false)
		require.NoError(t, err)
	}
	c.Advance(16 * time.Minute)

	res, err := g.RecordAttempt(ctx, "budi", "ip", false)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.RemainingAttempts)
}

func TestRemainingMinutes(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0, RemainingMinutes(now.Add(-time.Second), now))
	assert.Equal(t, 1, RemainingMinutes(now.Add(time.Second), now))
	assert.Equal(t, 15, RemainingMinutes(now.Add(15*time.Minute), now))
	assert.Equal(t, 16, RemainingMinutes(now.Add(15*time.Minute+time.Millisecond), now))
}
