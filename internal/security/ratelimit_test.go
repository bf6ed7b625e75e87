package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/logging"
)

func newTestLimiter(c *clock, max int, window time.Duration) (*Limiter, *recordingPublisher) {
	pub := &recordingPublisher{}
	limits := map[Category]Limit{
		CategoryLogin: {Max: max, Window: window},
		CategoryAPI:   {Max: 100, Window: time.Minute},
	}
	l := NewLimiter(NewMemoryStore(), limits, 30*time.Minute, pub, logging.Discard())
	l.Now = c.Now
	return l, pub
}

func TestLimiter_RejectsOverLimit(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	l, _ := newTestLimiter(c, 5, 15*time.Minute)

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, "1.2.3.4", CategoryLogin)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining)
	}

	c.Advance(time.Minute)
	d, err := l.Allow(ctx, "1.2.3.4", CategoryLogin)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.False(t, d.Blocked)
	assert.LessOrEqual(t, d.RetryAfter, 15*time.Minute)
	assert.Equal(t, 14*60, d.RetryAfterSeconds())
}

func TestLimiter_BlockPersistsIntoFreshWindow(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	l, pub := newTestLimiter(c, 5, time.Minute)

	var d Decision
	for i := 1; i <= 11; i++ {
		var err error
		d, err = l.Allow(ctx, "1.2.3.4", CategoryLogin)
		require.NoError(t, err)
	}
	assert.True(t, d.Blocked)
	assert.Equal(t, []string{"security.source_blocked"}, pub.topics)

	c.Advance(2 * time.Minute)
	d, err := l.Allow(ctx, "1.2.3.4", CategoryLogin)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.Blocked)

	// the block spans categories
	d, err = l.Allow(ctx, "1.2.3.4", CategoryAPI)
	require.NoError(t, err)
	assert.True(t, d.Blocked)

	c.Advance(30 * time.Minute)
	d, err = l.Allow(ctx, "1.2.3.4", CategoryLogin)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_SourcesAndCategoriesAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	l, _ := newTestLimiter(c, 1, time.Minute)

	d, _ := l.Allow(ctx, "a", CategoryLogin)
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "a", CategoryLogin)
	assert.False(t, d.Allowed)

	d, _ = l.Allow(ctx, "b", CategoryLogin)
	assert.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "a", CategoryAPI)
	assert.True(t, d.Allowed)
}

func TestLimiter_UnknownCategoryFallsBackToAPI(t *testing.T) {
	c := newClock()
	l, _ := newTestLimiter(c, 1, time.Minute)
	d, err := l.Allow(context.Background(), "a", Category("bogus"))
	require.NoError(t, err)
	assert.Equal(t, 100, d.Limit)
}

func TestSweeper_EvictsExpired(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	store := NewMemoryStore()

	g := NewGuard(store, GuardConfig{MaxAttempts: 1, Window: time.Minute, LockDuration: 5 * time.Minute}, nil, logging.Discard())
	g.Now = c.Now
	_, err := g.RecordAttempt(ctx, "sari", "ip", false)
	require.NoError(t, err)

	sw := &Sweeper{Store: store, Log: logging.Discard(), Now: c.Now}
	st := sw.SweepOnce(ctx)
	assert.Zero(t, st.Windows)
	assert.Empty(t, st.Locks)

	c.Advance(6 * time.Minute)
	st = sw.SweepOnce(ctx)
	assert.Equal(t, 1, st.Windows)
	assert.Equal(t, []string{userLockKey("sari")}, st.Locks)

	windows, locks := store.Len()
	assert.Zero(t, windows)
	assert.Zero(t, locks)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := &Sweeper{Store: NewMemoryStore(), Interval: time.Millisecond, Log: logging.Discard()}
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Incr(ctx, "k", Hit{Now: now, Window: time.Minute})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, ok, err := s.Window(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, w.Count)
	assert.True(t, now.Add(time.Minute).Equal(w.ResetAt))
}
