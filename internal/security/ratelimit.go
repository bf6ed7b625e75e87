package security

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"printshop/internal/events"
	"printshop/internal/logging"
)

type Category string

const (
	CategoryLogin  Category = "login"
	CategoryAPI    Category = "api"
	CategoryUpload Category = "upload"
	CategoryStrict Category = "strict"
)

type Limit struct {
	Max    int
	Window time.Duration
}

var DefaultLimits = map[Category]Limit{
	CategoryLogin:  {Max: 5, Window: 15 * time.Minute},
	CategoryAPI:    {Max: 100, Window: time.Minute},
	CategoryUpload: {Max: 10, Window: time.Minute},
	CategoryStrict: {Max: 30, Window: time.Minute},
}

const DefaultBlockDuration = 30 * time.Minute

// Decision is the outcome of one request against a category. Rejections are
// plain values: the caller decides how to answer.
type Decision struct {
	Allowed    bool
	Blocked    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up, never below one second.
func (d Decision) RetryAfterSeconds() int {
	s := int((d.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}

// Limiter applies fixed windows per (category, source). A source that sends
// more than twice a category's maximum inside one window is blocked for every
// category.
type Limiter struct {
	Store         Store
	Limits        map[Category]Limit
	BlockDuration time.Duration
	Events        events.Publisher
	Log           logrus.FieldLogger
	Now           func() time.Time

	mu sync.Mutex
}

func NewLimiter(store Store, limits map[Category]Limit, block time.Duration, pub events.Publisher, lg logrus.FieldLogger) *Limiter {
	if limits == nil {
		limits = DefaultLimits
	}
	if block <= 0 {
		block = DefaultBlockDuration
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Limiter{Store: store, Limits: limits, BlockDuration: block, Events: pub, Log: lg, Now: time.Now}
}

func (l *Limiter) limit(cat Category) (Category, Limit) {
	if lim, ok := l.Limits[cat]; ok {
		return cat, lim
	}
	return CategoryAPI, l.Limits[CategoryAPI]
}

func (l *Limiter) Allow(ctx context.Context, source string, cat Category) (Decision, error) {
	cat, lim := l.limit(cat)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	bk := blockKey(source)
	b, blocked, err := l.Store.Lock(ctx, bk)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		if now.Before(b.Until) {
			return Decision{Blocked: true, Limit: lim.Max, ResetAt: b.Until, RetryAfter: b.Until.Sub(now)}, nil
		}
		if err := l.Store.DeleteLock(ctx, bk); err != nil {
			return Decision{}, err
		}
	}

	key := rateKey(cat, source)
	w, err := l.Store.Incr(ctx, key, Hit{Now: now, Window: lim.Window})
	if err != nil {
		return Decision{}, err
	}

	if w.Count <= lim.Max {
		return Decision{
			Allowed:   true,
			Limit:     lim.Max,
			Remaining: lim.Max - w.Count,
			ResetAt:   w.ResetAt,
		}, nil
	}

	d := Decision{Limit: lim.Max, ResetAt: w.ResetAt, RetryAfter: w.ResetAt.Sub(now)}
	entry := logging.Security(l.Log).WithFields(logrus.Fields{
		"source":   source,
		"category": string(cat),
		"count":    w.Count,
		"max":      lim.Max,
	})

	if w.Count > 2*lim.Max {
		until := now.Add(l.BlockDuration)
		if err := l.Store.SetLock(ctx, bk, Lock{Until: until, Reason: "rate limit exceeded: " + string(cat)}); err != nil {
			return Decision{}, err
		}
		entry.WithField("until", until).Warn("source blocked")
		if err := l.Events.Publish(ctx, events.TopicSourceBlocked, map[string]any{
			"source":   source,
			"category": string(cat),
			"until":    until,
		}); err != nil {
			l.Log.WithError(err).Warn("publish source blocked event")
		}
		d.Blocked = true
		d.ResetAt = until
		d.RetryAfter = until.Sub(now)
		return d, nil
	}

	entry.Warn("rate limit exceeded")
	return d, nil
}
