package security

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"printshop/internal/apperr"
	"printshop/internal/events"
	"printshop/internal/logging"
)

var ErrAccountLocked = apperr.Security("account_locked", "account is temporarily locked", http.StatusForbidden)

type GuardConfig struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

var DefaultGuardConfig = GuardConfig{
	MaxAttempts:  10,
	Window:       15 * time.Minute,
	LockDuration: 15 * time.Minute,
}

type AttemptResult struct {
	Allowed           bool
	Locked            bool
	RemainingAttempts int
	LockedUntil       time.Time
}

// Guard counts failed logins per (username, source) and locks the username
// once the threshold is reached. The attempt window and the lock are separate
// clocks: a lock may outlive the window that produced it.
type Guard struct {
	Store  Store
	Config GuardConfig
	Events events.Publisher
	Log    logrus.FieldLogger
	Now    func() time.Time

	mu sync.Mutex
}

func NewGuard(store Store, cfg GuardConfig, pub events.Publisher, lg logrus.FieldLogger) *Guard {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Guard{Store: store, Config: cfg, Events: pub, Log: lg, Now: time.Now}
}

// RecordAttempt registers the outcome of a credential check.
func (g *Guard) RecordAttempt(ctx context.Context, username, ip string, success bool) (AttemptResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := attemptKey(username, ip)
	if success {
		if err := g.Store.DeleteWindow(ctx, key); err != nil {
			return AttemptResult{}, err
		}
		if err := g.Store.DeleteLock(ctx, userLockKey(username)); err != nil {
			return AttemptResult{}, err
		}
		return AttemptResult{Allowed: true, RemainingAttempts: g.Config.MaxAttempts}, nil
	}

	now := g.Now()
	w, err := g.Store.Incr(ctx, key, Hit{Now: now, Window: g.Config.Window, Stamp: true})
	if err != nil {
		return AttemptResult{}, err
	}

	logging.Security(g.Log).WithFields(logrus.Fields{
		"username":      username,
		"ip":            ip,
		"attempt_count": w.Count,
		"max_attempts":  g.Config.MaxAttempts,
	}).Warn("failed login attempt")

	if w.Count >= g.Config.MaxAttempts {
		until := now.Add(g.Config.LockDuration)
		if err := g.lock(ctx, username, ip, until); err != nil {
			return AttemptResult{}, err
		}
		return AttemptResult{Allowed: false, Locked: true, LockedUntil: until}, nil
	}

	return AttemptResult{Allowed: true, RemainingAttempts: g.Config.MaxAttempts - w.Count}, nil
}

func (g *Guard) lock(ctx context.Context, username, ip string, until time.Time) error {
	reason := "too many failed login attempts"
	if err := g.Store.SetLock(ctx, userLockKey(username), Lock{Until: until, Reason: reason}); err != nil {
		return err
	}
	logging.Security(g.Log).WithFields(logrus.Fields{
		"username": username,
		"ip":       ip,
		"until":    until,
		"reason":   reason,
	}).Warn("account locked")

	if err := g.Events.Publish(ctx, events.TopicAccountLocked, map[string]any{
		"username": username,
		"ip":       ip,
		"until":    until,
	}); err != nil {
		g.Log.WithError(err).Warn("publish account locked event")
	}
	return nil
}

// IsLocked reports whether username is locked now. Expired locks are removed.
func (g *Guard) IsLocked(ctx context.Context, username string) (bool, error) {
	_, locked, err := g.activeLock(ctx, username)
	return locked, err
}

func (g *Guard) activeLock(ctx context.Context, username string) (Lock, bool, error) {
	key := userLockKey(username)
	l, ok, err := g.Store.Lock(ctx, key)
	if err != nil || !ok {
		return Lock{}, false, err
	}
	if g.Now().After(l.Until) {
		return Lock{}, false, g.Store.DeleteLock(ctx, key)
	}
	return l, true, nil
}

// CheckAllowed is the gate run before credentials are verified. It never
// consumes an attempt. A locked account yields ErrAccountLocked carrying the
// remaining minutes.
func (g *Guard) CheckAllowed(ctx context.Context, username, ip string) error {
	if username == "" {
		return nil
	}
	l, locked, err := g.activeLock(ctx, username)
	if err != nil || !locked {
		return err
	}
	minutes := RemainingMinutes(l.Until, g.Now())
	logging.Security(g.Log).WithFields(logrus.Fields{
		"username":          username,
		"ip":                ip,
		"minutes_remaining": minutes,
	}).Warn("login attempt on locked account")

	return ErrAccountLocked.WithMessage(fmt.Sprintf(
		"Account is temporarily locked due to too many failed login attempts. Please try again in %d minutes.", minutes))
}

// LockedMessage is the text shown when a failed attempt triggers the lock.
func (g *Guard) LockedMessage() string {
	return fmt.Sprintf("Account locked due to too many failed login attempts. Please try again in %d minutes.",
		RemainingMinutes(g.Now().Add(g.Config.LockDuration), g.Now()))
}

// RemainingMinutes rounds the time left until `until` up to whole minutes.
func RemainingMinutes(until, now time.Time) int {
	d := until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
