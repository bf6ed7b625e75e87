package security

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper evicts expired windows and locks on a fixed interval.
type Sweeper struct {
	Store    Store
	Interval time.Duration
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) SweepStats {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	st, err := s.Store.Sweep(ctx, now)
	if err != nil {
		s.Log.WithError(err).Warn("security sweep failed")
		return st
	}
	for _, k := range st.Locks {
		if u, ok := unlockedUser(k); ok {
			s.Log.WithField("username", u).Info("account unlocked")
		}
	}
	if st.Windows > 0 || len(st.Locks) > 0 {
		s.Log.WithFields(logrus.Fields{
			"windows": st.Windows,
			"locks":   len(st.Locks),
		}).Debug("security sweep")
	}
	return st
}
