package backup

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Schedule struct {
	Backup      string // cron spec, e.g. "0 2 * * *"
	Cleanup     string
	Keep        int // after each scheduled backup
	CleanupKeep int // on the weekly cleanup
}

// Scheduler runs backups and cleanup on cron schedules.
type Scheduler struct {
	Manager *Manager
	Log     logrus.FieldLogger
	cron    *cron.Cron
}

func NewScheduler(m *Manager, s Schedule, loc *time.Location, lg logrus.FieldLogger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{lg}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	sch := &Scheduler{Manager: m, Log: lg, cron: c}

	if _, err := c.AddFunc(s.Backup, func() { sch.backup(s.Keep) }); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(s.Cleanup, func() { sch.cleanup(s.CleanupKeep) }); err != nil {
		return nil, err
	}
	return sch, nil
}

func (s *Scheduler) backup(keep int) {
	s.Log.Info("starting scheduled backup")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := s.Manager.Create(ctx); err != nil {
		s.Log.WithError(err).Error("scheduled backup failed")
		return
	}
	if _, err := s.Manager.Prune(keep); err != nil {
		s.Log.WithError(err).Error("scheduled backup cleanup failed")
		return
	}
	s.Log.Info("scheduled backup completed")
}

func (s *Scheduler) cleanup(keep int) {
	if _, err := s.Manager.Prune(keep); err != nil {
		s.Log.WithError(err).Error("weekly cleanup failed")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.Log.WithField("jobs", len(s.cron.Entries())).Info("backup scheduler started")
}

// Stop waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.Log.Info("backup scheduler stopped")
}

// Next reports when each scheduled job fires next.
func (s *Scheduler) Next() []time.Time {
	var out []time.Time
	for _, e := range s.cron.Entries() {
		out = append(out, e.Next)
	}
	return out
}

// cronLogger adapts logrus to cron's logger.
type cronLogger struct {
	lg logrus.FieldLogger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.lg.WithFields(fields(kv)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.lg.WithError(err).WithFields(fields(kv)).Error("cron: " + msg)
}

func fields(kv []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
