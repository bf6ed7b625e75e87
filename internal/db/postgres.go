package db

import (
	"errors"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"printshop/internal/apperr"
)

// Postgres runs gorm's postgres dialector on top of lib/pq.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Open(dsn string) gorm.Dialector {
	return postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        dsn,
	})
}

func (Postgres) Translate(err error) error {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return nil
	}
	switch {
	case pe.Code == "23505":
		return apperr.ErrDuplicateKey.Wrap(err)
	case pe.Code == "23503":
		return apperr.ErrMissingReference.Wrap(err)
	case pe.Code.Class() == "08", pe.Code == "57P01", pe.Code == "53300", pe.Code == "40001", pe.Code == "40P01":
		return apperr.ErrUnavailable.Wrap(err)
	}
	return apperr.ErrDataAccess.Wrap(err)
}

func (Postgres) Statements() []string {
	return []string{
		// one canonical active rate per job type
		`create unique index if not exists uq_pricing_active_job_type on pricing(job_type_id) where active`,
		`create index if not exists idx_jobs_created_desc on jobs(created_at desc)`,
		`create index if not exists idx_jobs_worker_created on jobs(worker_id, created_at desc)`,
		`create index if not exists idx_messages_pair on messages(sender_id, receiver_id, created_at)`,
	}
}
