package db

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"printshop/internal/audit"
	"printshop/internal/auth"
	"printshop/internal/catalog"
	"printshop/internal/jobs"
	"printshop/internal/messages"
)

func Connect(d Dialect, dsn string, lg *logrus.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(translating{Dialector: d.Open(dsn), d: d}, &gorm.Config{
		TranslateError: true,
		Logger: logger.New(lg, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

// foreign keys are named so they can be checked and added idempotently on
// both dialects.
var foreignKeys = []struct {
	model any
	name  string
	ddl   string
}{
	{&auth.User{}, "fk_users_machine", `alter table users add constraint fk_users_machine foreign key (machine_id) references machines(id) on delete set null`},
	{&catalog.Pricing{}, "fk_pricing_job_type", `alter table pricing add constraint fk_pricing_job_type foreign key (job_type_id) references job_types(id) on delete restrict`},
	// jobs outlive their worker: the owner reference becomes NULL
	{&jobs.Job{}, "fk_jobs_worker", `alter table jobs add constraint fk_jobs_worker foreign key (worker_id) references users(id) on delete set null`},
	{&jobs.Job{}, "fk_jobs_machine", `alter table jobs add constraint fk_jobs_machine foreign key (machine_id) references machines(id) on delete restrict`},
	{&jobs.Job{}, "fk_jobs_job_type", `alter table jobs add constraint fk_jobs_job_type foreign key (job_type_id) references job_types(id) on delete restrict`},
	{&audit.Log{}, "fk_audit_logs_user", `alter table audit_logs add constraint fk_audit_logs_user foreign key (user_id) references users(id) on delete set null`},
	{&messages.Message{}, "fk_messages_sender", `alter table messages add constraint fk_messages_sender foreign key (sender_id) references users(id) on delete cascade`},
	{&messages.Message{}, "fk_messages_receiver", `alter table messages add constraint fk_messages_receiver foreign key (receiver_id) references users(id) on delete cascade`},
}

func AutoMigrateAndIndexes(gdb *gorm.DB, d Dialect) error {
	// Tables
	if err := gdb.AutoMigrate(
		&catalog.Machine{},
		&catalog.JobType{},
		&catalog.Pricing{},
		&auth.User{},
		&jobs.Job{},
		&audit.Log{},
		&messages.Message{},
	); err != nil {
		return err
	}

	m := gdb.Migrator()
	for _, fk := range foreignKeys {
		if m.HasConstraint(fk.model, fk.name) {
			continue
		}
		if err := gdb.Exec(fk.ddl).Error; err != nil {
			return fmt.Errorf("constraint %s: %w", fk.name, err)
		}
	}

	for _, s := range d.Statements() {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
