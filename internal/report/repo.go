package report

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repo reads report rows through gorm.
type Repo struct {
	DB *gorm.DB
}

func (r *Repo) JobsBetween(ctx context.Context, from, to time.Time) ([]JobRow, error) {
	rows := []JobRow{}
	// users is a left join: jobs of deleted workers keep a NULL worker
	err := r.DB.WithContext(ctx).
		Table("jobs j").
		Select(`j.id, j.worker_id, u.name as worker_name, j.machine_id, m.name as machine_name,
			j.job_type_id, jt.name as job_type_name, jt.unit, j.description,
			j.width_cm, j.height_cm, j.quantity, j.rate, j.amount, j.created_at`).
		Joins("left join users u on u.id = j.worker_id").
		Joins("join machines m on m.id = j.machine_id").
		Joins("join job_types jt on jt.id = j.job_type_id").
		Where("j.created_at >= ? AND j.created_at < ?", from, to).
		Order("j.created_at desc, j.id desc").
		Scan(&rows).Error
	return rows, err
}

func (r *Repo) Machines(ctx context.Context) ([]MachineRow, error) {
	rows := []MachineRow{}
	err := r.DB.WithContext(ctx).
		Table("machines").
		Select("id, name, type").
		Order("id").
		Scan(&rows).Error
	return rows, err
}

func (r *Repo) Workers(ctx context.Context) ([]WorkerRow, error) {
	rows := []WorkerRow{}
	err := r.DB.WithContext(ctx).
		Table("users u").
		Select("u.id, u.name, u.username, m.name as machine_name").
		Joins("left join machines m on m.id = u.machine_id").
		Where("u.role = ?", "worker").
		Order("u.id").
		Scan(&rows).Error
	return rows, err
}

func (r *Repo) JobTypes(ctx context.Context) ([]JobTypeRow, error) {
	rows := []JobTypeRow{}
	err := r.DB.WithContext(ctx).
		Table("job_types").
		Select("id, name, machine_type, unit").
		Order("id").
		Scan(&rows).Error
	return rows, err
}
