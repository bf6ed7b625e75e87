package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"printshop/internal/apperr"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) CompatibleJobType(ctx context.Context, jobTypeID, machineID uint64) (JobTypeRef, bool, error) {
	var jt JobTypeRef
	err := r.DB.WithContext(ctx).
		Table("job_types jt").
		Select("jt.id, jt.name, jt.unit, jt.machine_type").
		Joins("join machines m on jt.machine_type = m.type").
		Where("jt.id = ? AND m.id = ?", jobTypeID, machineID).
		Take(&jt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return JobTypeRef{}, false, nil
	}
	if err != nil {
		return JobTypeRef{}, false, err
	}
	return jt, true, nil
}

func (r *Repo) Insert(ctx context.Context, j *Job) error {
	return r.DB.WithContext(ctx).Create(j).Error
}

// Listing

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

var ErrInvalidFilter = apperr.Validation("invalid_filter", "invalid list filter")

// sortColumns is the complete set of sortable columns.
var sortColumns = map[string]string{
	"created_at": "j.created_at",
	"amount":     "j.amount",
	"id":         "j.id",
}

// ListQuery is the raw query string form of a listing request.
type ListQuery struct {
	StartDate string
	EndDate   string
	Limit     string
	Offset    string
	Sort      string
	Order     string
}

type ListFilter struct {
	From, To time.Time // half-open [From, To); zero means unbounded
	Limit    int
	Offset   int
	orderBy  string
}

// ParseListQuery validates q. Sort columns come from a fixed allow-list and
// dates are whole days in loc.
func ParseListQuery(q ListQuery, loc *time.Location) (ListFilter, error) {
	f := ListFilter{Limit: DefaultLimit}

	if (q.StartDate == "") != (q.EndDate == "") {
		return ListFilter{}, ErrInvalidFilter.WithField("startDate").WithMessage("startDate and endDate must be given together")
	}
	if q.StartDate != "" {
		from, _, err := Day(q.StartDate, loc)
		if err != nil {
			return ListFilter{}, ErrInvalidFilter.WithField("startDate").WithMessage(err.Error())
		}
		_, to, err := Day(q.EndDate, loc)
		if err != nil {
			return ListFilter{}, ErrInvalidFilter.WithField("endDate").WithMessage(err.Error())
		}
		if !to.After(from) {
			return ListFilter{}, ErrInvalidFilter.WithField("endDate").WithMessage("endDate is before startDate")
		}
		f.From, f.To = from, to
	}

	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil || n < 1 || n > MaxLimit {
			return ListFilter{}, ErrInvalidFilter.WithField("limit").WithMessage(fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
		}
		f.Limit = n
	}
	if q.Offset != "" {
		n, err := strconv.Atoi(q.Offset)
		if err != nil || n < 0 {
			return ListFilter{}, ErrInvalidFilter.WithField("offset").WithMessage("offset must be a non-negative integer")
		}
		f.Offset = n
	}

	col := "j.created_at"
	if q.Sort != "" {
		c, ok := sortColumns[q.Sort]
		if !ok {
			return ListFilter{}, ErrInvalidFilter.WithField("sort").WithMessage("sort must be one of created_at, amount, id")
		}
		col = c
	}
	dir := "desc"
	switch strings.ToLower(q.Order) {
	case "", "desc":
	case "asc":
		dir = "asc"
	default:
		return ListFilter{}, ErrInvalidFilter.WithField("order").WithMessage("order must be asc or desc")
	}
	f.orderBy = col + " " + dir + ", j.id " + dir
	return f, nil
}

type ListResult struct {
	Jobs    []JobView `json:"jobs"`
	Total   int64     `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"has_more"`
}

func (r *Repo) ListByWorker(ctx context.Context, workerID uint64, f ListFilter) (ListResult, error) {
	if f.orderBy == "" {
		f.orderBy = "j.created_at desc, j.id desc"
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}

	base := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Table("jobs j").Where("j.worker_id = ?", workerID)
		if !f.From.IsZero() {
			q = q.Where("j.created_at >= ? AND j.created_at < ?", f.From, f.To)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return ListResult{}, err
	}

	rows := []JobView{}
	err := base().
		Select(`j.id, j.description, jt.name as job_type_name, jt.unit, m.name as machine_name,
			j.width_cm, j.height_cm, j.quantity, j.rate, j.amount, j.created_at`).
		Joins("join job_types jt on jt.id = j.job_type_id").
		Joins("join machines m on m.id = j.machine_id").
		Order(f.orderBy).
		Limit(f.Limit).
		Offset(f.Offset).
		Scan(&rows).Error
	if err != nil {
		return ListResult{}, err
	}

	return ListResult{
		Jobs:    rows,
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
		HasMore: int64(f.Offset+len(rows)) < total,
	}, nil
}

type TypeTotal struct {
	JobTypeName string          `json:"job_type_name"`
	Count       int64           `json:"count"`
	Total       decimal.Decimal `json:"total"`
}

type DailyTotal struct {
	Date        string          `json:"date"`
	JobCount    int64           `json:"job_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ByJobType   []TypeTotal     `json:"by_job_type"`
}

// DailyTotal sums a worker's jobs for one day.
func (r *Repo) DailyTotal(ctx context.Context, workerID uint64, date string, loc *time.Location) (DailyTotal, error) {
	from, to, err := Day(date, loc)
	if err != nil {
		return DailyTotal{}, ErrInvalidFilter.WithField("date").WithMessage(err.Error())
	}

	byType := []TypeTotal{}
	err = r.DB.WithContext(ctx).
		Table("jobs j").
		Select("jt.name as job_type_name, count(j.id) as count, coalesce(sum(j.amount), 0) as total").
		Joins("join job_types jt on jt.id = j.job_type_id").
		Where("j.worker_id = ? AND j.created_at >= ? AND j.created_at < ?", workerID, from, to).
		Group("jt.name").
		Order("jt.name asc").
		Scan(&byType).Error
	if err != nil {
		return DailyTotal{}, err
	}
	return sumTypes(date, byType), nil
}

func sumTypes(date string, byType []TypeTotal) DailyTotal {
	out := DailyTotal{Date: date, TotalAmount: decimal.Zero, ByJobType: byType}
	for _, t := range byType {
		out.JobCount += t.Count
		out.TotalAmount = out.TotalAmount.Add(t.Total)
	}
	return out
}

const DateLayout = "2006-01-02"

// Day returns the half-open window [00:00, next 00:00) of a YYYY-MM-DD date
// in loc. Using the next midnight as the bound also covers the fractional
// seconds of 23:59:59.
func Day(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return d, d.AddDate(0, 0, 1), nil
}

// Today formats the current date in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(DateLayout)
}
