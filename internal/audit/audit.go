// Package audit records successful state-changing requests and lists them
// for administrators.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"printshop/internal/apperr"
	"printshop/internal/jobs"
)

type Log struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    *uint64   `gorm:"index" json:"user_id"`
	Action    string    `gorm:"size:100;not null;index" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:64" json:"ip_address"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Log) TableName() string { return "audit_logs" }

// View is a log row with the acting user's names.
type View struct {
	ID        uint64    `json:"id"`
	UserID    *uint64   `json:"user_id"`
	Username  *string   `json:"username"`
	UserName  *string   `json:"user_name"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

var ErrInvalidFilter = apperr.Validation("invalid_filter", "invalid audit log filter")

// Query is the raw filter as received from a request.
type Query struct {
	StartDate, EndDate string
	UserID             string
	Action             string
	Limit, Offset      string
}

type Filter struct {
	From, To time.Time
	UserID   uint64
	Action   string
	Limit    int
	Offset   int
}

func ParseQuery(q Query, loc *time.Location) (Filter, error) {
	f := Filter{Limit: DefaultLimit}
	if (q.StartDate == "") != (q.EndDate == "") {
		return Filter{}, ErrInvalidFilter.WithField("startDate").WithMessage("startDate and endDate must be given together")
	}
	if q.StartDate != "" {
		from, _, err := jobs.Day(q.StartDate, loc)
		if err != nil {
			return Filter{}, ErrInvalidFilter.WithField("startDate").WithMessage("Start date must be a valid date")
		}
		_, to, err := jobs.Day(q.EndDate, loc)
		if err != nil {
			return Filter{}, ErrInvalidFilter.WithField("endDate").WithMessage("End date must be a valid date")
		}
		f.From, f.To = from, to
	}
	if q.UserID != "" {
		n, err := strconv.ParseUint(q.UserID, 10, 64)
		if err != nil || n == 0 {
			return Filter{}, ErrInvalidFilter.WithField("userId").WithMessage("User ID must be a positive integer")
		}
		f.UserID = n
	}
	f.Action = strings.TrimSpace(q.Action)
	if q.Limit != "" {
		n, err := strconv.Atoi(q.Limit)
		if err != nil || n < 1 || n > MaxLimit {
			return Filter{}, ErrInvalidFilter.WithField("limit").WithMessage(fmt.Sprintf("Limit must be between 1 and %d", MaxLimit))
		}
		f.Limit = n
	}
	if q.Offset != "" {
		n, err := strconv.Atoi(q.Offset)
		if err != nil || n < 0 {
			return Filter{}, ErrInvalidFilter.WithField("offset").WithMessage("Offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Insert(ctx context.Context, l *Log) error {
	return r.DB.WithContext(ctx).Create(l).Error
}

func (r *Repo) List(ctx context.Context, f Filter) ([]View, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	q := r.DB.WithContext(ctx).
		Table("audit_logs al").
		Select("al.id, al.user_id, u.username, u.name as user_name, al.action, al.details, al.ip_address, al.created_at").
		Joins("left join users u on u.id = al.user_id")
	if !f.From.IsZero() {
		q = q.Where("al.created_at >= ? AND al.created_at < ?", f.From, f.To)
	}
	if f.UserID != 0 {
		q = q.Where("al.user_id = ?", f.UserID)
	}
	if f.Action != "" {
		q = q.Where("al.action = ?", f.Action)
	}
	rows := []View{}
	err := q.Order("al.created_at desc, al.id desc").Limit(f.Limit).Offset(f.Offset).Scan(&rows).Error
	return rows, err
}
