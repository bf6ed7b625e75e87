package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"gorm.io/gorm"

	"printshop/internal/apperr"
)

// Dialect is everything that differs between the supported databases. One
// is chosen at startup; repositories never branch on the backend.
type Dialect interface {
	Name() string
	Open(dsn string) gorm.Dialector
	// Translate maps a driver error to an apperr data access error.
	// It returns nil when the error is not driver specific.
	Translate(err error) error
	// Statements run after AutoMigrate (indexes the ORM cannot express).
	Statements() []string
}

func Lookup(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql", "":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("unsupported db dialect %q", name)
	}
}

// translating wraps a gorm dialector so gorm.Config.TranslateError routes
// every statement error through the dialect's classification.
type translating struct {
	gorm.Dialector
	d Dialect
}

func (t translating) Translate(err error) error {
	return classify(t.d, err)
}

func classify(d Dialect, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	if out := d.Translate(err); out != nil {
		return out
	}
	if isConnectionError(err) {
		return apperr.ErrUnavailable.Wrap(err)
	}
	// gorm's own sentinels (invalid field, missing where clause) stay as is.
	if isGormSentinel(err) {
		return err
	}
	return apperr.ErrDataAccess.Wrap(err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

var gormSentinels = []error{
	gorm.ErrInvalidTransaction,
	gorm.ErrNotImplemented,
	gorm.ErrMissingWhereClause,
	gorm.ErrUnsupportedRelation,
	gorm.ErrPrimaryKeyRequired,
	gorm.ErrModelValueRequired,
	gorm.ErrInvalidData,
	gorm.ErrUnsupportedDriver,
	gorm.ErrRegistered,
	gorm.ErrInvalidField,
	gorm.ErrEmptySlice,
	gorm.ErrDryRunModeUnsupported,
	gorm.ErrInvalidDB,
	gorm.ErrInvalidValue,
	gorm.ErrInvalidValueOfLength,
	gorm.ErrPreloadNotAllowed,
}

func isGormSentinel(err error) bool {
	for _, s := range gormSentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
