package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"printshop/internal/apperr"
)

func TestLookup(t *testing.T) {
	d, err := Lookup("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = Lookup("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = Lookup("oracle")
	assert.Error(t, err)
}

func TestPostgresClassification(t *testing.T) {
	pg := Postgres{}
	cases := []struct {
		code      pq.ErrorCode
		want      error
		retryable bool
	}{
		{"23505", apperr.ErrDuplicateKey, false},
		{"23503", apperr.ErrMissingReference, false},
		{"08006", apperr.ErrUnavailable, true},
		{"53300", apperr.ErrUnavailable, true},
		{"42P01", apperr.ErrDataAccess, false},
	}
	for _, tc := range cases {
		err := classify(pg, fmt.Errorf("insert: %w", &pq.Error{Code: tc.code}))
		assert.ErrorIs(t, err, tc.want, string(tc.code))
		assert.Equal(t, tc.retryable, apperr.IsRetryable(err), string(tc.code))
	}
}

func TestMySQLClassification(t *testing.T) {
	my := MySQL{}
	assert.ErrorIs(t, classify(my, &mysql.MySQLError{Number: 1062}), apperr.ErrDuplicateKey)
	assert.ErrorIs(t, classify(my, &mysql.MySQLError{Number: 1452}), apperr.ErrMissingReference)
	assert.True(t, apperr.IsRetryable(classify(my, &mysql.MySQLError{Number: 1213})))
	assert.True(t, apperr.IsRetryable(classify(my, mysql.ErrInvalidConn)))
}

func TestGenericClassification(t *testing.T) {
	pg := Postgres{}

	assert.ErrorIs(t, classify(pg, gorm.ErrRecordNotFound), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, classify(pg, context.Canceled), context.Canceled)
	assert.ErrorIs(t, classify(pg, gorm.ErrMissingWhereClause), gorm.ErrMissingWhereClause)

	assert.True(t, apperr.IsRetryable(classify(pg, driver.ErrBadConn)))
	assert.True(t, apperr.IsRetryable(classify(pg, &net.OpError{Op: "dial", Err: errors.New("refused")})))
	assert.Nil(t, classify(pg, nil))

	// already classified errors pass through untouched
	in := apperr.NotFound("job_not_found", "job not found")
	assert.Same(t, in, classify(pg, in))

	out := classify(pg, errors.New("weird"))
	assert.ErrorIs(t, out, apperr.ErrDataAccess)
}
