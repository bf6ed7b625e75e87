package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"printshop/internal/apperr"
)

type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Open(dsn string) gorm.Dialector {
	return gormmysql.Open(dsn)
}

func (MySQL) Translate(err error) error {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return apperr.ErrUnavailable.Wrap(err)
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil
	}
	switch me.Number {
	case 1062:
		return apperr.ErrDuplicateKey.Wrap(err)
	case 1451, 1452:
		return apperr.ErrMissingReference.Wrap(err)
	case 1040, 1053, 1205, 1213:
		return apperr.ErrUnavailable.Wrap(err)
	}
	return apperr.ErrDataAccess.Wrap(err)
}

// MySQL has no partial indexes; active pricing uniqueness is enforced by the
// write path only.
func (MySQL) Statements() []string {
	return nil
}
