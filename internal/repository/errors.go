// Package repository implements the MySQL persistence layer.  Driver errors
// are translated into the sentinel values from package apperrors so higher
// layers can tell a missing row from a lost race without importing the
// driver.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/puce-ride/appride/internal/apperrors"
)

// ErrEmailExists is returned by UserRepo.Create when the email is taken.
var ErrEmailExists = fmt.Errorf("email already exists: %w", apperrors.ErrConflict)

// MySQL server error numbers the repository cares about.
const (
	erDupEntry        = 1062
	erRowIsReferenced = 1451
	erNoReferencedRow = 1452
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
)

// mapMySQLError wraps err with the matching apperrors sentinel.  what names
// the entity involved and appears in the message.
func mapMySQLError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erDupEntry:
			return fmt.Errorf("%s: %w: %s", what, apperrors.ErrConflict, me.Message)
		case erRowIsReferenced:
			return fmt.Errorf("%s is still referenced: %w", what, apperrors.ErrConflict)
		case erNoReferencedRow:
			return fmt.Errorf("%s references a missing row: %w", what, apperrors.ErrValidation)
		case erLockWaitTimeout, erLockDeadlock:
			return fmt.Errorf("%s: %w: %s", what, apperrors.ErrRetryable, me.Message)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
