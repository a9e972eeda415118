// Package repository implements the seat, booking and trip store on MySQL.
// Driver failures are reported as store.ErrUnavailable so that callers can
// tell an unreachable database apart from a routine guard conflict.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/college-bus-booking/internal/store"
)

// ErrConflict is the store conflict sentinel, re-exported for handlers that
// only import this package.
var ErrConflict = store.ErrConflict

// unavailable wraps a driver error.  sql.ErrNoRows is never passed here.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", store.ErrUnavailable, op, err)
}

// rollback is deferred by every transactional method.  It is a no-op once
// the transaction was committed.
func rollback(tx *sql.Tx, committed *bool) {
	if !*committed {
		_ = tx.Rollback()
	}
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// isDuplicate reports a unique key violation (ER_DUP_ENTRY).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
