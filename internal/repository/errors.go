// Package repository holds the MySQL data access layer and the sentinel
// errors shared by every store implementation.  Handlers and the booking
// engine translate these values into their own failure modes.
package repository

import (
    "errors"

    "github.com/go-sql-driver/mysql"
)

// ErrConflict is returned when a delete cannot proceed because dependent
// records exist, such as a show that already has bookings.
var ErrConflict = errors.New("conflict")

// ErrShowNotFound indicates that a show was not located.
var ErrShowNotFound = errors.New("show not found")

// ErrEventNotFound indicates that a catalog event was not located.
var ErrEventNotFound = errors.New("event not found")

// ErrLockTimeout is returned when the row lock on a show could not be taken
// in time or the transaction was picked as a deadlock victim.  The whole unit
// of work has been rolled back and may be retried.
var ErrLockTimeout = errors.New("lock wait timeout")

// MySQL server error numbers the repositories react to.
const (
    errDuplicateEntry  = 1062
    errLockWaitTimeout = 1205
    errDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        return me.Number
    }
    return 0
}

// IsLockConflict reports whether err is a lock wait timeout or deadlock.
func IsLockConflict(err error) bool {
    if errors.Is(err, ErrLockTimeout) {
        return true
    }
    n := mysqlErrNumber(err)
    return n == errLockWaitTimeout || n == errDeadlock
}

func isDuplicate(err error) bool {
    return mysqlErrNumber(err) == errDuplicateEntry
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
    Scan(dest ...any) error
}
