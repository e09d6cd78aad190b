package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

var (
	// ErrConflict means the statement lost a race with a concurrent writer
	ErrConflict = errors.New("database: concurrent write conflict")

	// ErrUnavailable means the database could not be reached
	ErrUnavailable = errors.New("database: unavailable")
)

// Postgres SQLSTATE codes treated as write conflicts
var conflictCodes = map[pq.ErrorCode]bool{
	"23505": true, // unique_violation
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// Classify maps driver errors onto ErrConflict or ErrUnavailable, keeping the original error in
// the chain. Context cancellation and other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	// context.DeadlineExceeded satisfies net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if conflictCodes[pqErr.Code] {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		if pqErr.Code.Class() == "08" {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}
