package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pobtrack/pob-backend/internal/database"
)

// Scan and event errors. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrUnknownBadge        = errors.New("unknown badge")
	ErrMedicalDenied       = errors.New("medical clearance denied")
	ErrEventClosed         = errors.New("event is closed")
	ErrAlreadyClosed       = errors.New("event already closed")
	ErrEventNotFound       = errors.New("event not found")
	ErrInvalidLocation     = errors.New("invalid scan location")
	ErrConcurrencyConflict = errors.New("concurrent attendance update")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrCardUnavailable     = errors.New("visitor card unavailable")
	ErrRequestTimeout      = errors.New("request timed out")
	ErrValidation          = errors.New("validation failed")
)

// ScanError is a rejected scan with the message shown on the scanner screen
type ScanError struct {
	Kind    error
	Message string
}

func (e *ScanError) Error() string {
	return e.Message
}

func (e *ScanError) Unwrap() error {
	return e.Kind
}

func scanErrorf(kind error, format string, args ...interface{}) error {
	return &ScanError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// storageError lifts database classification into the service taxonomy
func storageError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrConflict):
		return fmt.Errorf("%s: %w: %v", op, ErrConcurrencyConflict, err)
	case errors.Is(err, database.ErrUnavailable):
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, ErrRequestTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
