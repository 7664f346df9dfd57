package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// FailureKind is the closed classification of transaction failures. Callers
// cannot override it per call; it is derived from the underlying error alone.
type FailureKind string

const (
	FailureConstraint FailureKind = "constraint_violation"
	FailureConnection FailureKind = "connection"
	FailureUnknown    FailureKind = "unknown"
)

// Error wraps a persistence failure with its classification. Only
// connection failures are retryable; constraint violations and anything
// unclassified fail closed.
type Error struct {
	Kind      FailureKind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transaction %s failure: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewConstraintError(err error) *Error {
	return &Error{Kind: FailureConstraint, Retryable: false, Err: err}
}

func NewConnectionError(err error) *Error {
	return &Error{Kind: FailureConnection, Retryable: true, Err: err}
}

// ExhaustedError is raised when the retry budget is spent on a failure that
// kept being retryable. It carries the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transaction retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// OptimisticLockError is the terminal outcome of a version conflict that
// survived every retry.
type OptimisticLockError struct {
	Field    string
	Attempts int
	Last     error
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("optimistic lock conflict on %s after %d attempts: %v", e.Field, e.Attempts, e.Last)
}

func (e *OptimisticLockError) Unwrap() error {
	return e.Last
}

// connectionFragments are driver error messages that indicate a transient
// connectivity problem rather than a logical failure.
var connectionFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"bad connection",
	"i/o timeout",
	"unexpected eof",
	"database is locked",
}

// Classify maps an arbitrary error from the persistence layer onto the
// closed retryable/non-retryable taxonomy. Already-classified errors pass
// through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var txErr *Error
	if errors.As(err, &txErr) {
		return txErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 23: integrity constraint violation
		if strings.HasPrefix(pgErr.Code, "23") {
			return NewConstraintError(err)
		}
		// class 08: connection exception; 40001/40P01: serialization and
		// deadlock failures worth retrying; 57P01: admin shutdown
		if strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P01" {
			return NewConnectionError(err)
		}
		return &Error{Kind: FailureUnknown, Retryable: false, Err: err}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return NewConstraintError(err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: FailureUnknown, Retryable: false, Err: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "foreign key constraint") ||
		strings.Contains(msg, "check constraint") {
		return NewConstraintError(err)
	}
	for _, fragment := range connectionFragments {
		if strings.Contains(msg, fragment) {
			return NewConnectionError(err)
		}
	}

	return &Error{Kind: FailureUnknown, Retryable: false, Err: err}
}

func IsRetryable(err error) bool {
	classified := Classify(err)
	return classified != nil && classified.Retryable
}
