package transaction

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	optimisticLockBaseDelay = 50 * time.Millisecond
)

// Manager makes units of work atomic and owns the retry policy around them.
// It holds no payment-specific knowledge and no per-call state beyond the
// gorm handle it wraps.
type Manager struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewManager(db *gorm.DB, logger *slog.Logger) *Manager {
	return &Manager{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying handle for read-only queries that do not need a
// transaction boundary.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// RunAtomic executes fn inside a transaction: commit on nil, rollback on
// error. If the manager's handle is already inside an open transaction the
// existing boundary is reused instead of nesting a new one. Errors leave
// classified.
func (m *Manager) RunAtomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := m.db.WithContext(ctx)

	// already inside a transaction: reuse the caller's boundary
	if _, ok := db.Statement.ConnPool.(gorm.TxCommitter); ok {
		if err := fn(db); err != nil {
			return Classify(err)
		}
		return nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
	if err != nil {
		classified := Classify(err)
		m.logger.Error("transaction rolled back",
			"kind", classified.Kind,
			"retryable", classified.Retryable,
			"error", err)
		return classified
	}
	return nil
}

// ExecuteWithRetry invokes operation, retrying retryable failures with
// exponential backoff (baseDelay * 2^attempt). Non-retryable failures
// propagate immediately. Exhaustion returns an ExhaustedError carrying the
// last underlying error.
func (m *Manager) ExecuteWithRetry(ctx context.Context, operation func() error, maxRetries int, baseDelay time.Duration) error {
	var last *Error

	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		classified := Classify(err)
		if !classified.Retryable {
			return classified
		}
		last = classified

		if attempt >= maxRetries {
			return &ExhaustedError{Attempts: attempt + 1, Last: last}
		}

		delay := baseDelay * (1 << uint(attempt))
		m.logger.Warn("retrying operation after transient failure",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay", delay.String(),
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// OptimisticLockRetry invokes operation and retries constraint violations
// whose message references versionField, backing off linearly. Other
// failures propagate untouched. The operation must re-read the record it
// updates so a retry sees the new version.
func (m *Manager) OptimisticLockRetry(ctx context.Context, operation func() error, versionField string, maxRetries int) error {
	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		classified := Classify(err)
		if classified.Kind != FailureConstraint || !mentionsField(classified, versionField) {
			return classified
		}

		if attempt > maxRetries {
			return &OptimisticLockError{Field: versionField, Attempts: attempt, Last: classified.Err}
		}

		delay := optimisticLockBaseDelay * time.Duration(attempt)
		m.logger.Warn("retrying after version conflict",
			"field", versionField,
			"attempt", attempt,
			"delay", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func mentionsField(err *Error, field string) bool {
	return err.Err != nil && field != "" && strings.Contains(err.Err.Error(), field)
}
