package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/docuflow/backend/internal/infrastructure/database"
	apperrors "github.com/docuflow/backend/pkg/errors"
)

// txContextKey is the key for storing transaction in context
type txContextKey struct{}

// TransactionManager handles database transactions with retry logic for
// transient store failures. Composite mutations (e.g. completing a step and
// closing its instance) run through WithTransaction so they commit or roll
// back as one unit.
type TransactionManager struct {
	db *database.Connection
}

// NewTransactionManager creates a new TransactionManager
func NewTransactionManager(db *database.Connection) *TransactionManager {
	return &TransactionManager{db: db}
}

// WithTransaction executes a function within a database transaction.
// The transaction is automatically rolled back if the function returns an
// error or panics, and committed if the function returns nil.
func (tm *TransactionManager) WithTransaction(fn func(tx *sql.Tx) error) error {
	tx, err := tm.db.Begin()
	if err != nil {
		return apperrors.NewTransientStoreError("begin", err)
	}

	// Ensure rollback on panic
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w (rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewTransientStoreError("commit", err)
	}

	return nil
}

// WithRetry executes a function within a transaction with automatic retry on
// transient store failures (deadlock, lock timeout, lost connection).
// Retries use exponential backoff; other errors are returned immediately.
// After exhausting attempts the last error is surfaced as a
// TransientStoreError for the scheduler to log and re-discover next tick.
func (tm *TransactionManager) WithRetry(fn func(tx *sql.Tx) error, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := tm.WithTransaction(fn)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isTransient(err) {
			return err
		}

		if attempt < maxRetries-1 {
			backoff := time.Millisecond * time.Duration(100*(1<<uint(attempt)))
			time.Sleep(backoff)
		}
	}

	return apperrors.NewTransientStoreError(
		fmt.Sprintf("transaction after %d attempts", maxRetries), lastErr)
}

// InjectTx injects a transaction into the context
func (tm *TransactionManager) InjectTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// ExtractTx extracts a transaction from the context
func (tm *TransactionManager) ExtractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// ExecutorFor returns the transaction bound to ctx when present, otherwise
// the shared handle. Repositories use it so the same method works inside and
// outside a unit of work.
func (tm *TransactionManager) ExecutorFor(ctx context.Context) Executor {
	if tx := tm.ExtractTx(ctx); tx != nil {
		return tx
	}
	return tm.db.DB()
}

// isTransient checks if an error signals store contention or connectivity
// trouble worth retrying.
// MySQL error codes:
//   - 1213: Deadlock found when trying to get lock
//   - 1205: Lock wait timeout exceeded
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.IsTransient(err) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "deadlock") ||
		strings.Contains(errMsg, "lock wait timeout") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "invalid connection") ||
		strings.Contains(errMsg, "1213") ||
		strings.Contains(errMsg, "1205")
}
