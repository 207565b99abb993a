package metastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/fserrors"
)

// TxStatus is the lifecycle state of a transaction log entry.
type TxStatus string

const (
	TxActive     TxStatus = "active"
	TxCommitted  TxStatus = "committed"
	TxRolledBack TxStatus = "rolled_back"
	TxTimedOut   TxStatus = "timed_out"
)

// LogEntry is one audit record in the in-memory transaction log.
type LogEntry struct {
	ID             uint64
	Status         TxStatus
	StartTime      time.Time
	EndTime        time.Time
	OperationCount int
	RollbackReason string
	RetryCount     int
}

// TxOptions configures Begin.
type TxOptions struct {
	// Timeout arms a timer that rolls the transaction back if it is still
	// active when the timer fires. Zero disables the timer.
	Timeout time.Duration
}

// RunOptions configures Transaction.
type RunOptions struct {
	// MaxRetries is the number of re-begins allowed after transient
	// failures.
	MaxRetries int

	// RetryDelay is slept between attempts.
	RetryDelay time.Duration

	// Timeout applies to each attempt individually.
	Timeout time.Duration

	// IsRetryable classifies errors. Defaults to the transient predicate
	// (SQLITE_BUSY and friends).
	IsRetryable func(error) bool
}

type txState struct {
	entry    *LogEntry
	timer    *time.Timer
	timedOut bool
}

// Begin opens a top-level transaction at depth 0 or a numbered savepoint at
// depth >= 1.
func (s *Store) Begin(ctx context.Context, opts ...TxOptions) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.txDepth == 0 {
		if err := s.beginSQL(ctx); err != nil {
			return err
		}

		s.logMu.Lock()
		s.nextID++
		entry := &LogEntry{
			ID:        s.nextID,
			Status:    TxActive,
			StartTime: time.Now(),
		}
		s.txLog = append(s.txLog, entry)
		s.pruneLogLocked()
		s.logMu.Unlock()

		state := &txState{entry: entry}
		s.txActive = state
		s.txDepth = 1

		if len(opts) > 0 && opts[0].Timeout > 0 {
			state.timer = time.AfterFunc(opts[0].Timeout, func() {
				s.fireTimeout(state)
			})
		}
		return nil
	}

	s.txSeq++
	name := savepointName(s.txSeq)
	if err := s.db.WithContext(ctx).Exec("SAVEPOINT " + name).Error; err != nil {
		return classifySQLError(err)
	}
	s.txDepth++
	return nil
}

// Commit releases the innermost savepoint, or commits the outer transaction
// at depth 1.
func (s *Store) Commit(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.txActive != nil && s.txActive.timedOut {
		return s.consumeTimeoutLocked()
	}
	if s.txDepth == 0 {
		return fserrors.NewInvalidArgument("commit outside transaction")
	}

	if s.txDepth > 1 {
		name := savepointName(s.txSeq)
		if err := s.db.WithContext(ctx).Exec("RELEASE SAVEPOINT " + name).Error; err != nil {
			return classifySQLError(err)
		}
		s.txSeq--
		s.txDepth--
		return nil
	}

	if err := s.db.WithContext(ctx).Exec("COMMIT").Error; err != nil {
		return classifySQLError(err)
	}
	s.finishLocked(TxCommitted, "")
	return nil
}

// Rollback discards the innermost savepoint, or aborts the outer
// transaction at depth 1, recording the optional reason in the log.
func (s *Store) Rollback(ctx context.Context, reason string) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.txActive != nil && s.txActive.timedOut {
		return s.consumeTimeoutLocked()
	}
	if s.txDepth == 0 {
		return fserrors.NewInvalidArgument("rollback outside transaction")
	}

	if s.txDepth > 1 {
		name := savepointName(s.txSeq)
		err := s.db.WithContext(ctx).Exec("ROLLBACK TO SAVEPOINT " + name).Error
		if err == nil {
			err = s.db.WithContext(ctx).Exec("RELEASE SAVEPOINT " + name).Error
		}
		if err != nil {
			return classifySQLError(err)
		}
		s.txSeq--
		s.txDepth--
		return nil
	}

	if err := s.db.WithContext(ctx).Exec("ROLLBACK").Error; err != nil {
		return classifySQLError(err)
	}
	s.finishLocked(TxRolledBack, reason)
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.txDepth > 0
}

// Depth returns the current transaction nesting depth.
func (s *Store) Depth() int {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.txDepth
}

// Transaction runs fn inside a top-level transaction, re-beginning a fresh
// transaction on transient failure up to MaxRetries times. A transaction
// that was rolled back cannot be resumed across the retry boundary, only
// restarted, which is why each attempt gets its own log entry.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error, opts RunOptions) error {
	isRetryable := opts.IsRetryable
	if isRetryable == nil {
		isRetryable = IsRetryableError
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := s.Begin(ctx, TxOptions{Timeout: opts.Timeout}); err != nil {
			return err
		}
		s.stampRetryCount(attempt)

		err := fn(ctx)
		if err == nil {
			if err = s.Commit(ctx); err == nil {
				return nil
			}
		}

		if fserrors.IsTimeout(err) {
			return err
		}
		if rbErr := s.Rollback(ctx, err.Error()); fserrors.IsTimeout(rbErr) {
			return rbErr
		}

		lastErr = err
		if !isRetryable(err) || attempt == opts.MaxRetries {
			return err
		}

		logger.Debug("retrying transaction after transient failure",
			"attempt", attempt+1, "error", err)
		if opts.RetryDelay > 0 {
			select {
			case <-time.After(opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// TransactionLog returns a snapshot of the retained audit entries, oldest
// first.
func (s *Store) TransactionLog() []LogEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	out := make([]LogEntry, len(s.txLog))
	for i, e := range s.txLog {
		out[i] = *e
	}
	return out
}

// RecoverTransactions aborts any transaction left open (startup hygiene
// after a crashed coordinator). Idempotent.
func (s *Store) RecoverTransactions(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.txDepth == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Exec("ROLLBACK").Error; err != nil {
		return classifySQLError(err)
	}
	s.finishLocked(TxRolledBack, "recovered")
	logger.Warn("recovered dangling transaction")
	return nil
}

// countOperation attributes one statement to the active transaction.
func (s *Store) countOperation() {
	s.txMu.Lock()
	if s.txActive != nil {
		s.txActive.entry.OperationCount++
	}
	s.txMu.Unlock()
}

// stampRetryCount records the attempt number on the top-level entry. A
// nested Transaction runs inside someone else's attempt and must not touch
// the outer count.
func (s *Store) stampRetryCount(n int) {
	s.txMu.Lock()
	if s.txActive != nil && s.txDepth == 1 {
		s.txActive.entry.RetryCount = n
	}
	s.txMu.Unlock()
}

// finishLocked closes out the active transaction state. Caller holds txMu.
func (s *Store) finishLocked(status TxStatus, reason string) {
	state := s.txActive
	if state == nil {
		s.txDepth = 0
		s.txSeq = 0
		return
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	state.entry.Status = status
	state.entry.EndTime = time.Now()
	state.entry.RollbackReason = reason
	s.txActive = nil
	s.txDepth = 0
	s.txSeq = 0
}

// fireTimeout rolls back a transaction whose timer expired while it was
// still active.
func (s *Store) fireTimeout(state *txState) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if s.txActive != state || state.entry.Status != TxActive {
		return
	}
	if err := s.db.Exec("ROLLBACK").Error; err != nil {
		logger.Error("timeout rollback failed", "error", err)
	}
	state.timedOut = true
	s.finishLocked(TxTimedOut, "timeout")
	// Leave a tombstone so the owning call observes the timeout at its
	// next commit/rollback.
	s.txActive = state
	logger.Warn("transaction timed out", "id", state.entry.ID)
}

// consumeTimeoutLocked clears the timeout tombstone and reports the
// failure to the caller. Caller holds txMu.
func (s *Store) consumeTimeoutLocked() error {
	s.txActive = nil
	s.txDepth = 0
	s.txSeq = 0
	return fserrors.NewTimeout("transaction timed out")
}

func (s *Store) beginSQL(ctx context.Context) error {
	stmt := "BEGIN"
	if s.cfg.Type == BackendSQLite {
		stmt = "BEGIN IMMEDIATE"
	}
	if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return classifySQLError(err)
	}
	return nil
}

func (s *Store) pruneLogLocked() {
	if max := s.cfg.MaxLogEntries; max > 0 && len(s.txLog) > max {
		s.txLog = s.txLog[len(s.txLog)-max:]
	}
}

func savepointName(seq uint64) string {
	return fmt.Sprintf("sp_%d", seq)
}

// IsRetryableError is the default transient predicate: SQLITE_BUSY and the
// lock-contention messages the embedded backend surfaces.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if fserrors.IsTransient(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// classifySQLError folds backend lock contention into the transient class
// so the retry machinery can recognize it.
func classifySQLError(err error) error {
	if err == nil {
		return nil
	}
	var fe *fserrors.Error
	if errors.As(err, &fe) {
		return err
	}
	if IsRetryableError(err) {
		return fserrors.NewTransient(err)
	}
	return err
}
