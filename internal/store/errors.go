package store

import (
	"context"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
)

// Kind classifies a storage failure for retry decisions.
type Kind int

const (
	// KindInternal covers programming and data errors. Not retryable.
	KindInternal Kind = iota
	// KindTransient covers lock contention and I/O hiccups. Retryable.
	KindTransient
	// KindConstraint covers unique or check violations. Not retryable.
	KindConstraint
)

// Error wraps a storage failure with its operation and retry class.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SQLite primary result codes that indicate transient contention.
const (
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteIOErr      = 10
	sqliteConstraint = 19
)

// wrapErr classifies err and tags it with the failing operation.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked, sqliteIOErr:
			return KindTransient
		case sqliteConstraint:
			return KindConstraint
		}
	}
	return KindInternal
}

// IsRetryable reports whether a flush that failed with err is worth retrying.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return false
}
