// Package syncerr classifies errors that arise during synchronization into
// a small set of kinds the engine and CLI can react to programmatically,
// mirroring the graph package's sentinel + wrapper pattern.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error for retry and reporting decisions.
type Kind int

// Error kinds (spec.md §7).
const (
	// KindTransient covers network timeouts, connection resets, and other
	// conditions expected to clear on retry.
	KindTransient Kind = iota
	// KindConflict covers a concurrent, irreconcilable edit requiring a
	// conflict-sibling file or user resolution.
	KindConflict
	// KindIntegrity covers hash mismatches and corrupt data read from a
	// peer or the local block store.
	KindIntegrity
	// KindPolicy covers operations rejected by a safety gate, such as the
	// big-delete threshold.
	KindPolicy
	// KindFatal covers unrecoverable errors: misconfiguration, missing
	// folders, or invariant violations.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	case KindPolicy:
		return "policy"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is() classification, one per Kind plus the
// specific conditions callers need to distinguish.
var (
	ErrTransient     = errors.New("syncerr: transient error")
	ErrConflict      = errors.New("syncerr: conflict")
	ErrIntegrity     = errors.New("syncerr: integrity violation")
	ErrPolicyBlocked = errors.New("syncerr: blocked by safety policy")
	ErrFatal         = errors.New("syncerr: fatal error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindTransient:
		return ErrTransient
	case KindConflict:
		return ErrConflict
	case KindIntegrity:
		return ErrIntegrity
	case KindPolicy:
		return ErrPolicyBlocked
	default:
		return ErrFatal
	}
}

// Error wraps an underlying error with a Kind and the path it concerns, so
// the engine can branch on classification without string matching.
type Error struct {
	Kind Kind
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("syncerr: %s: %s (%s): %v", e.Op, e.Path, e.Kind, e.Err)
	}

	return fmt.Sprintf("syncerr: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{sentinelFor(e.Kind), e.Err}
}

// New builds an Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Op: op, Err: err}
}

// Transient builds a KindTransient Error.
func Transient(op, path string, err error) *Error { return New(KindTransient, op, path, err) }

// Conflict builds a KindConflict Error.
func Conflict(op, path string, err error) *Error { return New(KindConflict, op, path, err) }

// Integrity builds a KindIntegrity Error.
func Integrity(op, path string, err error) *Error { return New(KindIntegrity, op, path, err) }

// Policy builds a KindPolicy Error.
func Policy(op, path string, err error) *Error { return New(KindPolicy, op, path, err) }

// Fatal builds a KindFatal Error.
func Fatal(op, path string, err error) *Error { return New(KindFatal, op, path, err) }

// IsRetryable reports whether err (or anything it wraps) is a transient
// Error — the only kind the engine retries automatically.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, returning
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}

	return 0, false
}
