package hnswlite

import (
	"errors"
	"fmt"
)

// Kind classifies the failure modes an Engine or storage backing can
// surface, independent of the human-readable message.
type Kind int

const (
	// KindInvalidArgument marks preconditions violated by the caller.
	KindInvalidArgument Kind = iota
	// KindNotFound marks a requested id absent from the index.
	KindNotFound
	// KindConflict marks an entry-point update that observed inconsistent
	// state, or (at the HTTP collaborator layer) a duplicate resource name.
	KindConflict
	// KindIOError marks a durable backing read/write failure.
	KindIOError
	// KindCancelled marks caller cancellation observed mid-operation.
	KindCancelled
	// KindCorruptionPossible marks an edge install whose rollback also
	// failed; the engine should refuse further writes until restarted.
	KindCorruptionPossible
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindIOError:
		return "io-error"
	case KindCancelled:
		return "cancelled"
	case KindCorruptionPossible:
		return "corruption-possible"
	default:
		return "unknown"
	}
}

// Sentinel values exported for callers. The Engine does not return them:
// its errors are *Error values wrapping the pkg/hnsw or pkg/store cause,
// so classify them with KindOf rather than errors.Is against these.
var (
	ErrNotFound           = errors.New("node not found")
	ErrStoreClosed        = errors.New("store is closed")
	ErrIndexEmpty         = errors.New("index is empty")
	ErrCorruptionPossible = errors.New("edge rollback failed, index refuses further writes")
)

func errDimensionMismatch(want, got int) error {
	return fmt.Errorf("vector dimension mismatch: expected %d, got %d", want, got)
}

var errNonFiniteComponent = errors.New("vector contains a non-finite component")
var errZeroNodeID = errors.New("node id must not be the zero value")

// Error wraps a failure with operation context and a Kind, so callers can
// branch on failure mode without string matching.
type Error struct {
	Op   string // operation name, e.g. "add", "topk"
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("hnswlite: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("hnswlite: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks the underlying cause against target.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// newError wraps err with operation context and a Kind. A nil err yields a
// nil *Error so callers can write `return newError(op, kind, innerErr)`
// unconditionally.
func newError(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error. Returns false for plain errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
