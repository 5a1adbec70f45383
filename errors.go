package ridgedb

import "fmt"

// ErrorKind classifies the failures the engine can return, so callers
// can branch on the kind of problem rather than string-matching an
// error message.
type ErrorKind int

const (
	// KindInvalidArgument covers malformed input: nil keys or values,
	// invalid column family configuration, tombstone-valued puts.
	KindInvalidArgument ErrorKind = iota
	// KindNotFound covers missing keys, expired keys, and unknown
	// column families.
	KindNotFound
	// KindConflict covers operations that collide with existing state,
	// such as creating a column family that already exists.
	KindConflict
	// KindResource covers exhaustion of some bounded resource, such as
	// a page allocation or transaction slot.
	KindResource
	// KindIO covers filesystem and OS-level failures.
	KindIO
	// KindCorruption covers data that fails to deserialize or fails a
	// structural check (bad length prefix, truncated page, bad magic).
	KindCorruption
	// KindConcurrency covers lock-ordering or racing-operation failures.
	KindConcurrency
	// KindState covers calls made against an object in the wrong
	// lifecycle state, such as reading a Cursor before Next or Prev has
	// positioned it.
	KindState
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindResource:
		return "resource"
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindConcurrency:
		return "concurrency"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is the error type returned throughout the engine. Op names the
// failing operation (e.g. "Put", "flush", "wal.Append"); Err, when set,
// wraps the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// newErr constructs an *Error, wrapping err when non-nil.
func newErr(op string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsNotFound reports whether err is (or wraps) a not-found Error.
func IsNotFound(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindNotFound
}

// IsCorruption reports whether err is (or wraps) a corruption Error.
func IsCorruption(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindCorruption
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
