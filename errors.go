package d1

import (
	"errors"
	"fmt"
)

// Error kinds, arranged as a hierarchy via error wrapping. A transport
// failure satisfies errors.Is against ErrOperational, ErrDatabase and Err.
var (
	Err             = errors.New("d1: error")
	ErrInterface    = errors.New("d1: interface error")
	ErrDatabase     = errors.New("d1: database error")
	ErrData         = errors.New("d1: data error")
	ErrOperational  = errors.New("d1: operational error")
	ErrIntegrity    = errors.New("d1: integrity error")
	ErrInternal     = errors.New("d1: internal error")
	ErrProgramming  = errors.New("d1: programming error")
	ErrNotSupported = errors.New("d1: not supported")
)

// kindParents maps each kind to its parent in the hierarchy.
var kindParents = map[error]error{
	ErrInterface:    Err,
	ErrDatabase:     Err,
	ErrData:         ErrDatabase,
	ErrOperational:  ErrDatabase,
	ErrIntegrity:    ErrDatabase,
	ErrInternal:     ErrDatabase,
	ErrProgramming:  ErrDatabase,
	ErrNotSupported: ErrDatabase,
}

type driverError struct {
	kinds []error // most specific first
	msg   string
	cause error
}

func (e *driverError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *driverError) Unwrap() []error {
	if e.cause != nil {
		return append(e.kinds, e.cause)
	}
	return e.kinds
}

func kindChain(kind error) []error {
	chain := []error{kind}
	for {
		parent, ok := kindParents[kind]
		if !ok {
			break
		}
		chain = append(chain, parent)
		kind = parent
	}
	return chain
}

func newError(kind error, format string, args ...any) error {
	return &driverError{kinds: kindChain(kind), msg: "d1: " + fmt.Sprintf(format, args...)}
}

// wrapAs preserves the cause's diagnostic text while attaching a kind.
func wrapAs(kind error, cause error, format string, args ...any) error {
	return &driverError{
		kinds: kindChain(kind),
		msg:   "d1: " + fmt.Sprintf(format, args...),
		cause: cause,
	}
}

func interfaceError(format string, args ...any) error {
	return newError(ErrInterface, format, args...)
}

func programmingError(format string, args ...any) error {
	return newError(ErrProgramming, format, args...)
}

func notSupportedError(format string, args ...any) error {
	return newError(ErrNotSupported, format, args...)
}

func operationalError(format string, args ...any) error {
	return newError(ErrOperational, format, args...)
}

func wrapOperational(cause error, format string, args ...any) error {
	return wrapAs(ErrOperational, cause, format, args...)
}

// ensureTaxonomy re-wraps foreign errors as operational so callers above the
// cursor only ever see the driver's error surface. Errors already carrying a
// kind pass through unchanged.
func ensureTaxonomy(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, Err) {
		return err
	}
	return wrapOperational(err, "execute failed")
}

// Reusable misuse errors.
var (
	errCursorClosed = newError(ErrProgramming, "cursor is closed")
	errConnClosed   = newError(ErrInterface, "connection is closed")
)
