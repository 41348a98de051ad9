package converter

// errors.go: typed conversion errors. Every failure leaving this package is
// an *Error whose Kind tells the caller whether retrying can help.

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure.
type Kind string

const (
	KindUnsupportedFormat  Kind = "UnsupportedFormat"
	KindMissingDependency  Kind = "MissingDependency"
	KindEngineFailure      Kind = "EngineFailure"
	KindOutputWriteFailure Kind = "OutputWriteFailure"
	KindInvalidInput       Kind = "InvalidInput"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrUnsupportedFormat  = &Error{Kind: KindUnsupportedFormat}
	ErrMissingDependency  = &Error{Kind: KindMissingDependency}
	ErrEngineFailure      = &Error{Kind: KindEngineFailure}
	ErrOutputWriteFailure = &Error{Kind: KindOutputWriteFailure}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
)

// ErrEngineFatal is wrapped by an engine whose internal state can no longer
// be trusted. The pooled instance is dropped and rebuilt on next use.
var ErrEngineFatal = errors.New("engine is in an unrecoverable state")

// Error is the single error type returned by Converter operations.
type Error struct {
	Kind Kind
	Path string // offending source file, if any
	Msg  string
	Hint string // remediation for MissingDependency
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func newError(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, path string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Msg: fmt.Sprintf(format, args...), Err: err}
}

// withPath returns err as an *Error attributed to path. Errors that are not
// already typed become kind.
func withPath(err error, kind Kind, path string) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		cp := *ce
		if cp.Path == "" {
			cp.Path = path
		}
		return &cp
	}
	return &Error{Kind: kind, Path: path, Err: err}
}
