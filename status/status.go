// Package status defines the single status-code namespace used across the
// server core, modeled on OPC UA's own status-code convention: every
// failure kind named in the server design maps to one CodeError registered
// with the shared errors package, so any caller already using
// github.com/nabbar/golib/errors can inspect and compare codes the same
// way it does for every other golib subsystem.
package status

import (
	liberr "github.com/nabbar/golib/errors"
)

// Kinds of failure relevant to the server core. Each is registered as a
// CodeError offset from errors.MinAvailable, the block reserved upstream
// for packages outside golib itself.
const (
	ErrInvalidArgument liberr.CodeError = iota + liberr.MinAvailable
	ErrOutOfMemory
	ErrNotFound
	ErrInternal
	ErrAsyncInProgress
	ErrFatalInit
)

func init() {
	liberr.RegisterIdFctMessage(ErrInvalidArgument, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrOutOfMemory:
		return "allocation failed"
	case ErrNotFound:
		return "not found"
	case ErrInternal:
		return "internal error"
	case ErrAsyncInProgress:
		return "async operation already in progress"
	case ErrFatalInit:
		return "fatal initialization error"
	}
	return ""
}

// InvalidArgument builds a status error for a null/malformed argument, with
// no state change policy attached at this layer (callers must not mutate
// state before returning it).
func InvalidArgument(msg string, parent ...error) liberr.Error {
	return liberr.New(uint16(ErrInvalidArgument), msg, parent...)
}

// OutOfMemory builds a status error for an allocation failure while
// growing a table (namespace registry, reverse-connect list, ...).
func OutOfMemory(msg string, parent ...error) liberr.Error {
	return liberr.New(uint16(ErrOutOfMemory), msg, parent...)
}

// NotFound builds a status error for a lookup miss.
func NotFound(msg string, parent ...error) liberr.Error {
	return liberr.New(uint16(ErrNotFound), msg, parent...)
}

// Internal builds a status error for a best-effort operation that failed
// but left the server otherwise usable (e.g. no listener could be opened).
func Internal(msg string, parent ...error) liberr.Error {
	return liberr.New(uint16(ErrInternal), msg, parent...)
}

// AsyncInProgress builds a status error signalling that a reverse-connect
// attempt must be retried at the reverse-connect manager's next 1 Hz retry
// tick.
func AsyncInProgress(msg string, parent ...error) liberr.Error {
	return liberr.New(uint16(ErrAsyncInProgress), msg, parent...)
}

// FatalInit builds a status error for construction-time failures that abort
// the server before it is usable (missing node store, missing event loop).
func FatalInit(msg string, parent ...error) liberr.Error {
	return liberr.New(uint16(ErrFatalInit), msg, parent...)
}

// Is reports whether err carries the given status kind, at any level of its
// parent chain.
func Is(err error, code liberr.CodeError) bool {
	return liberr.Has(err, code)
}
