// Package fserrors defines the error taxonomy shared by the storage
// substrate and the snapshot core: INVAL, NOT_FOUND, FILE_EXISTS,
// BAD_PATH, NO_DISK, and FATAL.
package fserrors

import "fmt"

// Code is one of the six error categories a client-facing operation can
// fail with. FATAL marks an unrecoverable condition: block.Open returns it
// for a superblock that fails validation, and Panic raises it as a panic.
type Code int

const (
	_ Code = iota
	Inval
	NotFound
	FileExists
	BadPath
	NoDisk
	Fatal
)

func (c Code) String() string {
	switch c {
	case Inval:
		return "INVAL"
	case NotFound:
		return "NOT_FOUND"
	case FileExists:
		return "FILE_EXISTS"
	case BadPath:
		return "BAD_PATH"
	case NoDisk:
		return "NO_DISK"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Error is a code plus the operation-specific context that produced it.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is an *Error carrying the given code, so callers
// can write fserrors.NotFound.Is(err) instead of type-asserting. It does
// not unwrap err.
func (c Code) Is(err error) bool {
	fe, ok := err.(*Error)
	return ok && fe.Code == c
}

// New builds an *Error for op with the given code and, optionally, a wrapped
// cause.
func New(op string, code Code, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Invalf/NotFoundf/... are convenience constructors used throughout the
// core, following the "fmt.Errorf wrapped in a fixed sentinel"
// idiom in fuseutil/errors.go.
func Invalf(op, format string, args ...any) *Error {
	return New(op, Inval, fmt.Errorf(format, args...))
}

func NotFoundf(op, format string, args ...any) *Error {
	return New(op, NotFound, fmt.Errorf(format, args...))
}

func FileExistsf(op, format string, args ...any) *Error {
	return New(op, FileExists, fmt.Errorf(format, args...))
}

func BadPathf(op, format string, args ...any) *Error {
	return New(op, BadPath, fmt.Errorf(format, args...))
}

func NoDiskf(op, format string, args ...any) *Error {
	return New(op, NoDisk, fmt.Errorf(format, args...))
}

// Panic raises a FATAL error as a panic instead of returning it to a
// client. Its only caller is the block store, on an attempt to free block
// 0; a superblock that fails validation is returned as a FATAL error by
// block.Open instead.
func Panic(op, format string, args ...any) {
	panic(New(op, Fatal, fmt.Errorf(format, args...)))
}
