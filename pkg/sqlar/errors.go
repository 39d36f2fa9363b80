package sqlar

import (
	"fmt"
	"syscall"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrorKind classifies an Error
type ErrorKind int

const (
	// Unknown is reported by KindOf for errors that did not come from this package
	Unknown ErrorKind = iota
	// InvalidArgs means the caller passed a bad path or conflicting options
	InvalidArgs
	// AlreadyExists means the path is already in the archive or on disk
	AlreadyExists
	// NotFound means the path is not in the archive or not on disk
	NotFound
	// NoParentDirectory means the parent of the path is missing or is not a directory
	NoParentDirectory
	// NotARegularFile means the operation needs a regular file
	NotARegularFile
	// NotADirectory means the operation needs a directory
	NotADirectory
	// FilesystemLoop means a followed symlink leads back to one of its ancestors
	FilesystemLoop
	// CompressionNotSupported means the payload is compressed and this build can't inflate it
	CompressionNotSupported
	// FileTooBig means the payload exceeds the database's blob limit
	FileTooBig
	// ReadOnly means a write was attempted on a read-only database
	ReadOnly
	// CannotOpen means the database file could not be opened
	CannotOpen
	// NotADatabase means the file is not a SQLite database
	NotADatabase
	// Sqlite is any other database error; Error.Code has the extended result code
	Sqlite
	// Io is an operating system error; Error.Err has the cause
	Io
)

var kindNames = map[ErrorKind]string{
	Unknown:                 "unknown error",
	InvalidArgs:             "invalid arguments",
	AlreadyExists:           "already exists",
	NotFound:                "not found",
	NoParentDirectory:       "no parent directory",
	NotARegularFile:         "not a regular file",
	NotADirectory:           "not a directory",
	FilesystemLoop:          "filesystem loop",
	CompressionNotSupported: "compression not supported",
	FileTooBig:              "file too big",
	ReadOnly:                "read-only database",
	CannotOpen:              "cannot open database",
	NotADatabase:            "not a database",
	Sqlite:                  "sqlite error",
	Io:                      "i/o error",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type returned by everything in this package
type Error struct {
	Kind ErrorKind
	// Path is the archive or filesystem path involved, if any
	Path string
	// Reason is a human readable detail, if any
	Reason string
	// Code is the SQLite extended result code for Kind == Sqlite
	Code int
	// Err is the underlying error, if any
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Kind == Sqlite && e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil && e.Reason == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so that
// errors.Is(err, &Error{Kind: NotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, path string) error {
	return errors.WithStack(&Error{Kind: kind, Path: path})
}

func errorf(kind ErrorKind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Reason: fmt.Sprintf(format, args...)})
}

func ioError(err error, path string) error {
	if err == nil {
		return nil
	}
	if _, ok := asError(err); ok {
		return err
	}
	return errors.WithStack(&Error{Kind: Io, Path: path, Err: err})
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or Unknown if it did not come from this package
func KindOf(err error) ErrorKind {
	if e, ok := asError(err); ok {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// sqliteError translates a driver error into the matching kind. Errors that
// are not SQLite errors pass through untouched.
func sqliteError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := asError(err); ok {
		return err
	}

	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}

	var kind ErrorKind
	switch se.Code {
	case sqlite3.ErrReadonly:
		kind = ReadOnly
	case sqlite3.ErrTooBig:
		kind = FileTooBig
	case sqlite3.ErrCantOpen:
		kind = CannotOpen
	case sqlite3.ErrNotADB:
		kind = NotADatabase
	default:
		return errors.WithStack(&Error{Kind: Sqlite, Code: int(se.ExtendedCode), Reason: se.Error(), Err: se})
	}

	return errors.WithStack(&Error{Kind: kind, Err: se})
}

// isConstraintViolation reports whether err is a SQLite constraint failure
func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// Errno maps err to the errno a filesystem caller expects
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	switch KindOf(err) {
	case InvalidArgs:
		return syscall.EINVAL
	case AlreadyExists:
		return syscall.EEXIST
	case NotFound, NoParentDirectory:
		return syscall.ENOENT
	case NotARegularFile:
		return syscall.EISDIR
	case NotADirectory:
		return syscall.ENOTDIR
	case FilesystemLoop:
		return syscall.ELOOP
	case CompressionNotSupported:
		return syscall.ENOTSUP
	case FileTooBig:
		return syscall.EFBIG
	case ReadOnly:
		return syscall.EROFS
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return syscall.EIO
}

// withPath fills in the path of an *Error that has none
func withPath(err error, path string) error {
	if e, ok := asError(err); ok && e.Path == "" {
		e.Path = path
	}
	return err
}
