package cmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// UserError is a failure caused by how the command was invoked rather than
// by a bug or a broken environment. Only its message is shown.
type UserError struct {
	msg string
}

func (e *UserError) Error() string {
	return e.msg
}

func userErrorf(format string, args ...any) error {
	return &UserError{msg: fmt.Sprintf(format, args...)}
}

// isUserError reports whether err should be shown without diagnostics
func isUserError(err error) bool {
	var ue *UserError
	if errors.As(err, &ue) {
		return true
	}

	switch sqlar.KindOf(err) {
	case sqlar.Unknown, sqlar.Sqlite, sqlar.Io:
		return false
	}
	return true
}

func reportError(w io.Writer, err error) {
	if isUserError(err) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: %+v\n", err)
}
