package sqlar

import (
	"io/fs"
	"os"
	"runtime"
)

// ModeAdapter reads and writes permission bits on the local filesystem
type ModeAdapter interface {
	ReadMode(path string, info fs.FileInfo) (FileMode, error)
	WriteMode(path string, mode FileMode) error
}

// UnixModeAdapter copies permission bits verbatim
type UnixModeAdapter struct{}

var _ ModeAdapter = UnixModeAdapter{}

func (UnixModeAdapter) ReadMode(path string, info fs.FileInfo) (FileMode, error) {
	return FileModeOf(info.Mode()), nil
}

func (UnixModeAdapter) WriteMode(path string, mode FileMode) error {
	return ioError(os.Chmod(path, mode.Perm()), path)
}

// WindowsModeAdapter emulates permission bits with the read-only attribute.
// A read-only file reads as r--r--r--, anything else as rw-rw-rw-;
// directories also get x bits. Writing sets the attribute iff the owner
// write bit is clear.
type WindowsModeAdapter struct{}

var _ ModeAdapter = WindowsModeAdapter{}

func (WindowsModeAdapter) ReadMode(path string, info fs.FileInfo) (FileMode, error) {
	mode := OwnerR | GroupR | OtherR
	if info.Mode().Perm()&0o200 != 0 {
		mode |= OwnerW | GroupW | OtherW
	}
	if info.IsDir() {
		mode |= OwnerX | GroupX | OtherX
	}
	return mode, nil
}

func (WindowsModeAdapter) WriteMode(path string, mode FileMode) error {
	perm := fs.FileMode(0o666)
	if mode&OwnerW == 0 {
		perm = 0o444
	}
	return ioError(os.Chmod(path, perm), path)
}

var platformModes = func() ModeAdapter {
	if runtime.GOOS == "windows" {
		return WindowsModeAdapter{}
	}
	return UnixModeAdapter{}
}()

// PlatformModeAdapter returns the adapter for the host platform
func PlatformModeAdapter() ModeAdapter {
	return platformModes
}
