//go:build unix

package cmd

import (
	"golang.org/x/sys/unix"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// processUmask reads the umask of this process. The only way to read it is
// to set it, so it is put straight back.
func processUmask() sqlar.FileMode {
	old := unix.Umask(0)
	unix.Umask(old)
	return sqlar.FileMode(old) & sqlar.ModeMask
}
