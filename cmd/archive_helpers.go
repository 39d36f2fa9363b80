package cmd

import (
	"context"
	"path/filepath"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

const sqlarExtension = ".sqlar"

// execArchive runs fn in one transaction on the archive at path, with the
// umask from the command line applied
func execArchive(path string, opts sqlar.OpenOptions, fn func(ar *sqlar.Archive) error) error {
	conn, err := sqlar.Open(path, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Exec(context.Background(), func(ar *sqlar.Archive) error {
		ar.SetUmask(umask)
		return fn(ar)
	})
}

// sourceName is the name a filesystem path is stored under at the top of an
// archive
func sourceName(p string) (string, error) {
	name := filepath.Base(p)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", userErrorf("the source path must have a file name: %s", p)
	}
	return name, nil
}
