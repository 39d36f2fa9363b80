// Package fuse projects an archive as a read-only FUSE filesystem. Requests
// are read off a bazil.org/fuse connection one at a time and answered from a
// single archive, so handlers never run concurrently.
package fuse

import (
	"path"
	"syscall"

	"bazil.org/fuse"
	"github.com/pkg/errors"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// FS answers kernel requests for one mounted archive
type FS struct {
	archive *sqlar.Archive
	inodes  *InodeTable
	handles *HandleTable

	// active is the one open file holding a reader. The archive hands out a
	// single reader at a time, so switching files closes the previous cursor.
	active *fileState
}

// NewFS returns a filesystem rooted at the archive directory root. An empty
// root is the root of the archive.
func NewFS(archive *sqlar.Archive, root string) (*FS, error) {
	if root != "" {
		f, err := archive.Open(root)
		if err != nil {
			return nil, err
		}

		md, err := f.Metadata()
		if err != nil {
			return nil, err
		}
		if !md.IsDir() {
			return nil, errors.WithStack(&sqlar.Error{Kind: sqlar.NotADirectory, Path: root})
		}

		root = f.Path()
	}

	return &FS{
		archive: archive,
		inodes:  NewInodeTable(root),
		handles: NewHandleTable(),
	}, nil
}

// nodePath resolves an inode from a request
func (f *FS) nodePath(node fuse.NodeID) (string, error) {
	p, ok := f.inodes.Path(node)
	if !ok {
		return "", syscall.ENOENT
	}
	return p, nil
}

// metadata looks up p, treating "" as the archive root
func (f *FS) metadata(p string) (sqlar.FileMetadata, error) {
	if p == "" {
		return sqlar.FileMetadata{Type: sqlar.TypeDir}, nil
	}

	file, err := f.archive.Open(p)
	if err != nil {
		return sqlar.FileMetadata{}, err
	}
	return file.Metadata()
}

func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
