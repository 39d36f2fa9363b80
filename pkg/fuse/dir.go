package fuse

import (
	"path"
	"syscall"

	"bazil.org/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// opendir snapshots the children of a directory into a new handle
func (f *FS) opendir(req *fuse.OpenRequest, resp *fuse.OpenResponse) error {
	p, err := f.nodePath(req.Node)
	if err != nil {
		return err
	}

	md, err := f.metadata(p)
	if err != nil {
		return err
	}
	if !md.IsDir() {
		return syscall.ENOTDIR
	}

	entries, err := f.archive.ListWith(sqlar.NewListOptions().ChildrenOf(p))
	if err != nil {
		log.Println("Couldn't list directory!")
		return err
	}

	snap := &dirSnapshot{}
	for entries.Next() {
		entry := entries.Entry()
		snap.add(fuse.Dirent{
			Inode: uint64(f.inodes.Insert(entry.Path())),
			Type:  direntType(entry.Metadata().Type),
			Name:  path.Base(entry.Path()),
		})
	}
	if err := entries.Err(); err != nil {
		log.Println("Couldn't read directory entries!")
		return err
	}

	resp.Handle = f.handles.OpenDir(snap)
	return nil
}

// readdir replays a snapshot from the offset the kernel asks for
func (f *FS) readdir(req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	snap, err := f.handles.Dir(req.Handle)
	if err != nil {
		return err
	}

	resp.Data = snap.read(req.Offset, req.Size)
	return nil
}
