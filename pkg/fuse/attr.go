package fuse

import (
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// attrValid is how long the kernel may cache attributes and entries. The
// archive can change under the mount, so nothing is cached.
const attrValid = 0 * time.Second

// blockSize is the unit st_blocks is counted in
const blockSize = 512

// defaultPerm is used for entries that have no stored mode
func defaultPerm(t sqlar.FileType) sqlar.FileMode {
	switch t {
	case sqlar.TypeDir:
		return 0o755
	case sqlar.TypeSymlink:
		return 0o777
	default:
		return 0o644
	}
}

func direntType(t sqlar.FileType) fuse.DirentType {
	switch t {
	case sqlar.TypeDir:
		return fuse.DT_Dir
	case sqlar.TypeSymlink:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// fillAttr describes md as seen by the user making the request. Archives
// carry no ownership, so everything belongs to the caller.
func fillAttr(attr *fuse.Attr, hdr *fuse.Header, node fuse.NodeID, md sqlar.FileMetadata) {
	var size uint64
	mode := os.FileMode(0)

	switch md.Type {
	case sqlar.TypeFile:
		size = md.Size
	case sqlar.TypeDir:
		mode = os.ModeDir
	case sqlar.TypeSymlink:
		size = uint64(len(md.Target))
		mode = os.ModeSymlink
	}

	perm := defaultPerm(md.Type)
	if md.HasMode {
		perm = md.Mode
	}

	now := time.Now()
	mtime := md.Mtime
	if mtime.IsZero() {
		mtime = now
	}

	*attr = fuse.Attr{
		Valid:     attrValid,
		Inode:     uint64(node),
		Size:      size,
		Blocks:    (size + blockSize - 1) / blockSize,
		Atime:     now,
		Mtime:     mtime,
		Ctime:     now,
		Crtime:    now,
		Mode:      mode | perm.Perm(),
		Nlink:     1,
		Uid:       hdr.Uid,
		Gid:       hdr.Gid,
		BlockSize: blockSize,
	}
}

// Getattr reports the attributes of an inode
func (f *FS) Getattr(req *fuse.GetattrRequest, resp *fuse.GetattrResponse) error {
	p, err := f.nodePath(req.Node)
	if err != nil {
		return err
	}

	md, err := f.metadata(p)
	if err != nil {
		return err
	}

	fillAttr(&resp.Attr, &req.Header, req.Node, md)
	return nil
}

// Lookup resolves a name inside a directory, allocating an inode for it
func (f *FS) Lookup(req *fuse.LookupRequest, resp *fuse.LookupResponse) error {
	parent, err := f.nodePath(req.Node)
	if err != nil {
		return err
	}

	parentMd, err := f.metadata(parent)
	if err != nil {
		return err
	}
	if !parentMd.IsDir() {
		return syscall.ENOTDIR
	}

	p := childPath(parent, req.Name)
	md, err := f.metadata(p)
	if err != nil {
		return err
	}

	node := f.inodes.Insert(p)
	resp.Node = node
	resp.EntryValid = attrValid
	fillAttr(&resp.Attr, &req.Header, node, md)

	return nil
}
