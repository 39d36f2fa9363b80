package fuse

import (
	"bazil.org/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// MountOptions are the optional parts of a mount
type MountOptions struct {
	// AllowOther lets users other than the one mounting read the files
	AllowOther bool
}

func (o MountOptions) fuseOptions() []fuse.MountOption {
	opts := []fuse.MountOption{
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
		fuse.FSName("sqlar"),
		fuse.Subtype("sqlarfs"),
	}
	if o.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}
	return opts
}

// Mount serves the archive directory root at mountpoint until it is unmounted
func Mount(archive *sqlar.Archive, mountpoint, root string, opts MountOptions) error {
	filesys, err := NewFS(archive, root)
	if err != nil {
		log.Println("Couldn't open the mount root!")
		return err
	}

	c, err := fuse.Mount(mountpoint, opts.fuseOptions()...)
	if err != nil {
		log.Printf("Couldn't mount at %s!", mountpoint)
		return err
	}
	defer c.Close()

	return filesys.Serve(c)
}

// Unmount detaches the filesystem at mountpoint, which makes Mount return
func Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}
