package fuse

import (
	"io"

	"bazil.org/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// Serve answers requests from c until the filesystem is unmounted
func (f *FS) Serve(c *fuse.Conn) error {
	defer func() {
		if f.active != nil {
			f.deactivate(f.active)
		}
	}()

	for {
		req, err := c.ReadRequest()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			log.Println("Couldn't read FUSE request!")
			return err
		}

		log.Debugf("<- %s", req)
		f.handle(req)
	}
}

func respondError(req fuse.Request, err error) {
	errno := sqlar.Errno(err)
	log.Debugf("-> %s: %v (%v)", req, errno, err)
	req.RespondError(fuse.Errno(errno))
}

func (f *FS) handle(req fuse.Request) {
	switch r := req.(type) {
	case *fuse.GetattrRequest:
		resp := &fuse.GetattrResponse{}
		if err := f.Getattr(r, resp); err != nil {
			respondError(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.LookupRequest:
		resp := &fuse.LookupResponse{}
		if err := f.Lookup(r, resp); err != nil {
			respondError(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.OpenRequest:
		resp := &fuse.OpenResponse{}
		if err := f.Open(r, resp); err != nil {
			respondError(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.ReadRequest:
		resp := &fuse.ReadResponse{}
		if err := f.Read(r, resp); err != nil {
			respondError(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.ReleaseRequest:
		if err := f.Release(r); err != nil {
			respondError(r, err)
			return
		}
		r.Respond()

	case *fuse.ReadlinkRequest:
		target, err := f.Readlink(r)
		if err != nil {
			respondError(r, err)
			return
		}
		r.Respond(target)

	case *fuse.StatfsRequest:
		resp := &fuse.StatfsResponse{}
		if err := f.Statfs(r, resp); err != nil {
			respondError(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.FlushRequest:
		r.Respond()

	// Inodes are never recycled, so there is nothing to forget.
	case *fuse.ForgetRequest:
		r.Respond()

	case *fuse.InterruptRequest:
		r.Respond()

	case *fuse.DestroyRequest:
		r.Respond()

	default:
		log.Debugf("-> %s: not implemented", req)
		req.RespondError(fuse.ENOSYS)
	}
}
