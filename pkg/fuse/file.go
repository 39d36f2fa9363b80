package fuse

import (
	"io"
	"syscall"

	"bazil.org/fuse"
	log "github.com/sirupsen/logrus"
)

// Open opens a directory or a regular file. Anything but a read-only open is
// refused.
func (f *FS) Open(req *fuse.OpenRequest, resp *fuse.OpenResponse) error {
	if req.Dir {
		return f.opendir(req, resp)
	}

	if !req.Flags.IsReadOnly() || req.Flags&fuse.OpenTruncate != 0 {
		return syscall.EROFS
	}

	p, err := f.nodePath(req.Node)
	if err != nil {
		return err
	}

	md, err := f.metadata(p)
	if err != nil {
		return err
	}
	switch {
	case md.IsDir():
		return syscall.EISDIR
	case !md.IsFile():
		return syscall.EINVAL
	}

	resp.Handle = f.handles.OpenFile(&fileState{node: req.Node, path: p})
	return nil
}

// Read reads from an open file, or from a directory snapshot
func (f *FS) Read(req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if req.Dir {
		return f.readdir(req, resp)
	}

	state, err := f.handles.File(req.Handle)
	if err != nil {
		return err
	}

	if err := f.seek(state, req.Offset); err != nil {
		f.deactivate(state)
		return err
	}

	buf := make([]byte, req.Size)
	n, err := io.ReadFull(state.reader, buf)
	state.pos += int64(n)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		log.Printf("Couldn't read %s!", state.path)
		f.deactivate(state)
		return err
	}

	resp.Data = buf[:n]
	return nil
}

// seek makes state the active file and positions its reader at offset.
// Sequential reads continue where the last one stopped. Uncompressed
// contents seek directly; compressed ones skip forward, and start over only
// when reading backwards.
func (f *FS) seek(state *fileState, offset int64) error {
	if f.active != nil && f.active != state {
		f.active.close()
	}
	f.active = state

	if state.reader != nil && state.pos == offset {
		return nil
	}

	if state.reader == nil || (state.reader.Compressed() && offset < state.pos) {
		state.close()

		file, err := f.archive.Open(state.path)
		if err != nil {
			return err
		}
		r, err := file.Reader()
		if err != nil {
			log.Printf("Couldn't open %s for reading!", state.path)
			return err
		}
		state.reader = r
	}

	if !state.reader.Compressed() {
		if _, err := state.reader.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		state.pos = offset
		return nil
	}

	n, err := io.CopyN(io.Discard, state.reader, offset-state.pos)
	state.pos += n
	if err == io.EOF {
		return nil
	}
	return err
}

// deactivate closes the cursor of state
func (f *FS) deactivate(state *fileState) {
	state.close()
	if f.active == state {
		f.active = nil
	}
}

// Release closes a file or directory handle
func (f *FS) Release(req *fuse.ReleaseRequest) error {
	if state, err := f.handles.File(req.Handle); err == nil {
		f.deactivate(state)
	}
	if !f.handles.Close(req.Handle) {
		return syscall.EBADF
	}
	return nil
}

// Readlink returns the target of a symlink
func (f *FS) Readlink(req *fuse.ReadlinkRequest) (string, error) {
	p, err := f.nodePath(req.Node)
	if err != nil {
		return "", err
	}

	md, err := f.metadata(p)
	if err != nil {
		return "", err
	}
	if !md.IsSymlink() {
		return "", syscall.EINVAL
	}

	return md.Target, nil
}

// Statfs reports filesystem statistics. An archive has no fixed capacity, so
// only the sizes are filled in.
func (f *FS) Statfs(req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	resp.Bsize = blockSize
	resp.Frsize = blockSize
	resp.Namelen = 255
	return nil
}
