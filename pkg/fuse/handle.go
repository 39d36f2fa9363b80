package fuse

import (
	"sort"
	"syscall"

	"bazil.org/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

// dirSnapshot is a directory listing taken when the directory was opened,
// already encoded as kernel dirents. ends[i] is the byte offset just past
// entry i, which is also the offset the kernel passes back to resume after it.
type dirSnapshot struct {
	data []byte
	ends []int
}

func (s *dirSnapshot) add(d fuse.Dirent) {
	s.data = fuse.AppendDirent(s.data, d)
	s.ends = append(s.ends, len(s.data))
}

// read returns the whole entries that start at offset and fit in size bytes
func (s *dirSnapshot) read(offset int64, size int) []byte {
	first := sort.Search(len(s.ends), func(i int) bool {
		return int64(s.ends[i]) > offset
	})
	if first == len(s.ends) {
		return nil
	}

	start := 0
	if first > 0 {
		start = s.ends[first-1]
	}

	end := start
	for i := first; i < len(s.ends) && s.ends[i]-start <= size; i++ {
		end = s.ends[i]
	}

	return s.data[start:end]
}

// fileState is an open regular file. reader, when set, is positioned at pos.
type fileState struct {
	node   fuse.NodeID
	path   string
	reader *sqlar.FileReader
	pos    int64
}

// close drops the cursor; the next read reopens the file
func (s *fileState) close() {
	if s.reader == nil {
		return
	}
	if err := s.reader.Close(); err != nil {
		log.Debugf("Couldn't close reader for %s: %v", s.path, err)
	}
	s.reader = nil
	s.pos = 0
}

type handleState struct {
	dir  *dirSnapshot
	file *fileState
}

// HandleTable maps open handle numbers to directory snapshots or open files
type HandleTable struct {
	ids    *IdTable[fuse.HandleID]
	states map[fuse.HandleID]handleState
}

// NewHandleTable returns an empty table
func NewHandleTable() *HandleTable {
	return &HandleTable{
		ids:    NewIdTable[fuse.HandleID](),
		states: make(map[fuse.HandleID]handleState),
	}
}

// OpenDir registers a directory snapshot
func (t *HandleTable) OpenDir(snap *dirSnapshot) fuse.HandleID {
	fh := t.ids.Next()
	t.states[fh] = handleState{dir: snap}
	return fh
}

// OpenFile registers an open file
func (t *HandleTable) OpenFile(state *fileState) fuse.HandleID {
	fh := t.ids.Next()
	t.states[fh] = handleState{file: state}
	return fh
}

// Dir returns the snapshot behind fh
func (t *HandleTable) Dir(fh fuse.HandleID) (*dirSnapshot, error) {
	state, ok := t.states[fh]
	switch {
	case !ok:
		return nil, syscall.EBADF
	case state.dir == nil:
		return nil, syscall.ENOTDIR
	}
	return state.dir, nil
}

// File returns the open file behind fh
func (t *HandleTable) File(fh fuse.HandleID) (*fileState, error) {
	state, ok := t.states[fh]
	switch {
	case !ok:
		return nil, syscall.EBADF
	case state.file == nil:
		return nil, syscall.EISDIR
	}
	return state.file, nil
}

// Close forgets fh and frees its number for reuse
func (t *HandleTable) Close(fh fuse.HandleID) bool {
	if _, ok := t.states[fh]; !ok {
		return false
	}
	delete(t.states, fh)
	return t.ids.Recycle(fh)
}
