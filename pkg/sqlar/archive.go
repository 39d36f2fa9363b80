// Package sqlar reads and writes SQLite archives: single-table databases in
// the sqlar format, holding regular files, directories and symlinks.
//
// Everything happens inside a transaction:
//
//	conn, err := sqlar.Open("photos.sqlar", sqlar.OpenOptions{Create: true})
//	...
//	err = conn.Exec(ctx, func(ar *sqlar.Archive) error {
//		f, err := ar.Open("notes.txt")
//		if err != nil {
//			return err
//		}
//		if err := f.CreateFile(); err != nil {
//			return err
//		}
//		return f.WriteString("hello")
//	})
package sqlar

// Archive is the view of an archive inside one transaction. It must not be
// used after the transaction ends or from more than one goroutine.
type Archive struct {
	store *store
	umask FileMode
	modes ModeAdapter
}

func newArchive(s *store) *Archive {
	return &Archive{store: s, umask: DefaultUmask, modes: PlatformModeAdapter()}
}

// Open returns a handle onto path. The path does not need to exist.
func (a *Archive) Open(path string) (*File, error) {
	return newFile(path, a.store, a.umask)
}

// Umask returns the umask new file handles start with
func (a *Archive) Umask() FileMode {
	return a.umask
}

// SetUmask changes the umask for file handles opened after the call
func (a *Archive) SetUmask(umask FileMode) {
	a.umask = umask & ModeMask
}

// SetModeAdapter replaces the adapter the tree engines use to read and write
// permission bits on the local filesystem
func (a *Archive) SetModeAdapter(m ModeAdapter) {
	a.modes = m
}

// List lists every entry in the archive in unspecified order
func (a *Archive) List() (*ListEntries, error) {
	return a.ListWith(NewListOptions())
}

// ListWith lists the entries selected by opts
func (a *Archive) ListWith(opts ListOptions) (*ListEntries, error) {
	return a.store.list(opts)
}
