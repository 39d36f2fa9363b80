package sqlar

type sortKey int

const (
	sortNone sortKey = iota
	sortBySize
	sortByMtime
	sortByDepth
)

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeDescendants
	scopeChildren
)

// ListOptions describes which entries a listing returns and in what order.
// Each method returns a modified copy. Conflicting settings are not rejected
// here; ListWith reports them as InvalidArgs.
type ListOptions struct {
	sort      sortKey
	desc      bool
	dirSet    bool
	scope     scopeKind
	scopePath string
	fileType  FileType
	invalid   string
}

// NewListOptions returns options that list every entry in unspecified order
func NewListOptions() ListOptions {
	return ListOptions{}
}

func (o ListOptions) conflict(reason string) ListOptions {
	if o.invalid == "" {
		o.invalid = reason
	}
	return o
}

func (o ListOptions) sortBy(key sortKey) ListOptions {
	if o.sort != sortNone {
		return o.conflict("only one sort key can be given")
	}
	if key == sortBySize && o.fileType != 0 {
		return o.conflict("sorting by size already restricts the listing to regular files")
	}
	o.sort = key
	return o
}

// BySize sorts regular files by size and leaves out everything else
func (o ListOptions) BySize() ListOptions {
	return o.sortBy(sortBySize)
}

// ByMtime sorts by modification time
func (o ListOptions) ByMtime() ListOptions {
	return o.sortBy(sortByMtime)
}

// ByDepth sorts by the number of path segments. In ascending order every
// directory comes before all of its descendants.
func (o ListOptions) ByDepth() ListOptions {
	return o.sortBy(sortByDepth)
}

func (o ListOptions) direction(desc bool) ListOptions {
	if o.dirSet {
		return o.conflict("only one of asc and desc can be given")
	}
	o.dirSet = true
	o.desc = desc
	return o
}

// Asc sorts in ascending order, which is the default
func (o ListOptions) Asc() ListOptions {
	return o.direction(false)
}

// Desc sorts in descending order
func (o ListOptions) Desc() ListOptions {
	return o.direction(true)
}

func (o ListOptions) scoped(scope scopeKind, p string) ListOptions {
	if o.scope != scopeAll && o.scope != scope {
		return o.conflict("only one of descendants and children can be given")
	}
	o.scope = scope
	o.scopePath = p
	return o
}

// DescendantsOf limits the listing to paths below dir. "" is the archive root.
func (o ListOptions) DescendantsOf(dir string) ListOptions {
	return o.scoped(scopeDescendants, dir)
}

// ChildrenOf limits the listing to the immediate children of dir. "" is the
// archive root.
func (o ListOptions) ChildrenOf(dir string) ListOptions {
	return o.scoped(scopeChildren, dir)
}

// FileType limits the listing to one kind of entry
func (o ListOptions) FileType(t FileType) ListOptions {
	if o.sort == sortBySize {
		return o.conflict("sorting by size already restricts the listing to regular files")
	}
	if o.fileType != 0 && o.fileType != t {
		return o.conflict("only one file type can be given")
	}
	o.fileType = t
	return o
}

// ListEntry is one entry produced by a listing
type ListEntry struct {
	path     string
	metadata FileMetadata
}

// Path is the archive path of the entry
func (e ListEntry) Path() string {
	return e.path
}

// Metadata is the metadata of the entry at the time it was listed
func (e ListEntry) Metadata() FileMetadata {
	return e.metadata
}

// listPageSize is how many rows each query fetches
const listPageSize = 256

// ListEntries iterates over the result of a listing, fetching it one page at
// a time. It is only valid inside the transaction it was created in.
//
//	entries, err := archive.List()
//	for entries.Next() {
//		entry := entries.Entry()
//	}
//	err = entries.Err()
type ListEntries struct {
	store  *store
	opts   ListOptions
	page   []ListEntry
	pos    int
	offset int
	done   bool
	err    error
}

// Next advances to the next entry and reports whether there is one
func (l *ListEntries) Next() bool {
	if l.err != nil {
		return false
	}

	l.pos++
	if l.pos < len(l.page) {
		return true
	}
	if l.done {
		return false
	}

	page, err := l.store.listFiles(l.opts, listPageSize, l.offset)
	if err != nil {
		l.err = err
		return false
	}

	l.page = page
	l.pos = 0
	l.offset += len(page)
	if len(page) < listPageSize {
		l.done = true
	}

	return len(page) > 0
}

// Entry returns the current entry
func (l *ListEntries) Entry() ListEntry {
	return l.page[l.pos]
}

// Err returns the error that stopped iteration, if any
func (l *ListEntries) Err() error {
	return l.err
}

// Close stops the iteration early
func (l *ListEntries) Close() error {
	l.done = true
	l.page = nil
	return nil
}

// Collect drains the iterator
func (l *ListEntries) Collect() ([]ListEntry, error) {
	var out []ListEntry
	for l.Next() {
		out = append(out, l.Entry())
	}
	return out, l.Err()
}

func (s *store) list(opts ListOptions) (*ListEntries, error) {
	if opts.invalid != "" {
		return nil, errorf(InvalidArgs, "%s", opts.invalid)
	}

	scopePath, err := normalizeScope(opts.scopePath)
	if err != nil {
		return nil, err
	}
	opts.scopePath = scopePath

	return &ListEntries{store: s, opts: opts, pos: -1}, nil
}
