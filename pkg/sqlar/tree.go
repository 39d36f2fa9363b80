package sqlar

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ArchiveOptions controls how a filesystem tree is copied into the archive.
// Start from NewArchiveOptions; each method returns a modified copy.
type ArchiveOptions struct {
	followSymlinks   bool
	children         bool
	recursive        bool
	preserveMetadata bool
}

// NewArchiveOptions returns the defaults: symlinks are copied as symlinks,
// the source itself is archived, directories are walked recursively and
// permissions and mtimes are kept.
func NewArchiveOptions() ArchiveOptions {
	return ArchiveOptions{recursive: true, preserveMetadata: true}
}

// FollowSymlinks archives what symlinks point to instead of the links
func (o ArchiveOptions) FollowSymlinks(follow bool) ArchiveOptions {
	o.followSymlinks = follow
	return o
}

// Children archives the entries of the source directory rather than the
// directory itself
func (o ArchiveOptions) Children(children bool) ArchiveOptions {
	o.children = children
	return o
}

// Recursive walks into directories
func (o ArchiveOptions) Recursive(recursive bool) ArchiveOptions {
	o.recursive = recursive
	return o
}

// PreserveMetadata copies permission bits and mtimes
func (o ArchiveOptions) PreserveMetadata(preserve bool) ArchiveOptions {
	o.preserveMetadata = preserve
	return o
}

// ExtractOptions controls how an archive tree is copied onto the filesystem.
// Start from NewExtractOptions; each method returns a modified copy.
type ExtractOptions struct {
	children  bool
	recursive bool
}

// NewExtractOptions returns the defaults: the source itself is extracted,
// along with everything below it.
func NewExtractOptions() ExtractOptions {
	return ExtractOptions{recursive: true}
}

// Children extracts the entries of the source directory rather than the
// directory itself
func (o ExtractOptions) Children(children bool) ExtractOptions {
	o.children = children
	return o
}

// Recursive extracts everything below the source instead of only its
// immediate children
func (o ExtractOptions) Recursive(recursive bool) ExtractOptions {
	o.recursive = recursive
	return o
}

// statLocal reads metadata for a filesystem path, following symlinks when
// follow is set
func statLocal(p string, follow bool) (fs.FileInfo, error) {
	var info fs.FileInfo
	var err error
	if follow {
		info, err = os.Stat(p)
	} else {
		info, err = os.Lstat(p)
	}

	switch {
	case err == nil:
		return info, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, newError(NotFound, p)
	case errors.Is(err, syscall.ELOOP):
		return nil, errors.WithStack(&Error{Kind: FilesystemLoop, Path: p, Err: err})
	}
	return nil, ioError(err, p)
}

// pendingEntry is a filesystem path waiting to be archived, together with the
// directories above it on the current branch of the walk
type pendingEntry struct {
	src       string
	dest      string
	ancestors []fs.FileInfo
}

// Archive copies the filesystem tree at src into the archive at dest with
// the default options
func (a *Archive) Archive(src, dest string) error {
	return a.ArchiveWith(src, dest, NewArchiveOptions())
}

// ArchiveWith copies the filesystem tree at src into the archive at dest
func (a *Archive) ArchiveWith(src, dest string, opts ArchiveOptions) error {
	if dest == "" && !opts.children {
		return errorf(InvalidArgs, "the destination can only be empty when archiving the children of the source")
	}

	if dest != "" {
		normalized, err := normalizePath(dest)
		if err != nil {
			return err
		}
		dest = normalized
	}

	if opts.children && dest != "" {
		md, err := a.store.readMetadata(dest)
		if err != nil {
			return err
		}
		if !md.IsDir() {
			return newError(NotADirectory, dest)
		}
	}

	info, err := statLocal(src, opts.followSymlinks)
	if err != nil {
		return err
	}

	if !opts.children {
		return a.archiveWalk([]pendingEntry{{src: src, dest: dest}}, opts)
	}

	if !info.IsDir() {
		return newError(NotADirectory, src)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return ioError(err, src)
	}

	stack := make([]pendingEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		name := entries[i].Name()
		stack = append(stack, pendingEntry{
			src:       filepath.Join(src, name),
			dest:      joinArchivePath(dest, name),
			ancestors: []fs.FileInfo{info},
		})
	}

	return a.archiveWalk(stack, opts)
}

func joinArchivePath(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

// archiveWalk drains a stack of pending entries depth first. Every entry
// carries its own ancestor list, so the walk never recurses natively.
func (a *Archive) archiveWalk(stack []pendingEntry, opts ArchiveOptions) error {
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := a.archiveEntry(entry, opts)
		if err != nil {
			return err
		}

		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	return nil
}

// archiveEntry archives one filesystem entry and returns the entries below it
// that still need to be visited
func (a *Archive) archiveEntry(entry pendingEntry, opts ArchiveOptions) ([]pendingEntry, error) {
	info, err := statLocal(entry.src, false)
	if err != nil {
		return nil, err
	}

	if info.Mode()&fs.ModeSymlink != 0 && opts.followSymlinks {
		info, err = statLocal(entry.src, true)
		if err != nil {
			return nil, err
		}

		for _, ancestor := range entry.ancestors {
			if os.SameFile(info, ancestor) {
				return nil, errors.WithStack(&Error{
					Kind:   FilesystemLoop,
					Path:   entry.src,
					Reason: "a symlink references one of its parent directories",
				})
			}
		}
	}

	f, err := newFile(entry.dest, a.store, a.umask)
	if err != nil {
		return nil, err
	}

	mode := info.Mode()
	switch {
	case mode.IsRegular():
		err = f.CreateFile()
	case mode.IsDir():
		err = f.CreateDir()
	case mode&fs.ModeSymlink != 0:
		var target string
		target, err = os.Readlink(entry.src)
		if err != nil {
			return nil, ioError(err, entry.src)
		}
		err = f.CreateSymlink(target)
	default:
		log.Debugf("Skipping special file %s", entry.src)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if opts.preserveMetadata {
		perm, err := a.modes.ReadMode(entry.src, info)
		if err != nil {
			return nil, err
		}
		if err := f.SetMode(perm); err != nil {
			return nil, err
		}
		if err := f.SetMtime(info.ModTime()); err != nil {
			return nil, err
		}
	}

	switch {
	case mode.IsRegular():
		return nil, a.archiveContents(f, entry.src)
	case mode.IsDir() && opts.recursive:
		dirents, err := os.ReadDir(entry.src)
		if err != nil {
			return nil, ioError(err, entry.src)
		}

		ancestors := make([]fs.FileInfo, len(entry.ancestors), len(entry.ancestors)+1)
		copy(ancestors, entry.ancestors)
		ancestors = append(ancestors, info)

		children := make([]pendingEntry, 0, len(dirents))
		for _, d := range dirents {
			children = append(children, pendingEntry{
				src:       filepath.Join(entry.src, d.Name()),
				dest:      path.Join(entry.dest, d.Name()),
				ancestors: ancestors,
			})
		}
		return children, nil
	}

	return nil, nil
}

func (a *Archive) archiveContents(f *File, src string) error {
	fd, err := os.Open(src)
	if err != nil {
		return ioError(err, src)
	}
	defer fd.Close()

	return f.WriteFile(fd)
}

// Extract copies the archive tree at src onto the filesystem at dest with the
// default options
func (a *Archive) Extract(src, dest string) error {
	return a.ExtractWith(src, dest, NewExtractOptions())
}

// ExtractWith copies the archive tree at src onto the filesystem at dest.
// An empty src is the archive root, which can only be extracted with
// Children set.
func (a *Archive) ExtractWith(src, dest string, opts ExtractOptions) error {
	if src == "" && !opts.children {
		return errorf(InvalidArgs, "the archive root can only be extracted with children set")
	}

	if src != "" {
		normalized, err := normalizePath(src)
		if err != nil {
			return err
		}
		src = normalized
	}

	var fixups []dirFixup

	if opts.children {
		info, err := os.Stat(dest)
		if errors.Is(err, fs.ErrNotExist) {
			return newError(NotFound, dest)
		}
		if err != nil {
			return ioError(err, dest)
		}
		if !info.IsDir() {
			return newError(NotADirectory, dest)
		}

		if src != "" {
			md, err := a.store.readMetadata(src)
			if err != nil {
				return err
			}
			if !md.IsDir() {
				return newError(NotADirectory, src)
			}
		}
	} else {
		md, err := a.store.readMetadata(src)
		if err != nil {
			return err
		}

		fixup, err := a.extractEntry(src, dest, md)
		if err != nil {
			return err
		}
		if fixup != nil {
			fixups = append(fixups, *fixup)
		}

		if !md.IsDir() {
			return nil
		}
	}

	lopts := NewListOptions().ByDepth()
	if opts.recursive {
		lopts = lopts.DescendantsOf(src)
	} else {
		lopts = lopts.ChildrenOf(src)
	}

	entries, err := a.ListWith(lopts)
	if err != nil {
		return err
	}

	for entries.Next() {
		entry := entries.Entry()

		rel := entry.Path()
		if src != "" {
			rel = strings.TrimPrefix(rel, src+"/")
		}

		fixup, err := a.extractEntry(entry.Path(), filepath.Join(dest, filepath.FromSlash(rel)), entry.Metadata())
		if err != nil {
			return err
		}
		if fixup != nil {
			fixups = append(fixups, *fixup)
		}
	}
	if err := entries.Err(); err != nil {
		return err
	}

	// Deepest first, so setting a directory's mtime isn't undone by its children.
	for i := len(fixups) - 1; i >= 0; i-- {
		if err := fixups[i].apply(a.modes); err != nil {
			return err
		}
	}

	return nil
}

// dirFixup holds the metadata of an extracted directory, applied once its
// contents are in place
type dirFixup struct {
	path string
	md   FileMetadata
}

func (d dirFixup) apply(modes ModeAdapter) error {
	if !d.md.Mtime.IsZero() {
		if err := os.Chtimes(d.path, d.md.Mtime, d.md.Mtime); err != nil {
			return ioError(err, d.path)
		}
	}
	if d.md.HasMode {
		return modes.WriteMode(d.path, d.md.Mode)
	}
	return nil
}

// createError classifies the error from creating dest on the filesystem
func createError(err error, dest string) error {
	switch {
	case errors.Is(err, fs.ErrExist):
		return errors.WithStack(&Error{Kind: AlreadyExists, Path: dest, Err: err})
	case runtime.GOOS == "windows" && errors.Is(err, fs.ErrPermission):
		// Windows reports an existing directory this way
		return errors.WithStack(&Error{Kind: AlreadyExists, Path: dest, Err: err})
	case errors.Is(err, fs.ErrNotExist):
		return errors.WithStack(&Error{Kind: NoParentDirectory, Path: dest, Err: err})
	}
	return ioError(err, dest)
}

// symlinksSupported is false where creating symlinks needs privileges the
// process can't count on
var symlinksSupported = runtime.GOOS != "windows" && runtime.GOOS != "plan9"

// extractEntry writes one archive entry to dest. Directories come back as a
// fixup instead of having their metadata applied right away.
func (a *Archive) extractEntry(src, dest string, md FileMetadata) (*dirFixup, error) {
	switch md.Type {
	case TypeFile:
		return nil, a.extractFile(src, dest, md)
	case TypeDir:
		if err := os.Mkdir(dest, 0o777); err != nil {
			return nil, createError(err, dest)
		}
		return &dirFixup{path: dest, md: md}, nil
	case TypeSymlink:
		if !symlinksSupported {
			log.Debugf("Not extracting symlink %s on %s", src, runtime.GOOS)
			return nil, nil
		}
		if err := os.Symlink(md.Target, dest); err != nil {
			return nil, createError(err, dest)
		}
	}

	return nil, nil
}

func (a *Archive) extractFile(src, dest string, md FileMetadata) error {
	fd, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return createError(err, dest)
	}
	defer fd.Close()

	f, err := newFile(src, a.store, a.umask)
	if err != nil {
		return err
	}

	r, err := f.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(fd, r); err != nil {
		return ioError(err, dest)
	}

	if err := fd.Close(); err != nil {
		return ioError(err, dest)
	}

	if !md.Mtime.IsZero() {
		if err := os.Chtimes(dest, time.Now(), md.Mtime); err != nil {
			return ioError(err, dest)
		}
	}

	if md.HasMode {
		return a.modes.WriteMode(dest, md.Mode)
	}

	return nil
}
