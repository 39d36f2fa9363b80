package sqlar

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// File is a handle onto one path in the archive. The path need not exist.
// It caches nothing, so every call sees the current state of the archive.
type File struct {
	path        string
	store       *store
	umask       FileMode
	compression Compression
}

func newFile(p string, s *store, umask FileMode) (*File, error) {
	normalized, err := normalizePath(p)
	if err != nil {
		return nil, err
	}

	return &File{
		path:        normalized,
		store:       s,
		umask:       umask,
		compression: DefaultCompression(),
	}, nil
}

// Path returns the normalized path of the file
func (f *File) Path() string {
	return f.path
}

// Umask returns the umask applied when this handle creates entries
func (f *File) Umask() FileMode {
	return f.umask
}

// SetUmask changes the umask for this handle only
func (f *File) SetUmask(umask FileMode) {
	f.umask = umask & ModeMask
}

// Compression returns the compression used by writes through this handle
func (f *File) Compression() Compression {
	return f.compression
}

// SetCompression changes the compression used by writes through this handle
func (f *File) SetCompression(c Compression) {
	f.compression = c
}

func (f *File) validateIsFile() error {
	md, err := f.store.readMetadata(f.path)
	if err != nil {
		return err
	}
	if !md.IsFile() {
		return newError(NotARegularFile, f.path)
	}
	return nil
}

func (f *File) validateCanBeCreated() error {
	parent := parentPath(f.path)
	if parent == "" {
		return nil
	}

	md, err := f.store.readMetadata(parent)
	if IsKind(err, NotFound) || (err == nil && !md.IsDir()) {
		return newError(NoParentDirectory, f.path)
	}
	return err
}

// Exists reports whether the path is in the archive
func (f *File) Exists() (bool, error) {
	_, err := f.Metadata()
	if IsKind(err, NotFound) {
		return false, nil
	}
	return err == nil, err
}

// Metadata returns the metadata of the entry
func (f *File) Metadata() (FileMetadata, error) {
	return f.store.readMetadata(f.path)
}

func (f *File) create(kind FileType, target string) error {
	if err := f.validateCanBeCreated(); err != nil {
		return err
	}

	return f.store.createFile(f.path, kind, defaultMode(kind, f.umask), time.Now(), target)
}

// CreateFile creates an empty regular file
func (f *File) CreateFile() error {
	return f.create(TypeFile, "")
}

// CreateDir creates a directory
func (f *File) CreateDir() error {
	return f.create(TypeDir, "")
}

// CreateSymlink creates a symlink pointing at target. The target is stored
// verbatim apart from trailing separators.
func (f *File) CreateSymlink(target string) error {
	if err := f.validateCanBeCreated(); err != nil {
		return err
	}

	if target == "" {
		return errorf(InvalidArgs, "the link target is empty")
	}
	if !utf8Valid(target) {
		return errorf(InvalidArgs, "the link target is not valid unicode")
	}
	if trimmed := trimSeparators(target); trimmed != "" {
		target = trimmed
	}

	return f.store.createFile(f.path, TypeSymlink, defaultMode(TypeSymlink, f.umask), time.Now(), target)
}

// CreateDirAll creates the directory and any missing parents. Directories
// that already exist are left alone, so calling it twice is fine. Every
// directory it creates gets the same mtime.
func (f *File) CreateDirAll() error {
	md, err := f.Metadata()
	switch {
	case err == nil && !md.IsDir():
		return newError(AlreadyExists, f.path)
	case err != nil && !IsKind(err, NotFound):
		return err
	}

	mode := defaultMode(TypeDir, f.umask)
	mtime := time.Now()
	dirs := ancestors(f.path)

	return f.store.exec(func(s *store) error {
		for i := len(dirs) - 1; i >= 0; i-- {
			err := s.createFile(dirs[i], TypeDir, mode, mtime, "")
			if err == nil {
				continue
			}
			if !IsKind(err, AlreadyExists) {
				return err
			}

			existing, err := s.readMetadata(dirs[i])
			if err != nil {
				return err
			}
			if !existing.IsDir() {
				return newError(NoParentDirectory, f.path)
			}
		}

		return nil
	})
}

// Delete removes the entry and, for directories, everything below it
func (f *File) Delete() error {
	return f.store.deleteFile(f.path)
}

// SetMode sets the permission bits. Symlinks keep their mode.
func (f *File) SetMode(mode FileMode) error {
	return f.store.setMode(f.path, &mode)
}

// ClearMode removes the permission bits from the entry
func (f *File) ClearMode() error {
	return f.store.setMode(f.path, nil)
}

// SetMtime sets the modification time, truncated to whole seconds. The zero
// time clears it.
func (f *File) SetMtime(mtime time.Time) error {
	return f.store.setMtime(f.path, mtime)
}

// IsEmpty reports whether the regular file has no contents
func (f *File) IsEmpty() (bool, error) {
	md, err := f.Metadata()
	if err != nil {
		return false, err
	}
	if !md.IsFile() {
		return false, newError(NotARegularFile, f.path)
	}
	return md.Size == 0, nil
}

// IsCompressed reports whether the regular file is stored compressed
func (f *File) IsCompressed() (bool, error) {
	if err := f.validateIsFile(); err != nil {
		return false, err
	}

	declared, stored, err := f.store.blobSize(f.path)
	if err != nil {
		return false, err
	}

	return stored != declared, nil
}

// Truncate removes the contents of the regular file
func (f *File) Truncate() error {
	if err := f.validateIsFile(); err != nil {
		return err
	}

	return f.store.exec(func(s *store) error {
		if err := s.allocateBlob(f.path, 0); err != nil {
			return err
		}
		return s.setSize(f.path, 0)
	})
}

// Reader opens the regular file for reading. Nothing else in the archive can
// be modified until the reader is closed.
func (f *File) Reader() (*FileReader, error) {
	if err := f.validateIsFile(); err != nil {
		return nil, err
	}

	declared, stored, err := f.store.blobSize(f.path)
	if err != nil {
		return nil, err
	}

	blob, err := f.store.openBlob(f.path, false)
	if err != nil {
		return nil, err
	}

	fr, err := newFileReader(blob, stored != declared, f.store.checkin)
	return fr, withPath(err, f.path)
}

// WriteBytes replaces the contents of the regular file with data. When
// compression is enabled the compressed form is kept only if it is smaller.
func (f *File) WriteBytes(data []byte) error {
	if err := f.validateIsFile(); err != nil {
		return err
	}

	payload := data
	if f.compression != CompressionNone {
		var buf bytes.Buffer
		enc, err := newEncoder(&buf, f.compression)
		if err != nil {
			return withPath(err, f.path)
		}
		if _, err := enc.Write(data); err != nil {
			return ioError(err, f.path)
		}
		if err := enc.Close(); err != nil {
			return ioError(err, f.path)
		}

		if buf.Len() < len(data) {
			payload = buf.Bytes()
		}
	}

	return f.store.exec(func(s *store) error {
		if err := s.storeBlob(f.path, payload); err != nil {
			return err
		}
		return s.setSize(f.path, int64(len(data)))
	})
}

// WriteString is WriteBytes for a string
func (f *File) WriteString(s string) error {
	return f.WriteBytes([]byte(s))
}

// WriteFrom replaces the contents of the regular file with everything read
// from r.
func (f *File) WriteFrom(r io.Reader) error {
	return f.writeStream(r, -1)
}

// WriteFile replaces the contents of the regular file with the contents of
// src. The length of src is taken from its metadata, so uncompressed writes
// stream straight into the database.
func (f *File) WriteFile(src *os.File) error {
	info, err := src.Stat()
	if err != nil {
		return ioError(err, src.Name())
	}

	hint := int64(-1)
	if info.Mode().IsRegular() {
		hint = info.Size()
	}

	return f.writeStream(src, hint)
}

func (f *File) writeStream(r io.Reader, sizeHint int64) error {
	if err := f.validateIsFile(); err != nil {
		return err
	}

	return f.store.exec(func(s *store) error {
		var size int64
		var err error

		switch {
		case f.compression != CompressionNone:
			size, err = f.writeTrial(s, r)
		case sizeHint >= 0:
			size, err = f.writeSized(s, r, sizeHint)
		default:
			var data []byte
			data, err = io.ReadAll(r)
			if err != nil {
				return ioError(err, f.path)
			}
			size = int64(len(data))
			err = s.storeBlob(f.path, data)
		}
		if err != nil {
			return err
		}

		return s.setSize(f.path, size)
	})
}

// writeSized allocates a blob of exactly size bytes and copies r into it
func (f *File) writeSized(s *store, r io.Reader, size int64) (int64, error) {
	if err := s.allocateBlob(f.path, size); err != nil {
		return 0, err
	}

	blob, err := s.openBlob(f.path, true)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(io.NewOffsetWriter(blob, 0), io.LimitReader(r, size))
	if err != nil {
		blob.Close()
		log.Debugf("Couldn't copy into blob for %s!", f.path)
		return 0, ioError(err, f.path)
	}
	if n != size {
		blob.Close()
		return 0, ioError(errors.Wrapf(io.ErrUnexpectedEOF, "expected %d bytes, got %d", size, n), f.path)
	}

	if err := blob.Close(); err != nil {
		log.Debugf("Couldn't store blob for %s!", f.path)
		return 0, withPath(sqliteError(err), f.path)
	}

	return n, nil
}

// writeTrial decides whether r is worth compressing. It feeds r through a
// trial encoder in chunks while keeping the raw bytes; as soon as the encoded
// output is smaller than the input consumed, the data is compressed for real.
// If that never happens the raw bytes are stored.
func (f *File) writeTrial(s *store, r io.Reader) (int64, error) {
	var raw bytes.Buffer
	var counted countingWriter

	trial, err := newEncoder(&counted, f.compression)
	if err != nil {
		return 0, withPath(err, f.path)
	}

	chunk := make([]byte, copyBufSize)
	compressible := false

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			raw.Write(chunk[:n])
			if _, err := trial.Write(chunk[:n]); err != nil {
				return 0, ioError(err, f.path)
			}
			if err := trial.Flush(); err != nil {
				return 0, ioError(err, f.path)
			}
			if counted.n < int64(raw.Len()) {
				compressible = true
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, ioError(err, f.path)
		}
	}

	if !compressible {
		return int64(raw.Len()), s.storeBlob(f.path, raw.Bytes())
	}

	var compressed bytes.Buffer
	enc, err := newEncoder(&compressed, f.compression)
	if err != nil {
		return 0, withPath(err, f.path)
	}

	size := int64(raw.Len())
	if _, err := enc.Write(raw.Bytes()); err != nil {
		return 0, ioError(err, f.path)
	}
	raw = bytes.Buffer{}

	rest, err := io.Copy(enc, r)
	if err != nil {
		return 0, ioError(err, f.path)
	}
	size += rest

	if err := enc.Close(); err != nil {
		return 0, ioError(err, f.path)
	}

	if int64(compressed.Len()) < size {
		return size, s.storeBlob(f.path, compressed.Bytes())
	}

	// The tail undid the early gain; store the data raw after all.
	dec, err := newDecoder(&compressed)
	if err != nil {
		return 0, ioError(err, f.path)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return 0, ioError(err, f.path)
	}

	return size, s.storeBlob(f.path, data)
}
