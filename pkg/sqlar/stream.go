package sqlar

import (
	"io"

	"github.com/yoogottamk/sqlarfs/pkg/sqlutils"
)

// Compression selects how file payloads are written. CompressionNone stores
// them raw; any other value is a zlib level from 1 to 9.
type Compression int

const (
	CompressionNone Compression = 0
	CompressionFast Compression = 1
	CompressionBest Compression = 9
)

// DefaultCompression is what new file handles use
func DefaultCompression() Compression {
	if DeflateSupported {
		return CompressionFast
	}
	return CompressionNone
}

// copyBufSize is the chunk size the trial encoder reads in
const copyBufSize = 8 * 1024

// FileReader reads the contents of a regular file in the archive,
// decompressing them if they were stored compressed. It must be closed before
// the archive is modified again.
type FileReader struct {
	blob    *sqlutils.Blob
	decoder io.ReadCloser
	r       io.Reader
	release func()
	closed  bool
}

var _ io.ReadCloser = (*FileReader)(nil)

func newFileReader(blob *sqlutils.Blob, compressed bool, release func()) (*FileReader, error) {
	fr := &FileReader{blob: blob, r: blob, release: release}

	if compressed {
		if !DeflateSupported {
			fr.Close()
			return nil, newError(CompressionNotSupported, "")
		}

		dec, err := newDecoder(blob)
		if err != nil {
			fr.Close()
			return nil, ioError(err, "")
		}
		fr.decoder = dec
		fr.r = dec
	}

	return fr, nil
}

// Read implements io.Reader
func (fr *FileReader) Read(p []byte) (int, error) {
	if fr.closed {
		return 0, io.ErrClosedPipe
	}
	return fr.r.Read(p)
}

// Compressed reports whether the payload is decompressed while reading
func (fr *FileReader) Compressed() bool {
	return fr.decoder != nil
}

// Seek implements io.Seeker. Only payloads stored uncompressed can seek.
func (fr *FileReader) Seek(offset int64, whence int) (int64, error) {
	if fr.closed {
		return 0, io.ErrClosedPipe
	}
	if fr.decoder != nil {
		return 0, errorf(InvalidArgs, "compressed contents can't seek")
	}
	return fr.blob.Seek(offset, whence)
}

// Close releases the underlying blob handle
func (fr *FileReader) Close() error {
	if fr.closed {
		return nil
	}
	fr.closed = true

	if fr.decoder != nil {
		fr.decoder.Close()
	}
	err := fr.blob.Close()
	fr.release()

	return err
}

// countingWriter discards everything written to it and counts the bytes
type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
