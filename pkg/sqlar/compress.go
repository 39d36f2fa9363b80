//go:build !nodeflate

package sqlar

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// DeflateSupported reports whether this build can read and write compressed payloads
const DeflateSupported = true

type encoder interface {
	io.WriteCloser
	Flush() error
}

func newEncoder(w io.Writer, level Compression) (encoder, error) {
	return zlib.NewWriterLevel(w, int(level))
}

func newDecoder(r io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(r)
}
