//go:build nodeflate

package sqlar

import "io"

// DeflateSupported reports whether this build can read and write compressed payloads
const DeflateSupported = false

type encoder interface {
	io.WriteCloser
	Flush() error
}

func newEncoder(w io.Writer, level Compression) (encoder, error) {
	return nil, newError(CompressionNotSupported, "")
}

func newDecoder(r io.Reader) (io.ReadCloser, error) {
	return nil, newError(CompressionNotSupported, "")
}
