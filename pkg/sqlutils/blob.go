package sqlutils

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// blobFlushSize is how many contiguous written bytes are held back before
// they are spliced into the stored value
const blobFlushSize = 1 << 20

// Blob is a random-access handle onto a single BLOB value, addressed by rowid.
// Reads and writes are ranged statements on the pinned connection. A blob
// never changes length through its handle.
type Blob struct {
	ctx      context.Context
	conn     *sqlx.Conn
	table    string
	column   string
	rowid    int64
	writable bool

	size int64
	pos  int64

	// pending holds bytes written at pendingOff that are not stored yet
	pending    []byte
	pendingOff int64
	closed     bool
}

var _ io.ReadSeekCloser = (*Blob)(nil)
var _ io.ReaderAt = (*Blob)(nil)
var _ io.WriterAt = (*Blob)(nil)

// OpenBlob opens the value of column in the row of table identified by rowid
func OpenBlob(ctx context.Context, conn *sqlx.Conn, table, column string, rowid int64, writable bool) (*Blob, error) {
	var size sql.NullInt64
	query := fmt.Sprintf("SELECT length(CAST(%s AS BLOB)) FROM %s WHERE rowid = ?", column, table)
	if err := conn.GetContext(ctx, &size, query, rowid); err != nil {
		log.Debugln("Couldn't open blob!")
		return nil, err
	}
	if !size.Valid {
		return nil, errors.Errorf("%s.%s of row %d is NULL", table, column, rowid)
	}

	return &Blob{
		ctx:      ctx,
		conn:     conn,
		table:    table,
		column:   column,
		rowid:    rowid,
		writable: writable,
		size:     size.Int64,
	}, nil
}

// Size is the length of the value in bytes
func (b *Blob) Size() int64 {
	return b.size
}

// ReadAt implements io.ReaderAt
func (b *Blob) ReadAt(p []byte, off int64) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if off < 0 {
		return 0, errors.New("negative blob offset")
	}
	if off >= b.size {
		return 0, io.EOF
	}
	if err := b.flush(); err != nil {
		return 0, err
	}

	want := int64(len(p))
	if rest := b.size - off; want > rest {
		want = rest
	}

	var chunk []byte
	query := fmt.Sprintf("SELECT substr(CAST(%s AS BLOB), ?, ?) FROM %s WHERE rowid = ?", b.column, b.table)
	if err := b.conn.GetContext(b.ctx, &chunk, query, off+1, want, b.rowid); err != nil {
		log.Debugln("Couldn't read blob!")
		return 0, err
	}

	n := copy(p, chunk)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Read implements io.Reader
func (b *Blob) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := b.ReadAt(p, b.pos)
	b.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker
func (b *Blob) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = b.size + offset
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, errors.New("negative blob offset")
	}

	b.pos = pos
	return pos, nil
}

// WriteAt writes p at offset off. Blobs never grow; writing past the end is
// an error. Contiguous writes are batched until Close.
func (b *Blob) WriteAt(p []byte, off int64) (int, error) {
	switch {
	case b.closed:
		return 0, io.ErrClosedPipe
	case !b.writable:
		return 0, errors.New("blob was opened read-only")
	case off < 0 || off+int64(len(p)) > b.size:
		return 0, errors.Errorf("write of %d bytes at %d is outside the %d byte blob", len(p), off, b.size)
	}

	if len(b.pending) > 0 && b.pendingOff+int64(len(b.pending)) != off {
		if err := b.flush(); err != nil {
			return 0, err
		}
	}
	if len(b.pending) == 0 {
		b.pendingOff = off
	}
	b.pending = append(b.pending, p...)

	if len(b.pending) >= blobFlushSize {
		if err := b.flush(); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}

// flush splices the pending bytes into the stored value
func (b *Blob) flush() error {
	if len(b.pending) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE %[2]s SET %[1]s = CAST(
            substr(CAST(%[1]s AS BLOB), 1, ?) || CAST(? AS BLOB) || substr(CAST(%[1]s AS BLOB), ?)
        AS BLOB) WHERE rowid = ?`, b.column, b.table)
	end := b.pendingOff + int64(len(b.pending))
	if _, err := b.conn.ExecContext(b.ctx, query, b.pendingOff, b.pending, end+1, b.rowid); err != nil {
		log.Debugln("Couldn't write blob!")
		return err
	}

	b.pending = b.pending[:0]
	return nil
}

// Close stores any pending writes and releases the handle
func (b *Blob) Close() error {
	if b.closed {
		return nil
	}
	err := b.flush()
	b.closed = true
	return err
}
