package sqlar

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlutils"
)

// store maps archive operations one-to-one onto statements against the sqlar
// table. It knows nothing about paths beyond equality and glob matching.
type store struct {
	ctx   context.Context
	conn  *sqlx.Conn
	depth int
	guard *blobGuard
}

// blobGuard is the single-owner token for open blob handles. Mutating the
// row under an open handle would expire it, so while a reader is checked out
// nothing may write.
type blobGuard struct {
	holder string
}

func newStore(ctx context.Context, conn *sqlx.Conn) *store {
	return &store{ctx: ctx, conn: conn, guard: &blobGuard{}}
}

func (s *store) checkout(path string) error {
	if s.guard.holder != "" {
		return errorf(InvalidArgs, "a reader for %s is still open", s.guard.holder)
	}
	s.guard.holder = path
	return nil
}

func (s *store) checkin() {
	s.guard.holder = ""
}

// writable fails while a blob handle is checked out
func (s *store) writable() error {
	if s.guard.holder != "" {
		return errorf(InvalidArgs, "a reader for %s is still open", s.guard.holder)
	}
	return nil
}

// exec runs fn inside a savepoint nested below s. The savepoint is released
// when fn succeeds and rolled back when it fails; the enclosing transaction is
// left open either way.
func (s *store) exec(fn func(*store) error) error {
	sp, err := sqlutils.BeginSavepoint(s.ctx, s.conn, s.depth)
	if err != nil {
		return sqliteError(err)
	}

	sub := &store{ctx: s.ctx, conn: s.conn, depth: sp.Depth(), guard: s.guard}
	if err := fn(sub); err != nil {
		if rbErr := sp.Rollback(s.ctx); rbErr != nil {
			log.Printf("Couldn't roll back %s: %v", sp.Name(), rbErr)
		}
		return err
	}

	return sqliteError(sp.Release(s.ctx))
}

func (s *store) createTable() (bool, error) {
	created, err := sqlutils.CreateDBTables(s.ctx, s.conn)
	return created, sqliteError(err)
}

func (s *store) hasTable() (bool, error) {
	exists, err := sqlutils.HasSqlarTable(s.ctx, s.conn)
	return exists, sqliteError(err)
}

func (s *store) execAffecting(path, query string, args ...any) error {
	if err := s.writable(); err != nil {
		return err
	}

	res, err := s.conn.ExecContext(s.ctx, query, args...)
	if err != nil {
		return sqliteError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return sqliteError(err)
	}
	if n == 0 {
		return newError(NotFound, path)
	}

	return nil
}

func (s *store) createFile(path string, kind FileType, mode FileMode, mtime time.Time, target string) error {
	if err := s.writable(); err != nil {
		return err
	}

	var query string
	args := []any{path, encodeMode(kind, mode), encodeMtime(mtime)}

	switch kind {
	case TypeDir:
		query = "INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES (?, ?, ?, 0, NULL)"
	case TypeSymlink:
		query = "INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES (?, ?, ?, -1, ?)"
		args = append(args, target)
	default:
		query = "INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES (?, ?, ?, 0, zeroblob(0))"
	}

	if _, err := s.conn.ExecContext(s.ctx, query, args...); err != nil {
		if isConstraintViolation(err) {
			log.Debugf("Couldn't create %s, it already exists!", path)
			return newError(AlreadyExists, path)
		}
		log.Println("Couldn't insert sqlar row!")
		return sqliteError(err)
	}

	return nil
}

// deleteFile removes path and every path below it
func (s *store) deleteFile(path string) error {
	return s.execAffecting(path,
		"DELETE FROM sqlar WHERE name = ? OR name GLOB ?",
		path, sqlutils.DescendantsGlob(path))
}

func (s *store) rowid(path string) (int64, error) {
	var rowid int64
	err := s.conn.GetContext(s.ctx, &rowid, "SELECT rowid FROM sqlar WHERE name = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, newError(NotFound, path)
	}
	return rowid, sqliteError(err)
}

// openBlob opens the payload of path. A read handle checks out the blob
// guard, which the caller returns through checkin once the handle is closed.
func (s *store) openBlob(path string, writable bool) (*sqlutils.Blob, error) {
	if writable {
		if err := s.writable(); err != nil {
			return nil, err
		}
	}

	rowid, err := s.rowid(path)
	if err != nil {
		return nil, err
	}

	if !writable {
		if err := s.checkout(path); err != nil {
			return nil, err
		}
	}

	blob, err := sqlutils.OpenBlob(s.ctx, s.conn, "sqlar", "data", rowid, writable)
	if err != nil {
		if !writable {
			s.checkin()
		}
		return nil, sqliteError(err)
	}

	return blob, nil
}

// allocateBlob replaces the payload of path with n zero bytes
func (s *store) allocateBlob(path string, n int64) error {
	return s.execAffecting(path, "UPDATE sqlar SET data = zeroblob(?) WHERE name = ?", n, path)
}

// storeBlob replaces the payload of path with data
func (s *store) storeBlob(path string, data []byte) error {
	if len(data) == 0 {
		return s.allocateBlob(path, 0)
	}
	return s.execAffecting(path, "UPDATE sqlar SET data = ? WHERE name = ?", data, path)
}

func (s *store) readMetadata(path string) (FileMetadata, error) {
	var row metadataRow

	err := s.conn.QueryRowxContext(s.ctx,
		`SELECT mode, mtime, sz,
            CASE WHEN sz < 0 THEN CAST(data AS TEXT) END AS target,
            data IS NULL AS is_dir
            FROM sqlar WHERE name = ?`, path,
	).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return FileMetadata{}, newError(NotFound, path)
	}
	if err != nil {
		log.Println("Couldn't query metadata!")
		return FileMetadata{}, sqliteError(err)
	}

	return row.decode(), nil
}

// setMode stores mode for path, or clears it when mode is nil. Symlink rows
// keep their mode.
func (s *store) setMode(path string, mode *FileMode) error {
	var perm any
	if mode != nil {
		perm = int64(*mode & ModeMask)
	}

	return s.execAffecting(path,
		`UPDATE sqlar SET mode = CASE
            WHEN sz < 0 THEN mode
            WHEN data IS NULL THEN ?1 | ?2
            ELSE ?1 | ?3
            END
            WHERE name = ?4`,
		perm, int64(dirMode), int64(fileMode), path)
}

func (s *store) setMtime(path string, mtime time.Time) error {
	return s.execAffecting(path, "UPDATE sqlar SET mtime = ? WHERE name = ?", encodeMtime(mtime), path)
}

func (s *store) setSize(path string, size int64) error {
	return s.execAffecting(path, "UPDATE sqlar SET sz = ? WHERE name = ?", size, path)
}

// blobSize returns the declared size and the stored payload length of path.
// The payload length is -1 for directories.
func (s *store) blobSize(path string) (declared int64, stored int64, err error) {
	var row struct {
		Size   int64  `db:"sz"`
		Length *int64 `db:"len"`
	}

	err = s.conn.QueryRowxContext(s.ctx,
		"SELECT sz, length(data) AS len FROM sqlar WHERE name = ?", path).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, newError(NotFound, path)
	}
	if err != nil {
		return 0, 0, sqliteError(err)
	}

	stored = -1
	if row.Length != nil {
		stored = *row.Length
	}

	return row.Size, stored, nil
}

// listRow is one entry of a list query
type listRow struct {
	Name string `db:"name"`
	metadataRow
}

const depthExpr = "length(name) - length(replace(name, '/', ''))"

// listFiles runs the query described by opts and returns one page of it
func (s *store) listFiles(opts ListOptions, limit, offset int) ([]ListEntry, error) {
	var where []string
	var args []any

	switch opts.scope {
	case scopeDescendants:
		if opts.scopePath != "" {
			where = append(where, "name GLOB ?")
			args = append(args, sqlutils.DescendantsGlob(opts.scopePath))
		}
	case scopeChildren:
		if opts.scopePath == "" {
			where = append(where, "name NOT GLOB '*/*'")
		} else {
			where = append(where, "name GLOB ? AND name NOT GLOB ?")
			args = append(args,
				sqlutils.DescendantsGlob(opts.scopePath),
				sqlutils.GrandchildrenGlob(opts.scopePath))
		}
	}

	kind := opts.fileType
	if opts.sort == sortBySize {
		kind = TypeFile
	}
	switch kind {
	case TypeFile:
		where = append(where, "sz >= 0 AND data IS NOT NULL")
	case TypeDir:
		where = append(where, "data IS NULL")
	case TypeSymlink:
		where = append(where, "sz < 0")
	}

	dir := "ASC"
	if opts.desc {
		dir = "DESC"
	}

	var order string
	switch opts.sort {
	case sortBySize:
		order = "sz " + dir + ", rowid"
	case sortByMtime:
		order = "mtime " + dir + ", rowid"
	case sortByDepth:
		order = depthExpr + " " + dir + ", rowid"
	default:
		order = "rowid " + dir
	}

	var b strings.Builder
	b.WriteString(`SELECT name, mode, mtime, sz,
        CASE WHEN sz < 0 THEN CAST(data AS TEXT) END AS target,
        data IS NULL AS is_dir
        FROM sqlar`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s LIMIT ? OFFSET ?", order)
	args = append(args, limit, offset)

	rows, err := s.conn.QueryxContext(s.ctx, b.String(), args...)
	if err != nil {
		log.Println("Couldn't query sqlar entries!")
		return nil, sqliteError(err)
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		var row listRow
		if err := rows.StructScan(&row); err != nil {
			log.Println("Couldn't scan sqlar entry!")
			return nil, sqliteError(err)
		}
		entries = append(entries, ListEntry{path: row.Name, metadata: row.decode()})
	}

	return entries, sqliteError(rows.Err())
}
