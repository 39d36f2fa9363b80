// Package sqlutils holds the SQLite plumbing the archive is built on: opening
// databases, creating and verifying the sqlar table, nested savepoints and
// incremental blob I/O.
package sqlutils

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DriverName is the database/sql driver every archive is opened with
const DriverName = "sqlite3"

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

//go:embed init-sqlite3.sql
var createTableSqlar string

// OpenMode controls how the database file is opened
type OpenMode int

const (
	// ReadWriteCreate opens the file for reading and writing, creating it if missing
	ReadWriteCreate OpenMode = iota
	// ReadWrite opens an existing file for reading and writing
	ReadWrite
	// ReadOnly opens an existing file for reading
	ReadOnly
)

func (m OpenMode) dsnMode() string {
	switch m {
	case ReadWrite:
		return "rw"
	case ReadOnly:
		return "ro"
	default:
		return "rwc"
	}
}

// DSN builds the go-sqlite3 DSN for path opened with mode
func DSN(path string, mode OpenMode) string {
	if path == MemoryPath {
		return MemoryPath
	}

	return "file:" + uriEscaper.Replace(path) + "?mode=" + mode.dsnMode()
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// OpenDB opens the database at path. Every archive pins a single connection,
// so the pool is limited to one.
//
// Like database/sql, nothing touches the file until the first connection is
// requested.
func OpenDB(path string, mode OpenMode) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverName, DSN(path, mode))
	if err != nil {
		log.Println("Couldn't open DB!")
		return nil, errors.Wrapf(err, "open %s", path)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// HasSqlarTable reports whether the sqlar table exists
func HasSqlarTable(ctx context.Context, conn *sqlx.Conn) (bool, error) {
	var count int
	err := conn.GetContext(ctx, &count,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlar'")
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// CreateDBTables creates the sqlar table unless it already exists. It reports
// whether the table was created by this call.
func CreateDBTables(ctx context.Context, conn *sqlx.Conn) (bool, error) {
	exists, err := HasSqlarTable(ctx, conn)
	if err != nil {
		log.Debugln("Couldn't query sqlite_master!")
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err = conn.ExecContext(ctx, createTableSqlar); err != nil {
		log.Debugln("Couldn't write initial tables!")
		return false, err
	}

	return true, nil
}

// column mirrors one row of `PRAGMA table_info`
type column struct {
	Cid       int     `db:"cid"`
	Name      string  `db:"name"`
	Type      string  `db:"type"`
	NotNull   int     `db:"notnull"`
	DfltValue *string `db:"dflt_value"`
	Pk        int     `db:"pk"`
}

var expectedColumns = []struct {
	name, typ string
	pk        bool
}{
	{"name", "TEXT", true},
	{"mode", "INT", false},
	{"mtime", "INT", false},
	{"sz", "INT", false},
	{"data", "BLOB", false},
}

// VerifyDB checks that the sqlar table exists with the column layout of the
// reference sqlar definition.
func VerifyDB(ctx context.Context, conn *sqlx.Conn) error {
	var columns []column
	if err := conn.SelectContext(ctx, &columns, "PRAGMA table_info(sqlar)"); err != nil {
		log.Println("Couldn't read sqlar table info!")
		return err
	}

	if len(columns) == 0 {
		return errors.New("Expected to find a table named sqlar")
	}

	if len(columns) != len(expectedColumns) {
		return fmt.Errorf("Expected %d columns in sqlar, found %d", len(expectedColumns), len(columns))
	}

	for i, want := range expectedColumns {
		got := columns[i]
		if got.Name != want.name || got.Type != want.typ || (got.Pk > 0) != want.pk {
			return fmt.Errorf("Unexpected sqlar column %d: %s %s", i, got.Name, got.Type)
		}
	}

	return nil
}
