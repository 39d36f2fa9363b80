package sqlar

import (
	"context"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlutils"
)

// OpenOptions controls how an archive database is opened
type OpenOptions struct {
	// Create creates the database file and the sqlar table when missing
	Create bool
	// CreateNew is like Create, but fails if the sqlar table already exists
	CreateNew bool
	// ReadOnly opens the database without write access
	ReadOnly bool
}

// TransactionBehavior is the locking mode a transaction begins with
type TransactionBehavior int

const (
	Deferred TransactionBehavior = iota
	Immediate
	Exclusive
)

func (b TransactionBehavior) beginStmt() string {
	switch b {
	case Immediate:
		return "BEGIN IMMEDIATE"
	case Exclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return "BEGIN DEFERRED"
	}
}

// Connection is an open archive database. It owns one database connection;
// at most one transaction can be open on it at a time.
type Connection struct {
	db   *sqlx.DB
	conn *sqlx.Conn
}

// Open opens the archive at path
func Open(path string, opts OpenOptions) (*Connection, error) {
	mode := sqlutils.ReadWrite
	switch {
	case opts.ReadOnly:
		mode = sqlutils.ReadOnly
	case opts.Create || opts.CreateNew:
		mode = sqlutils.ReadWriteCreate
	}

	c, err := connect(path, mode)
	if err != nil {
		return nil, err
	}

	if err := c.init(opts); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// OpenReadOnly opens an existing archive without write access
func OpenReadOnly(path string) (*Connection, error) {
	return Open(path, OpenOptions{ReadOnly: true})
}

// OpenInMemory creates an empty archive that lives only as long as the connection
func OpenInMemory() (*Connection, error) {
	return Open(sqlutils.MemoryPath, OpenOptions{Create: true})
}

func connect(path string, mode sqlutils.OpenMode) (*Connection, error) {
	db, err := sqlutils.OpenDB(path, mode)
	if err != nil {
		return nil, ioError(err, path)
	}

	conn, err := db.Connx(context.Background())
	if err != nil {
		db.Close()
		log.Debugf("Couldn't connect to %s!", path)
		return nil, withPath(sqliteError(err), path)
	}

	return &Connection{db: db, conn: conn}, nil
}

// init creates the sqlar table when asked to. Any statement also forces
// SQLite to read the header, which is where non-database files are caught.
func (c *Connection) init(opts OpenOptions) error {
	ctx := context.Background()
	s := newStore(ctx, c.conn)

	exists, err := s.hasTable()
	if err != nil {
		return err
	}

	if exists && opts.CreateNew {
		return errorf(AlreadyExists, "the sqlar table already exists")
	}

	if !exists && (opts.Create || opts.CreateNew) {
		if _, err := s.createTable(); err != nil {
			log.Debugln("Couldn't create the sqlar table!")
			return err
		}
	}

	return nil
}

// Close closes the connection. Any transaction still open is rolled back.
func (c *Connection) Close() error {
	err := c.conn.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// Begin starts a deferred transaction
func (c *Connection) Begin(ctx context.Context) (*Transaction, error) {
	return c.BeginWith(ctx, Deferred)
}

// BeginWith starts a transaction with the given locking behavior
func (c *Connection) BeginWith(ctx context.Context, behavior TransactionBehavior) (*Transaction, error) {
	if _, err := c.conn.ExecContext(ctx, behavior.beginStmt()); err != nil {
		log.Println("Couldn't begin transaction!")
		return nil, sqliteError(err)
	}

	tx := &Transaction{ctx: ctx, conn: c.conn}
	tx.archive = newArchive(newStore(ctx, c.conn))

	return tx, nil
}

// Exec runs fn inside a deferred transaction, committing if fn succeeds and
// rolling back otherwise.
func (c *Connection) Exec(ctx context.Context, fn func(*Archive) error) error {
	return c.ExecWith(ctx, Deferred, fn)
}

// ExecWith is Exec with an explicit locking behavior
func (c *Connection) ExecWith(ctx context.Context, behavior TransactionBehavior, fn func(*Archive) error) error {
	tx, err := c.BeginWith(ctx, behavior)
	if err != nil {
		return err
	}

	if err := fn(tx.Archive()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Couldn't roll back transaction: %v", rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Transaction is an open transaction and the archive scoped to it
type Transaction struct {
	ctx     context.Context
	conn    *sqlx.Conn
	archive *Archive
	done    bool
}

// Archive returns the archive bound to this transaction. It must not be used
// after Commit or Rollback.
func (tx *Transaction) Archive() *Archive {
	return tx.archive
}

// Commit commits the transaction
func (tx *Transaction) Commit() error {
	return tx.finish("COMMIT")
}

// Rollback discards the transaction
func (tx *Transaction) Rollback() error {
	return tx.finish("ROLLBACK")
}

func (tx *Transaction) finish(stmt string) error {
	if tx.done {
		return errorf(InvalidArgs, "transaction already finished")
	}
	tx.done = true

	if _, err := tx.conn.ExecContext(tx.ctx, stmt); err != nil {
		log.Printf("Couldn't %s transaction!", stmt)
		return sqliteError(err)
	}

	return nil
}
