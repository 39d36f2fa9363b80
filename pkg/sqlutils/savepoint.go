package sqlutils

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Savepoint is one level of nesting inside an open transaction. The handle
// knows its own depth, so releasing or rolling back only ever touches the
// level it was created for.
type Savepoint struct {
	conn  *sqlx.Conn
	depth int
	done  bool
}

// BeginSavepoint opens the savepoint nested one level below parent. A parent
// depth of 0 means the enclosing transaction itself.
func BeginSavepoint(ctx context.Context, conn *sqlx.Conn, parent int) (*Savepoint, error) {
	sp := &Savepoint{conn: conn, depth: parent + 1}

	if _, err := conn.ExecContext(ctx, "SAVEPOINT "+sp.Name()); err != nil {
		log.Println("Couldn't open savepoint!")
		return nil, err
	}

	return sp, nil
}

// Name is the SQL identifier of the savepoint
func (s *Savepoint) Name() string {
	return fmt.Sprintf("sqlar_sp_%d", s.depth)
}

// Depth is the nesting level, starting at 1
func (s *Savepoint) Depth() int {
	return s.depth
}

// Release commits this level into its parent
func (s *Savepoint) Release(ctx context.Context) error {
	if s.done {
		return errors.Errorf("savepoint %s already finished", s.Name())
	}
	s.done = true

	if _, err := s.conn.ExecContext(ctx, "RELEASE "+s.Name()); err != nil {
		log.Println("Couldn't release savepoint!")
		return err
	}

	return nil
}

// Rollback discards everything done since the savepoint was opened and
// removes it from the stack. The enclosing transaction stays open.
func (s *Savepoint) Rollback(ctx context.Context) error {
	if s.done {
		return errors.Errorf("savepoint %s already finished", s.Name())
	}
	s.done = true

	if _, err := s.conn.ExecContext(ctx, "ROLLBACK TO "+s.Name()); err != nil {
		log.Println("Couldn't roll back savepoint!")
		return err
	}

	if _, err := s.conn.ExecContext(ctx, "RELEASE "+s.Name()); err != nil {
		log.Println("Couldn't release savepoint after rollback!")
		return err
	}

	return nil
}
