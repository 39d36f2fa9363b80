package sqlar

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/yoogottamk/sqlarfs/pkg/sqlutils"
)

// Problem is one inconsistency found by Verify
type Problem struct {
	Path   string
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Path, p.Reason)
}

// verifyQueries find rows that break an archive invariant. Each returns the
// offending names.
var verifyQueries = []struct {
	reason string
	query  string
}{
	{
		"path is empty, absolute or has a trailing slash",
		`SELECT name FROM sqlar
            WHERE name = '' OR name GLOB '/*' OR name GLOB '*/'`,
	},
	{
		"parent directory is missing",
		`SELECT c.name FROM sqlar c
            WHERE c.name GLOB '*/*'
            AND NOT EXISTS (
                SELECT 1 FROM sqlar p
                WHERE p.name = rtrim(rtrim(c.name, replace(c.name, '/', '')), '/')
            )`,
	},
	{
		"parent is not a directory",
		`SELECT c.name FROM sqlar c
            JOIN sqlar p ON p.name = rtrim(rtrim(c.name, replace(c.name, '/', '')), '/')
            WHERE c.name GLOB '*/*' AND p.data IS NOT NULL`,
	},
	{
		"stored payload is larger than the declared size",
		`SELECT name FROM sqlar
            WHERE sz >= 0 AND data IS NOT NULL AND length(data) > sz`,
	},
	{
		"symlink has no target",
		`SELECT name FROM sqlar WHERE sz = -1 AND data IS NULL`,
	},
	{
		"declared size is invalid",
		`SELECT name FROM sqlar WHERE sz IS NULL OR sz < -1`,
	},
}

// Verify checks the table layout and looks for rows that break the archive
// invariants. A nil error with problems means the archive is readable but
// inconsistent.
func (a *Archive) Verify() ([]Problem, error) {
	s := a.store

	if err := sqlutils.VerifyDB(s.ctx, s.conn); err != nil {
		log.Println("SQL DB Verification failed!")
		return nil, errorf(InvalidArgs, "%v", err)
	}

	var problems []Problem
	for _, vq := range verifyQueries {
		var names []string
		if err := s.conn.SelectContext(s.ctx, &names, vq.query); err != nil {
			return nil, sqliteError(err)
		}

		for _, name := range names {
			problems = append(problems, Problem{Path: name, Reason: vq.reason})
		}
	}

	return problems, nil
}
