package sqlutils

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func getConn(t *testing.T, path string, mode OpenMode) *sqlx.Conn {
	t.Helper()

	db, err := OpenDB(path, mode)
	if err != nil {
		t.Fatalf("Couldn't open db[%s]: %v", path, err)
	}
	t.Cleanup(func() { db.Close() })

	conn, err := db.Connx(context.Background())
	if err != nil {
		t.Fatalf("Couldn't get connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		mode OpenMode
		want string
	}{
		{MemoryPath, ReadWriteCreate, ":memory:"},
		{"/tmp/a.sqlar", ReadOnly, "file:/tmp/a.sqlar?mode=ro"},
		{"a.sqlar", ReadWrite, "file:a.sqlar?mode=rw"},
		{"what?#%.sqlar", ReadWriteCreate, "file:what%3f%23%25.sqlar?mode=rwc"},
	}

	for _, tc := range tests {
		if got := DSN(tc.path, tc.mode); got != tc.want {
			t.Errorf("DSN(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestCreateAndVerifyTables(t *testing.T) {
	ctx := context.Background()
	conn := getConn(t, MemoryPath, ReadWriteCreate)

	t.Run("verify-missing", func(t *testing.T) {
		if err := VerifyDB(ctx, conn); err == nil {
			t.Fatalf("Verification passed without a sqlar table")
		}
	})

	t.Run("create", func(t *testing.T) {
		created, err := CreateDBTables(ctx, conn)
		if err != nil {
			t.Fatalf("Couldn't create tables: %v", err)
		}
		if !created {
			t.Fatalf("Expected the table to be created")
		}
	})

	t.Run("create-again", func(t *testing.T) {
		created, err := CreateDBTables(ctx, conn)
		if err != nil {
			t.Fatalf("Couldn't create tables: %v", err)
		}
		if created {
			t.Fatalf("Table was created twice")
		}
	})

	t.Run("verify", func(t *testing.T) {
		if err := VerifyDB(ctx, conn); err != nil {
			t.Fatalf("Couldn't verify db: %v", err)
		}
	})
}

func TestVerifyRejectsForeignTable(t *testing.T) {
	ctx := context.Background()
	conn := getConn(t, MemoryPath, ReadWriteCreate)

	if _, err := conn.ExecContext(ctx, "CREATE TABLE sqlar(name TEXT, data BLOB)"); err != nil {
		t.Fatalf("Couldn't create table: %v", err)
	}

	if err := VerifyDB(ctx, conn); err == nil {
		t.Fatalf("Verification passed for a foreign sqlar table")
	}
}

func TestReadOnlyOpenOfMissingFileFails(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "missing.sqlar"), ReadOnly)
	if err != nil {
		t.Fatalf("Couldn't open db: %v", err)
	}
	defer db.Close()

	if _, err := db.Connx(context.Background()); err == nil {
		t.Fatalf("Opened a missing database read-only")
	}
}

func countRows(t *testing.T, conn *sqlx.Conn) int {
	t.Helper()

	var n int
	if err := conn.GetContext(context.Background(), &n, "SELECT count(*) FROM sqlar"); err != nil {
		t.Fatalf("Couldn't count rows: %v", err)
	}

	return n
}

func TestSavepoints(t *testing.T) {
	ctx := context.Background()
	conn := getConn(t, MemoryPath, ReadWriteCreate)

	if _, err := CreateDBTables(ctx, conn); err != nil {
		t.Fatalf("Couldn't create tables: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		t.Fatalf("Couldn't begin: %v", err)
	}

	insert := func(name string) {
		t.Helper()
		if _, err := conn.ExecContext(ctx, "INSERT INTO sqlar (name, sz) VALUES (?, 0)", name); err != nil {
			t.Fatalf("Couldn't insert %s: %v", name, err)
		}
	}

	outer, err := BeginSavepoint(ctx, conn, 0)
	if err != nil {
		t.Fatalf("Couldn't open savepoint: %v", err)
	}
	insert("kept")

	inner, err := BeginSavepoint(ctx, conn, outer.Depth())
	if err != nil {
		t.Fatalf("Couldn't open nested savepoint: %v", err)
	}
	if inner.Name() == outer.Name() {
		t.Fatalf("Nested savepoint reused name %s", inner.Name())
	}
	insert("discarded")

	if err := inner.Rollback(ctx); err != nil {
		t.Fatalf("Couldn't roll back: %v", err)
	}
	if err := inner.Release(ctx); err == nil {
		t.Fatalf("Released a finished savepoint")
	}
	if err := outer.Release(ctx); err != nil {
		t.Fatalf("Couldn't release: %v", err)
	}

	if n := countRows(t, conn); n != 1 {
		t.Fatalf("Expected 1 row after nested rollback, found %d", n)
	}
}

func TestGlobEscape(t *testing.T) {
	tests := map[string]string{
		"dir":     "dir",
		"a*b":     "a[*]b",
		"what?":   "what[?]",
		"[x]":     "[[]x]",
		"a/[*?]/": "a/[[][*][?]]/",
	}

	for in, want := range tests {
		if got := GlobEscape(in); got != want {
			t.Errorf("GlobEscape(%q) = %q, want %q", in, got, want)
		}
	}

	if got := DescendantsGlob("a*"); got != "a[*]/?*" {
		t.Errorf("DescendantsGlob = %q", got)
	}
}
