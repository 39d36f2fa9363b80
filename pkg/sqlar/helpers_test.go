package sqlar

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stevegt/readercomp"
)

func getConnection(t *testing.T) *Connection {
	t.Helper()

	conn, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Couldn't open in-memory archive: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// withArchive runs fn inside a transaction on a fresh in-memory archive
func withArchive(t *testing.T, fn func(ar *Archive)) {
	t.Helper()

	conn := getConnection(t)
	err := conn.Exec(context.Background(), func(ar *Archive) error {
		fn(ar)
		return nil
	})
	if err != nil {
		t.Fatalf("Couldn't run transaction: %v", err)
	}
}

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected a %q error, got none", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("Expected a %q error, got %q: %v", kind, got, err)
	}
}

func mustOpen(t *testing.T, ar *Archive, path string) *File {
	t.Helper()

	f, err := ar.Open(path)
	if err != nil {
		t.Fatalf("Couldn't open %s: %v", path, err)
	}
	return f
}

func mustCreateFile(t *testing.T, ar *Archive, path string) *File {
	t.Helper()

	f := mustOpen(t, ar, path)
	if err := f.CreateFile(); err != nil {
		t.Fatalf("Couldn't create file %s: %v", path, err)
	}
	return f
}

func mustCreateDir(t *testing.T, ar *Archive, path string) *File {
	t.Helper()

	f := mustOpen(t, ar, path)
	if err := f.CreateDir(); err != nil {
		t.Fatalf("Couldn't create dir %s: %v", path, err)
	}
	return f
}

func mustExist(t *testing.T, ar *Archive, path string, want bool) {
	t.Helper()

	exists, err := mustOpen(t, ar, path).Exists()
	if err != nil {
		t.Fatalf("Couldn't check whether %s exists: %v", path, err)
	}
	if exists != want {
		t.Fatalf("Expected exists(%s) to be %v", path, want)
	}
}

func assertContents(t *testing.T, f *File, want []byte) {
	t.Helper()

	r, err := f.Reader()
	if err != nil {
		t.Fatalf("Couldn't open reader for %s: %v", f.Path(), err)
	}
	defer r.Close()

	assertReaderEquals(t, r, want)
}

func assertReaderEquals(t *testing.T, r io.Reader, want []byte) {
	t.Helper()

	ok, err := readercomp.Equal(bytes.NewReader(want), r, 4096)
	if err != nil {
		t.Fatalf("Couldn't compare contents: %v", err)
	}
	if !ok {
		t.Fatalf("Contents don't match the %d bytes written", len(want))
	}
}

func collectPaths(t *testing.T, ar *Archive, opts ListOptions) []string {
	t.Helper()

	entries, err := ar.ListWith(opts)
	if err != nil {
		t.Fatalf("Couldn't list entries: %v", err)
	}

	var paths []string
	for entries.Next() {
		paths = append(paths, entries.Entry().Path())
	}
	if err := entries.Err(); err != nil {
		t.Fatalf("Couldn't iterate entries: %v", err)
	}

	return paths
}
