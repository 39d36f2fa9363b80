package sqlutils

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/jmoiron/sqlx"
)

// insertBlob stores data under name and returns its rowid
func insertBlob(t *testing.T, conn *sqlx.Conn, name string, data []byte) int64 {
	t.Helper()

	ctx := context.Background()
	if _, err := CreateDBTables(ctx, conn); err != nil {
		t.Fatalf("Couldn't create tables: %v", err)
	}

	res, err := conn.ExecContext(ctx, "INSERT INTO sqlar (name, sz, data) VALUES (?, ?, ?)", name, len(data), data)
	if err != nil {
		t.Fatalf("Couldn't insert %s: %v", name, err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Couldn't get rowid: %v", err)
	}
	return rowid
}

func storedBlob(t *testing.T, conn *sqlx.Conn, rowid int64) []byte {
	t.Helper()

	var data []byte
	if err := conn.GetContext(context.Background(), &data, "SELECT data FROM sqlar WHERE rowid = ?", rowid); err != nil {
		t.Fatalf("Couldn't read row %d: %v", rowid, err)
	}
	return data
}

// binaryPayload has NUL bytes and byte sequences that aren't valid UTF-8
func binaryPayload(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)
	if n > 2 {
		data[0], data[1], data[2] = 0x00, 0xff, 0xfe
	}
	return data
}

func TestBlobRead(t *testing.T) {
	ctx := context.Background()
	conn := getConn(t, MemoryPath, ReadWriteCreate)

	data := binaryPayload(100*1024 + 17)
	rowid := insertBlob(t, conn, "file", data)

	blob, err := OpenBlob(ctx, conn, "sqlar", "data", rowid, false)
	if err != nil {
		t.Fatalf("Couldn't open blob: %v", err)
	}
	defer blob.Close()

	if blob.Size() != int64(len(data)) {
		t.Fatalf("Blob size is %d, expected %d", blob.Size(), len(data))
	}

	t.Run("sequential", func(t *testing.T) {
		var got bytes.Buffer
		buf := make([]byte, 4096)
		if _, err := io.CopyBuffer(&got, struct{ io.Reader }{blob}, buf); err != nil {
			t.Fatalf("Couldn't read blob: %v", err)
		}
		if !bytes.Equal(got.Bytes(), data) {
			t.Fatalf("Read %d bytes that don't match the %d stored", got.Len(), len(data))
		}
	})

	t.Run("seek", func(t *testing.T) {
		if _, err := blob.Seek(-10, io.SeekEnd); err != nil {
			t.Fatalf("Couldn't seek: %v", err)
		}
		got, err := io.ReadAll(blob)
		if err != nil {
			t.Fatalf("Couldn't read tail: %v", err)
		}
		if !bytes.Equal(got, data[len(data)-10:]) {
			t.Fatalf("Tail doesn't match")
		}
	})

	t.Run("read-at", func(t *testing.T) {
		buf := make([]byte, 3)
		if _, err := blob.ReadAt(buf, 0); err != nil {
			t.Fatalf("Couldn't read head: %v", err)
		}
		if !bytes.Equal(buf, data[:3]) {
			t.Fatalf("Head is %x, expected %x", buf, data[:3])
		}

		buf = make([]byte, 20)
		n, err := blob.ReadAt(buf, int64(len(data)-5))
		if n != 5 || err != io.EOF {
			t.Fatalf("Short read at the end gave %d, %v", n, err)
		}
	})
}

func TestBlobWrite(t *testing.T) {
	ctx := context.Background()
	conn := getConn(t, MemoryPath, ReadWriteCreate)

	size := blobFlushSize + blobFlushSize/2
	rowid := insertBlob(t, conn, "file", make([]byte, size))

	blob, err := OpenBlob(ctx, conn, "sqlar", "data", rowid, true)
	if err != nil {
		t.Fatalf("Couldn't open blob: %v", err)
	}

	want := binaryPayload(size)
	// sequential chunks cross a flush boundary
	chunked := struct{ io.Reader }{bytes.NewReader(want[:size-100])}
	if _, err := io.CopyBuffer(io.NewOffsetWriter(blob, 0), chunked, make([]byte, 64*1024)); err != nil {
		t.Fatalf("Couldn't write blob: %v", err)
	}
	// out of order write lands in its own range
	if _, err := blob.WriteAt(want[size-50:], int64(size-50)); err != nil {
		t.Fatalf("Couldn't write tail: %v", err)
	}
	if _, err := blob.WriteAt(want[size-100:size-50], int64(size-100)); err != nil {
		t.Fatalf("Couldn't write middle: %v", err)
	}

	if _, err := blob.WriteAt([]byte("x"), int64(size)); err == nil {
		t.Fatalf("Wrote past the end of the blob")
	}

	if err := blob.Close(); err != nil {
		t.Fatalf("Couldn't close blob: %v", err)
	}

	got := storedBlob(t, conn, rowid)
	if len(got) != size {
		t.Fatalf("Blob is %d bytes after writing, expected %d", len(got), size)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Stored bytes don't match the written ones")
	}

	var kind string
	if err := conn.GetContext(ctx, &kind, "SELECT typeof(data) FROM sqlar WHERE rowid = ?", rowid); err != nil {
		t.Fatalf("Couldn't read column type: %v", err)
	}
	if kind != "blob" {
		t.Fatalf("Column holds a %s after writing", kind)
	}
}

func TestBlobErrors(t *testing.T) {
	ctx := context.Background()
	conn := getConn(t, MemoryPath, ReadWriteCreate)

	rowid := insertBlob(t, conn, "file", []byte("abc"))
	if _, err := conn.ExecContext(ctx, "INSERT INTO sqlar (name, sz, data) VALUES ('dir', 0, NULL)"); err != nil {
		t.Fatalf("Couldn't insert dir: %v", err)
	}

	if _, err := OpenBlob(ctx, conn, "sqlar", "data", rowid+1, false); err == nil {
		t.Fatalf("Opened the NULL value of a directory")
	}
	if _, err := OpenBlob(ctx, conn, "sqlar", "data", rowid+100, false); err == nil {
		t.Fatalf("Opened a missing row")
	}

	blob, err := OpenBlob(ctx, conn, "sqlar", "data", rowid, false)
	if err != nil {
		t.Fatalf("Couldn't open blob: %v", err)
	}
	if _, err := blob.WriteAt([]byte("x"), 0); err == nil {
		t.Fatalf("Wrote through a read-only blob")
	}
	blob.Close()

	if _, err := blob.Read(make([]byte, 1)); err == nil {
		t.Fatalf("Read from a closed blob")
	}
}
