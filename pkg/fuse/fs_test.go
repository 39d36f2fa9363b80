package fuse

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"syscall"
	"testing"

	"bazil.org/fuse"

	"github.com/yoogottamk/sqlarfs/pkg/sqlar"
)

const (
	testUid = 1234
	testGid = 5678
)

var helloWorld = []byte("hello world")

// parseDirents decodes the kernel dirent layout produced by fuse.AppendDirent
func parseDirents(t *testing.T, data []byte) []fuse.Dirent {
	t.Helper()

	const direntSize = 24

	var out []fuse.Dirent
	for len(data) > 0 {
		if len(data) < direntSize {
			t.Fatalf("Truncated dirent header")
		}
		namelen := int(binary.LittleEndian.Uint32(data[16:20]))
		out = append(out, fuse.Dirent{
			Inode: binary.LittleEndian.Uint64(data[0:8]),
			Type:  fuse.DirentType(binary.LittleEndian.Uint32(data[20:24])),
			Name:  string(data[direntSize : direntSize+namelen]),
		})

		size := (direntSize + namelen + 7) &^ 7
		data = data[size:]
	}
	return out
}

func header(node fuse.NodeID) fuse.Header {
	return fuse.Header{Node: node, Uid: testUid, Gid: testGid}
}

// getArchive returns an archive holding
//
//	d/       0750
//	d/f      "hello world"
//	d/link   -> f
//	d/big    compressible payload
//	top      no mode
func getArchive(t *testing.T) (*sqlar.Archive, []byte) {
	t.Helper()

	conn, err := sqlar.OpenInMemory()
	if err != nil {
		t.Fatalf("Couldn't open archive: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	tx, err := conn.Begin(context.Background())
	if err != nil {
		t.Fatalf("Couldn't begin transaction: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })

	ar := tx.Archive()
	big := bytes.Repeat([]byte("compress me "), 4096)

	open := func(p string) *sqlar.File {
		f, err := ar.Open(p)
		if err != nil {
			t.Fatalf("Couldn't open %s: %v", p, err)
		}
		return f
	}

	steps := []func() error{
		open("d").CreateDir,
		func() error { return open("d").SetMode(0o750) },
		open("d/f").CreateFile,
		func() error { return open("d/f").WriteBytes(helloWorld) },
		func() error { return open("d/link").CreateSymlink("f") },
		open("d/big").CreateFile,
		func() error {
			f := open("d/big")
			f.SetCompression(sqlar.CompressionBest)
			return f.WriteBytes(big)
		},
		open("top").CreateFile,
		open("top").ClearMode,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Couldn't build archive: %v", err)
		}
	}

	return ar, big
}

func getFS(t *testing.T, root string) (*FS, []byte) {
	t.Helper()

	ar, big := getArchive(t)
	filesys, err := NewFS(ar, root)
	if err != nil {
		t.Fatalf("Couldn't create filesystem: %v", err)
	}
	return filesys, big
}

func assertErrno(t *testing.T, err error, want syscall.Errno) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected %v, got no error", want)
	}
	if got := sqlar.Errno(err); got != want {
		t.Fatalf("Expected %v, got %v (%v)", want, got, err)
	}
}

func lookup(t *testing.T, filesys *FS, parent fuse.NodeID, name string) *fuse.LookupResponse {
	t.Helper()

	resp := &fuse.LookupResponse{}
	req := &fuse.LookupRequest{Header: header(parent), Name: name}
	if err := filesys.Lookup(req, resp); err != nil {
		t.Fatalf("Couldn't look up %s: %v", name, err)
	}
	return resp
}

func openFile(t *testing.T, filesys *FS, node fuse.NodeID) fuse.HandleID {
	t.Helper()

	resp := &fuse.OpenResponse{}
	req := &fuse.OpenRequest{Header: header(node), Flags: fuse.OpenReadOnly}
	if err := filesys.Open(req, resp); err != nil {
		t.Fatalf("Couldn't open %d: %v", node, err)
	}
	return resp.Handle
}

func readFile(t *testing.T, filesys *FS, node fuse.NodeID, fh fuse.HandleID, offset int64, size int) []byte {
	t.Helper()

	resp := &fuse.ReadResponse{}
	req := &fuse.ReadRequest{Header: header(node), Handle: fh, Offset: offset, Size: size}
	if err := filesys.Read(req, resp); err != nil {
		t.Fatalf("Couldn't read %d: %v", node, err)
	}
	return resp.Data
}

func TestGetattr(t *testing.T) {
	filesys, _ := getFS(t, "")

	t.Run("root", func(t *testing.T) {
		resp := &fuse.GetattrResponse{}
		if err := filesys.Getattr(&fuse.GetattrRequest{Header: header(fuse.RootID)}, resp); err != nil {
			t.Fatalf("Couldn't getattr root: %v", err)
		}
		attr := resp.Attr
		if attr.Mode != os.ModeDir|0o755 || attr.Inode != uint64(fuse.RootID) {
			t.Fatalf("Unexpected root attributes %+v", attr)
		}
		if attr.Uid != testUid || attr.Gid != testGid || attr.Valid != 0 {
			t.Fatalf("Unexpected ownership or TTL %+v", attr)
		}
	})

	t.Run("stored-mode", func(t *testing.T) {
		attr := lookup(t, filesys, fuse.RootID, "d").Attr
		if attr.Mode != os.ModeDir|0o750 || attr.Size != 0 {
			t.Fatalf("Unexpected directory attributes %+v", attr)
		}
	})

	t.Run("default-mode", func(t *testing.T) {
		attr := lookup(t, filesys, fuse.RootID, "top").Attr
		if attr.Mode != 0o644 {
			t.Fatalf("Unexpected default file mode %v", attr.Mode)
		}
	})

	t.Run("file-size", func(t *testing.T) {
		d := lookup(t, filesys, fuse.RootID, "d").Node
		attr := lookup(t, filesys, d, "f").Attr
		if attr.Size != uint64(len(helloWorld)) || attr.Blocks != 1 || attr.BlockSize != blockSize {
			t.Fatalf("Unexpected file attributes %+v", attr)
		}
	})

	t.Run("symlink", func(t *testing.T) {
		d := lookup(t, filesys, fuse.RootID, "d").Node
		attr := lookup(t, filesys, d, "link").Attr
		if attr.Mode != os.ModeSymlink|0o777 || attr.Size != 1 {
			t.Fatalf("Unexpected symlink attributes %+v", attr)
		}
	})

	t.Run("unknown-inode", func(t *testing.T) {
		err := filesys.Getattr(&fuse.GetattrRequest{Header: header(9999)}, &fuse.GetattrResponse{})
		assertErrno(t, err, syscall.ENOENT)
	})
}

func TestLookup(t *testing.T) {
	filesys, _ := getFS(t, "")

	first := lookup(t, filesys, fuse.RootID, "d").Node
	if again := lookup(t, filesys, fuse.RootID, "d").Node; again != first {
		t.Fatalf("Looking up the same name twice gave inodes %d and %d", first, again)
	}

	err := filesys.Lookup(&fuse.LookupRequest{Header: header(fuse.RootID), Name: "missing"}, &fuse.LookupResponse{})
	assertErrno(t, err, syscall.ENOENT)

	top := lookup(t, filesys, fuse.RootID, "top").Node
	err = filesys.Lookup(&fuse.LookupRequest{Header: header(top), Name: "child"}, &fuse.LookupResponse{})
	assertErrno(t, err, syscall.ENOTDIR)
}

func TestReaddir(t *testing.T) {
	filesys, _ := getFS(t, "")
	d := lookup(t, filesys, fuse.RootID, "d").Node

	openResp := &fuse.OpenResponse{}
	if err := filesys.Open(&fuse.OpenRequest{Header: header(d), Dir: true}, openResp); err != nil {
		t.Fatalf("Couldn't open directory: %v", err)
	}
	fh := openResp.Handle

	readResp := &fuse.ReadResponse{}
	req := &fuse.ReadRequest{Header: header(d), Dir: true, Handle: fh, Size: 4096}
	if err := filesys.Read(req, readResp); err != nil {
		t.Fatalf("Couldn't read directory: %v", err)
	}

	types := map[string]fuse.DirentType{}
	for _, dirent := range parseDirents(t, readResp.Data) {
		types[dirent.Name] = dirent.Type

		node, ok := filesys.inodes.Inode("d/" + dirent.Name)
		if !ok || uint64(node) != dirent.Inode {
			t.Fatalf("Dirent %s has inode %d, table has %d", dirent.Name, dirent.Inode, node)
		}
	}

	want := map[string]fuse.DirentType{"f": fuse.DT_File, "link": fuse.DT_Link, "big": fuse.DT_File}
	if len(types) != len(want) {
		t.Fatalf("Got entries %v, want %v", types, want)
	}
	for name, typ := range want {
		if types[name] != typ {
			t.Fatalf("Got entries %v, want %v", types, want)
		}
	}

	if err := filesys.Release(&fuse.ReleaseRequest{Header: header(d), Dir: true, Handle: fh}); err != nil {
		t.Fatalf("Couldn't release directory: %v", err)
	}
	err := filesys.Read(req, &fuse.ReadResponse{})
	assertErrno(t, err, syscall.EBADF)

	top := lookup(t, filesys, fuse.RootID, "top").Node
	err = filesys.Open(&fuse.OpenRequest{Header: header(top), Dir: true}, &fuse.OpenResponse{})
	assertErrno(t, err, syscall.ENOTDIR)
}

func TestReadFile(t *testing.T) {
	filesys, big := getFS(t, "")
	d := lookup(t, filesys, fuse.RootID, "d").Node

	t.Run("plain", func(t *testing.T) {
		f := lookup(t, filesys, d, "f").Node
		fh := openFile(t, filesys, f)

		if got := readFile(t, filesys, f, fh, 0, 4096); !bytes.Equal(got, helloWorld) {
			t.Fatalf("Read %q", got)
		}
		if got := readFile(t, filesys, f, fh, 6, 3); string(got) != "wor" {
			t.Fatalf("Read %q at offset 6", got)
		}
		if got := readFile(t, filesys, f, fh, 100, 10); len(got) != 0 {
			t.Fatalf("Read %q past the end", got)
		}

		if err := filesys.Release(&fuse.ReleaseRequest{Header: header(f), Handle: fh}); err != nil {
			t.Fatalf("Couldn't release: %v", err)
		}
		err := filesys.Release(&fuse.ReleaseRequest{Header: header(f), Handle: fh})
		assertErrno(t, err, syscall.EBADF)
	})

	t.Run("compressed", func(t *testing.T) {
		node := lookup(t, filesys, d, "big").Node
		fh := openFile(t, filesys, node)
		defer filesys.Release(&fuse.ReleaseRequest{Header: header(node), Handle: fh})

		got := readFile(t, filesys, node, fh, 5000, 100)
		if !bytes.Equal(got, big[5000:5100]) {
			t.Fatalf("Read the wrong bytes from a compressed file")
		}
	})

	t.Run("write-refused", func(t *testing.T) {
		f := lookup(t, filesys, d, "f").Node
		for _, flags := range []fuse.OpenFlags{fuse.OpenWriteOnly, fuse.OpenReadWrite, fuse.OpenReadOnly | fuse.OpenTruncate} {
			err := filesys.Open(&fuse.OpenRequest{Header: header(f), Flags: flags}, &fuse.OpenResponse{})
			assertErrno(t, err, syscall.EROFS)
		}
	})

	t.Run("open-directory-as-file", func(t *testing.T) {
		err := filesys.Open(&fuse.OpenRequest{Header: header(d), Flags: fuse.OpenReadOnly}, &fuse.OpenResponse{})
		assertErrno(t, err, syscall.EISDIR)
	})
}

func TestSequentialReads(t *testing.T) {
	filesys, big := getFS(t, "")
	d := lookup(t, filesys, fuse.RootID, "d").Node
	bigNode := lookup(t, filesys, d, "big").Node
	fNode := lookup(t, filesys, d, "f").Node

	bigFh := openFile(t, filesys, bigNode)
	fFh := openFile(t, filesys, fNode)

	state, err := filesys.handles.File(bigFh)
	if err != nil {
		t.Fatalf("Couldn't find open file: %v", err)
	}

	var got []byte
	var reader *sqlar.FileReader
	for offset := 0; offset < len(big); offset += 4096 {
		got = append(got, readFile(t, filesys, bigNode, bigFh, int64(offset), 4096)...)

		if reader == nil {
			reader = state.reader
		} else if reader != state.reader {
			t.Fatalf("Reader was reopened for a sequential read at %d", offset)
		}
		if state.pos != int64(len(got)) {
			t.Fatalf("Cursor is at %d after reading %d bytes", state.pos, len(got))
		}
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("Sequential reads returned %d bytes that don't match", len(got))
	}

	// another file takes over the cursor, then the first resumes
	if got := readFile(t, filesys, fNode, fFh, 6, 5); string(got) != "world" {
		t.Fatalf("Read %q from the second file", got)
	}
	if state.reader != nil {
		t.Fatalf("The first file kept its reader open after another file was read")
	}
	if got := readFile(t, filesys, bigNode, bigFh, 100, 50); !bytes.Equal(got, big[100:150]) {
		t.Fatalf("Read the wrong bytes after switching files")
	}

	// backwards in compressed contents starts over
	if got := readFile(t, filesys, bigNode, bigFh, 10, 20); !bytes.Equal(got, big[10:30]) {
		t.Fatalf("Read the wrong bytes after reading backwards")
	}
	// backwards in uncompressed contents seeks
	readFile(t, filesys, fNode, fFh, 0, 4096)
	if got := readFile(t, filesys, fNode, fFh, 0, 5); string(got) != "hello" {
		t.Fatalf("Read %q after seeking back", got)
	}

	for _, fh := range []fuse.HandleID{bigFh, fFh} {
		if err := filesys.Release(&fuse.ReleaseRequest{Header: header(d), Handle: fh}); err != nil {
			t.Fatalf("Couldn't release: %v", err)
		}
	}
	if filesys.active != nil {
		t.Fatalf("A reader is still open after every file was released")
	}
}

func TestReadlink(t *testing.T) {
	filesys, _ := getFS(t, "")
	d := lookup(t, filesys, fuse.RootID, "d").Node

	link := lookup(t, filesys, d, "link").Node
	target, err := filesys.Readlink(&fuse.ReadlinkRequest{Header: header(link)})
	if err != nil || target != "f" {
		t.Fatalf("Readlink returned %q, %v", target, err)
	}

	f := lookup(t, filesys, d, "f").Node
	_, err = filesys.Readlink(&fuse.ReadlinkRequest{Header: header(f)})
	assertErrno(t, err, syscall.EINVAL)
}

func TestMountRoot(t *testing.T) {
	filesys, _ := getFS(t, "d/")

	f := lookup(t, filesys, fuse.RootID, "f").Node
	if p, _ := filesys.inodes.Path(f); p != "d/f" {
		t.Fatalf("Lookup below a subdirectory root resolved to %q", p)
	}

	ar, _ := getArchive(t)
	_, err := NewFS(ar, "d/f")
	if !sqlar.IsKind(err, sqlar.NotADirectory) {
		t.Fatalf("Expected a file root to be refused, got %v", err)
	}
	_, err = NewFS(ar, "missing")
	if !sqlar.IsKind(err, sqlar.NotFound) {
		t.Fatalf("Expected a missing root to be refused, got %v", err)
	}
}

func TestMountOptions(t *testing.T) {
	if n := len(MountOptions{}.fuseOptions()); n != 4 {
		t.Fatalf("Expected 4 default mount options, got %d", n)
	}
	if n := len(MountOptions{AllowOther: true}.fuseOptions()); n != 5 {
		t.Fatalf("Expected allow_other to add an option, got %d", n)
	}
}

func TestStatfs(t *testing.T) {
	filesys, _ := getFS(t, "")

	resp := &fuse.StatfsResponse{}
	if err := filesys.Statfs(&fuse.StatfsRequest{Header: header(fuse.RootID)}, resp); err != nil {
		t.Fatalf("Couldn't statfs: %v", err)
	}
	if resp.Bsize != blockSize || resp.Namelen != 255 {
		t.Fatalf("Unexpected statfs %+v", resp)
	}
}
