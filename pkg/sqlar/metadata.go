package sqlar

import (
	"fmt"
	"io/fs"
	"time"
)

// FileType is the kind of an archive entry
type FileType int

const (
	TypeFile FileType = iota + 1
	TypeDir
	TypeSymlink
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	}
	return fmt.Sprintf("FileType(%d)", int(t))
}

// ParseFileType is the inverse of FileType.String
func ParseFileType(s string) (FileType, error) {
	switch s {
	case "file":
		return TypeFile, nil
	case "dir":
		return TypeDir, nil
	case "symlink":
		return TypeSymlink, nil
	}
	return 0, errorf(InvalidArgs, "unknown file type %q", s)
}

// Type bits stored in the mode column
const (
	typeMask    = 0o170000
	fileMode    = 0o100000
	dirMode     = 0o040000
	symlinkMode = 0o120000
)

func (t FileType) modeBits() int64 {
	switch t {
	case TypeDir:
		return dirMode
	case TypeSymlink:
		return symlinkMode
	default:
		return fileMode
	}
}

// FileMode holds Unix permission bits, including setuid, setgid and sticky
type FileMode uint32

const (
	OwnerR FileMode = 0o400
	OwnerW FileMode = 0o200
	OwnerX FileMode = 0o100
	GroupR FileMode = 0o040
	GroupW FileMode = 0o020
	GroupX FileMode = 0o010
	OtherR FileMode = 0o004
	OtherW FileMode = 0o002
	OtherX FileMode = 0o001

	SetUID FileMode = 0o4000
	SetGID FileMode = 0o2000
	Sticky FileMode = 0o1000

	OwnerRWX = OwnerR | OwnerW | OwnerX
	GroupRWX = GroupR | GroupW | GroupX
	OtherRWX = OtherR | OtherW | OtherX

	// ModeMask covers every bit a FileMode may carry
	ModeMask FileMode = 0o7777
)

// DefaultUmask is the umask new archives start with
const DefaultUmask = OtherW

func (m FileMode) String() string {
	return fmt.Sprintf("%04o", uint32(m))
}

// Perm converts m to an fs.FileMode
func (m FileMode) Perm() fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	if m&SetUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&SetGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&Sticky != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// FileModeOf extracts the permission bits from an fs.FileMode
func FileModeOf(mode fs.FileMode) FileMode {
	m := FileMode(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		m |= SetUID
	}
	if mode&fs.ModeSetgid != 0 {
		m |= SetGID
	}
	if mode&fs.ModeSticky != 0 {
		m |= Sticky
	}
	return m
}

// defaultMode is the mode a new entry of kind t gets under umask
func defaultMode(t FileType, umask FileMode) FileMode {
	switch t {
	case TypeDir:
		return (OwnerRWX | GroupRWX | OtherRWX) &^ umask
	case TypeSymlink:
		return OwnerRWX | GroupRWX | OtherRWX
	default:
		return (OwnerR | OwnerW | GroupR | GroupW | OtherR | OtherW) &^ umask
	}
}

// FileMetadata describes one archive entry
type FileMetadata struct {
	Type FileType
	// Mode is meaningful only when HasMode is set
	Mode    FileMode
	HasMode bool
	// Mtime is the zero time when the entry has none
	Mtime time.Time
	// Size is the uncompressed size of a regular file
	Size uint64
	// Target is the destination of a symlink
	Target string
}

// IsFile reports whether the entry is a regular file
func (m FileMetadata) IsFile() bool { return m.Type == TypeFile }

// IsDir reports whether the entry is a directory
func (m FileMetadata) IsDir() bool { return m.Type == TypeDir }

// IsSymlink reports whether the entry is a symlink
func (m FileMetadata) IsSymlink() bool { return m.Type == TypeSymlink }

// metadataRow is the raw column tuple metadata is decoded from
type metadataRow struct {
	Mode   *int64  `db:"mode"`
	Mtime  *int64  `db:"mtime"`
	Size   int64   `db:"sz"`
	Target *string `db:"target"`
	IsDir  bool    `db:"is_dir"`
}

func (r metadataRow) decode() FileMetadata {
	var md FileMetadata

	if r.Mode != nil {
		md.Mode = FileMode(*r.Mode) & ModeMask
		md.HasMode = true
	}
	if r.Mtime != nil {
		md.Mtime = time.Unix(*r.Mtime, 0)
	}

	switch {
	case r.IsDir:
		md.Type = TypeDir
	case r.Size < 0:
		md.Type = TypeSymlink
		if r.Target != nil {
			md.Target = *r.Target
		}
	default:
		md.Type = TypeFile
		md.Size = uint64(r.Size)
	}

	return md
}

// encodeMode returns the value stored in the mode column
func encodeMode(t FileType, mode FileMode) int64 {
	return t.modeBits() | int64(mode&ModeMask)
}

// encodeMtime returns the value stored in the mtime column, truncated to whole
// seconds, or nil for the zero time
func encodeMtime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
