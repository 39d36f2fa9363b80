package fuse

import (
	"bazil.org/fuse"
)

// InodeTable maps inode numbers to archive paths. Inodes are never recycled,
// so a number keeps pointing at its path even after the entry is deleted.
type InodeTable struct {
	ids    *IdTable[fuse.NodeID]
	paths  map[fuse.NodeID]string
	inodes map[string]fuse.NodeID
}

// NewInodeTable returns a table whose root inode resolves to root
func NewInodeTable(root string) *InodeTable {
	t := &InodeTable{
		ids:    NewIdTable(fuse.RootID),
		paths:  map[fuse.NodeID]string{fuse.RootID: root},
		inodes: map[string]fuse.NodeID{root: fuse.RootID},
	}
	return t
}

// Insert returns the inode for path, allocating one on first sight
func (t *InodeTable) Insert(path string) fuse.NodeID {
	if node, ok := t.inodes[path]; ok {
		return node
	}

	node := t.ids.Next()
	t.paths[node] = path
	t.inodes[path] = node
	return node
}

// Path returns the archive path of node
func (t *InodeTable) Path(node fuse.NodeID) (string, bool) {
	p, ok := t.paths[node]
	return p, ok
}

// Inode returns the inode already allocated to path
func (t *InodeTable) Inode(path string) (fuse.NodeID, bool) {
	node, ok := t.inodes[path]
	return node, ok
}
