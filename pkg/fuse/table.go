package fuse

// IdTable hands out integer ids. Freed ids below the high water mark are
// reused before new ones are minted; reserved ids are never handed out.
type IdTable[T ~uint64] struct {
	highest  uint64
	unused   map[uint64]struct{}
	reserved map[uint64]struct{}
}

// NewIdTable returns an empty table that never allocates any of reserved
func NewIdTable[T ~uint64](reserved ...T) *IdTable[T] {
	t := &IdTable[T]{
		unused:   make(map[uint64]struct{}),
		reserved: make(map[uint64]struct{}, len(reserved)),
	}
	for _, id := range reserved {
		t.reserved[uint64(id)] = struct{}{}
	}
	return t
}

// Next returns the lowest recycled id, or a new one above the high water mark
func (t *IdTable[T]) Next() T {
	if len(t.unused) > 0 {
		lowest := t.highest
		for id := range t.unused {
			if id < lowest {
				lowest = id
			}
		}
		delete(t.unused, lowest)
		return T(lowest)
	}

	t.highest++
	for t.isReserved(t.highest) {
		t.highest++
	}
	return T(t.highest)
}

// Contains reports whether id is currently allocated
func (t *IdTable[T]) Contains(id T) bool {
	v := uint64(id)
	if v == 0 || v > t.highest || t.isReserved(v) {
		return false
	}
	_, free := t.unused[v]
	return !free
}

// Recycle returns id to the table. It reports false if id was not allocated.
func (t *IdTable[T]) Recycle(id T) bool {
	if !t.Contains(id) {
		return false
	}
	t.unused[uint64(id)] = struct{}{}
	return true
}

func (t *IdTable[T]) isReserved(v uint64) bool {
	_, ok := t.reserved[v]
	return ok
}
