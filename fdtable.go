package memvfs

import (
	"maps"
	"slices"
)

// fdTable maps descriptors to handles. Free descriptors sit on a stack with
// the lowest number on top, so a fresh table hands out FirstDescriptor first
// and a closed descriptor is the next one reused.
type fdTable struct {
	handles map[int]*fileHandle
	free    []int
}

func newFDTable(size int) *fdTable {
	free := make([]int, 0, size)
	for fd := FirstDescriptor + size - 1; fd >= FirstDescriptor; fd-- {
		free = append(free, fd)
	}
	return &fdTable{
		handles: make(map[int]*fileHandle),
		free:    free,
	}
}

// alloc binds h to a free descriptor.
func (t *fdTable) alloc(h *fileHandle) (int, error) {
	if len(t.free) == 0 {
		return -1, ErrTooManyOpen
	}
	fd := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.handles[fd] = h
	return fd, nil
}

func (t *fdTable) get(fd int) (*fileHandle, bool) {
	h, ok := t.handles[fd]
	return h, ok
}

// release unbinds fd and returns its handle. Descriptors that are not open
// are left alone so that the free stack never holds a number twice.
func (t *fdTable) release(fd int) (*fileHandle, bool) {
	h, ok := t.handles[fd]
	if !ok {
		return nil, false
	}
	delete(t.handles, fd)
	t.free = append(t.free, fd)
	return h, true
}

func (t *fdTable) open() []int {
	return slices.Sorted(maps.Keys(t.handles))
}

func (t *fdTable) available() int {
	return len(t.free)
}
