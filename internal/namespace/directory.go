// Package namespace maps names to inodes.
//
// The namespace is a tree of directories, but only the root is reachable:
// paths are a single name. Directory entries exist so that lookups can tell
// data files and directories apart.
package namespace

import (
	"maps"
	"slices"

	"github.com/kmrgirish/memvfs/internal/inode"
)

// Kind tells which variant an Entry holds.
type Kind uint8

const (
	// KindEmpty is the result of a lookup miss.
	KindEmpty Kind = iota
	// KindData is a regular file backed by an inode.
	KindData
	// KindDir is a nested directory.
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindData:
		return "data"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// An Entry is what a name in a Directory is bound to.
type Entry struct {
	Kind  Kind
	Inode inode.ID   // set for KindData
	Dir   *Directory // set for KindDir
}

func Data(id inode.ID) Entry {
	return Entry{Kind: KindData, Inode: id}
}

func Dir(dir *Directory) Entry {
	return Entry{Kind: KindDir, Dir: dir}
}

func (e Entry) IsEmpty() bool {
	return e.Kind == KindEmpty
}

// A Directory maps names to entries. Names are unique within a directory.
type Directory struct {
	entries map[string]Entry
}

func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]Entry),
	}
}

// Get returns the entry for name, or an empty entry.
func (d *Directory) Get(name string) Entry {
	return d.entries[name]
}

// Insert binds name to e and returns the entry previously bound to name. It
// does not check for existing entries; callers enforce create semantics.
func (d *Directory) Insert(name string, e Entry) Entry {
	if e.IsEmpty() {
		panic("namespace: insert of empty entry")
	}
	prev := d.entries[name]
	d.entries[name] = e
	return prev
}

// Remove unbinds name and returns the entry it was bound to.
func (d *Directory) Remove(name string) (Entry, bool) {
	e, ok := d.entries[name]
	if ok {
		delete(d.entries, name)
	}
	return e, ok
}

func (d *Directory) Len() int {
	return len(d.entries)
}

// Names returns the bound names in sorted order.
func (d *Directory) Names() []string {
	return slices.Sorted(maps.Keys(d.entries))
}

// Clone returns a deep copy. Data entries keep their inode IDs.
func (d *Directory) Clone() *Directory {
	clone := &Directory{
		entries: make(map[string]Entry, len(d.entries)),
	}
	for name, e := range d.entries {
		if e.Kind == KindDir {
			e = Dir(e.Dir.Clone())
		}
		clone.entries[name] = e
	}
	return clone
}

// Walk calls fn for every data entry in d and its subdirectories.
func (d *Directory) Walk(fn func(name string, id inode.ID)) {
	for name, e := range d.entries {
		switch e.Kind {
		case KindData:
			fn(name, e.Inode)
		case KindDir:
			e.Dir.Walk(fn)
		}
	}
}
