package inode

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"
)

// An ID names an inode in a Table. IDs are never reused by a Table.
type ID uint64

// FirstID is the first ID handed out by a new Table.
const FirstID ID = 1

type slot struct {
	inode *Inode

	// links counts directory entries naming the inode, handles counts open
	// file handles. The slot is freed when both reach zero.
	links   int
	handles int
}

// Config configures the inodes allocated by a Table.
type Config struct {
	// Clock stamps inode times. Defaults to time.Now.
	Clock func() time.Time
	// MaxSize bounds file sizes. Zero means unlimited.
	MaxSize int64
	// OnFree, if set, is called after an inode's storage has been released.
	OnFree func(id ID)
}

// A Table is an arena of inodes with reference counts. Directory entries and
// file handles refer to inodes by ID; the table frees an inode exactly when
// its last link and last handle are gone.
//
// A Table is not safe for concurrent use.
type Table struct {
	slots  map[ID]*slot
	next   ID
	config Config
}

func NewTable(config Config) *Table {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Table{
		slots:  make(map[ID]*slot),
		next:   FirstID,
		config: config,
	}
}

// Alloc creates an empty inode. The new inode has no links and no handles;
// the caller must Link or Acquire it before doing anything else with the table.
func (t *Table) Alloc() ID {
	id := t.next
	t.next++
	t.slots[id] = &slot{
		inode: newInode(t.config.Clock, t.config.MaxSize),
	}
	return id
}

func (t *Table) mustGet(id ID) *slot {
	s, ok := t.slots[id]
	if !ok {
		panic(fmt.Sprintf("inode: unknown inode %d", id))
	}
	return s
}

// Get returns the inode for id.
func (t *Table) Get(id ID) (*Inode, bool) {
	s, ok := t.slots[id]
	if !ok {
		return nil, false
	}
	return s.inode, true
}

// Link records a directory entry naming id.
func (t *Table) Link(id ID) {
	t.mustGet(id).links++
}

// Unlink drops a directory entry naming id and frees the inode if nothing
// refers to it anymore.
func (t *Table) Unlink(id ID) {
	s := t.mustGet(id)
	if s.links <= 0 {
		panic(fmt.Sprintf("inode: unlink of inode %d without links", id))
	}
	s.links--
	t.maybeFree(id, s)
}

// Acquire records an open handle on id.
func (t *Table) Acquire(id ID) {
	t.mustGet(id).handles++
}

// Release drops an open handle on id and frees the inode if nothing refers to
// it anymore.
func (t *Table) Release(id ID) {
	s := t.mustGet(id)
	if s.handles <= 0 {
		panic(fmt.Sprintf("inode: release of inode %d without handles", id))
	}
	s.handles--
	t.maybeFree(id, s)
}

func (t *Table) maybeFree(id ID, s *slot) {
	if s.links > 0 || s.handles > 0 {
		return
	}
	s.inode.free()
	s.inode = nil
	delete(t.slots, id)
	if t.config.OnFree != nil {
		t.config.OnFree(id)
	}
}

// Info describes the reference counts of an inode.
type Info struct {
	ID      ID
	Exists  bool
	Links   int
	Handles int
	Size    int64
}

func (t *Table) Info(id ID) Info {
	s, ok := t.slots[id]
	if !ok {
		return Info{ID: id}
	}
	return Info{
		ID:      id,
		Exists:  true,
		Links:   s.links,
		Handles: s.handles,
		Size:    s.inode.Size(),
	}
}

// Len returns the number of live inodes.
func (t *Table) Len() int {
	return len(t.slots)
}

// IDs returns the IDs of all live inodes in increasing order.
func (t *Table) IDs() []ID {
	return slices.SortedFunc(maps.Keys(t.slots), cmp.Compare[ID])
}

// Clone returns a table holding copy-on-write copies of every linked inode.
// Handle counts are not carried over and inodes kept alive only by handles are
// left out. IDs are preserved so that cloned directory entries stay valid.
func (t *Table) Clone() *Table {
	slots := make(map[ID]*slot, len(t.slots))
	for id, s := range t.slots {
		if s.links == 0 {
			continue
		}
		slots[id] = &slot{
			inode: s.inode.clone(),
			links: s.links,
		}
	}
	return &Table{
		slots:  slots,
		next:   t.next,
		config: t.config,
	}
}
