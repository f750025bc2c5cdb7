package memvfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/kmrgirish/memvfs/internal/inode"
	"github.com/kmrgirish/memvfs/internal/namespace"
)

// Times are the creation, access and modification times of a file.
type Times = inode.Times

// InodeInfo describes the reference counts of an inode.
type InodeInfo = inode.Info

// FileInfo describes a directory entry or an open file.
type FileInfo struct {
	Name  string
	Size  int64
	IsDir bool
	Inode uint64 // zero for directories
	Times        // zero for directories
}

// DirEntry is an entry of the root directory.
type DirEntry struct {
	Name  string
	IsDir bool
}

// A Filesystem is an in-memory filesystem with a single flat directory and a
// table of open file descriptors.
//
// File contents live in inodes that are shared by the directory entry naming
// them and by every descriptor open on them. An inode is freed when its name
// has been unlinked and its last descriptor has been closed, in either order.
//
// All methods are safe for concurrent use; they are serialized by one lock.
type Filesystem struct {
	mu sync.Mutex

	opts Options
	log  *slog.Logger

	inodes *inode.Table
	root   *namespace.Directory // also the working directory
	fds    *fdTable
}

// New returns an empty filesystem.
func New(opts Options) *Filesystem {
	opts = opts.withDefaults()
	fsys := &Filesystem{
		opts: opts,
		log:  opts.Logger,
		root: namespace.NewDirectory(),
		fds:  newFDTable(opts.MaxDescriptors),
	}
	fsys.inodes = inode.NewTable(fsys.inodeConfig())
	return fsys
}

func (fsys *Filesystem) inodeConfig() inode.Config {
	return inode.Config{
		Clock:   fsys.opts.Clock,
		MaxSize: fsys.opts.MaxFileSize,
		OnFree: func(id inode.ID) {
			fsys.log.Debug("free", "inode", uint64(id))
		},
	}
}

func (fsys *Filesystem) logOp(op string, err error, args ...any) {
	if !fsys.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if err != nil {
		args = append(args, "err", err)
	}
	fsys.log.Debug(op, args...)
}

// Open opens path and returns a new descriptor. With O_CREATE a missing path
// is created as an empty file. Opening the same path twice yields two
// descriptors with independent positions over the same data.
func (fsys *Filesystem) Open(path string, flags Flag) (int, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	fd, err := fsys.openLocked(path, flags)
	fsys.logOp("open", err, "path", path, "flags", flags.String(), "fd", fd)
	return fd, err
}

func (fsys *Filesystem) openLocked(path string, flags Flag) (int, error) {
	flagRead, flagWrite, err := flags.access()
	if err != nil {
		return -1, pathError("open", path, err)
	}

	name, err := namespace.Split(path)
	if err != nil {
		return -1, pathError("open", path, err)
	}

	entry := fsys.root.Get(name)
	switch entry.Kind {
	case namespace.KindEmpty:
		if flags&O_CREATE == 0 {
			return -1, pathError("open", path, ErrNotFound)
		}
	case namespace.KindDir:
		return -1, pathError("open", path, ErrIsDir)
	case namespace.KindData:
		if flags&(O_CREATE|O_EXCL) == O_CREATE|O_EXCL {
			return -1, pathError("open", path, ErrExist)
		}
	}

	// nothing changes unless a descriptor is available
	if fsys.fds.available() == 0 {
		return -1, pathError("open", path, ErrTooManyOpen)
	}

	if entry.IsEmpty() {
		id := fsys.inodes.Alloc()
		fsys.inodes.Link(id)
		entry = namespace.Data(id)
		fsys.root.Insert(name, entry)
	} else if flags&O_TRUNC != 0 && flagWrite {
		ino, _ := fsys.inodes.Get(entry.Inode)
		if ino.Size() != 0 {
			if err := ino.Truncate(0); err != nil {
				return -1, pathError("open", path, err)
			}
		}
	}

	h := &fileHandle{
		name:       name,
		inode:      entry.Inode,
		flagRead:   flagRead,
		flagWrite:  flagWrite,
		flagAppend: flags&O_APPEND != 0,
	}
	fd, err := fsys.fds.alloc(h)
	if err != nil {
		return -1, pathError("open", path, err)
	}
	fsys.inodes.Acquire(entry.Inode)

	return fd, nil
}

func (fsys *Filesystem) handleLocked(op string, fd int) (*fileHandle, *inode.Inode, error) {
	h, ok := fsys.fds.get(fd)
	if !ok {
		return nil, nil, fdError(op, fd, ErrBadDescriptor)
	}
	ino, ok := fsys.inodes.Get(h.inode)
	if !ok {
		panic("memvfs: open descriptor refers to a freed inode")
	}
	return h, ino, nil
}

// Read reads exactly len(p) bytes at the descriptor's position and advances
// it. A read extending past the end of the file fails with ErrOutOfRange and
// leaves p and the position untouched.
func (fsys *Filesystem) Read(fd int, p []byte) (int, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	h, ino, err := fsys.handleLocked("read", fd)
	if err != nil {
		fsys.logOp("read", err, "fd", fd)
		return 0, err
	}
	pos := h.pos
	n, err := h.read(ino, p)
	if err != nil {
		err = fdError("read", fd, err)
	}
	fsys.logOp("read", err, "fd", fd, "pos", pos, "n", n)
	return n, err
}

// Write writes p at the descriptor's position, or at the end of the file for
// descriptors opened with O_APPEND, and advances the position. Writing past
// the end of the file zero-fills the gap. Either all of p is written or
// nothing is.
func (fsys *Filesystem) Write(fd int, p []byte) (int, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	h, ino, err := fsys.handleLocked("write", fd)
	if err != nil {
		fsys.logOp("write", err, "fd", fd)
		return 0, err
	}
	n, err := h.write(ino, p)
	if err != nil {
		err = fdError("write", fd, err)
	}
	fsys.logOp("write", err, "fd", fd, "pos", h.pos-int64(n), "n", n)
	return n, err
}

// Seek sets the descriptor's position and returns it. Seeking past the end of
// the file is allowed; seeking to a negative position is not.
func (fsys *Filesystem) Seek(fd int, offset int64, whence Whence) (int64, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	h, ino, err := fsys.handleLocked("seek", fd)
	if err != nil {
		fsys.logOp("seek", err, "fd", fd)
		return 0, err
	}
	pos, err := h.seek(ino, offset, whence)
	if err != nil {
		err = fdError("seek", fd, err)
	}
	fsys.logOp("seek", err, "fd", fd, "offset", offset, "whence", whence.String(), "pos", pos)
	return pos, err
}

// Truncate sets the size of the file open on fd.
func (fsys *Filesystem) Truncate(fd int, size int64) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	h, ino, err := fsys.handleLocked("truncate", fd)
	if err == nil {
		if !h.flagWrite {
			err = fdError("truncate", fd, ErrBadDescriptor)
		} else if terr := ino.Truncate(size); terr != nil {
			err = fdError("truncate", fd, terr)
		}
	}
	fsys.logOp("truncate", err, "fd", fd, "size", size)
	return err
}

// Close releases fd. The descriptor may be handed out again by the next Open.
// Closing a descriptor that is not open returns ErrBadDescriptor and changes
// nothing.
func (fsys *Filesystem) Close(fd int) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	var err error
	if h, ok := fsys.fds.release(fd); ok {
		fsys.inodes.Release(h.inode)
	} else {
		err = fdError("close", fd, ErrBadDescriptor)
	}
	fsys.logOp("close", err, "fd", fd)
	return err
}

// Unlink removes the name path. Descriptors open on the file keep working
// until they are closed.
func (fsys *Filesystem) Unlink(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	err := fsys.unlinkLocked(path)
	fsys.logOp("unlink", err, "path", path)
	return err
}

func (fsys *Filesystem) unlinkLocked(path string) error {
	name, err := namespace.Split(path)
	if err != nil {
		return pathError("unlink", path, err)
	}

	entry := fsys.root.Get(name)
	switch entry.Kind {
	case namespace.KindEmpty:
		return pathError("unlink", path, ErrNotFound)
	case namespace.KindDir:
		return pathError("unlink", path, ErrIsDir)
	}

	fsys.root.Remove(name)
	fsys.inodes.Unlink(entry.Inode)
	return nil
}

// Rename moves the entry at oldPath to newPath, replacing whatever newPath
// named before.
func (fsys *Filesystem) Rename(oldPath, newPath string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	err := fsys.renameLocked(oldPath, newPath)
	fsys.logOp("rename", err, "from", oldPath, "to", newPath)
	return err
}

func (fsys *Filesystem) renameLocked(oldPath, newPath string) error {
	oldName, err := namespace.Split(oldPath)
	if err != nil {
		return pathError("rename", oldPath, err)
	}
	newName, err := namespace.Split(newPath)
	if err != nil {
		return pathError("rename", newPath, err)
	}

	entry := fsys.root.Get(oldName)
	if entry.IsEmpty() {
		return pathError("rename", oldPath, ErrNotFound)
	}
	if oldName == newName {
		return nil
	}

	switch target := fsys.root.Get(newName); {
	case target.Kind == namespace.KindDir && entry.Kind == namespace.KindData:
		return pathError("rename", newPath, ErrIsDir)
	case target.Kind == namespace.KindData && entry.Kind == namespace.KindDir:
		return pathError("rename", newPath, ErrNotDir)
	case target.Kind == namespace.KindDir && target.Dir.Len() > 0:
		return pathError("rename", newPath, ErrNotEmpty)
	}

	// link under the new name before dropping the old one so the inode is
	// never without a reference
	if entry.Kind == namespace.KindData {
		fsys.inodes.Link(entry.Inode)
	}
	prev := fsys.root.Insert(newName, entry)
	fsys.root.Remove(oldName)
	if entry.Kind == namespace.KindData {
		fsys.inodes.Unlink(entry.Inode)
	}
	if prev.Kind == namespace.KindData {
		fsys.inodes.Unlink(prev.Inode)
	}
	return nil
}

// GetStats returns the times of the file open on fd.
func (fsys *Filesystem) GetStats(fd int) (Times, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	_, ino, err := fsys.handleLocked("stat", fd)
	fsys.logOp("stat", err, "fd", fd)
	if err != nil {
		return Times{}, err
	}
	return ino.Stat(), nil
}

// Fstat describes the file open on fd.
func (fsys *Filesystem) Fstat(fd int) (FileInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	h, ino, err := fsys.handleLocked("fstat", fd)
	fsys.logOp("fstat", err, "fd", fd)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:  h.name,
		Size:  ino.Size(),
		Inode: uint64(h.inode),
		Times: ino.Stat(),
	}, nil
}

// Stat describes the entry at path.
func (fsys *Filesystem) Stat(path string) (FileInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	info, err := fsys.statLocked(path)
	fsys.logOp("stat", err, "path", path)
	return info, err
}

func (fsys *Filesystem) statLocked(path string) (FileInfo, error) {
	name, err := namespace.Split(path)
	if err != nil {
		return FileInfo{}, pathError("stat", path, err)
	}

	entry := fsys.root.Get(name)
	switch entry.Kind {
	case namespace.KindEmpty:
		return FileInfo{}, pathError("stat", path, ErrNotFound)
	case namespace.KindDir:
		return FileInfo{Name: name, IsDir: true}, nil
	}
	ino, _ := fsys.inodes.Get(entry.Inode)
	return FileInfo{
		Name:  name,
		Size:  ino.Size(),
		Inode: uint64(entry.Inode),
		Times: ino.Stat(),
	}, nil
}

// Mkdir creates an empty directory. Directories cannot be entered or opened;
// they only occupy a name.
func (fsys *Filesystem) Mkdir(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	err := fsys.mkdirLocked(path)
	fsys.logOp("mkdir", err, "path", path)
	return err
}

func (fsys *Filesystem) mkdirLocked(path string) error {
	name, err := namespace.Split(path)
	if err != nil {
		return pathError("mkdir", path, err)
	}
	if !fsys.root.Get(name).IsEmpty() {
		return pathError("mkdir", path, ErrExist)
	}
	fsys.root.Insert(name, namespace.Dir(namespace.NewDirectory()))
	return nil
}

// Rmdir removes an empty directory.
func (fsys *Filesystem) Rmdir(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	err := fsys.rmdirLocked(path)
	fsys.logOp("rmdir", err, "path", path)
	return err
}

func (fsys *Filesystem) rmdirLocked(path string) error {
	name, err := namespace.Split(path)
	if err != nil {
		return pathError("rmdir", path, err)
	}

	entry := fsys.root.Get(name)
	switch {
	case entry.Kind == namespace.KindEmpty:
		return pathError("rmdir", path, ErrNotFound)
	case entry.Kind == namespace.KindData:
		return pathError("rmdir", path, ErrNotDir)
	case entry.Dir.Len() > 0:
		return pathError("rmdir", path, ErrNotEmpty)
	}
	fsys.root.Remove(name)
	return nil
}

// Chdir is not supported: the namespace has a single directory.
func (fsys *Filesystem) Chdir(path string) error {
	err := pathError("chdir", path, ErrNotSupported)
	fsys.logOp("chdir", err, "path", path)
	return err
}

// ReadDir lists the root directory sorted by name.
func (fsys *Filesystem) ReadDir() []DirEntry {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	names := fsys.root.Names()
	entries := make([]DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, DirEntry{
			Name:  name,
			IsDir: fsys.root.Get(name).Kind == namespace.KindDir,
		})
	}
	return entries
}

// OpenDescriptors returns the open descriptors in increasing order.
func (fsys *Filesystem) OpenDescriptors() []int {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	return fsys.fds.open()
}

// InodeInfo returns the reference counts of inode ino, as reported by Stat
// or Fstat. Freed inodes report Exists == false.
func (fsys *Filesystem) InodeInfo(ino uint64) InodeInfo {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	return fsys.inodes.Info(inode.ID(ino))
}

// LiveInodes returns the number of inodes that have not been freed.
func (fsys *Filesystem) LiveInodes() int {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	return fsys.inodes.Len()
}

// Check verifies that the link and handle counts of every live inode match
// the names and descriptors that refer to it, and that nothing refers to a
// freed inode.
func (fsys *Filesystem) Check() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	links := make(map[inode.ID]int)
	fsys.root.Walk(func(_ string, id inode.ID) {
		links[id]++
	})
	handles := make(map[inode.ID]int)
	for _, h := range fsys.fds.handles {
		handles[h.inode]++
	}

	var errs []error
	for _, id := range fsys.inodes.IDs() {
		info := fsys.inodes.Info(id)
		if info.Links != links[id] || info.Handles != handles[id] {
			errs = append(errs, fmt.Errorf("inode %d: counts %d links and %d handles, found %d names and %d descriptors",
				id, info.Links, info.Handles, links[id], handles[id]))
		}
		if info.Links == 0 && info.Handles == 0 {
			errs = append(errs, fmt.Errorf("inode %d: unreferenced but not freed", id))
		}
		delete(links, id)
		delete(handles, id)
	}
	for _, id := range slices.Sorted(maps.Keys(links)) {
		errs = append(errs, fmt.Errorf("inode %d: named but freed", id))
	}
	for _, id := range slices.Sorted(maps.Keys(handles)) {
		errs = append(errs, fmt.Errorf("inode %d: open but freed", id))
	}

	err := errors.Join(errs...)
	fsys.logOp("check", err, "inodes", fsys.inodes.Len())
	return err
}

// Snapshot returns an independent copy of the namespace and file contents.
// Data is shared copy-on-write. The copy has no open descriptors, so files
// that were unlinked but still open are not part of it.
func (fsys *Filesystem) Snapshot() *Filesystem {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	snap := &Filesystem{
		opts:   fsys.opts,
		log:    fsys.log,
		inodes: fsys.inodes.Clone(),
		root:   fsys.root.Clone(),
		fds:    newFDTable(fsys.opts.MaxDescriptors),
	}
	fsys.logOp("snapshot", nil, "inodes", snap.inodes.Len())
	return snap
}
