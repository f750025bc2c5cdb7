/*
Package memvfs implements an in-memory filesystem with POSIX-like descriptor
semantics.

A Filesystem holds a single flat directory of named files and a table of open
file descriptors. It never touches the host filesystem. It is meant for tests
and sandboxes that need file-shaped behavior: names that can be unlinked while
still open, renames that keep descriptors working, positions per descriptor,
and a bounded descriptor pool.

# Files, names and descriptors

Every file is an inode holding its bytes and timestamps. A name in the
directory refers to an inode, and so does every open descriptor. Unlinking a
name does not affect open descriptors; the inode is freed once it has no name
and no descriptor:

	fsys := memvfs.New(memvfs.Options{})
	fd, _ := fsys.Open("log", memvfs.O_CREATE|memvfs.O_RDWR)
	fsys.Write(fd, []byte("hello"))
	fsys.Unlink("log")
	fsys.Seek(fd, 0, memvfs.SeekStart)
	buf := make([]byte, 5)
	fsys.Read(fd, buf) // still "hello"
	fsys.Close(fd)     // now the inode is gone

Descriptors start at FirstDescriptor. The most recently closed descriptor is
the next one handed out.

# Paths

Paths name a single entry of the root directory. A leading "/" is ignored, so
"a" and "/a" are the same file. Paths with more than one component return
ErrNotSupported; "", "/", "." and ".." return ErrInvalid.

# Reads

Read is all-or-nothing: a read that extends past the end of the file fails
with ErrOutOfRange and copies nothing. Writes past the end zero-fill the gap.

# Errors

All errors are *fs.PathError values wrapping one of the Err variables of this
package. Use errors.Is to test for them.
*/
package memvfs
