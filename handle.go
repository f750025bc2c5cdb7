package memvfs

import (
	"github.com/kmrgirish/memvfs/internal/inode"
)

// A fileHandle is one open instance of a file: the inode it was opened
// against and a cursor of its own. Handles on the same inode share data but
// never cursors.
type fileHandle struct {
	name  string // name at open time, for logging
	inode inode.ID
	pos   int64

	flagRead   bool
	flagWrite  bool
	flagAppend bool
}

func (h *fileHandle) read(ino *inode.Inode, p []byte) (int, error) {
	if !h.flagRead {
		return 0, ErrBadDescriptor
	}
	n, err := ino.Read(h.pos, p)
	h.pos += int64(n)
	return n, err
}

func (h *fileHandle) write(ino *inode.Inode, p []byte) (int, error) {
	if !h.flagWrite {
		return 0, ErrBadDescriptor
	}
	if h.flagAppend {
		h.pos = ino.Size()
	}
	n, err := ino.Write(h.pos, p)
	h.pos += int64(n)
	return n, err
}

func (h *fileHandle) seek(ino *inode.Inode, offset int64, whence Whence) (int64, error) {
	var base int64
	switch whence {
	case SeekStart:
	case SeekCurrent:
		base = h.pos
	case SeekEnd:
		base = ino.Size()
	default:
		return 0, ErrInvalid
	}

	pos := base + offset
	if pos < 0 || (offset > 0 && pos < base) {
		return 0, ErrInvalid
	}
	h.pos = pos
	return pos, nil
}
