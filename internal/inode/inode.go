// Package inode holds file contents and metadata independent of any name,
// and the arena that owns them.
package inode

import (
	"errors"
	"syscall"
	"time"
)

// ErrOutOfRange is returned by reads that extend past the end of the file.
var ErrOutOfRange = errors.New("read out of range")

// Times are the timestamps of an inode.
type Times struct {
	Created  time.Time
	Accessed time.Time
	Modified time.Time
}

// An Inode owns the bytes of one file and its timestamps.
type Inode struct {
	file  *chunkedFile
	times Times

	clock   func() time.Time
	maxSize int64 // 0 means unlimited
}

func newInode(clock func() time.Time, maxSize int64) *Inode {
	now := clock()
	return &Inode{
		file: &chunkedFile{},
		times: Times{
			Created:  now,
			Accessed: now,
			Modified: now,
		},
		clock:   clock,
		maxSize: maxSize,
	}
}

// stamp returns the time for a modification. Stamps of one inode are strictly
// increasing even if the clock does not advance between calls.
func (ino *Inode) stamp() time.Time {
	now := ino.clock()
	if last := ino.times.Modified; !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	return now
}

func (ino *Inode) touch() {
	now := ino.stamp()
	ino.times.Modified = now
	ino.times.Accessed = now
}

// SizeLimit is the largest file size an inode supports regardless of the
// configured maximum.
const SizeLimit = 1 << 40

func (ino *Inode) checkSize(size int64) error {
	if size > SizeLimit || (ino.maxSize > 0 && size > ino.maxSize) {
		return syscall.EFBIG
	}
	return nil
}

// Write copies p into the file at off, growing the file with zeroes if
// needed. Either all of p is written or nothing is.
func (ino *Inode) Write(off int64, p []byte) (int, error) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	end := off + int64(len(p))
	if end < off {
		return 0, syscall.EFBIG
	}
	if err := ino.checkSize(end); err != nil {
		return 0, err
	}

	if end > ino.file.Size() {
		ino.file.Resize(end)
	}
	ino.file.WriteAt(off, p)
	ino.touch()

	return len(p), nil
}

// Read fills p with the bytes at [off, off+len(p)). The whole range must lie
// inside the file; otherwise nothing is copied and ErrOutOfRange is returned.
// Read does not change the access time.
func (ino *Inode) Read(off int64, p []byte) (int, error) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if end := off + int64(len(p)); end < off || end > ino.file.Size() {
		return 0, ErrOutOfRange
	}
	ino.file.ReadAt(off, p)
	return len(p), nil
}

// Truncate sets the file size, zero-filling when growing.
func (ino *Inode) Truncate(size int64) error {
	if size < 0 {
		return syscall.EINVAL
	}
	if err := ino.checkSize(size); err != nil {
		return err
	}
	ino.file.Resize(size)
	ino.touch()
	return nil
}

func (ino *Inode) Size() int64 {
	return ino.file.Size()
}

func (ino *Inode) Stat() Times {
	return ino.times
}

func (ino *Inode) clone() *Inode {
	return &Inode{
		file:    ino.file.Clone(),
		times:   ino.times,
		clock:   ino.clock,
		maxSize: ino.maxSize,
	}
}

func (ino *Inode) free() {
	ino.file.Free()
	ino.file = nil
}
