package memvfs

import (
	"io/fs"
	"strconv"
	"syscall"

	"github.com/kmrgirish/memvfs/internal/inode"
)

// Errors returned by Filesystem operations, wrapped in an *fs.PathError.
// Compare with errors.Is; the errno values also match the io/fs sentinels
// (ErrNotFound matches fs.ErrNotExist, ErrExist matches fs.ErrExist).
var (
	ErrNotFound      error = syscall.ENOENT
	ErrBadDescriptor error = syscall.EBADF
	ErrIsDir         error = syscall.EISDIR
	ErrNotDir        error = syscall.ENOTDIR
	ErrNotEmpty      error = syscall.ENOTEMPTY
	ErrExist         error = syscall.EEXIST
	ErrTooManyOpen   error = syscall.EMFILE
	ErrInvalid       error = syscall.EINVAL
	ErrNotSupported  error = syscall.ENOTSUP
	ErrFileTooLarge  error = syscall.EFBIG

	// ErrOutOfRange is returned by reads extending past the end of the file.
	ErrOutOfRange = inode.ErrOutOfRange
)

func pathError(op, path string, err error) error {
	return &fs.PathError{Op: op, Path: path, Err: err}
}

func fdError(op string, fd int, err error) error {
	return &fs.PathError{Op: op, Path: "fd " + strconv.Itoa(fd), Err: err}
}
