package memvfs

import (
	"fmt"
	"strings"
)

// Flag is a set of open flags. The bits are independent and combine freely,
// except that at most one access mode may be set.
type Flag uint32

const (
	O_RDONLY   Flag = 1 << iota // open for reading only
	O_WRONLY                    // open for writing only
	O_RDWR                      // open for reading and writing
	O_NONBLOCK                  // accepted; nothing in memory blocks
	O_APPEND                    // writes go to the end of the file
	O_CREATE                    // create the file if it does not exist
	O_EXCL                      // with O_CREATE, fail if the file exists
	O_TRUNC                     // truncate to zero length when opened for writing

	accessModes = O_RDONLY | O_WRONLY | O_RDWR
	knownFlags  = accessModes | O_NONBLOCK | O_APPEND | O_CREATE | O_EXCL | O_TRUNC
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{O_RDONLY, "rdonly"},
	{O_WRONLY, "wronly"},
	{O_RDWR, "rdwr"},
	{O_NONBLOCK, "nonblock"},
	{O_APPEND, "append"},
	{O_CREATE, "creat"},
	{O_EXCL, "excl"},
	{O_TRUNC, "trunc"},
}

func (f Flag) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			f &^= fn.flag
		}
	}
	if f != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(f)))
	}
	return strings.Join(parts, "|")
}

// ParseFlag parses a list of flag names separated by ',' or '|', such as
// "creat,rdwr". The names are those printed by Flag.String.
func ParseFlag(s string) (Flag, error) {
	var f Flag
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		found := false
		for _, fn := range flagNames {
			if strings.EqualFold(part, fn.name) {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown open flag %q", part)
		}
	}
	return f, nil
}

// access reports whether a handle opened with f may read and write. Without
// an access mode both are allowed. More than one access mode is an error.
func (f Flag) access() (read, write bool, err error) {
	if f&^knownFlags != 0 {
		return false, false, ErrInvalid
	}
	switch f & accessModes {
	case 0, O_RDWR:
		return true, true, nil
	case O_RDONLY:
		return true, false, nil
	case O_WRONLY:
		return false, true, nil
	default:
		return false, false, ErrInvalid
	}
}

// Whence is the reference point of a seek.
type Whence int

const (
	SeekStart   Whence = 0 // relative to the start of the file
	SeekCurrent Whence = 1 // relative to the current position
	SeekEnd     Whence = 2 // relative to the end of the file
)

func (w Whence) String() string {
	switch w {
	case SeekStart:
		return "set"
	case SeekCurrent:
		return "cur"
	case SeekEnd:
		return "end"
	default:
		return fmt.Sprintf("Whence(%d)", int(w))
	}
}
