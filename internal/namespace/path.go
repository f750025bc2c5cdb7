package namespace

import (
	"strings"
	"syscall"
)

// Split resolves path to a single name in the root directory. Leading slashes
// are dropped since the root is also the working directory. Paths with more
// than one segment are not supported.
func Split(path string) (string, error) {
	name := strings.TrimLeft(path, "/")
	switch {
	case name == "" || name == "." || name == "..":
		return "", syscall.EINVAL
	case strings.Contains(name, "/"):
		return "", syscall.ENOTSUP
	case strings.IndexByte(name, 0) >= 0:
		return "", syscall.EINVAL
	}
	return name, nil
}
