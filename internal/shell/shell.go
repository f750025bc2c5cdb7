// Package shell interprets the line commands of the memvfs command against a
// Filesystem.
//
// Commands:
//
//	open <name> [flags]        Open a file, flags like creat,rdwr; prints the fd
//	write <fd> <text>...       Write the text, joined by spaces
//	read <fd> <n>              Read exactly n bytes
//	seek <fd> <off> [whence]   Seek relative to set, cur or end
//	close <fd>                 Close a descriptor
//	unlink <name>              Remove a file
//	rename <old> <new>         Rename a file or directory
//	stat <fd>                  Show the times of an open file
//	fstat <fd>                 Describe an open file
//	lstat <name>               Describe a directory entry
//	truncate <fd> <n>          Set the size of an open file
//	mkdir <name>               Create a directory
//	rmdir <name>               Remove an empty directory
//	chdir <name>               Change directory (not supported)
//	ls                         List the root directory
//	fds                        List open descriptors
//	bench <n>                  Run n concurrent open/write/read/close/unlink loops
//	help                       Show this help
//	exit / quit                Exit
//
// A line starting with '!' is expected to fail.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kmrgirish/memvfs"
)

var (
	// ErrExit is returned by Exec for exit and quit.
	ErrExit = errors.New("exit")

	ErrUsage          = errors.New("usage")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnexpectedOK   = errors.New("command succeeded but was expected to fail")
	ErrScriptFailed   = errors.New("script failed")
)

type command struct {
	usage   string
	minArgs int
	maxArgs int // -1 for no limit
	run     func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"open":     {"open <name> [flags]", 1, 2, (*Shell).cmdOpen},
		"write":    {"write <fd> <text>...", 1, -1, (*Shell).cmdWrite},
		"read":     {"read <fd> <n>", 2, 2, (*Shell).cmdRead},
		"seek":     {"seek <fd> <off> [set|cur|end]", 2, 3, (*Shell).cmdSeek},
		"close":    {"close <fd>", 1, 1, (*Shell).cmdClose},
		"unlink":   {"unlink <name>", 1, 1, (*Shell).cmdUnlink},
		"rename":   {"rename <old> <new>", 2, 2, (*Shell).cmdRename},
		"stat":     {"stat <fd>", 1, 1, (*Shell).cmdStat},
		"fstat":    {"fstat <fd>", 1, 1, (*Shell).cmdFstat},
		"lstat":    {"lstat <name>", 1, 1, (*Shell).cmdLstat},
		"truncate": {"truncate <fd> <n>", 2, 2, (*Shell).cmdTruncate},
		"mkdir":    {"mkdir <name>", 1, 1, (*Shell).cmdMkdir},
		"rmdir":    {"rmdir <name>", 1, 1, (*Shell).cmdRmdir},
		"chdir":    {"chdir <name>", 1, 1, (*Shell).cmdChdir},
		"ls":       {"ls", 0, 0, (*Shell).cmdLs},
		"fds":      {"fds", 0, 0, (*Shell).cmdFds},
		"check":    {"check", 0, 0, (*Shell).cmdCheck},
		"bench":    {"bench <n>", 1, 1, (*Shell).cmdBench},
		"help":     {"help", 0, 0, (*Shell).cmdHelp},
		"exit":     {"exit", 0, 0, (*Shell).cmdExit},
		"quit":     {"quit", 0, 0, (*Shell).cmdExit},
	}
}

// Commands returns the command names, sorted.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Complete returns the commands starting with line, for tab completion.
func Complete(line string) []string {
	var out []string
	lower := strings.ToLower(line)
	for _, name := range Commands() {
		if strings.HasPrefix(name, lower) {
			out = append(out, name)
		}
	}
	return out
}

// A Shell runs commands against one Filesystem and prints their results.
type Shell struct {
	fsys *memvfs.Filesystem
	out  io.Writer
}

func New(fsys *memvfs.Filesystem, out io.Writer) *Shell {
	return &Shell{fsys: fsys, out: out}
}

// Exec runs a single command line. Blank lines and lines starting with '#'
// do nothing.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w %q (type 'help' for commands)", ErrUnknownCommand, name)
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}
	return cmd.run(s, ctx, args)
}

// Line runs a line and prints any error. A line prefixed with '!' must fail.
// Line reports whether the outcome was as expected; it returns ErrExit when
// the line asked to exit.
func (s *Shell) Line(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	expectFail := strings.HasPrefix(line, "!")
	if expectFail {
		line = strings.TrimSpace(line[1:])
	}

	err := s.Exec(ctx, line)
	switch {
	case errors.Is(err, ErrExit):
		return true, ErrExit
	case err != nil:
		fmt.Fprintf(s.out, "error: %v\n", err)
		return expectFail, nil
	case expectFail:
		fmt.Fprintf(s.out, "error: %v\n", ErrUnexpectedOK)
		return false, nil
	default:
		return true, nil
	}
}

// Script runs every line of r. It stops at exit and returns ErrScriptFailed
// if any line had an unexpected outcome.
func (s *Shell) Script(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	failed := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := s.Line(ctx, scanner.Text())
		if !ok {
			failed++
		}
		if errors.Is(err, ErrExit) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d unexpected results", ErrScriptFailed, failed)
	}
	return nil
}

func parseFD(s string) (int, error) {
	fd, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad descriptor %q", s)
	}
	return fd, nil
}

func parseInt(what, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", what, s)
	}
	return n, nil
}

func parseWhence(s string) (memvfs.Whence, error) {
	switch strings.ToLower(s) {
	case "set", "start":
		return memvfs.SeekStart, nil
	case "cur", "current":
		return memvfs.SeekCurrent, nil
	case "end":
		return memvfs.SeekEnd, nil
	}
	return 0, fmt.Errorf("bad whence %q", s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Shell) cmdOpen(_ context.Context, args []string) error {
	var flags memvfs.Flag
	if len(args) > 1 {
		var err error
		if flags, err = memvfs.ParseFlag(args[1]); err != nil {
			return err
		}
	}
	fd, err := s.fsys.Open(args[0], flags)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, fd)
	return nil
}

func (s *Shell) cmdWrite(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	n, err := s.fsys.Write(fd, []byte(strings.Join(args[1:], " ")))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %d\n", n)
	return nil
}

func (s *Shell) cmdRead(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	n, err := parseInt("length", args[1])
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("bad length %d", n)
	}
	info, err := s.fsys.Fstat(fd)
	if err != nil {
		return err
	}
	if n > info.Size {
		return fmt.Errorf("read fd %d: %d bytes: %w", fd, n, memvfs.ErrOutOfRange)
	}
	buf := make([]byte, n)
	if _, err := s.fsys.Read(fd, buf); err != nil {
		return err
	}
	fmt.Fprintln(s.out, strconv.Quote(string(buf)))
	return nil
}

func (s *Shell) cmdSeek(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	off, err := parseInt("offset", args[1])
	if err != nil {
		return err
	}
	whence := memvfs.SeekStart
	if len(args) > 2 {
		if whence, err = parseWhence(args[2]); err != nil {
			return err
		}
	}
	pos, err := s.fsys.Seek(fd, off, whence)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, pos)
	return nil
}

func (s *Shell) cmdClose(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	return s.fsys.Close(fd)
}

func (s *Shell) cmdUnlink(_ context.Context, args []string) error {
	return s.fsys.Unlink(args[0])
}

func (s *Shell) cmdRename(_ context.Context, args []string) error {
	return s.fsys.Rename(args[0], args[1])
}

func (s *Shell) cmdStat(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	times, err := s.fsys.GetStats(fd)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "created=%s accessed=%s modified=%s\n",
		formatTime(times.Created), formatTime(times.Accessed), formatTime(times.Modified))
	return nil
}

func (s *Shell) printInfo(info memvfs.FileInfo) {
	if info.IsDir {
		fmt.Fprintf(s.out, "name=%s dir\n", info.Name)
		return
	}
	refs := s.fsys.InodeInfo(info.Inode)
	fmt.Fprintf(s.out, "name=%s size=%d inode=%d links=%d handles=%d\n",
		info.Name, info.Size, info.Inode, refs.Links, refs.Handles)
}

func (s *Shell) cmdFstat(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	info, err := s.fsys.Fstat(fd)
	if err != nil {
		return err
	}
	s.printInfo(info)
	return nil
}

func (s *Shell) cmdLstat(_ context.Context, args []string) error {
	info, err := s.fsys.Stat(args[0])
	if err != nil {
		return err
	}
	s.printInfo(info)
	return nil
}

func (s *Shell) cmdTruncate(_ context.Context, args []string) error {
	fd, err := parseFD(args[0])
	if err != nil {
		return err
	}
	size, err := parseInt("size", args[1])
	if err != nil {
		return err
	}
	return s.fsys.Truncate(fd, size)
}

func (s *Shell) cmdMkdir(_ context.Context, args []string) error {
	return s.fsys.Mkdir(args[0])
}

func (s *Shell) cmdRmdir(_ context.Context, args []string) error {
	return s.fsys.Rmdir(args[0])
}

func (s *Shell) cmdChdir(_ context.Context, args []string) error {
	return s.fsys.Chdir(args[0])
}

func (s *Shell) cmdLs(_ context.Context, _ []string) error {
	for _, entry := range s.fsys.ReadDir() {
		if entry.IsDir {
			fmt.Fprintf(s.out, "%s/\n", entry.Name)
		} else {
			fmt.Fprintln(s.out, entry.Name)
		}
	}
	return nil
}

func (s *Shell) cmdFds(_ context.Context, _ []string) error {
	fds := s.fsys.OpenDescriptors()
	parts := make([]string, len(fds))
	for i, fd := range fds {
		parts[i] = strconv.Itoa(fd)
	}
	fmt.Fprintln(s.out, strings.Join(parts, " "))
	return nil
}

const (
	benchPayload = 4096
	benchWorkers = 4
)

// cmdBench runs n workers, each creating, filling, reading back and removing
// its own file.
func (s *Shell) cmdCheck(_ context.Context, _ []string) error {
	if err := s.fsys.Check(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "ok")
	return nil
}

func (s *Shell) cmdBench(ctx context.Context, args []string) error {
	n, err := parseInt("count", args[0])
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("bad count %d", n)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(benchWorkers)
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.benchOne(fmt.Sprintf(".bench-%d", i))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "bench: %d ok\n", n)
	return nil
}

func (s *Shell) benchOne(name string) error {
	payload := make([]byte, benchPayload)
	for i := range payload {
		payload[i] = byte(i)
	}

	fd, err := s.fsys.Open(name, memvfs.O_CREATE|memvfs.O_EXCL|memvfs.O_RDWR)
	if err != nil {
		return err
	}
	defer s.fsys.Unlink(name)
	defer s.fsys.Close(fd)

	if _, err := s.fsys.Write(fd, payload); err != nil {
		return err
	}
	if _, err := s.fsys.Seek(fd, 0, memvfs.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, benchPayload)
	if _, err := s.fsys.Read(fd, buf); err != nil {
		return err
	}
	if !slices.Equal(buf, payload) {
		return fmt.Errorf("%s: read back different data", name)
	}
	return nil
}

func (s *Shell) cmdHelp(_ context.Context, _ []string) error {
	fmt.Fprintln(s.out, "Commands:")
	for _, name := range Commands() {
		fmt.Fprintf(s.out, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(s.out, "Prefix a line with '!' to expect an error.")
	return nil
}

func (s *Shell) cmdExit(_ context.Context, _ []string) error {
	return ErrExit
}
