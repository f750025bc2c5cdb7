package memvfs_test

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/kmrgirish/memvfs"
)

type modelFile struct {
	data []byte
}

type modelFD struct {
	file *modelFile
	pos  int64
}

// fsModel is the reference behavior: names and descriptors pointing at
// shared byte slices.
type fsModel struct {
	names map[string]*modelFile
	fds   map[int]*modelFD
}

func (m *fsModel) live() int {
	seen := make(map[*modelFile]bool)
	for _, f := range m.names {
		seen[f] = true
	}
	for _, fd := range m.fds {
		seen[fd.file] = true
	}
	return len(seen)
}

func (m *fsModel) openFDs() []int {
	return slices.Sorted(maps.Keys(m.fds))
}

const modelMaxDescriptors = 4

func TestFilesystemModel(t *testing.T) {
	rapid.Check(t, checkFilesystemModel)
}

func checkFilesystemModel(t *rapid.T) {
	fsys := memvfs.New(memvfs.Options{MaxDescriptors: modelMaxDescriptors})
	m := &fsModel{
		names: make(map[string]*modelFile),
		fds:   make(map[int]*modelFD),
	}

	nameGen := rapid.SampledFrom([]string{"a", "b", "c"})
	drawFD := func(t *rapid.T) int {
		open := m.openFDs()
		if len(open) == 0 {
			t.Skip("no open descriptors")
		}
		return rapid.SampledFrom(open).Draw(t, "fd")
	}
	expect := func(t *rapid.T, err, want error) {
		if !errors.Is(err, want) {
			t.Fatalf("got error %v, want %v", err, want)
		}
	}

	t.Repeat(map[string]func(*rapid.T){
		"open": func(t *rapid.T) {
			name := nameGen.Draw(t, "name")
			create := rapid.Bool().Draw(t, "create")
			flags := memvfs.O_RDWR
			if create {
				flags |= memvfs.O_CREATE
			}

			fd, err := fsys.Open(name, flags)
			f, exists := m.names[name]
			switch {
			case !exists && !create:
				expect(t, err, memvfs.ErrNotFound)
				return
			case len(m.fds) == modelMaxDescriptors:
				expect(t, err, memvfs.ErrTooManyOpen)
				return
			}
			if err != nil {
				t.Fatalf("open %q: %v", name, err)
			}
			if _, ok := m.fds[fd]; ok {
				t.Fatalf("descriptor %d handed out twice", fd)
			}
			if !exists {
				f = &modelFile{}
				m.names[name] = f
			}
			m.fds[fd] = &modelFD{file: f}
		},
		"write": func(t *rapid.T) {
			fd := drawFD(t)
			data := rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "data")

			n, err := fsys.Write(fd, data)
			if err != nil || n != len(data) {
				t.Fatalf("write: %d, %v", n, err)
			}

			mfd := m.fds[fd]
			end := mfd.pos + int64(len(data))
			if grow := end - int64(len(mfd.file.data)); grow > 0 {
				mfd.file.data = append(mfd.file.data, make([]byte, grow)...)
			}
			copy(mfd.file.data[mfd.pos:], data)
			mfd.pos = end
		},
		"read": func(t *rapid.T) {
			fd := drawFD(t)
			n := rapid.IntRange(0, 300).Draw(t, "n")

			buf := make([]byte, n)
			got, err := fsys.Read(fd, buf)

			mfd := m.fds[fd]
			if mfd.pos+int64(n) > int64(len(mfd.file.data)) {
				expect(t, err, memvfs.ErrOutOfRange)
				return
			}
			if err != nil || got != n {
				t.Fatalf("read: %d, %v", got, err)
			}
			if want := mfd.file.data[mfd.pos : mfd.pos+int64(n)]; !bytes.Equal(buf, want) {
				t.Fatalf("read at %d: got %x, want %x", mfd.pos, buf, want)
			}
			mfd.pos += int64(n)
		},
		"seek": func(t *rapid.T) {
			fd := drawFD(t)
			off := rapid.Int64Range(-50, 500).Draw(t, "off")
			whence := rapid.SampledFrom([]memvfs.Whence{memvfs.SeekStart, memvfs.SeekCurrent, memvfs.SeekEnd}).Draw(t, "whence")

			pos, err := fsys.Seek(fd, off, whence)

			mfd := m.fds[fd]
			want := off
			switch whence {
			case memvfs.SeekCurrent:
				want += mfd.pos
			case memvfs.SeekEnd:
				want += int64(len(mfd.file.data))
			}
			if want < 0 {
				expect(t, err, memvfs.ErrInvalid)
				return
			}
			if err != nil || pos != want {
				t.Fatalf("seek: got %d, %v, want %d", pos, err, want)
			}
			mfd.pos = want
		},
		"close": func(t *rapid.T) {
			fd := drawFD(t)
			if err := fsys.Close(fd); err != nil {
				t.Fatal(err)
			}
			delete(m.fds, fd)
			expect(t, fsys.Close(fd), memvfs.ErrBadDescriptor)
		},
		"unlink": func(t *rapid.T) {
			name := nameGen.Draw(t, "name")
			err := fsys.Unlink(name)
			if _, ok := m.names[name]; !ok {
				expect(t, err, memvfs.ErrNotFound)
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			delete(m.names, name)
		},
		"rename": func(t *rapid.T) {
			from := nameGen.Draw(t, "from")
			to := nameGen.Draw(t, "to")
			err := fsys.Rename(from, to)
			f, ok := m.names[from]
			if !ok {
				expect(t, err, memvfs.ErrNotFound)
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			delete(m.names, from)
			m.names[to] = f
		},
		"truncate": func(t *rapid.T) {
			fd := drawFD(t)
			size := rapid.Int64Range(0, 500).Draw(t, "size")
			if err := fsys.Truncate(fd, size); err != nil {
				t.Fatal(err)
			}
			f := m.fds[fd].file
			if size > int64(len(f.data)) {
				f.data = append(f.data, make([]byte, size-int64(len(f.data)))...)
			} else {
				f.data = f.data[:size]
			}
		},
		"": func(t *rapid.T) {
			var names []string
			for _, e := range fsys.ReadDir() {
				names = append(names, e.Name)
			}
			if want := slices.Sorted(maps.Keys(m.names)); !slices.Equal(names, want) {
				t.Fatalf("directory: got %v, want %v", names, want)
			}
			if got, want := fsys.OpenDescriptors(), m.openFDs(); !slices.Equal(got, want) {
				t.Fatalf("descriptors: got %v, want %v", got, want)
			}
			if err := fsys.Check(); err != nil {
				t.Fatal(err)
			}
			if got, want := fsys.LiveInodes(), m.live(); got != want {
				t.Fatalf("live inodes: got %d, want %d", got, want)
			}
			for fd, mfd := range m.fds {
				st, err := fsys.Fstat(fd)
				if err != nil {
					t.Fatal(err)
				}
				if st.Size != int64(len(mfd.file.data)) {
					t.Fatalf("fd %d: size %d, want %d", fd, st.Size, len(mfd.file.data))
				}
			}
		},
	})
}
