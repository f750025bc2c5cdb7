package inode

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

// checker mirrors a chunkedFile with a plain byte slice.
type checker struct {
	f *chunkedFile
	b []byte
}

func newChecker() *checker {
	return &checker{
		f: &chunkedFile{},
	}
}

func (c *checker) resize(newN int) {
	oldN := len(c.b)
	if newN > oldN {
		c.b = append(c.b, make([]byte, newN-oldN)...)
	} else {
		c.b = c.b[:newN]
	}
	c.f.Resize(int64(newN))
}

func (c *checker) write(t *testing.T, from, to int) {
	t.Helper()

	if _, err := rand.Read(c.b[from:to]); err != nil {
		t.Fatal(err)
	}
	c.f.WriteAt(int64(from), c.b[from:to])
}

func (c *checker) read(t *testing.T, from, to int) {
	t.Helper()

	buf := make([]byte, to-from)
	c.f.ReadAt(int64(from), buf)
	if !bytes.Equal(buf, c.b[from:to]) {
		firstBad := 0
		for buf[firstBad] == c.b[from+firstBad] {
			firstBad++
		}
		lastBad := (to - from)
		for buf[lastBad-1] == c.b[from+lastBad-1] {
			lastBad--
		}
		t.Errorf("read %d-%d: bad data %d-%d", from, to, from+firstBad, from+lastBad)
	}
}

func (c *checker) clone() *checker {
	return &checker{
		f: c.f.Clone(),
		b: slices.Clone(c.b),
	}
}

func (c *checker) free() {
	c.f.Free()
	c.f = nil
	c.b = nil
}

var interesting = []int{
	0, 10, chunkSize - 10, chunkSize, chunkSize + 10,
	2*chunkSize - 10, 2 * chunkSize, 2*chunkSize + 10,
	7*chunkSize - 10, 7 * chunkSize, 7*chunkSize + 10,
	8 * chunkSize,
}

func TestFileRead(t *testing.T) {
	data := make([]byte, chunkSize*8)
	if _, err := rand.Read(data); err != nil {
		t.Fatal(err)
	}

	for _, size := range interesting {
		c := &checker{
			f: chunkedFileFromBytes(data[:size]),
			b: data[:size],
		}
		for _, start := range interesting {
			for _, end := range interesting {
				if start > end || end > size {
					continue
				}
				t.Run(fmt.Sprintf("%d/%d-%d", size, start, end), func(t *testing.T) {
					c.read(t, start, end)
				})
			}
		}
		c.f.Free()
	}
}

func TestFileReadHoles(t *testing.T) {
	c := newChecker()
	c.resize(5 * chunkSize)
	c.write(t, chunkSize+10, chunkSize+20)
	c.write(t, 4*chunkSize-5, 4*chunkSize+5)

	if c.f.chunks[0] != nil || c.f.chunks[2] != nil {
		t.Error("untouched chunks should stay nil")
	}
	c.read(t, 0, 5*chunkSize)
}

func TestFileWrite(t *testing.T) {
	f := newChecker()
	f.resize(chunkSize * 3)
	f.read(t, 0, 2*chunkSize)
	f.read(t, chunkSize-10, chunkSize+10)
	f.read(t, chunkSize-10, 2*chunkSize+10)
	f.write(t, 10, chunkSize-10)
	f.read(t, 10, chunkSize-10)
	f.read(t, 0, chunkSize)
	f.read(t, 0, 2*chunkSize)
	f.read(t, 0, chunkSize*3)
	f.write(t, 0, chunkSize*3)
	f.read(t, 0, chunkSize*3)
	f.resize(chunkSize*3 - 10)
	f.resize(chunkSize * 3)
	f.read(t, 0, chunkSize*3)

	f.write(t, 10, 10)
	f.write(t, chunkSize, chunkSize)
	f.write(t, 0, 0)

	f.resize(chunkSize*5 - 10)
	f.read(t, 0, chunkSize*5-10)
	f.write(t, 0, chunkSize*5-10)
	f.read(t, 0, chunkSize*5-10)

	g := f.clone()
	if f.f.chunks[0].refs.Load() != 2 {
		t.Errorf("shared chunk refs: got %d, expected 2", f.f.chunks[0].refs.Load())
	}
	g.read(t, 0, chunkSize*5-10)
	g.write(t, 10, 20)
	g.read(t, 0, chunkSize)
	f.read(t, 0, chunkSize)
	if f.f.chunks[0].refs.Load() != 1 || g.f.chunks[0].refs.Load() != 1 {
		t.Errorf("after copy-on-write: refs %d and %d, expected 1 and 1", f.f.chunks[0].refs.Load(), g.f.chunks[0].refs.Load())
	}

	g.free()

	f.read(t, 0, chunkSize)
	f.resize(10 * chunkSize)
	g = f.clone()
	g.write(t, 0, chunkSize*10)
	f.read(t, 0, 10*chunkSize)
	g.read(t, 0, 10*chunkSize)
}

func TestFileShrinkZeroesTail(t *testing.T) {
	f := newChecker()
	f.resize(2 * chunkSize)
	f.write(t, 0, 2*chunkSize)
	g := f.clone()

	f.resize(chunkSize + 7)
	f.resize(2 * chunkSize)
	f.read(t, 0, 2*chunkSize)

	// the clone shared the truncated chunk and must be unaffected
	g.read(t, 0, 2*chunkSize)
}

func TestCheckChunkedFile(t *testing.T) {
	rapid.Check(t, checkChunkedFile)
}

func checkChunkedFile(t *rapid.T) {
	f := &chunkedFile{}
	var model []byte
	var clones []*chunkedFile
	var cloneModels [][]byte

	const maxSize = 6 * chunkSize

	t.Repeat(map[string]func(*rapid.T){
		"resize": func(t *rapid.T) {
			n := rapid.IntRange(0, maxSize).Draw(t, "n")
			if n > len(model) {
				model = append(model, make([]byte, n-len(model))...)
			} else {
				model = model[:n]
			}
			f.Resize(int64(n))
		},
		"write": func(t *rapid.T) {
			if len(model) == 0 {
				t.Skip("empty")
			}
			from := rapid.IntRange(0, len(model)-1).Draw(t, "from")
			to := rapid.IntRange(from, len(model)).Draw(t, "to")
			data := rapid.SliceOfN(rapid.Byte(), to-from, to-from).Draw(t, "data")
			copy(model[from:to], data)
			f.WriteAt(int64(from), data)
		},
		"clone": func(t *rapid.T) {
			clones = append(clones, f.Clone())
			cloneModels = append(cloneModels, slices.Clone(model))
		},
		"": func(t *rapid.T) {
			if f.Size() != int64(len(model)) {
				t.Fatalf("size %d, expected %d", f.Size(), len(model))
			}
			buf := make([]byte, len(model))
			f.ReadAt(0, buf)
			if !bytes.Equal(buf, model) {
				t.Fatalf("contents differ from model")
			}
			for i, c := range clones {
				buf := make([]byte, c.Size())
				c.ReadAt(0, buf)
				if !bytes.Equal(buf, cloneModels[i]) {
					t.Fatalf("clone %d changed", i)
				}
			}
		},
	})

	for _, c := range clones {
		c.Free()
	}
	f.Free()
}
