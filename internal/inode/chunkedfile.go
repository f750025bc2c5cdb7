package inode

import (
	"slices"
	"sync"
	"sync/atomic"
)

// A chunkedFile is the backing storage for an inode. Data is stored in
// fixed-size reference-counted copy-on-write chunks.
//
// Growing a file only appends nil chunks, which read as zeroes, so extending a
// file never copies existing data and never leaves a half-written tail behind.
// Snapshots share chunks with the file they were taken from; the first write
// to a shared chunk copies it.
//
// Chunks are reference counted so that chunks no longer needed go back to a
// sync.Pool and get reused. Files of different filesystems share chunks after
// a snapshot, so the count is atomic.
type chunkedFile struct {
	chunks []*refCountedChunk
	size   int64
}

// chunkSize is the size of one page of file data.
const chunkSize = 4096

type refCountedChunk struct {
	refs atomic.Int32
	data []byte
}

var chunkPool = sync.Pool{
	New: func() any {
		return &refCountedChunk{
			data: make([]byte, chunkSize),
		}
	},
}

func allocRefCountedChunk() *refCountedChunk {
	chunk := chunkPool.Get().(*refCountedChunk)
	if chunk.refs.Load() != 0 {
		panic("inode: pooled chunk still referenced")
	}
	clear(chunk.data)
	chunk.refs.Store(1)
	return chunk
}

func (c *refCountedChunk) incRef() {
	if c.refs.Add(1) <= 1 {
		panic("inode: incRef on released chunk")
	}
}

func (c *refCountedChunk) decRef() {
	switch refs := c.refs.Add(-1); {
	case refs < 0:
		panic("inode: decRef on released chunk")
	case refs == 0:
		chunkPool.Put(c)
	}
}

// shared reports whether another file may still read c.
func (c *refCountedChunk) shared() bool {
	return c.refs.Load() > 1
}

// zeroChunk stands in for nil chunks on reads. It is never written to.
var zeroChunk = func() *refCountedChunk {
	c := &refCountedChunk{data: make([]byte, chunkSize)}
	c.refs.Store(-1e6) // should trigger asserts if it ever leaks into a file
	return c
}()

func chunkCount(size int64) int {
	return int((size + chunkSize - 1) / chunkSize)
}

func chunkedFileFromBytes(data []byte) *chunkedFile {
	f := &chunkedFile{}
	f.Resize(int64(len(data)))
	f.WriteAt(0, data)
	return f
}

func (w *chunkedFile) Size() int64 {
	return w.size
}

// Resize sets the file size. New bytes read as zero.
func (w *chunkedFile) Resize(newSize int64) {
	oldCount := len(w.chunks)
	newCount := chunkCount(newSize)

	if newCount > oldCount {
		w.chunks = append(w.chunks, make([]*refCountedChunk, newCount-oldCount)...)
	} else {
		for i := newCount; i < oldCount; i++ {
			w.releaseChunk(i)
		}
		w.chunks = w.chunks[:newCount]
	}

	// zero the tail of the last chunk so that growing again reads zeroes
	if newSize < w.size {
		if chunkPos := newSize % chunkSize; chunkPos != 0 {
			if chunkIdx := newCount - 1; w.chunks[chunkIdx] != nil {
				chunk := w.ensureWritableChunk(chunkIdx)
				clear(chunk.data[chunkPos:])
			}
		}
	}

	w.size = newSize
}

func (w *chunkedFile) releaseChunk(idx int) {
	chunk := w.chunks[idx]
	if chunk != nil {
		chunk.decRef()
		w.chunks[idx] = nil
	}
}

func (w *chunkedFile) ensureWritableChunk(idx int) *refCountedChunk {
	if chunk := w.chunks[idx]; chunk != nil && !chunk.shared() {
		return chunk
	}
	oldChunk := w.chunks[idx]
	newChunk := allocRefCountedChunk()
	if oldChunk != nil {
		copy(newChunk.data, oldChunk.data)
		oldChunk.decRef()
	}
	w.chunks[idx] = newChunk
	return newChunk
}

func (w *chunkedFile) getReadableChunk(idx int) *refCountedChunk {
	chunk := w.chunks[idx]
	if chunk == nil {
		return zeroChunk
	}
	return chunk
}

// Clone returns a copy sharing all chunks with w.
func (w *chunkedFile) Clone() *chunkedFile {
	chunks := slices.Clone(w.chunks)
	for _, chunk := range chunks {
		if chunk != nil {
			chunk.incRef()
		}
	}
	return &chunkedFile{
		chunks: chunks,
		size:   w.size,
	}
}

// Free releases all chunks. The file is empty afterwards.
func (w *chunkedFile) Free() {
	for i, chunk := range w.chunks {
		if chunk != nil {
			chunk.decRef()
		}
		w.chunks[i] = nil
	}
	// set to nil to prevent reuse
	w.chunks = nil
	w.size = 0
}

// WriteAt copies p to pos. The caller must have resized the file so that
// pos+len(p) <= Size().
func (w *chunkedFile) WriteAt(pos int64, p []byte) {
	for len(p) > 0 {
		chunkIdx := int(pos / chunkSize)
		chunkPos := int(pos % chunkSize)
		if chunkPos == 0 && len(p) >= chunkSize && w.chunks[chunkIdx] != nil && w.chunks[chunkIdx].shared() {
			// whole chunk overwrite of a shared chunk: no need to copy the old data
			w.releaseChunk(chunkIdx)
		}
		chunk := w.ensureWritableChunk(chunkIdx)
		n := copy(chunk.data[chunkPos:], p)
		p = p[n:]
		pos += int64(n)
	}
}

// ReadAt fills p from pos. The caller must check that pos+len(p) <= Size().
func (w *chunkedFile) ReadAt(pos int64, p []byte) {
	for len(p) > 0 {
		chunk := w.getReadableChunk(int(pos / chunkSize))
		n := copy(p, chunk.data[pos%chunkSize:])
		p = p[n:]
		pos += int64(n)
	}
}
