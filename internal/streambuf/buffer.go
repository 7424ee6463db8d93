// Package streambuf provides the growable byte store that sits between the
// segment downloader and the audio decoder.
//
// A Buffer has exactly one producer (Append, MarkFinished) and one consumer
// (Read, Seek). The consumer never blocks: when the requested bytes have not
// arrived yet, Read reports ErrStalled and the caller retries later.
package streambuf

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrStalled means the requested range is not downloaded yet. It is not an
// end of stream.
var ErrStalled = errors.New("streambuf: data not yet available")

// Buffer is a growable byte array with a single read cursor.
//
// Invariant: offset <= loaded <= len(data).
type Buffer struct {
	// mu guards the data slice header; growth swaps it.
	mu   sync.RWMutex
	data []byte

	loaded   atomic.Int64
	offset   atomic.Int64
	finished atomic.Bool
}

// New creates a buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Append copies p onto the tail. When the backing array is too small it is
// reallocated to exactly loaded+len(p) bytes, keeping what was written.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	loaded := b.loaded.Load()
	need := loaded + int64(len(p))

	b.mu.Lock()
	if int64(len(b.data)) < need {
		grown := make([]byte, need)
		copy(grown, b.data[:loaded])
		b.data = grown
	}
	copy(b.data[loaded:need], p)
	b.mu.Unlock()

	b.loaded.Store(need)
}

// Read fills p starting at the read cursor, treating len(p) as the requested
// length. While the stream is unfinished a request that reaches past the
// loaded tail returns ErrStalled and leaves the cursor alone. Once finished it
// returns whatever is left (io.EOF when nothing is). Bytes of p past the
// returned count are not touched.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// finished must be observed before loaded so a concurrent final Append
	// cannot be missed.
	finished := b.finished.Load()
	loaded := b.loaded.Load()
	offset := b.offset.Load()

	want := int64(len(p))
	if offset+want > loaded {
		if !finished {
			return 0, ErrStalled
		}
		want = loaded - offset
	}
	if want <= 0 {
		return 0, io.EOF
	}

	b.mu.RLock()
	n := copy(p[:want], b.data[offset:offset+want])
	b.mu.RUnlock()

	b.offset.Add(int64(n))
	return n, nil
}

// Seek moves the read cursor. Targets beyond the loaded tail stall until the
// stream is finished, after which they clamp to the tail.
func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	finished := b.finished.Load()
	loaded := b.loaded.Load()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = b.offset.Load() + offset
	case io.SeekEnd:
		if !finished {
			return b.offset.Load(), ErrStalled
		}
		target = loaded + offset
	default:
		return b.offset.Load(), errors.New("streambuf: invalid whence")
	}

	if target < 0 {
		return b.offset.Load(), errors.New("streambuf: negative position")
	}
	if target > loaded {
		if !finished {
			return b.offset.Load(), ErrStalled
		}
		target = loaded
	}

	b.offset.Store(target)
	return target, nil
}

// MarkFinished records that no more bytes will be appended. Idempotent.
func (b *Buffer) MarkFinished() {
	b.finished.Store(true)
}

// Finished reports whether MarkFinished was called.
func (b *Buffer) Finished() bool {
	return b.finished.Load()
}

// Loaded returns the number of bytes appended so far.
func (b *Buffer) Loaded() int64 {
	return b.loaded.Load()
}

// Offset returns the read cursor.
func (b *Buffer) Offset() int64 {
	return b.offset.Load()
}

// Capacity returns the size of the backing array.
func (b *Buffer) Capacity() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// Length is the best known total size: the initial estimate (or the grown
// capacity) while downloading, the exact size once finished.
func (b *Buffer) Length() int64 {
	if b.finished.Load() {
		return b.loaded.Load()
	}
	return max(b.Capacity(), b.loaded.Load())
}

// Bytes returns a copy of everything appended so far.
func (b *Buffer) Bytes() []byte {
	loaded := b.loaded.Load()

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, loaded)
	copy(out, b.data[:loaded])
	return out
}
