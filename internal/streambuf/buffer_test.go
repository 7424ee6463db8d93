package streambuf

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(n int, value byte) []byte {
	return bytes.Repeat([]byte{value}, n)
}

func TestAppendGrowsToExactSize(t *testing.T) {
	b := New(100)

	b.Append(filled(50, 1))
	assert.Equal(t, int64(100), b.Capacity())
	assert.Equal(t, int64(50), b.Loaded())

	b.Append(filled(55, 2))
	assert.Equal(t, int64(105), b.Capacity())
	assert.Equal(t, int64(105), b.Loaded())
}

func TestAppendPreservesBytesAcrossGrowth(t *testing.T) {
	b := New(4)

	var expected []byte
	chunks := [][]byte{{1, 2, 3}, {4, 5}, {6}, {7, 8, 9, 10, 11}, {}}
	for _, c := range chunks {
		b.Append(c)
		expected = append(expected, c...)
		require.Equal(t, expected, b.Bytes())
	}

	assert.Equal(t, int64(len(expected)), b.Loaded())
}

func TestAppendSumOfLengths(t *testing.T) {
	b := New(0)
	total := 0
	for i := 1; i <= 20; i++ {
		b.Append(filled(i*7, byte(i)))
		total += i * 7
	}
	assert.Equal(t, int64(total), b.Loaded())
}

func TestReadStallsWhileUnfinished(t *testing.T) {
	b := New(100)
	b.Append(filled(30, 9))

	p := make([]byte, 40)
	n, err := b.Read(p)
	assert.ErrorIs(t, err, ErrStalled)
	assert.Zero(t, n)
	assert.Zero(t, b.Offset(), "a stalled read must not move the cursor")

	n, err = b.Read(p[:30])
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	assert.Equal(t, int64(30), b.Offset())

	n, err = b.Read(p[:1])
	assert.ErrorIs(t, err, ErrStalled, "an empty tail is a stall, not end of stream")
	assert.Zero(t, n)
}

func TestReadClampsWhenFinished(t *testing.T) {
	b := New(80)
	b.Append(filled(80, 3))
	b.MarkFinished()

	p := make([]byte, 50)
	var got []int
	for _, size := range []int{50, 20, 50} {
		n, err := b.Read(p[:size])
		require.NoError(t, err)
		got = append(got, n)
	}
	assert.Equal(t, []int{50, 20, 10}, got)

	n, err := b.Read(p)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)
}

func TestReadLeavesDestinationTailUntouched(t *testing.T) {
	b := New(0)
	b.Append([]byte{1, 2, 3})
	b.MarkFinished()

	p := filled(8, 0xAA)
	n, err := b.Read(p)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	assert.Equal(t, []byte{1, 2, 3}, p[:3])
	assert.Equal(t, filled(5, 0xAA), p[3:])
}

func TestReadNeverExceedsRequest(t *testing.T) {
	b := New(0)
	b.Append(filled(64, 5))

	for _, size := range []int{1, 7, 16} {
		p := make([]byte, size)
		n, err := b.Read(p)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, size)
	}
}

func TestMarkFinishedIdempotent(t *testing.T) {
	b := New(0)
	b.MarkFinished()
	b.MarkFinished()
	assert.True(t, b.Finished())

	n, err := b.Read(make([]byte, 4))
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)
}

func TestSeek(t *testing.T) {
	b := New(100)
	b.Append(filled(40, 1))

	pos, err := b.Seek(25, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(25), pos)

	pos, err = b.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(30), pos)

	_, err = b.Seek(60, io.SeekStart)
	assert.ErrorIs(t, err, ErrStalled)
	assert.Equal(t, int64(30), b.Offset())

	_, err = b.Seek(0, io.SeekEnd)
	assert.ErrorIs(t, err, ErrStalled)

	_, err = b.Seek(-1, io.SeekStart)
	assert.Error(t, err)

	b.MarkFinished()
	pos, err = b.Seek(60, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(40), pos, "seeks past the end clamp once finished")

	pos, err = b.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(30), pos)
}

func TestLength(t *testing.T) {
	b := New(100)
	b.Append(filled(10, 1))
	assert.Equal(t, int64(100), b.Length())

	b.Append(filled(120, 1))
	assert.Equal(t, int64(130), b.Length())

	b.MarkFinished()
	assert.Equal(t, int64(130), b.Length())

	small := New(100)
	small.Append(filled(10, 1))
	small.MarkFinished()
	assert.Equal(t, int64(10), small.Length())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const chunks = 200
	b := New(16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < chunks; i++ {
			b.Append(filled(13, byte(i)))
		}
		b.MarkFinished()
	}()

	var out []byte
	p := make([]byte, 13)
	for {
		n, err := b.Read(p)
		if err == ErrStalled {
			continue
		}
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, p[:n]...)
	}
	wg.Wait()

	require.Len(t, out, chunks*13)
	for i := 0; i < chunks; i++ {
		assert.Equal(t, filled(13, byte(i)), out[i*13:(i+1)*13])
	}
}
