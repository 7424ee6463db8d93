package audio

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/streambuf"
)

const (
	MinStallBackoff = 20 * time.Millisecond
	MaxStallBackoff = 500 * time.Millisecond
)

// Source is the pull side of a track's bytes.
type Source interface {
	io.ReadSeeker
	// Loaded is how many bytes are available so far; seeks stay below it.
	Loaded() int64
}

// stallReader turns a stalling Source into a plain blocking io.Reader for the
// decoder: a stalled read is retried with exponential backoff until data
// arrives or ctx ends.
type stallReader struct {
	ctx        context.Context
	src        io.Reader
	minBackoff time.Duration
	maxBackoff time.Duration
}

func newStallReader(ctx context.Context, src io.Reader) *stallReader {
	return &stallReader{
		ctx:        ctx,
		src:        src,
		minBackoff: MinStallBackoff,
		maxBackoff: MaxStallBackoff,
	}
}

func (r *stallReader) Read(p []byte) (int, error) {
	backoff := r.minBackoff

	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		n, err := r.src.Read(p)
		if !errors.Is(err, streambuf.ErrStalled) {
			return n, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return 0, r.ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

func (r *stallReader) Close() error {
	return nil
}

// byteOffset maps a playback position onto a byte offset in a constant
// bitrate stream.
func byteOffset(pos time.Duration, bitrateKbps int) int64 {
	if pos <= 0 || bitrateKbps <= 0 {
		return 0
	}
	return int64(pos.Seconds() * float64(bitrateKbps) * 1000 / 8)
}
