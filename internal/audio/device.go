// Package audio plays MP3 bytes from a stream buffer through the speaker
// using beep.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

const (
	SpeakerBufferSize   = time.Millisecond * 250
	SampleChannelSize   = 8192
	DecodeBatchSize     = 4096
	ResampleQuality     = 4
	OpenTimeout         = 10 * time.Second
	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
	// seekMargin keeps a seek inside the downloaded part of the stream far
	// enough from the tail for the decoder to find a frame.
	seekMargin = 16 * 1024
)

var (
	ErrNotOpen     = errors.New("no track open")
	ErrOpenAborted = errors.New("open aborted by a newer request")
)

// Device decodes one Source at a time and mixes it into the speaker.
// Output starts paused; the caller decides when to Play.
type Device struct {
	mu          sync.Mutex
	bitrate     int
	speakerRate beep.SampleRate
	speakerInit bool

	src        Source
	format     beep.Format
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	volume     *effects.Volume
	ctrl       *beep.Ctrl
	level      float64
	paused     bool
	basePos    time.Duration
	played     atomic.Int64
	finished   chan struct{}
	finishOnce *sync.Once
	// generation changes on every stop; an Open that sees it move was
	// overtaken.
	generation uint64
}

// NewDevice creates a device. bitrateKbps maps seek positions to byte
// offsets; level is the initial volume in [0, 1].
func NewDevice(bitrateKbps int, level float64) *Device {
	return &Device{
		bitrate: bitrateKbps,
		level:   clampLevel(level),
		paused:  true,
	}
}

func clampLevel(level float64) float64 {
	return math.Max(0, math.Min(1, level))
}

func (d *Device) initSpeakerLocked(sampleRate beep.SampleRate) error {
	if d.speakerInit {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize speaker: %w", err)
	}
	d.speakerRate = sampleRate
	d.speakerInit = true
	log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", sampleRate, SpeakerBufferSize)
	return nil
}

// Open replaces the current track with src, positioned at its start. The
// stream header is decoded without holding the device lock; a Stop or Open
// arriving meanwhile aborts this one with ErrOpenAborted.
func (d *Device) Open(src Source) error {
	d.mu.Lock()
	d.stopLocked()
	d.src = nil
	gen := d.generation
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	decoder, format, err := decodeStream(ctx, cancel, src)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.generation {
		if err == nil {
			decoder.Close()
		}
		cancel()
		return ErrOpenAborted
	}
	d.cancel = nil
	if err != nil {
		return err
	}

	d.src = src
	d.paused = true
	d.finished = make(chan struct{})
	d.finishOnce = &sync.Once{}

	if err := d.installLocked(ctx, cancel, decoder, format, 0); err != nil {
		d.src = nil
		return err
	}
	return nil
}

// decodeStream reads the MP3 header from src, giving up after OpenTimeout.
// cancel aborts the reader; it stays tied to ctx for the decoder's lifetime.
func decodeStream(ctx context.Context, cancel context.CancelFunc, src io.Reader) (beep.StreamSeekCloser, beep.Format, error) {
	openTimer := time.AfterFunc(OpenTimeout, cancel)
	decoder, format, err := mp3.Decode(newStallReader(ctx, src))
	if !openTimer.Stop() && err == nil {
		decoder.Close()
		err = fmt.Errorf("timed out waiting for audio data")
	}
	if err != nil {
		cancel()
		return nil, beep.Format{}, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}
	return decoder, format, nil
}

func (d *Device) installLocked(ctx context.Context, cancel context.CancelFunc, decoder beep.StreamSeekCloser, format beep.Format, pos time.Duration) error {
	if err := d.initSpeakerLocked(format.SampleRate); err != nil {
		decoder.Close()
		cancel()
		return err
	}

	samples := make(chan [2]float64, SampleChannelSize)
	d.played.Store(0)

	var s beep.Streamer = &channelStreamer{samples: samples, played: &d.played}
	if format.SampleRate != d.speakerRate {
		s = beep.Resample(ResampleQuality, format.SampleRate, d.speakerRate, s)
	}

	d.volume = &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   percentToExponent(d.level * 100),
		Silent:   d.level <= 0,
	}

	finished, once := d.finished, d.finishOnce
	d.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(d.volume, beep.Callback(func() {
			once.Do(func() { close(finished) })
		})),
		Paused: d.paused,
	}

	d.format = format
	d.basePos = pos
	d.cancel = cancel

	d.wg.Add(1)
	go d.decode(ctx, decoder, samples)

	speaker.Play(d.ctrl)
	log.Debug().Msgf("Decoding at %v (sample rate: %d Hz)", pos, format.SampleRate)
	return nil
}

// stopLocked removes the pipeline from the speaker before stopping the
// decoder, so a closed sample channel is never mistaken for end of track.
func (d *Device) stopLocked() {
	d.generation++
	if d.ctrl != nil && d.speakerInit {
		speaker.Clear()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	d.ctrl = nil
	d.volume = nil
	d.cancel = nil
}

func (d *Device) decode(ctx context.Context, decoder beep.StreamSeekCloser, samples chan<- [2]float64) {
	defer func() {
		decoder.Close()
		close(samples)
		d.wg.Done()
		log.Debug().Msg("Decoder goroutine stopped")
	}()

	batch := make([][2]float64, DecodeBatchSize)

	for {
		n, ok := decoder.Stream(batch)
		for i := 0; i < n; i++ {
			select {
			case samples <- batch[i]:
			case <-ctx.Done():
				return
			}
		}

		if !ok {
			if err := decoder.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Error().Err(err).Msg("Stream decoding error")
			}
			return
		}
	}
}

func (d *Device) setPaused(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.paused = paused
	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	d.ctrl.Paused = paused
	speaker.Unlock()
}

func (d *Device) Play() {
	d.setPaused(false)
}

func (d *Device) Pause() {
	d.setPaused(true)
}

// Seek restarts decoding at pos. Positions past the downloaded part are
// clamped to it.
func (d *Device) Seek(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil {
		return ErrNotOpen
	}

	if pos < 0 {
		pos = 0
	}
	offset := byteOffset(pos, d.bitrate)

	if limit := max(d.src.Loaded()-seekMargin, 0); offset > limit {
		offset = limit
		pos = positionAt(offset, d.bitrate)
	}

	d.stopLocked()

	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to %v: %w", pos, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	decoder, format, err := decodeStream(ctx, cancel, d.src)
	if err != nil {
		return err
	}
	return d.installLocked(ctx, cancel, decoder, format, pos)
}

func positionAt(offset int64, bitrateKbps int) time.Duration {
	if bitrateKbps <= 0 {
		return 0
	}
	return time.Duration(float64(offset) * 8 / (float64(bitrateKbps) * 1000) * float64(time.Second))
}

func (d *Device) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.format.SampleRate == 0 {
		return d.basePos
	}
	return d.basePos + d.format.SampleRate.D(int(d.played.Load()))
}

// SetVolume sets the output level in [0, 1].
func (d *Device) SetVolume(level float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.level = clampLevel(level)
	if d.volume == nil {
		return
	}

	speaker.Lock()
	d.volume.Volume = percentToExponent(d.level * 100)
	d.volume.Silent = d.level <= 0
	speaker.Unlock()
}

func (d *Device) Volume() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Finished is closed when the open track plays to its end. It is nil before
// the first Open.
func (d *Device) Finished() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// Stop halts output and forgets the current track.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.src = nil
	d.basePos = 0
	d.played.Store(0)
}

func (d *Device) Close() {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.speakerInit {
		speaker.Close()
		d.speakerInit = false
	}
}

func percentToExponent(p float64) float64 {
	if p <= 0 {
		return MinVolumeDB
	}
	if p >= 100 {
		return 0
	}

	normalized := p / 100.0
	adjusted := math.Pow(normalized, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}
