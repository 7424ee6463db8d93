// Package player drives playback of the queue: it loads the current track,
// opens the audio device over its stream buffer, fades volume on play and
// pause, reports the position and advances when a track ends.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/audio"
	"github.com/glebovdev/soundcloud-cli/internal/loader"
	"github.com/glebovdev/soundcloud-cli/internal/queue"
	"github.com/glebovdev/soundcloud-cli/internal/supersede"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFadeDuration   = 150 * time.Millisecond
	DefaultFadeStep       = 20 * time.Millisecond
	DefaultReportInterval = 250 * time.Millisecond

	// MaxConsecutiveSkips bounds how many unplayable tracks are skipped in a row.
	MaxConsecutiveSkips = 25
)

var ErrNothingPlaying = errors.New("nothing is playing")

// Loader produces a primed buffer for a track.
type Loader interface {
	Load(ctx context.Context, t *track.Track, progress func(done, total int)) loader.Outcome
}

// Device renders one stream at a time.
type Device interface {
	Open(src audio.Source) error
	Play()
	Pause()
	Seek(pos time.Duration) error
	Position() time.Duration
	SetVolume(level float64)
	Volume() float64
	// Finished is closed when the opened stream has been played to the end.
	Finished() <-chan struct{}
	Stop()
	Close()
}

// Continuation supplies more tracks when the queue runs out. An empty result
// ends playback.
type Continuation func(ctx context.Context) ([]track.Track, error)

type Options struct {
	Continuation   Continuation
	Volume         float64
	FadeDuration   time.Duration
	FadeStep       time.Duration
	ReportInterval time.Duration
}

type Player struct {
	loader Loader
	device Device
	queue  *queue.Queue
	opts   Options

	loads *supersede.Group
	fades *supersede.Group

	// openMu serializes device opens so a stale open never lands after a
	// newer one. It is taken before mu.
	openMu sync.Mutex

	mu      sync.Mutex
	state   PlayState
	message string
	current *track.Track
	// opened is the load op whose stream the device holds, nil when none.
	opened *supersede.Op
	ended  bool
	volume float64
	// wantPaused records a Pause that arrived before the track started.
	wantPaused bool

	subsMu sync.Mutex
	subs   []*Subscription
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPlayer(l Loader, device Device, q *queue.Queue, opts Options) *Player {
	if opts.FadeDuration <= 0 {
		opts.FadeDuration = DefaultFadeDuration
	}
	if opts.FadeStep <= 0 {
		opts.FadeStep = DefaultFadeStep
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = DefaultReportInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		loader: l,
		device: device,
		queue:  q,
		opts:   opts,
		loads:  supersede.NewGroup("load"),
		fades:  supersede.NewGroup("fade"),
		state:  StatePaused,
		volume: clampLevel(opts.Volume),
		ctx:    ctx,
		cancel: cancel,
	}

	q.OnChange(p.onQueueChange)

	p.wg.Add(1)
	go p.report()

	return p
}

func clampLevel(level float64) float64 {
	return max(0, min(1, level))
}

// setStateLocked must be called with p.mu held.
func (p *Player) setStateLocked(state PlayState, message string) {
	if p.state == state && p.message == message {
		return
	}
	p.state = state
	p.message = message
	log.Debug().Str("state", state.String()).Str("message", message).Msg("Playback state")
	p.broadcastState(StateChange{State: state, Message: message})
}

// setStateFor publishes a state on behalf of op, dropping it when op is stale.
func (p *Player) setStateFor(op *supersede.Op, state PlayState, message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if op.Superseded() {
		return false
	}
	p.setStateLocked(state, message)
	return true
}

// PlayCurrent loads and plays the queue's current track, superseding any
// load in flight. It returns once the track is playing or the attempt ended.
func (p *Player) PlayCurrent() {
	p.run(p.begin(), false)
}

// PlayNext advances the queue and plays the new current track. When the
// queue is exhausted the continuation is consulted.
func (p *Player) PlayNext() {
	p.run(p.begin(), true)
}

// begin starts a load op. Queue moves of older ops happen under mu, so once
// begin returns none of them can touch the cursor any more.
func (p *Player) begin() *supersede.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wantPaused = false
	return p.loads.Begin(p.ctx)
}

func (p *Player) Next() {
	p.PlayNext()
}

// Previous moves back in the queue, or restarts the track at the head.
func (p *Player) Previous() {
	if p.queue.TryMoveBack() {
		p.PlayCurrent()
		return
	}
	if err := p.Seek(0); err != nil {
		p.PlayCurrent()
	}
}

// run plays the current track, moving on past skipped ones. At most
// MaxConsecutiveSkips tracks are skipped before giving up.
func (p *Player) run(op *supersede.Op, advance bool) {
	skips := 0
	for {
		if advance && !p.moveForward(op) {
			return
		}
		t, ok := p.queue.TryGetCurrent()
		if !ok {
			p.stopFor(op, "Queue is empty")
			return
		}
		if !p.load(op, t) {
			return
		}
		skips++
		if skips >= MaxConsecutiveSkips {
			p.setStateFor(op, StateError, "Too many unplayable tracks")
			return
		}
		advance = true
	}
}

// stepForward advances the queue cursor for op. ok is false when op was
// superseded, in which case the cursor is left alone.
func (p *Player) stepForward(op *supersede.Op) (moved, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if op.Superseded() {
		return false, false
	}
	return p.queue.TryMoveForward(), true
}

func (p *Player) moveForward(op *supersede.Op) bool {
	moved, ok := p.stepForward(op)
	if !ok {
		return false
	}
	if moved {
		return true
	}
	if p.opts.Continuation == nil {
		p.endOfQueue(op)
		return false
	}

	more, err := p.opts.Continuation(op.Context())
	if op.Superseded() {
		return false
	}
	if err != nil {
		if op.Context().Err() != nil {
			return false
		}
		log.Error().Err(err).Msg("Failed to extend queue")
		p.setStateFor(op, StateError, fmt.Sprintf("Failed to extend queue: %v", err))
		return false
	}
	if len(more) == 0 {
		p.endOfQueue(op)
		return false
	}

	log.Debug().Int("tracks", len(more)).Msg("Queue extended")
	p.queue.AddRange(more)
	moved, ok = p.stepForward(op)
	if !ok {
		return false
	}
	if !moved {
		p.endOfQueue(op)
		return false
	}
	return true
}

func (p *Player) endOfQueue(op *supersede.Op) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if op.Superseded() {
		return
	}
	p.fades.Cancel()
	p.device.Pause()
	p.ended = true
	p.setStateLocked(StatePaused, "End of queue")
}

func (p *Player) stopFor(op *supersede.Op, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if op.Superseded() {
		return
	}
	p.fades.Cancel()
	p.device.Stop()
	p.opened = nil
	p.current = nil
	p.setStateLocked(StatePaused, message)
}

// load runs one attempt for t under op. It reports whether the track was
// skipped and the caller should move on.
func (p *Player) load(op *supersede.Op, t track.Track) bool {
	p.mu.Lock()
	if op.Superseded() {
		p.mu.Unlock()
		return false
	}
	p.fades.Cancel()
	p.device.Stop()
	p.opened = nil
	p.ended = false
	p.current = &t
	index := p.queue.Position()
	p.broadcastTrackChanging(TrackChange{Track: t, Index: index})
	p.setStateLocked(StateLoading, "")
	p.mu.Unlock()

	log.Info().Int64("track", t.ID).Str("title", t.DisplayName()).Msg("Loading track")

	out := p.loader.Load(op.Context(), &t, func(done, total int) {
		p.setStateFor(op, StateLoading, fmt.Sprintf("Buffering %d/%d", done, total))
	})

	switch out.Status {
	case loader.StatusSkip:
		if op.Superseded() {
			return false
		}
		log.Info().Int64("track", t.ID).Msg("Skipping unplayable track")
		return true
	case loader.StatusError:
		if out.Canceled() || op.Superseded() {
			return false
		}
		p.setStateFor(op, StateError, out.Err.Error())
		return false
	}

	if !p.open(op, t, index, out) {
		return false
	}
	p.fadeIn(op)
	return false
}

// open hands the primed buffer to the device and starts the background
// fetch and end-of-track watcher. Opening decodes the stream header and can
// block, so only openMu is held while it runs.
func (p *Player) open(op *supersede.Op, t track.Track, index int, out loader.Outcome) bool {
	p.openMu.Lock()
	defer p.openMu.Unlock()
	if op.Superseded() {
		return false
	}
	err := p.device.Open(out.Buffer)

	p.mu.Lock()
	defer p.mu.Unlock()
	if op.Superseded() {
		if err == nil {
			p.device.Stop()
		}
		return false
	}
	if err != nil {
		log.Error().Err(err).Int64("track", t.ID).Msg("Failed to open audio device")
		p.setStateLocked(StateError, fmt.Sprintf("Playback failed: %v", err))
		return false
	}

	p.opened = op
	finished := p.device.Finished()
	p.setStateLocked(StateLoaded, "")
	p.broadcastTrackChanged(TrackChange{Track: t, Index: index})
	if out.Background != nil {
		p.wg.Add(1)
		go p.fetchRest(op, out.Background)
	}
	p.wg.Add(1)
	go p.watchEnd(op, finished)
	return true
}

func (p *Player) fetchRest(op *supersede.Op, background func(context.Context) error) {
	defer p.wg.Done()

	err := background(op.Context())
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if op.Superseded() {
		return
	}
	log.Error().Err(err).Msg("Background download failed")
	p.fades.Cancel()
	p.device.Stop()
	p.opened = nil
	p.setStateLocked(StateError, fmt.Sprintf("Download failed: %v", err))
	// Retire the op so its end-of-track watcher exits without advancing.
	p.loads.Cancel()
}

func (p *Player) watchEnd(op *supersede.Op, finished <-chan struct{}) {
	defer p.wg.Done()

	select {
	case <-finished:
	case <-op.Context().Done():
		return
	}

	p.mu.Lock()
	if op.Superseded() {
		p.mu.Unlock()
		return
	}
	next := p.loads.Begin(p.ctx)
	p.mu.Unlock()

	log.Debug().Msg("Track finished")
	p.run(next, true)
}

func (p *Player) fadeIn(load *supersede.Op) {
	fade := p.fades.Begin(p.ctx)
	defer fade.Finish()

	p.mu.Lock()
	if load.Superseded() || fade.Superseded() {
		p.mu.Unlock()
		return
	}
	if p.wantPaused {
		p.wantPaused = false
		p.device.SetVolume(0)
		p.setStateLocked(StatePaused, "")
		p.mu.Unlock()
		return
	}
	p.device.SetVolume(0)
	p.device.Play()
	p.setStateLocked(StatePlaying, "")
	target := p.volume
	p.mu.Unlock()

	p.ramp(fade, 0, target)
}

// ramp moves the device volume linearly from -> to. It returns false when
// the fade was superseded.
func (p *Player) ramp(fade *supersede.Op, from, to float64) bool {
	steps := int(p.opts.FadeDuration / p.opts.FadeStep)
	if steps < 1 {
		steps = 1
	}

	ticker := time.NewTicker(p.opts.FadeStep)
	defer ticker.Stop()

	for i := 1; i <= steps; i++ {
		select {
		case <-fade.Context().Done():
			return false
		case <-ticker.C:
		}

		p.mu.Lock()
		if fade.Superseded() {
			p.mu.Unlock()
			return false
		}
		// Fade-ins follow volume changes made while they run.
		if to > 0 {
			to = p.volume
		}
		level := from + (to-from)*float64(i)/float64(steps)
		p.device.SetVolume(level)
		p.mu.Unlock()
	}
	return true
}

// Play resumes playback with a fade in. A track that ended or failed is
// loaded again.
func (p *Player) Play() {
	p.mu.Lock()
	switch {
	case p.state == StateLoading || p.state == StateLoaded:
		p.wantPaused = false
		p.mu.Unlock()
		return
	case p.opened == nil || p.ended || p.state == StateError:
		p.mu.Unlock()
		p.PlayCurrent()
		return
	}
	p.mu.Unlock()

	fade := p.fades.Begin(p.ctx)
	defer fade.Finish()

	p.mu.Lock()
	if fade.Superseded() || p.opened == nil {
		p.mu.Unlock()
		return
	}
	from := p.device.Volume()
	if p.state != StatePlaying {
		from = 0
		p.device.SetVolume(0)
	}
	p.device.Play()
	p.setStateLocked(StatePlaying, "")
	target := p.volume
	p.mu.Unlock()

	p.ramp(fade, from, target)
}

// Pause fades out and then pauses the device. A pause during loading holds
// the track at Paused once it is ready.
func (p *Player) Pause() {
	p.mu.Lock()
	switch p.state {
	case StateLoading, StateLoaded:
		p.wantPaused = true
		p.mu.Unlock()
		return
	case StatePlaying:
	default:
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	fade := p.fades.Begin(p.ctx)
	defer fade.Finish()

	if !p.ramp(fade, p.device.Volume(), 0) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fade.Superseded() {
		return
	}
	p.device.Pause()
	p.setStateLocked(StatePaused, "")
}

func (p *Player) TogglePause() {
	p.mu.Lock()
	pause := p.state == StatePlaying
	if p.state == StateLoading || p.state == StateLoaded {
		pause = !p.wantPaused
	}
	p.mu.Unlock()

	if pause {
		p.Pause()
		return
	}
	p.Play()
}

// Seek jumps within the current track and publishes the new position.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opened == nil {
		return ErrNothingPlaying
	}
	if pos < 0 {
		pos = 0
	}
	if err := p.device.Seek(pos); err != nil {
		return fmt.Errorf("seek failed: %w", err)
	}
	p.broadcastPosition(p.device.Position())
	return nil
}

// SeekBy moves the position by delta relative to where playback is now.
func (p *Player) SeekBy(delta time.Duration) error {
	return p.Seek(p.Position() + delta)
}

// Stop abandons the current load and stops output.
func (p *Player) Stop() {
	p.loads.Cancel()
	p.fades.Cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.device.Stop()
	p.opened = nil
	p.setStateLocked(StatePaused, "Stopped")
}

// Close stops playback, waits for background work and releases the device.
func (p *Player) Close() {
	p.Stop()
	p.cancel()
	p.wg.Wait()
	p.device.Close()
	p.closeSubscriptions()
}

func (p *Player) SetVolume(level float64) {
	level = clampLevel(level)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = level
	if p.state == StatePlaying && p.fades.Current() == nil {
		p.device.SetVolume(level)
	}
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) State() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Message is the human readable detail of the current state, if any.
func (p *Player) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

func (p *Player) Current() (track.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return track.Track{}, false
	}
	return *p.current, true
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened == nil {
		return 0
	}
	return p.device.Position()
}

func (p *Player) report() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.state == StatePlaying && p.opened != nil {
				p.broadcastPosition(p.device.Position())
			}
			p.mu.Unlock()
		}
	}
}

// onQueueChange forwards queue edits to subscribers and reacts when the
// playing track was removed.
func (p *Player) onQueueChange(c queue.Change) {
	p.broadcastQueue(c)

	if c.Kind != queue.ChangeRemoved && c.Kind != queue.ChangeCleared {
		return
	}
	cur, ok := p.Current()
	if !ok || p.queue.HasTrack(cur.ID) {
		return
	}

	if p.queue.Len() == 0 {
		log.Debug().Msg("Queue emptied, stopping")
		op := p.loads.Begin(p.ctx)
		p.stopFor(op, "Queue is empty")
		return
	}

	select {
	case <-p.ctx.Done():
		return
	default:
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.PlayCurrent()
	}()
}
