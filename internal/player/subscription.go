package player

import (
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/queue"
	"github.com/glebovdev/soundcloud-cli/internal/track"
)

const eventBufferSize = 64

type StateChange struct {
	State   PlayState
	Message string
}

type TrackChange struct {
	Track track.Track
	Index int
}

type PositionChange struct {
	Position time.Duration
}

// Millis returns the position in whole milliseconds.
func (c PositionChange) Millis() int64 {
	return c.Position.Milliseconds()
}

// Subscription provides event channels for a subscriber. Events are dropped
// when a channel's buffer is full; ordering between subscribers is not
// guaranteed.
type Subscription struct {
	StateChanged    <-chan StateChange
	TrackChanging   <-chan TrackChange
	TrackChanged    <-chan TrackChange
	PositionChanged <-chan PositionChange
	QueueChanged    <-chan queue.Change
	Done            <-chan struct{}

	stateCh    chan StateChange
	changingCh chan TrackChange
	changedCh  chan TrackChange
	positionCh chan PositionChange
	queueCh    chan queue.Change
	doneCh     chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		stateCh:    make(chan StateChange, eventBufferSize),
		changingCh: make(chan TrackChange, eventBufferSize),
		changedCh:  make(chan TrackChange, eventBufferSize),
		positionCh: make(chan PositionChange, eventBufferSize),
		queueCh:    make(chan queue.Change, eventBufferSize),
		doneCh:     make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.TrackChanging = s.changingCh
	s.TrackChanged = s.changedCh
	s.PositionChanged = s.positionCh
	s.QueueChanged = s.queueCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() {
	close(s.doneCh)
}

func send[T any](ch chan T, e T) {
	select {
	case ch <- e:
	default:
	}
}

// Subscribe creates a new event subscription.
func (p *Player) Subscribe() *Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	sub := newSubscription()
	if p.closed {
		sub.close()
		return sub
	}
	p.subs = append(p.subs, sub)
	return sub
}

func (p *Player) each(fn func(*Subscription)) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for _, sub := range p.subs {
		fn(sub)
	}
}

func (p *Player) broadcastState(e StateChange) {
	p.each(func(s *Subscription) { send(s.stateCh, e) })
}

func (p *Player) broadcastTrackChanging(e TrackChange) {
	p.each(func(s *Subscription) { send(s.changingCh, e) })
}

func (p *Player) broadcastTrackChanged(e TrackChange) {
	p.each(func(s *Subscription) { send(s.changedCh, e) })
}

func (p *Player) broadcastPosition(pos time.Duration) {
	p.each(func(s *Subscription) { send(s.positionCh, PositionChange{Position: pos}) })
}

func (p *Player) broadcastQueue(c queue.Change) {
	p.each(func(s *Subscription) { send(s.queueCh, c) })
}

func (p *Player) closeSubscriptions() {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	p.closed = true
	for _, sub := range p.subs {
		sub.close()
	}
	p.subs = nil
}
