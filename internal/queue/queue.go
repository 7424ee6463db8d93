// Package queue implements the ordered, shuffle-capable playback queue.
package queue

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/samber/lo"
)

type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeCleared
	ChangeShuffled
	ChangeUnshuffled
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "ADDED"
	case ChangeRemoved:
		return "REMOVED"
	case ChangeCleared:
		return "CLEARED"
	case ChangeShuffled:
		return "SHUFFLED"
	case ChangeUnshuffled:
		return "UNSHUFFLED"
	default:
		return "UNKNOWN"
	}
}

// Change describes one mutation and the tracks it touched.
type Change struct {
	Kind   ChangeKind
	Tracks []track.Track
}

// entry gives every queued track its own identity, so the same track queued
// twice is still two distinct positions.
type entry struct {
	serial uint64
	track  track.Track
}

// Queue holds the active play order, the original order it was built in and
// a cursor into the active order.
//
// Invariant: 0 <= position < len(active) when the queue is not empty,
// otherwise position == 0.
type Queue struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	active     []entry
	original   []entry
	position   int
	shuffled   bool
	nextSerial uint64
	listeners  []func(Change)
}

// New creates an empty queue. rnd drives shuffling; nil seeds one from the clock.
func New(rnd *rand.Rand) *Queue {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Queue{rnd: rnd}
}

// OnChange registers fn to be called after every mutation. fn runs outside
// the queue lock and may call back into the queue.
func (q *Queue) OnChange(fn func(Change)) {
	q.mu.Lock()
	q.listeners = append(q.listeners, fn)
	q.mu.Unlock()
}

func (q *Queue) notify(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}

func (q *Queue) snapshotListeners() []func(Change) {
	return slices.Clone(q.listeners)
}

func tracksOf(entries []entry) []track.Track {
	return lo.Map(entries, func(e entry, _ int) track.Track { return e.track })
}

func (q *Queue) Add(t track.Track) {
	q.AddRange([]track.Track{t})
}

// AddRange appends tracks to the end of both orders. The cursor does not move.
func (q *Queue) AddRange(tracks []track.Track) {
	if len(tracks) == 0 {
		return
	}

	q.mu.Lock()
	for _, t := range tracks {
		q.nextSerial++
		e := entry{serial: q.nextSerial, track: t}
		q.active = append(q.active, e)
		q.original = append(q.original, e)
	}
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.notify(listeners, Change{Kind: ChangeAdded, Tracks: append([]track.Track(nil), tracks...)})
}

func (q *Queue) Clear() {
	q.mu.Lock()
	removed := tracksOf(q.active)
	q.active = nil
	q.original = nil
	q.position = 0
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.notify(listeners, Change{Kind: ChangeCleared, Tracks: removed})
}

func (q *Queue) TryGetCurrent() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.active) == 0 {
		return track.Track{}, false
	}
	return q.active[q.position].track, true
}

// TryMoveForward advances the cursor. It fails at the last entry.
func (q *Queue) TryMoveForward() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.position+1 >= len(q.active) {
		return false
	}
	q.position++
	return true
}

// TryMoveBack moves the cursor back. It fails at the first entry.
func (q *Queue) TryMoveBack() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.position == 0 || len(q.active) == 0 {
		return false
	}
	q.position--
	return true
}

// TryMoveToTrack moves the cursor to the first entry of t in play order.
func (q *Queue) TryMoveToTrack(t track.Track) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, idx, ok := lo.FindIndexOf(q.active, func(e entry) bool { return e.track.ID == t.ID })
	if !ok {
		return false
	}
	q.position = idx
	return true
}

// RemoveAll removes every entry matching pred from both orders and returns
// how many entries were removed from the play order. When the current entry
// goes, the cursor moves to the first later survivor, or to 0 if there is none.
func (q *Queue) RemoveAll(pred func(track.Track) bool) int {
	q.mu.Lock()

	if len(q.active) == 0 {
		q.mu.Unlock()
		return 0
	}

	matches := func(e entry, _ int) bool { return pred(e.track) }

	var removed []track.Track
	newPos := -1
	survivors := make([]entry, 0, len(q.active))
	for i, e := range q.active {
		if pred(e.track) {
			removed = append(removed, e.track)
			continue
		}
		if newPos < 0 && i >= q.position {
			newPos = len(survivors)
		}
		survivors = append(survivors, e)
	}

	if len(removed) == 0 {
		q.mu.Unlock()
		return 0
	}

	if newPos < 0 {
		newPos = 0
	}

	q.active = survivors
	q.original = lo.Reject(q.original, matches)
	q.position = newPos
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.notify(listeners, Change{Kind: ChangeRemoved, Tracks: removed})
	return len(removed)
}

// SetShuffled turns shuffle on or off. Turning it on permutes only the
// entries after the cursor. Turning it off restores the original order and
// keeps the cursor on the same entry.
func (q *Queue) SetShuffled(on bool) {
	q.mu.Lock()

	if on == q.shuffled {
		q.mu.Unlock()
		return
	}

	kind := ChangeUnshuffled
	if on {
		kind = ChangeShuffled
		q.shuffleAfterCursor()
	} else {
		q.restoreOriginal()
	}
	q.shuffled = on

	tracks := tracksOf(q.active)
	listeners := q.snapshotListeners()
	q.mu.Unlock()

	q.notify(listeners, Change{Kind: kind, Tracks: tracks})
}

func (q *Queue) shuffleAfterCursor() {
	start := q.position + 1
	for i := len(q.active) - 1; i > start; i-- {
		j := start + q.rnd.IntN(i-start+1)
		q.active[i], q.active[j] = q.active[j], q.active[i]
	}
}

func (q *Queue) restoreOriginal() {
	var current uint64
	if len(q.active) > 0 {
		current = q.active[q.position].serial
	}

	q.active = append([]entry(nil), q.original...)

	_, idx, ok := lo.FindIndexOf(q.active, func(e entry) bool { return e.serial == current })
	if !ok {
		idx = 0
	}
	q.position = idx
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

func (q *Queue) Position() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.position
}

func (q *Queue) Shuffled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffled
}

// Tracks returns the tracks in play order.
func (q *Queue) Tracks() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return tracksOf(q.active)
}

// HasTrack reports whether a track with id is queued.
func (q *Queue) HasTrack(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.ContainsBy(q.active, func(e entry) bool { return e.track.ID == id })
}
