package queue

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tracks(ids ...int64) []track.Track {
	out := make([]track.Track, len(ids))
	for i, id := range ids {
		out[i] = track.Track{ID: id}
	}
	return out
}

func ids(ts []track.Track) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func traverse(t *testing.T, q *Queue) []int64 {
	t.Helper()
	var out []int64
	for {
		cur, ok := q.TryGetCurrent()
		require.True(t, ok)
		out = append(out, cur.ID)
		if !q.TryMoveForward() {
			return out
		}
	}
}

func currentID(t *testing.T, q *Queue) int64 {
	t.Helper()
	cur, ok := q.TryGetCurrent()
	require.True(t, ok)
	return cur.ID
}

func TestAddRange(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 4))
	q.AddRange(tracks(5, 6, 7))

	assert.Equal(t, 6, q.Len())
	assert.Equal(t, int64(1), currentID(t, q))

	all := q.Tracks()
	assert.Equal(t, int64(7), all[len(all)-1].ID)
}

func TestEmptyQueue(t *testing.T) {
	q := New(seeded(1))

	_, ok := q.TryGetCurrent()
	assert.False(t, ok)
	assert.False(t, q.TryMoveForward())
	assert.False(t, q.TryMoveBack())
	assert.Equal(t, 0, q.Position())
	assert.Zero(t, q.RemoveAll(func(track.Track) bool { return true }))
}

func TestNavigationHasNoWraparound(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 3))

	assert.False(t, q.TryMoveBack())
	assert.Equal(t, 0, q.Position())

	assert.True(t, q.TryMoveForward())
	assert.True(t, q.TryMoveForward())
	assert.False(t, q.TryMoveForward())
	assert.Equal(t, 2, q.Position())
	assert.Equal(t, int64(3), currentID(t, q))

	assert.True(t, q.TryMoveBack())
	assert.Equal(t, int64(2), currentID(t, q))
}

func TestTryMoveToTrack(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 3))

	assert.True(t, q.TryMoveToTrack(track.Track{ID: 3}))
	assert.Equal(t, 2, q.Position())

	assert.False(t, q.TryMoveToTrack(track.Track{ID: 99}))
	assert.Equal(t, 2, q.Position(), "a failed move leaves the cursor alone")
}

func TestClear(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 3))
	q.TryMoveForward()

	q.Clear()

	assert.Zero(t, q.Len())
	assert.Zero(t, q.Position())
	_, ok := q.TryGetCurrent()
	assert.False(t, ok)
}

func TestShuffleEventuallyReorders(t *testing.T) {
	reordered := false
	for seed := uint64(0); seed < 50 && !reordered; seed++ {
		q := New(seeded(seed))
		q.AddRange(tracks(1, 2, 3, 4))
		q.SetShuffled(true)

		order := traverse(t, q)
		require.Equal(t, int64(1), order[0], "the current entry never moves")
		require.ElementsMatch(t, []int64{1, 2, 3, 4}, order)
		if !assert.ObjectsAreEqual([]int64{1, 2, 3, 4}, order) {
			reordered = true
		}
	}
	assert.True(t, reordered, "shuffle never changed the order")
}

func TestUnshuffleRestoresOriginalOrder(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		q := New(seeded(seed))
		q.AddRange(tracks(1, 2, 3, 4))
		q.SetShuffled(true)
		q.SetShuffled(false)

		require.True(t, q.TryMoveToTrack(track.Track{ID: 1}))
		assert.Equal(t, []int64{1, 2, 3, 4}, traverse(t, q))
	}
}

func TestShuffleLeavesHistoryAlone(t *testing.T) {
	q := New(seeded(7))
	q.AddRange(tracks(1, 2, 3, 4, 5, 6, 7, 8))
	q.TryMoveForward()
	q.TryMoveForward()

	q.SetShuffled(true)

	all := ids(q.Tracks())
	assert.Equal(t, []int64{1, 2, 3}, all[:3])
	assert.ElementsMatch(t, []int64{4, 5, 6, 7, 8}, all[3:])
	assert.Equal(t, int64(3), currentID(t, q))
	assert.True(t, q.Shuffled())
}

func TestUnshuffleKeepsCurrentEntry(t *testing.T) {
	q := New(seeded(3))
	q.AddRange(tracks(1, 2, 3, 4, 5, 6))
	q.SetShuffled(true)

	q.TryMoveForward()
	q.TryMoveForward()
	playing := currentID(t, q)

	q.SetShuffled(false)

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, ids(q.Tracks()))
	assert.Equal(t, playing, currentID(t, q))
	assert.False(t, q.Shuffled())
}

func TestUnshuffleTracksDuplicatesByEntry(t *testing.T) {
	q := New(seeded(11))
	q.AddRange(tracks(5, 1, 5, 2))
	q.TryMoveForward()
	q.TryMoveForward()
	require.Equal(t, 2, q.Position(), "on the second copy of track 5")

	q.SetShuffled(true)
	q.SetShuffled(false)

	assert.Equal(t, 2, q.Position(), "relocated to the same copy, not the first 5")
}

func TestRemoveAllCurrentMovesToNextSurvivor(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 3, 2, 4))
	q.TryMoveForward()

	removed := q.RemoveAll(func(t track.Track) bool { return t.ID == 2 })

	assert.Equal(t, 2, removed)
	assert.Equal(t, []int64{1, 3, 4}, ids(q.Tracks()))
	assert.Equal(t, int64(3), currentID(t, q))
}

func TestRemoveAllCurrentSurvives(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 3, 4))
	q.TryMoveToTrack(track.Track{ID: 3})

	q.RemoveAll(func(t track.Track) bool { return t.ID < 3 })

	assert.Equal(t, []int64{3, 4}, ids(q.Tracks()))
	assert.Equal(t, 0, q.Position())
	assert.Equal(t, int64(3), currentID(t, q))
}

func TestRemoveAllNoLaterSurvivor(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2, 3))
	q.TryMoveToTrack(track.Track{ID: 3})

	q.RemoveAll(func(t track.Track) bool { return t.ID == 3 })

	assert.Equal(t, 0, q.Position())
	assert.Equal(t, int64(1), currentID(t, q))
}

func TestRemoveAllEmptiesQueue(t *testing.T) {
	q := New(seeded(1))
	q.AddRange(tracks(1, 2))
	q.TryMoveForward()

	q.RemoveAll(func(track.Track) bool { return true })

	assert.Zero(t, q.Len())
	assert.Zero(t, q.Position())
	_, ok := q.TryGetCurrent()
	assert.False(t, ok)
}

func TestRemoveAllAffectsOriginalOrder(t *testing.T) {
	q := New(seeded(5))
	q.AddRange(tracks(1, 2, 3, 4, 5))
	q.SetShuffled(true)

	q.RemoveAll(func(t track.Track) bool { return t.ID == 4 })
	q.SetShuffled(false)

	assert.Equal(t, []int64{1, 2, 3, 5}, ids(q.Tracks()))
}

func TestChangeNotifications(t *testing.T) {
	q := New(seeded(1))

	var got []Change
	q.OnChange(func(c Change) {
		got = append(got, c)
		// Listeners run outside the lock.
		_ = q.Len()
	})

	q.AddRange(tracks(1, 2, 3))
	q.RemoveAll(func(t track.Track) bool { return t.ID == 2 })
	q.RemoveAll(func(t track.Track) bool { return t.ID == 42 })
	q.SetShuffled(true)
	q.SetShuffled(true)
	q.SetShuffled(false)
	q.Clear()

	require.Len(t, got, 5)
	assert.Equal(t, ChangeAdded, got[0].Kind)
	assert.Equal(t, []int64{1, 2, 3}, ids(got[0].Tracks))
	assert.Equal(t, ChangeRemoved, got[1].Kind)
	assert.Equal(t, []int64{2}, ids(got[1].Tracks))
	assert.Equal(t, ChangeShuffled, got[2].Kind)
	assert.Equal(t, ChangeUnshuffled, got[3].Kind)
	assert.Equal(t, ChangeCleared, got[4].Kind)
	assert.Equal(t, []int64{1, 3}, ids(got[4].Tracks))
}

func TestConcurrentMutation(t *testing.T) {
	q := New(seeded(9))
	q.AddRange(tracks(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				switch (i + w) % 6 {
				case 0:
					q.Add(track.Track{ID: int64(i)})
				case 1:
					q.TryMoveForward()
				case 2:
					q.TryMoveBack()
				case 3:
					q.SetShuffled(i%2 == 0)
				case 4:
					q.RemoveAll(func(t track.Track) bool { return t.ID == int64(i%10) })
				case 5:
					q.TryGetCurrent()
				}
			}
		}(w)
	}
	wg.Wait()

	if n := q.Len(); n > 0 {
		assert.Less(t, q.Position(), n)
	} else {
		assert.Zero(t, q.Position())
	}
}

func TestHasTrack(t *testing.T) {
	q := New(nil)
	q.AddRange(tracks(1, 2))

	assert.True(t, q.HasTrack(2))
	assert.False(t, q.HasTrack(3))
}
