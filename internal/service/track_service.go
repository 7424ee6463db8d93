// Package service provides the business logic layer between the catalog,
// the local track store and the playback queue.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/glebovdev/soundcloud-cli/internal/queue"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultRelatedLimit is how many related tracks are requested when the
// queue needs extending.
const DefaultRelatedLimit = 20

type Catalog interface {
	GetTracks(ctx context.Context, ids []int64) ([]track.Track, error)
	GetRelated(ctx context.Context, id int64, limit int) ([]track.Track, error)
}

// LocalStore is the part of the track store the service needs.
type LocalStore interface {
	Has(t *track.Track) bool
	CleanExpired() (int, error)
}

// TrackService fetches track metadata, marks tracks that are already on disk
// and extends the queue with related tracks.
type TrackService struct {
	catalog      Catalog
	store        LocalStore
	queue        *queue.Queue
	relatedLimit int

	mu    sync.RWMutex
	known map[int64]track.Track
}

// NewTrackService creates a TrackService. store may be nil when local
// caching is disabled.
func NewTrackService(catalog Catalog, store LocalStore, q *queue.Queue) *TrackService {
	if store != nil {
		go func() {
			removed, err := store.CleanExpired()
			if err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired tracks")
				return
			}
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("Removed expired tracks")
			}
		}()
	}

	return &TrackService{
		catalog:      catalog,
		store:        store,
		queue:        q,
		relatedLimit: DefaultRelatedLimit,
		known:        make(map[int64]track.Track),
	}
}

// markLocal switches tracks with a complete local copy to PolicyLocalCache,
// keeping their catalog policy for the case the copy disappears.
func (s *TrackService) markLocal(tracks []track.Track) []track.Track {
	if s.store == nil {
		return tracks
	}
	for i := range tracks {
		if tracks[i].Policy == track.PolicyUnavailable {
			continue
		}
		if s.store.Has(&tracks[i]) {
			tracks[i].MarkLocal()
		}
	}
	return tracks
}

func (s *TrackService) remember(tracks []track.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tracks {
		s.known[t.ID] = t
	}
}

// Tracks fetches metadata for ids, preserving their order.
func (s *TrackService) Tracks(ctx context.Context, ids []int64) ([]track.Track, error) {
	tracks, err := s.catalog.GetTracks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tracks: %w", err)
	}
	if missing := len(lo.Uniq(ids)) - len(tracks); missing > 0 {
		log.Warn().Int("missing", missing).Msg("Some tracks were not found")
	}

	tracks = s.markLocal(tracks)
	s.remember(tracks)
	return tracks, nil
}

// Enqueue fetches ids and appends them to the queue. It returns the number
// of tracks added.
func (s *TrackService) Enqueue(ctx context.Context, ids []int64) (int, error) {
	tracks, err := s.Tracks(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.queue.AddRange(tracks)
	return len(tracks), nil
}

// Known returns a previously fetched track.
func (s *TrackService) Known(id int64) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.known[id]
	return t, ok
}

// Continuation returns tracks related to the last queued track that are
// not queued yet. An empty result means there is nothing left to play.
func (s *TrackService) Continuation(ctx context.Context) ([]track.Track, error) {
	queued := s.queue.Tracks()
	if len(queued) == 0 {
		return nil, nil
	}
	seed := queued[len(queued)-1]

	related, err := s.catalog.GetRelated(ctx, seed.ID, s.relatedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch related tracks: %w", err)
	}

	fresh := lo.Reject(related, func(t track.Track, _ int) bool {
		return s.queue.HasTrack(t.ID)
	})
	fresh = lo.UniqBy(fresh, func(t track.Track) int64 { return t.ID })

	log.Debug().
		Int64("seed", seed.ID).
		Int("related", len(related)).
		Int("fresh", len(fresh)).
		Msg("Continuation resolved")

	fresh = s.markLocal(fresh)
	s.remember(fresh)
	return fresh, nil
}
