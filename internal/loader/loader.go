// Package loader turns a track into a primed stream buffer: it picks the
// network route from the track's source policy, resolves the download plan,
// fetches the first segments synchronously and hands back a background task
// for the rest.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/glebovdev/soundcloud-cli/internal/streambuf"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/glebovdev/soundcloud-cli/internal/transport"
	"github.com/rs/zerolog/log"
)

// DefaultPrimeSegments is how many segments are fetched before playback may start.
const DefaultPrimeSegments = 3

var (
	ErrRegionRestricted   = errors.New("track is not available in your region")
	ErrServiceUnreachable = errors.New("SoundCloud is unreachable, check your connection")
	ErrNoStream           = errors.New("no stream available for this track")
)

type Catalog interface {
	ResolveDownloadPlan(ctx context.Context, t *track.Track, route transport.Route) ([]string, error)
	ProbeConnectivity(ctx context.Context) bool
}

type Fetcher interface {
	Fetch(ctx context.Context, seg transport.Segment, route transport.Route) ([]byte, error)
	ProxyConfigured() bool
	ProbeProxy(ctx context.Context) error
}

type LocalStore interface {
	Load(t *track.Track) ([]byte, error)
	Save(t *track.Track, data []byte) error
}

type Options struct {
	// EstimatedBitrate in kbps sizes the initial buffer.
	EstimatedBitrate int
	// CacheTracks saves fully downloaded tracks to the local store.
	CacheTracks   bool
	PrimeSegments int
	// Observer, if set, sees every state transition of non-canceled attempts.
	Observer func(trackID int64, state State)
}

// Outcome is the result of Load.
type Outcome struct {
	Status Status
	Err    error
	Buffer *streambuf.Buffer
	// Background fetches the remaining segments. Nil when the buffer is
	// already complete.
	Background func(ctx context.Context) error
}

// Canceled reports whether the attempt was abandoned because its context ended.
func (o Outcome) Canceled() bool {
	return o.Status == StatusError && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded))
}

type Loader struct {
	catalog Catalog
	fetcher Fetcher
	store   LocalStore
	opts    Options
}

// New creates a Loader. store may be nil.
func New(catalog Catalog, fetcher Fetcher, store LocalStore, opts Options) *Loader {
	if opts.PrimeSegments <= 0 {
		opts.PrimeSegments = DefaultPrimeSegments
	}
	return &Loader{
		catalog: catalog,
		fetcher: fetcher,
		store:   store,
		opts:    opts,
	}
}

func (l *Loader) emit(ctx context.Context, t *track.Track, state State) {
	if ctx.Err() != nil {
		return
	}
	log.Debug().Int64("track", t.ID).Msgf("Load state: %s", state)
	if l.opts.Observer != nil {
		l.opts.Observer(t.ID, state)
	}
}

func (l *Loader) fail(ctx context.Context, t *track.Track, err error) Outcome {
	if ctx.Err() != nil {
		return Outcome{Status: StatusError, Err: ctx.Err()}
	}
	l.emit(ctx, t, StateFailed)
	log.Warn().Err(err).Int64("track", t.ID).Msg("Track load failed")
	return Outcome{Status: StatusError, Err: err}
}

// Load runs one load attempt for t. progress, if not nil, is called after
// each priming segment with the number done and the number to prime.
func (l *Loader) Load(ctx context.Context, t *track.Track, progress func(done, total int)) Outcome {
	l.emit(ctx, t, StateIdle)
	l.emit(ctx, t, StateResolvingPolicy)

	policy := t.Policy
	if policy == track.PolicyLocalCache {
		if out, ok := l.loadLocal(ctx, t); ok {
			return out
		}
		policy = t.RemotePolicy()
	}

	var route transport.Route
	switch {
	case policy == track.PolicyUnavailable:
		log.Debug().Int64("track", t.ID).Msg("Track is not streamable, skipping")
		return Outcome{Status: StatusSkip}
	case policy.RequiresProxy():
		if !l.fetcher.ProxyConfigured() {
			return l.fail(ctx, t, ErrRegionRestricted)
		}
		if err := l.fetcher.ProbeProxy(ctx); err != nil {
			return l.fail(ctx, t, fmt.Errorf("%w (proxy: %v)", ErrRegionRestricted, err))
		}
		route = transport.RouteProxy
	default:
		route = transport.RouteDirect
	}

	l.emit(ctx, t, StateFetchingManifest)
	plan, err := l.catalog.ResolveDownloadPlan(ctx, t, route)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Status: StatusError, Err: ctx.Err()}
		}
		// A definitive HTTP status means the service answered.
		if !transport.IsNonRetryable(err) && !l.catalog.ProbeConnectivity(ctx) {
			return l.fail(ctx, t, ErrServiceUnreachable)
		}
		return l.fail(ctx, t, fmt.Errorf("%w: %w", ErrNoStream, err))
	}
	if len(plan) == 0 {
		return l.fail(ctx, t, ErrNoStream)
	}

	l.emit(ctx, t, StatePrimingBuffer)
	buf := streambuf.New(t.EstimatedSize(l.opts.EstimatedBitrate))
	prime := min(l.opts.PrimeSegments, len(plan))

	for i := 0; i < prime; i++ {
		data, err := l.fetcher.Fetch(ctx, transport.Segment{TrackID: t.ID, Index: i, URL: plan[i]}, route)
		if err != nil {
			return l.fail(ctx, t, fmt.Errorf("failed to fetch segment %d/%d: %w", i+1, len(plan), err))
		}
		buf.Append(data)
		if progress != nil && ctx.Err() == nil {
			progress(i+1, prime)
		}
	}

	log.Debug().
		Int64("track", t.ID).
		Str("route", route.String()).
		Int("segments", len(plan)).
		Str("primed", humanize.Bytes(uint64(buf.Loaded()))).
		Str("estimated", humanize.Bytes(uint64(buf.Capacity()))).
		Msg("Buffer primed")

	if prime == len(plan) {
		l.complete(ctx, t, buf)
		return Outcome{Status: StatusOk, Buffer: buf}
	}

	background := func(bgCtx context.Context) error {
		l.emit(bgCtx, t, StateBackgroundFetching)
		for i := prime; i < len(plan); i++ {
			data, err := l.fetcher.Fetch(bgCtx, transport.Segment{TrackID: t.ID, Index: i, URL: plan[i]}, route)
			if err != nil {
				if bgCtx.Err() != nil {
					return bgCtx.Err()
				}
				l.emit(bgCtx, t, StateFailed)
				return fmt.Errorf("failed to fetch segment %d/%d: %w", i+1, len(plan), err)
			}
			buf.Append(data)
		}
		l.complete(bgCtx, t, buf)
		return nil
	}

	return Outcome{Status: StatusOk, Buffer: buf, Background: background}
}

func (l *Loader) loadLocal(ctx context.Context, t *track.Track) (Outcome, bool) {
	if l.store == nil {
		return Outcome{}, false
	}

	data, err := l.store.Load(t)
	if err != nil {
		log.Debug().Err(err).Int64("track", t.ID).Msg("Local copy unusable, streaming instead")
		return Outcome{}, false
	}

	buf := streambuf.New(len(data))
	buf.Append(data)
	buf.MarkFinished()
	l.emit(ctx, t, StateDone)

	log.Debug().Int64("track", t.ID).Str("size", humanize.Bytes(uint64(len(data)))).Msg("Loaded track from local cache")
	return Outcome{Status: StatusOk, Buffer: buf}, true
}

func (l *Loader) complete(ctx context.Context, t *track.Track, buf *streambuf.Buffer) {
	buf.MarkFinished()
	l.emit(ctx, t, StateDone)

	if l.store == nil || !l.opts.CacheTracks {
		return
	}
	if err := l.store.Save(t, buf.Bytes()); err != nil {
		log.Warn().Err(err).Int64("track", t.ID).Msg("Failed to cache track")
		return
	}
	log.Debug().Int64("track", t.ID).Str("size", humanize.Bytes(uint64(buf.Loaded()))).Msg("Track cached")
}
