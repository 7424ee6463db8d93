package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/glebovdev/soundcloud-cli/internal/config"
	"github.com/glebovdev/soundcloud-cli/internal/segcache"
	"github.com/glebovdev/soundcloud-cli/internal/supersede"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	SegmentTimeout = 30 * time.Second
	ProbeTimeout   = 5 * time.Second
	MaxRetries     = 2
	RetryDelay     = 500 * time.Millisecond
)

// Segment identifies one byte range of a track's download plan.
type Segment struct {
	TrackID int64
	Index   int
	URL     string
}

// SegmentFetcher downloads segments over the requested route, consulting the
// segment cache first.
type SegmentFetcher struct {
	direct   *resty.Client
	proxied  *resty.Client
	cache    *segcache.Cache
	probeURL string
	probes   *supersede.Group
}

// NewSegmentFetcher wraps the route clients. cache may be nil.
func NewSegmentFetcher(clients *Clients, cache *segcache.Cache, probeURL string) *SegmentFetcher {
	f := &SegmentFetcher{
		direct:   newRestyClient(clients.direct),
		cache:    cache,
		probeURL: probeURL,
		probes:   supersede.NewGroup("proxy-probe"),
	}
	if clients.proxied != nil {
		f.proxied = newRestyClient(clients.proxied)
	}
	return f
}

func newRestyClient(hc *http.Client) *resty.Client {
	return resty.NewWithClient(hc).
		SetTimeout(SegmentTimeout).
		SetHeader("User-Agent", fmt.Sprintf("SoundCloud-CLI/%s", config.AppVersion)).
		SetRetryCount(MaxRetries).
		SetRetryWaitTime(RetryDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && r.StatusCode() >= 500
		})
}

func (f *SegmentFetcher) client(route Route) (*resty.Client, error) {
	if route == RouteProxy {
		if f.proxied == nil {
			return nil, ErrNoProxy
		}
		return f.proxied, nil
	}
	return f.direct, nil
}

// Fetch returns the bytes of seg.
func (f *SegmentFetcher) Fetch(ctx context.Context, seg Segment, route Route) ([]byte, error) {
	if data, ok := f.cache.Get(ctx, seg.TrackID, seg.Index); ok {
		log.Debug().Int64("track", seg.TrackID).Int("segment", seg.Index).Msg("Segment cache hit")
		return data, nil
	}

	c, err := f.client(route)
	if err != nil {
		return nil, err
	}

	resp, err := c.R().SetContext(ctx).Get(seg.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch segment %d: %w", seg.Index, err)
	}

	if !resp.IsSuccess() {
		return nil, &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	data := resp.Body()
	log.Debug().
		Int64("track", seg.TrackID).
		Int("segment", seg.Index).
		Str("route", route.String()).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("Segment fetched")

	f.cache.Set(ctx, seg.TrackID, seg.Index, data)
	return data, nil
}

func (f *SegmentFetcher) ProxyConfigured() bool {
	return f.proxied != nil
}

// ProbeProxy checks that the proxy route can reach the probe URL. Only the
// latest probe is meaningful; an earlier one still running is canceled.
func (f *SegmentFetcher) ProbeProxy(ctx context.Context) error {
	if f.proxied == nil {
		return ErrNoProxy
	}

	op := f.probes.Begin(ctx)
	defer op.Finish()

	probeCtx, cancel := context.WithTimeout(op.Context(), ProbeTimeout)
	defer cancel()

	resp, err := f.proxied.R().SetContext(probeCtx).Get(f.probeURL)
	if op.Superseded() {
		return context.Canceled
	}
	if err != nil {
		return fmt.Errorf("proxy probe failed: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	log.Debug().Int("status", resp.StatusCode()).Msg("Proxy probe succeeded")
	return nil
}
