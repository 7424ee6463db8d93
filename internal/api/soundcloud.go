// Package api provides the HTTP client for the SoundCloud API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/config"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/glebovdev/soundcloud-cli/internal/transport"
	"github.com/go-resty/resty/v2"
	"github.com/grafov/m3u8"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	requestTimeout = 30 * time.Second
	probeTimeout   = 5 * time.Second
	// maxIDsPerRequest is the largest ids= list the tracks endpoint accepts.
	maxIDsPerRequest = 50
)

var (
	ErrNoStreams = errors.New("no playable mp3 transcoding")
	ErrEncrypted = errors.New("encrypted playlists are not supported")
)

// SoundCloudClient is the HTTP client for interacting with the SoundCloud API.
type SoundCloudClient struct {
	direct   *resty.Client
	proxied  *resty.Client
	clientID string
	probeURL string
}

// NewSoundCloudClient creates a client for baseURL using the route clients.
func NewSoundCloudClient(baseURL, clientID, probeURL string, clients *transport.Clients) *SoundCloudClient {
	c := &SoundCloudClient{
		clientID: clientID,
		probeURL: probeURL,
	}

	directHTTP, _ := clients.For(transport.RouteDirect)
	c.direct = newRestyClient(directHTTP, baseURL)

	if proxiedHTTP, err := clients.For(transport.RouteProxy); err == nil {
		c.proxied = newRestyClient(proxiedHTTP, baseURL)
	}

	return c
}

func newRestyClient(hc *http.Client, baseURL string) *resty.Client {
	return resty.NewWithClient(hc).
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", fmt.Sprintf("SoundCloud-CLI/%s", config.AppVersion)).
		SetHeader("Accept", "application/json")
}

func (c *SoundCloudClient) client(route transport.Route) (*resty.Client, error) {
	if route == transport.RouteProxy {
		if c.proxied == nil {
			return nil, transport.ErrNoProxy
		}
		return c.proxied, nil
	}
	return c.direct, nil
}

func (c *SoundCloudClient) get(ctx context.Context, route transport.Route, path string, query map[string]string) ([]byte, error) {
	rc, err := c.client(route)
	if err != nil {
		return nil, err
	}

	req := rc.R().SetContext(ctx)
	if c.clientID != "" {
		req.SetQueryParam("client_id", c.clientID)
	}
	req.SetQueryParams(query)

	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, &transport.StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	return resp.Body(), nil
}

// GetTracks fetches the tracks with the given ids, in the order requested.
// Ids the service does not know are left out.
func (c *SoundCloudClient) GetTracks(ctx context.Context, ids []int64) ([]track.Track, error) {
	byID := make(map[int64]track.Track, len(ids))

	for _, chunk := range lo.Chunk(lo.Uniq(ids), maxIDsPerRequest) {
		joined := strings.Join(lo.Map(chunk, func(id int64, _ int) string {
			return strconv.FormatInt(id, 10)
		}), ",")

		body, err := c.get(ctx, transport.RouteDirect, "/tracks", map[string]string{"ids": joined})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks: %w", err)
		}

		var raw []apiTrack
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse tracks response: %w", err)
		}

		for _, rt := range raw {
			byID[rt.ID] = rt.toTrack()
		}
	}

	tracks := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// GetRelated fetches up to limit tracks related to the given one.
func (c *SoundCloudClient) GetRelated(ctx context.Context, id int64, limit int) ([]track.Track, error) {
	body, err := c.get(ctx, transport.RouteDirect, fmt.Sprintf("/tracks/%d/related", id), map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch related tracks for %d: %w", id, err)
	}

	var response struct {
		Collection []apiTrack `json:"collection"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse related tracks response: %w", err)
	}

	return lo.Map(response.Collection, func(rt apiTrack, _ int) track.Track {
		return rt.toTrack()
	}), nil
}

// ResolveDownloadPlan returns the ordered list of URLs whose concatenated
// bodies make up the track's audio. Transcodings are tried in preference
// order; the first that resolves wins.
func (c *SoundCloudClient) ResolveDownloadPlan(ctx context.Context, t *track.Track, route transport.Route) ([]string, error) {
	streams := t.PreferredStreams()
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}

	var lastErr error
	for _, s := range streams {
		plan, err := c.resolveStream(ctx, s, route)
		if err == nil {
			log.Debug().
				Int64("track", t.ID).
				Str("protocol", s.Protocol).
				Bool("snipped", s.Snipped).
				Int("segments", len(plan)).
				Msg("Download plan resolved")
			return plan, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warn().Err(err).Int64("track", t.ID).Str("protocol", s.Protocol).Msg("Failed to resolve transcoding")
		lastErr = err
	}

	return nil, fmt.Errorf("all transcodings failed: %w", lastErr)
}

func (c *SoundCloudClient) resolveStream(ctx context.Context, s track.StreamDescriptor, route transport.Route) ([]string, error) {
	body, err := c.get(ctx, route, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve transcoding: %w", err)
	}

	var location struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &location); err != nil {
		return nil, fmt.Errorf("failed to parse transcoding response: %w", err)
	}
	if location.URL == "" {
		return nil, fmt.Errorf("transcoding response has no url")
	}

	if s.Protocol != track.ProtocolHLS {
		return []string{location.URL}, nil
	}

	playlistURL := location.URL
	for hop := 0; ; hop++ {
		body, err := c.fetchPlaylist(ctx, route, playlistURL)
		if err != nil {
			return nil, err
		}

		segments, variant, err := parsePlaylist(playlistURL, body)
		if err != nil {
			return nil, err
		}
		if variant == "" {
			return segments, nil
		}
		if hop > 0 {
			return nil, fmt.Errorf("nested master playlist at %s", playlistURL)
		}
		log.Debug().Str("variant", variant).Msg("Following master playlist variant")
		playlistURL = variant
	}
}

func (c *SoundCloudClient) fetchPlaylist(ctx context.Context, route transport.Route, playlistURL string) ([]byte, error) {
	rc, err := c.client(route)
	if err != nil {
		return nil, err
	}

	resp, err := rc.R().SetContext(ctx).Get(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &transport.StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}
	return resp.Body(), nil
}

// parsePlaylist decodes an HLS playlist. A media playlist yields its segment
// URLs, led by the EXT-X-MAP init section when there is one. A master
// playlist yields the URL of its highest-bandwidth variant instead. All URLs
// are resolved against playlistURL.
func parsePlaylist(playlistURL string, body []byte) (segments []string, variant string, err error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid playlist URL: %w", err)
	}
	resolve := func(ref string) (string, error) {
		ref = strings.TrimSpace(ref)
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("invalid playlist entry %q: %w", ref, err)
		}
		return base.ResolveReference(u).String(), nil
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		variants := lo.Filter(master.Variants, func(v *m3u8.Variant, _ int) bool {
			return v != nil && strings.TrimSpace(v.URI) != ""
		})
		if len(variants) == 0 {
			return nil, "", fmt.Errorf("master playlist has no variants")
		}
		best := lo.MaxBy(variants, func(a, b *m3u8.Variant) bool { return a.Bandwidth > b.Bandwidth })
		u, err := resolve(best.URI)
		return nil, u, err

	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		if encrypted(media.Key) {
			return nil, "", fmt.Errorf("%w (%s)", ErrEncrypted, media.Key.Method)
		}

		var initURI string
		if media.Map != nil && media.Map.URI != "" {
			initURI = media.Map.URI
		}
		for _, seg := range lo.Compact(media.Segments) {
			if encrypted(seg.Key) {
				return nil, "", fmt.Errorf("%w (%s)", ErrEncrypted, seg.Key.Method)
			}
			if initURI == "" && seg.Map != nil && seg.Map.URI != "" {
				initURI = seg.Map.URI
			}
			u, err := resolve(seg.URI)
			if err != nil {
				return nil, "", err
			}
			segments = append(segments, u)
		}
		if len(segments) == 0 {
			return nil, "", fmt.Errorf("no segments found in playlist")
		}

		if initURI != "" {
			u, err := resolve(initURI)
			if err != nil {
				return nil, "", err
			}
			segments = append([]string{u}, segments...)
		}
		return segments, "", nil
	}

	return nil, "", fmt.Errorf("unrecognized playlist type")
}

func encrypted(key *m3u8.Key) bool {
	return key != nil && key.Method != "" && !strings.EqualFold(key.Method, "NONE")
}

// ProbeConnectivity reports whether the service answers at all over the
// direct route. Any HTTP response counts.
func (c *SoundCloudClient) ProbeConnectivity(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := c.direct.R().SetContext(ctx).Get(c.probeURL)
	if err != nil {
		log.Debug().Err(err).Str("url", c.probeURL).Msg("Connectivity probe failed")
		return false
	}
	return true
}
