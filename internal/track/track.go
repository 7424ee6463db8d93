// Package track defines the data structures for SoundCloud tracks.
package track

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SourcePolicy describes how the audio of a track can be obtained.
type SourcePolicy int

const (
	PolicyOpen SourcePolicy = iota
	PolicyMonetized
	PolicyRegionBlocked
	PolicyPreviewOnly
	PolicyLocalCache
	PolicyUnavailable
)

func (p SourcePolicy) String() string {
	switch p {
	case PolicyOpen:
		return "OPEN"
	case PolicyMonetized:
		return "MONETIZED"
	case PolicyRegionBlocked:
		return "REGION_BLOCKED"
	case PolicyPreviewOnly:
		return "PREVIEW_ONLY"
	case PolicyLocalCache:
		return "LOCAL_CACHE"
	case PolicyUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// ParsePolicy maps the catalog policy strings onto a SourcePolicy.
// Unknown values are treated as open; the stream resolution decides.
func ParsePolicy(s string) SourcePolicy {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALLOW", "":
		return PolicyOpen
	case "MONETIZE":
		return PolicyMonetized
	case "BLOCK":
		return PolicyRegionBlocked
	case "SNIP":
		return PolicyPreviewOnly
	default:
		return PolicyOpen
	}
}

// RequiresProxy reports whether the policy needs the alternate network route.
func (p SourcePolicy) RequiresProxy() bool {
	return p == PolicyRegionBlocked || p == PolicyPreviewOnly
}

const (
	ProtocolHLS         = "hls"
	ProtocolProgressive = "progressive"
)

// StreamDescriptor is one candidate transcoding of a track.
type StreamDescriptor struct {
	URL      string `json:"url"`
	Protocol string `json:"protocol"` // "hls" or "progressive"
	MimeType string `json:"mime_type"`
	Snipped  bool   `json:"snipped"` // 30 second preview only
}

// IsMP3 reports whether the decoder can handle this transcoding.
func (d StreamDescriptor) IsMP3() bool {
	return strings.HasPrefix(d.MimeType, "audio/mpeg")
}

// Track is a catalog entry. The playback core never mutates it.
type Track struct {
	ID        int64              `json:"id"`
	Title     string             `json:"title"`
	Artist    string             `json:"artist"`
	Permalink string             `json:"permalink_url"`
	Duration  time.Duration      `json:"duration"`
	Policy    SourcePolicy       `json:"policy"`
	Streams   []StreamDescriptor `json:"streams"`
	// Remote keeps the catalog policy of a track switched to PolicyLocalCache.
	Remote SourcePolicy `json:"remote_policy,omitempty"`
}

// MarkLocal switches t to PolicyLocalCache, remembering its catalog policy.
func (t *Track) MarkLocal() {
	if t.Policy == PolicyLocalCache {
		return
	}
	t.Remote = t.Policy
	t.Policy = PolicyLocalCache
}

// RemotePolicy returns the policy that applies when the track has to be
// streamed, which for a locally cached track is its catalog policy.
func (t *Track) RemotePolicy() SourcePolicy {
	if t.Policy != PolicyLocalCache {
		return t.Policy
	}
	if t.Remote == PolicyLocalCache {
		return PolicyOpen
	}
	return t.Remote
}

// DisplayName returns "Artist - Title", or just the title when the artist is unknown.
func (t *Track) DisplayName() string {
	if t.Artist != "" && t.Title != "" {
		return fmt.Sprintf("%s - %s", t.Artist, t.Title)
	}
	if t.Title != "" {
		return t.Title
	}
	return fmt.Sprintf("track %d", t.ID)
}

// LocalPath returns where a fully downloaded copy of the track lives under dir.
func (t *Track) LocalPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("%d.mp3", t.ID))
}

// EstimatedSize returns the expected encoded size in bytes for the given bitrate in kbps.
func (t *Track) EstimatedSize(bitrateKbps int) int {
	if bitrateKbps <= 0 || t.Duration <= 0 {
		return 0
	}
	return int(t.Duration.Seconds() * float64(bitrateKbps) * 1000 / 8)
}

// PreferredStreams returns the MP3 stream descriptors sorted by preference:
// full HLS first, then full progressive, then previews.
func (t *Track) PreferredStreams() []StreamDescriptor {
	var hls, progressive, previews []StreamDescriptor

	for _, s := range t.Streams {
		if !s.IsMP3() {
			continue
		}
		switch {
		case s.Snipped:
			previews = append(previews, s)
		case s.Protocol == ProtocolHLS:
			hls = append(hls, s)
		default:
			progressive = append(progressive, s)
		}
	}

	result := make([]StreamDescriptor, 0, len(t.Streams))
	result = append(result, hls...)
	result = append(result, progressive...)
	result = append(result, previews...)

	return result
}
