package api

import (
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/track"
)

type apiUser struct {
	Username string `json:"username"`
}

type apiTranscoding struct {
	URL     string `json:"url"`
	Snipped bool   `json:"snipped"`
	Format  struct {
		Protocol string `json:"protocol"`
		MimeType string `json:"mime_type"`
	} `json:"format"`
}

type apiTrack struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	PermalinkURL string  `json:"permalink_url"`
	Duration     int64   `json:"duration"` // milliseconds
	Policy       string  `json:"policy"`
	Streamable   *bool   `json:"streamable"`
	User         apiUser `json:"user"`
	Media        struct {
		Transcodings []apiTranscoding `json:"transcodings"`
	} `json:"media"`
}

func (rt apiTrack) toTrack() track.Track {
	t := track.Track{
		ID:        rt.ID,
		Title:     rt.Title,
		Artist:    rt.User.Username,
		Permalink: rt.PermalinkURL,
		Duration:  time.Duration(rt.Duration) * time.Millisecond,
		Policy:    track.ParsePolicy(rt.Policy),
	}

	for _, tc := range rt.Media.Transcodings {
		t.Streams = append(t.Streams, track.StreamDescriptor{
			URL:      tc.URL,
			Protocol: tc.Format.Protocol,
			MimeType: tc.Format.MimeType,
			Snipped:  tc.Snipped,
		})
	}

	if rt.Streamable != nil && !*rt.Streamable {
		t.Policy = track.PolicyUnavailable
	}

	return t
}
