package ui

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/glebovdev/soundcloud-cli/internal/player"
	"github.com/glebovdev/soundcloud-cli/internal/track"
)

type fakeStatus struct {
	state   player.PlayState
	message string
}

func (f fakeStatus) State() player.PlayState { return f.state }
func (f fakeStatus) Message() string         { return f.message }

func TestNewPlayingSpinner(t *testing.T) {
	spinner := NewPlayingSpinner()

	if len(spinner.Frames) < 2 {
		t.Errorf("Expected at least 2 frames, got %d", len(spinner.Frames))
	}
	for i, frame := range spinner.Frames {
		if frame == "" {
			t.Errorf("Frame[%d] is empty", i)
		}
	}
	if spinner.FPS <= 0 {
		t.Error("PlayingSpinner.FPS should be positive")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{5 * time.Second, "0:05"},
		{65 * time.Second, "1:05"},
		{10*time.Minute + 999*time.Millisecond, "10:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.input); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{150, 10},
		{-20, 0},
	}

	for _, tt := range tests {
		bar := renderProgressBar(tt.percent, 10)
		if n := utf8.RuneCountInString(bar); n != 10 {
			t.Errorf("renderProgressBar(%d, 10) has %d cells, want 10", tt.percent, n)
		}
		if n := strings.Count(bar, "█"); n != tt.filled {
			t.Errorf("renderProgressBar(%d, 10) filled %d cells, want %d", tt.percent, n, tt.filled)
		}
	}
}

func TestRenderTrackProgress(t *testing.T) {
	got := renderTrackProgress(30*time.Second, 2*time.Minute, 8)
	want := "0:30 ██░░░░░░ 2:00"
	if got != want {
		t.Errorf("renderTrackProgress() = %q, want %q", got, want)
	}

	got = renderTrackProgress(30*time.Second, 0, 4)
	if got != "0:30 ░░░░ 0:00" {
		t.Errorf("renderTrackProgress() with unknown total = %q", got)
	}
}

func TestRenderVolume(t *testing.T) {
	if got := renderVolume(60, false); got != "vol ██████░░░░ 60%" {
		t.Errorf("renderVolume(60) = %q", got)
	}
	if got := renderVolume(130, false); !strings.HasSuffix(got, "100%") {
		t.Errorf("renderVolume(130) = %q, want clamped to 100%%", got)
	}
	if got := renderVolume(40, true); !strings.Contains(got, "[::s]40%") {
		t.Errorf("renderVolume(40, muted) = %q, want struck-through percent", got)
	}
}

func TestPolicyTag(t *testing.T) {
	tests := []struct {
		policy   track.SourcePolicy
		expected string
	}{
		{track.PolicyOpen, ""},
		{track.PolicyMonetized, ""},
		{track.PolicyLocalCache, "cached"},
		{track.PolicyRegionBlocked, "proxy"},
		{track.PolicyPreviewOnly, "preview"},
		{track.PolicyUnavailable, "n/a"},
	}

	for _, tt := range tests {
		if got := policyTag(tt.policy); got != tt.expected {
			t.Errorf("policyTag(%v) = %q, want %q", tt.policy, got, tt.expected)
		}
	}
}

func TestPlayIndicator(t *testing.T) {
	if got := playIndicator(false, player.StatePlaying); got != " " {
		t.Errorf("playIndicator(not current) = %q, want blank", got)
	}
	if got := playIndicator(true, player.StatePlaying); got != "➤" {
		t.Errorf("playIndicator(playing) = %q", got)
	}
	if got := playIndicator(true, player.StatePaused); got != PauseIcon {
		t.Errorf("playIndicator(paused) = %q", got)
	}
	if got := playIndicator(true, player.StateError); got != "✗" {
		t.Errorf("playIndicator(error) = %q", got)
	}
}

func TestJoinParts(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		expected string
	}{
		{"nil slice", nil, ""},
		{"single part", []string{"PLAYING"}, "PLAYING"},
		{"three parts", []string{"● PLAYING", "MUTED", "SHUFFLE"}, "● PLAYING │ MUTED │ SHUFFLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinParts(tt.parts); got != tt.expected {
				t.Errorf("joinParts(%v) = %q, want %q", tt.parts, got, tt.expected)
			}
		})
	}
}

func TestFriendlyErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      string
		contains string
	}{
		{"region", "track is not available in your region", "proxy_url"},
		{"region with proxy failure", "track is not available in your region (proxy: dial tcp: refused)", "proxy is not responding"},
		{"unreachable", "SoundCloud is unreachable, check your connection", "unreachable"},
		{"no such host", "dial tcp: lookup api-v2.soundcloud.com: no such host", "Unable to connect"},
		{"timeout", "context deadline exceeded (Client.Timeout exceeded)", "timed out"},
		{"401", "server returned status 401: 401 Unauthorized", "client_id"},
		{"404", "server returned status 404: 404 Not Found", "404"},
		{"dial truncation", "failed to fetch tracks: dial tcp something", "failed to fetch tracks"},
		{"generic", "some error", "some error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := friendlyErrorMessage(tt.err)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("friendlyErrorMessage(%q) = %q, expected to contain %q", tt.err, got, tt.contains)
			}
		})
	}
}

func TestFriendlyErrorMessageTruncatesLongErrors(t *testing.T) {
	got := friendlyErrorMessage(strings.Repeat("x", 200))
	if len(got) > 110 {
		t.Errorf("Long error not truncated properly, got length %d", len(got))
	}
}

func TestStatusRendererAdvanceAnimation(t *testing.T) {
	renderer := NewStatusRenderer(nil)

	for i := 0; i < renderer.ticksPerFrame-1; i++ {
		renderer.AdvanceAnimation()
	}
	if renderer.animFrame != 0 {
		t.Error("Animation frame changed before ticksPerFrame ticks")
	}

	renderer.AdvanceAnimation()
	if renderer.animFrame != 1 {
		t.Errorf("Animation frame = %d, want 1", renderer.animFrame)
	}
	if renderer.tickCount != 0 {
		t.Errorf("tickCount = %d, want 0 after frame advance", renderer.tickCount)
	}
}

func TestStatusRendererRender(t *testing.T) {
	tests := []struct {
		name     string
		source   StatusSource
		muted    bool
		shuffled bool
		contains []string
	}{
		{"no player", nil, false, false, []string{"IDLE"}},
		{"loading progress", fakeStatus{player.StateLoading, "Buffering 2/3"}, false, false, []string{"LOADING", "Buffering 2/3"}},
		{"loaded", fakeStatus{state: player.StateLoaded}, false, false, []string{"LOADING"}},
		{"playing with flags", fakeStatus{state: player.StatePlaying}, true, true, []string{"PLAYING", "MUTED", "SHUFFLE"}},
		{"end of queue", fakeStatus{player.StatePaused, "End of queue"}, false, false, []string{"PAUSED", "End of queue"}},
		{"error", fakeStatus{player.StateError, "track is not available in your region"}, false, false, []string{"✗", "not available in your region"}},
		{"empty error", fakeStatus{state: player.StateError}, false, false, []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := NewStatusRenderer(tt.source)
			renderer.SetMuted(tt.muted)
			renderer.SetShuffled(tt.shuffled)

			got := renderer.Render()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Render() = %q, expected to contain %q", got, want)
				}
			}
			if strings.Contains(got, "\n") {
				t.Errorf("Render() = %q, want a single line", got)
			}
		})
	}
}

func TestStatusRendererPrimaryColor(t *testing.T) {
	renderer := NewStatusRenderer(fakeStatus{state: player.StatePlaying})
	renderer.SetPrimaryColor("#ff5500")

	if got := renderer.Render(); !strings.Contains(got, "[#ff5500]") {
		t.Errorf("Render() = %q, expected the primary color tag", got)
	}
}
