package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundcloud-cli/internal/player"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/rivo/tview"
)

// StatusSource is the part of the player the status line reads.
type StatusSource interface {
	State() player.PlayState
	Message() string
}

type StatusRenderer struct {
	source        StatusSource
	isMuted       bool
	isShuffled    bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer(source StatusSource) *StatusRenderer {
	return &StatusRenderer{
		source:        source,
		maxAnimFrame:  4,
		ticksPerFrame: 3, // 3 ticks of the 100ms spinner per frame
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetShuffled(shuffled bool) {
	s.isShuffled = shuffled
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	if s.source == nil {
		return s.renderIdle()
	}

	switch s.source.State() {
	case player.StateLoading, player.StateLoaded:
		return s.renderLoading(s.source.Message())
	case player.StatePlaying:
		return s.renderPlaying()
	case player.StatePaused:
		return s.renderPaused(s.source.Message())
	case player.StateError:
		return s.renderError(s.source.Message())
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) flags() []string {
	var parts []string
	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if s.isShuffled {
		parts = append(parts, "SHUFFLE")
	}
	return parts
}

func (s *StatusRenderer) renderIdle() string {
	return joinParts(append([]string{"○ IDLE"}, s.flags()...))
}

func (s *StatusRenderer) renderLoading(message string) string {
	circles := []string{"◐", "◓", "◑", "◒"}
	parts := []string{fmt.Sprintf("%s LOADING", circles[s.animFrame])}
	if message != "" {
		parts = append(parts, message)
	}
	return joinParts(parts)
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	return joinParts(append([]string{dot + " PLAYING"}, s.flags()...))
}

func (s *StatusRenderer) renderPaused(message string) string {
	parts := []string{PauseIcon + " PAUSED"}
	if message != "" {
		parts = append(parts, message)
	}
	return joinParts(append(parts, s.flags()...))
}

func (s *StatusRenderer) renderError(message string) string {
	if message == "" {
		message = "ERROR"
	}
	return fmt.Sprintf("✗ %s", tview.Escape(strings.SplitN(friendlyErrorMessage(message), "\n", 2)[0]))
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

// formatDuration renders d as m:ss, or h:mm:ss past an hour.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// renderTrackProgress returns "1:02 ███░░░ 3:45". An unknown total shows an
// empty bar.
func renderTrackProgress(pos, total time.Duration, width int) string {
	percent := 0
	if total > 0 {
		percent = int(pos * 100 / total)
	}
	return fmt.Sprintf("%s %s %s", formatDuration(pos), renderProgressBar(percent, width), formatDuration(total))
}

func policyTag(p track.SourcePolicy) string {
	switch p {
	case track.PolicyLocalCache:
		return "cached"
	case track.PolicyRegionBlocked:
		return "proxy"
	case track.PolicyPreviewOnly:
		return "preview"
	case track.PolicyUnavailable:
		return "n/a"
	default:
		return ""
	}
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.player.State() {
	case player.StatePlaying:
		return fmt.Sprintf("[%s]Space[-] pause  [%s]n/p[-] next/prev", keyColor, keyColor)
	case player.StatePaused:
		return fmt.Sprintf("[%s]Space[-] resume  [%s]n/p[-] next/prev", keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Enter[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]+/-[-] vol  [%s]m[-] %s  [%s]s[-] shuffle  [%s]?[-] help  [%s]q[-] quit ",
		ui.getPlaybackHint(keyColor), keyColor, keyColor, muteText, keyColor, keyColor, keyColor)
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		helpWidth := width / 2
		for row := y; row < y+height; row++ {
			for col := x; col < x+helpWidth; col++ {
				screen.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(ui.colors.headerBackground))
			}
		}

		centerY := y + height/2
		tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
		tview.Print(screen, statusText, x+helpWidth, centerY, width-helpWidth-1, tview.AlignRight, ui.colors.foreground)

		return x, y, width, height
	})

	return box
}
