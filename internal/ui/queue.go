package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundcloud-cli/internal/player"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

func (ui *UI) createQueueTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	headers := []struct {
		title     string
		expansion int
		align     int
	}{
		{" ", 0, tview.AlignLeft},
		{"#", 0, tview.AlignRight},
		{"Title", 2, tview.AlignLeft},
		{"Artist", 1, tview.AlignLeft},
		{"Source", 0, tview.AlignLeft},
		{"Length", 0, tview.AlignRight},
	}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h.title).
			SetTextColor(ui.colors.highlight).
			SetExpansion(h.expansion).
			SetAlign(h.align).
			SetSelectable(false))
	}

	table.SetSelectedFunc(func(row, _ int) {
		ui.playRow(row)
	})

	return table
}

func (ui *UI) refreshQueueTable() {
	if ui.queueTable == nil {
		return
	}

	tracks := ui.queue.Tracks()
	position := ui.queue.Position()
	state := ui.player.State()

	title := fmt.Sprintf("Queue (%d)", len(tracks))
	if ui.queue.Shuffled() {
		title += " shuffled"
	}
	ui.queueTable.SetTitle(title)

	for row := ui.queueTable.GetRowCount() - 1; row > len(tracks); row-- {
		ui.queueTable.RemoveRow(row)
	}

	for i, t := range tracks {
		ui.setQueueRow(i+1, i, t, i == position, state)
	}
}

func (ui *UI) setQueueRow(row, index int, t track.Track, isCurrent bool, state player.PlayState) {
	color := ui.colors.foreground
	if t.Policy == track.PolicyUnavailable {
		color = ui.colors.borders
	}

	ui.queueTable.SetCell(row, 0, tview.NewTableCell(playIndicator(isCurrent, state)).
		SetTextColor(ui.colors.highlight).
		SetMaxWidth(2))
	ui.queueTable.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", index+1)).
		SetTextColor(color).
		SetAlign(tview.AlignRight))
	ui.queueTable.SetCell(row, 2, tview.NewTableCell(t.Title).
		SetTextColor(color).
		SetMaxWidth(48).
		SetExpansion(2))
	ui.queueTable.SetCell(row, 3, tview.NewTableCell(t.Artist).
		SetTextColor(color).
		SetMaxWidth(28).
		SetExpansion(1))
	ui.queueTable.SetCell(row, 4, tview.NewTableCell(policyTag(t.Policy)).
		SetTextColor(ui.colors.helpForeground))
	ui.queueTable.SetCell(row, 5, tview.NewTableCell(formatDuration(t.Duration)).
		SetTextColor(color).
		SetAlign(tview.AlignRight))
}

func playIndicator(isCurrent bool, state player.PlayState) string {
	if !isCurrent {
		return " "
	}
	switch state {
	case player.StatePlaying:
		return "➤"
	case player.StatePaused:
		return PauseIcon
	case player.StateLoading, player.StateLoaded:
		return "…"
	case player.StateError:
		return "✗"
	default:
		return " "
	}
}

func (ui *UI) selectedTrack() (track.Track, bool) {
	row, _ := ui.queueTable.GetSelection()
	tracks := ui.queue.Tracks()
	if row < 1 || row > len(tracks) {
		return track.Track{}, false
	}
	return tracks[row-1], true
}

func (ui *UI) playRow(row int) {
	tracks := ui.queue.Tracks()
	if row < 1 || row > len(tracks) {
		return
	}
	if !ui.queue.TryMoveToTrack(tracks[row-1]) {
		return
	}
	go ui.player.PlayCurrent()
}

func (ui *UI) playSelected() {
	row, _ := ui.queueTable.GetSelection()
	ui.playRow(row)
}

func (ui *UI) removeSelected() {
	t, ok := ui.selectedTrack()
	if !ok {
		return
	}
	removed := ui.queue.RemoveAll(func(other track.Track) bool { return other.ID == t.ID })
	log.Debug().Int64("track", t.ID).Int("removed", removed).Msg("Removed from queue")
}
