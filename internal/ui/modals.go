package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundcloud-cli/internal/config"
	"github.com/glebovdev/soundcloud-cli/internal/loader"
	"github.com/rivo/tview"
)

func friendlyErrorMessage(errStr string) string {
	switch {
	case strings.Contains(errStr, loader.ErrRegionRestricted.Error()):
		if strings.Contains(errStr, "(proxy:") {
			return "Track is region restricted and the proxy is not responding."
		}
		return "Track is not available in your region.\nConfigure proxy_url to play it."
	case strings.Contains(errStr, loader.ErrServiceUnreachable.Error()):
		return "SoundCloud is unreachable.\nPlease check your internet connection."
	case strings.Contains(errStr, "no such host"):
		return "Unable to connect to server.\nPlease check your internet connection."
	case strings.Contains(errStr, "connection refused"):
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		return "Connection timed out.\nPlease check your internet connection."
	case strings.Contains(errStr, "network is unreachable"):
		return "Network is unreachable.\nPlease check your internet connection."
	case strings.Contains(errStr, "status 401"):
		return "Access denied (401).\nCheck your client_id."
	case strings.Contains(errStr, "status 403"):
		return "Access forbidden (403)."
	case strings.Contains(errStr, "status 404"):
		return "Track not found (404)."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

// modalFrame centers content in a bordered frame of the given size.
func (ui *UI) modalFrame(title string, content tview.Primitive, width, height int, borderColor tcell.Color) *tview.Flex {
	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(borderColor).
		SetBackgroundColor(ui.colors.headerBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(frame, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)
	return modal
}

func (ui *UI) messageWithHint(message, hint string, align int) *tview.Flex {
	messageView := tview.NewTextView().
		SetTextAlign(align).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText(message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.headerBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(hint)
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.headerBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(hintView, 1, 0, false)
	content.SetBackgroundColor(ui.colors.headerBackground)
	return content
}

func (ui *UI) showPlaybackErrorModal(message string) {
	if ui.pages == nil {
		return
	}
	ui.pages.RemovePage("error-modal")

	doDismiss := func() {
		ui.pages.RemovePage("error-modal")
		ui.app.SetFocus(ui.queueTable)
	}

	content := ui.messageWithHint(
		fmt.Sprintf("\n[::b]Playback Error[::-]\n\n%s", tview.Escape(message)),
		"[::d][::b]R[::d] retry  •  [::b]N[::d] next track  •  [::b]Esc[::d] dismiss[::-]",
		tview.AlignCenter)

	height := 10
	if lines := strings.Count(message, "\n") + 1; lines > 2 {
		height = min(15, height+lines-2)
	}
	modal := ui.modalFrame("Error", content, 56, height, ui.colors.errorForeground)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			doDismiss()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				doDismiss()
				go ui.player.PlayCurrent()
				return nil
			case 'n', 'N':
				doDismiss()
				go ui.player.Next()
				return nil
			}
		}
		return event
	})

	ui.pages.AddPage("error-modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showHelpModal() {
	k := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]Enter[-]      Play selected track
  [%[1]s]Space[-]      Pause / Resume
  [%[1]s]n[-] / [%[1]s]>[-]      Next track
  [%[1]s]p[-] / [%[1]s]<[-]      Previous track
  [%[1]s]←[-] / [%[1]s]→[-]      Seek 10s

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]QUEUE[-]
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate
  [%[1]s]s[-]          Toggle shuffle
  [%[1]s]d[-] / [%[1]s]Del[-]    Remove track

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]a[-]          About %[2]s
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

[%[1]s]CONFIG[-]: %[3]s`, k, config.AppName, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showAboutModal() {
	aboutText := fmt.Sprintf(`[::b]%s[::-]
[gray]%s[-]

Version: %s
Project: [skyblue:::%s]%s[-:::-]
License: MIT

%s`,
		config.AppName,
		config.AppTagline,
		config.AppVersion,
		config.AppProjectURL, config.AppProjectShort,
		config.AppDescription)

	ui.showInfoModal("About", aboutText)
}

func (ui *UI) showInfoModal(title, message string) {
	doDismiss := func() {
		ui.pages.RemovePage("modal")
		ui.app.SetFocus(ui.queueTable)
	}

	content := ui.messageWithHint("\n"+message, "[::d]Press any key to close[::-]", tview.AlignLeft)

	lines := strings.Count(message, "\n") + 1
	modal := ui.modalFrame(title, content, 50, min(38, lines+8), ui.colors.borders)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("[::b]%s[::-]\n\n%s", title, tview.Escape(message)))
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.headerBackground)

	helpText := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]")
	helpText.SetTextColor(ui.colors.foreground)
	helpText.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.errorForeground).
		SetBackgroundColor(ui.colors.headerBackground).
		SetTitle(" Connection Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(frame, 60, 1, true).
			AddItem(nil, 0, 1, false), 10, 1, true).
		AddItem(helpText, 2, 0, false).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				onRetry()
				return nil
			case 'q', 'Q':
				onQuit()
				return nil
			}
		case tcell.KeyEscape:
			onQuit()
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	ui.showInitialErrorScreen(
		"Unable to Load Tracks",
		friendlyErrorMessage(err.Error()),
		func() {
			ui.app.SetRoot(ui.loadingScreen, true)
			go ui.initAsync()
		},
		func() {
			ui.app.Stop()
		},
	)
}
