package ui

import (
	"fmt"
	"strings"

	"github.com/glebovdev/soundcloud-cli/internal/config"
	"github.com/rs/zerolog/log"
)

const volumeBarWidth = 10

// renderVolume draws a horizontal volume meter, e.g. "vol ██████░░░░ 60%".
func renderVolume(volume int, muted bool) string {
	volume = config.ClampVolume(volume)
	filled := (volume * volumeBarWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", volumeBarWidth-filled)
	if muted {
		return fmt.Sprintf("vol %s [::s]%d%%[::-]", bar, volume)
	}
	return fmt.Sprintf("vol %s %d%%", bar, volume)
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView == nil {
		return
	}

	ui.mu.Lock()
	displayVolume := ui.currentVolume
	isMuted := ui.isMuted
	if isMuted {
		displayVolume = ui.config.Volume
	}
	ui.mu.Unlock()

	color := ui.colors.highlight
	if isMuted {
		color = ui.colors.muted
	}
	ui.volumeView.SetTextColor(color)
	ui.volumeView.SetText(renderVolume(displayVolume, isMuted))
}

func (ui *UI) applyVolume(volume int) {
	ui.player.SetVolume(float64(volume) / 100)
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()

	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		ui.statusRenderer.SetMuted(false)
		ui.mu.Unlock()

		ui.applyVolume(ui.currentVolume)
		ui.updateVolumeDisplay()
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", ui.currentVolume)
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.applyVolume(volume)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
	log.Debug().Msgf("Volume adjusted to %d%%", volume)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		log.Debug().Msgf("Unmuted, restored volume to %d%%", ui.currentVolume)
	} else {
		if ui.currentVolume == 0 {
			ui.config.Volume = config.DefaultVolume
		} else {
			ui.config.Volume = ui.currentVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
		log.Debug().Msgf("Muted, saved volume %d%%", ui.config.Volume)
	}
	ui.statusRenderer.SetMuted(ui.isMuted)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.applyVolume(volume)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
}
