package ui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/soundcloud-cli/internal/config"
	"github.com/glebovdev/soundcloud-cli/internal/player"
	"github.com/glebovdev/soundcloud-cli/internal/queue"
	"github.com/glebovdev/soundcloud-cli/internal/service"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep            = 5
	SeekStep              = 10 * time.Second
	HeaderHeight          = 3
	FooterHeight          = 3
	NowPlayingHeight      = 7
	ProgressBarWidth      = 40
	FetchTimeout          = 30 * time.Second
	MinLoadingDisplayTime = 600 * time.Millisecond
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Options controls what the UI does once the initial tracks are fetched.
type Options struct {
	TrackIDs []int64
	Autoplay bool
	Shuffle  bool
}

type UI struct {
	app          *tview.Application
	player       *player.Player
	tracks       *service.TrackService
	queue        *queue.Queue
	config       *config.Config
	opts         Options
	sub          *player.Subscription
	pages        *tview.Pages
	mainLayout   *tview.Flex
	queueTable   *tview.Table
	nowPlaying   *tview.TextView
	progressView *tview.TextView
	volumeView   *tview.TextView
	footer       *tview.Box

	loadingScreen *tview.Flex
	loadingText   *tview.TextView
	progressBar   *tview.TextView

	stopUpdates    chan struct{}
	statusRenderer *StatusRenderer
	playingSpinner *PlayingSpinner

	mu            sync.Mutex
	currentVolume int
	isMuted       bool
	current       *track.Track
	position      time.Duration

	colors struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		muted            tcell.Color
		headerBackground tcell.Color
		errorForeground  tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
	}
}

func NewUI(p *player.Player, tracks *service.TrackService, q *queue.Queue, cfg *config.Config, opts Options) *UI {
	ui := &UI{
		app:           tview.NewApplication(),
		player:        p,
		tracks:        tracks,
		queue:         q,
		config:        cfg,
		opts:          opts,
		stopUpdates:   make(chan struct{}),
		currentVolume: cfg.Volume,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.muted = config.GetColor(cfg.Theme.MutedVolume)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.errorForeground = config.GetColor(cfg.Theme.ErrorForeground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)

	p.SetVolume(cfg.VolumeLevel())
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer(p)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())
	ui.playingSpinner = NewPlayingSpinner()

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	ui.config.Shuffle = ui.queue.Shuffled()
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		close(ui.stopUpdates)
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	ui.safeCloseChannel()
	ui.SaveConfig()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.fetchTracksAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Fetching tracks from SoundCloud...")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(renderProgressBar(0, 30))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

// renderProgressBar draws a width-cell bar filled to percent.
func renderProgressBar(percent, width int) string {
	percent = max(0, min(100, percent))
	filled := (percent * width) / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (ui *UI) fetchTracksAndInitUI() error {
	startTime := time.Now()

	if ui.queue.Len() == 0 && len(ui.opts.TrackIDs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), FetchTimeout)
		defer cancel()

		n, err := ui.tracks.Enqueue(ctx, ui.opts.TrackIDs)
		if err != nil {
			return err
		}
		log.Debug().Msgf("Queued %d tracks in %v", n, time.Since(startTime))
	}

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building interface...")
		ui.progressBar.SetText(renderProgressBar(66, 30))
	})

	if ui.opts.Shuffle {
		ui.queue.SetShuffled(true)
	}
	ui.statusRenderer.SetShuffled(ui.queue.Shuffled())

	// Floor, not ceiling: wait only if real work finished early.
	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}

	ui.app.QueueUpdateDraw(func() {
		ui.setupUI()
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.queueTable)
		ui.refreshQueueTable()
	})

	ui.sub = ui.player.Subscribe()
	go ui.listen(ui.sub)
	ui.startAnimation()

	if ui.opts.Autoplay && ui.queue.Len() > 0 {
		go ui.player.PlayCurrent()
	}
	return nil
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.nowPlaying = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	ui.nowPlaying.SetTextColor(ui.colors.foreground).SetBackgroundColor(ui.colors.background)

	ui.progressView = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	ui.progressView.SetTextColor(ui.colors.foreground).SetBackgroundColor(ui.colors.background)

	ui.volumeView = tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignRight)
	ui.volumeView.SetBackgroundColor(ui.colors.background)

	progressLine := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(ui.progressView, 0, 1, false).
		AddItem(ui.volumeView, 24, 0, false)
	progressLine.SetBackgroundColor(ui.colors.background)

	panel := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.nowPlaying, 3, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(progressLine, 1, 0, false)
	panel.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitle(" Now Playing ").
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(0, 0, 1, 1)

	ui.queueTable = ui.createQueueTable()
	ui.footer = ui.createFooter()

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(panel, NowPlayingHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.queueTable, 0, 1, true).
		AddItem(ui.footer, FooterHeight, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 2, 0, false).
		AddItem(content, 0, 1, true).
		AddItem(nil, 2, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})

	ui.updateNowPlaying()
	ui.updateProgress()
	ui.updateVolumeDisplay()
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 1, 0, false).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 12, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(textFlex, 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

// listen applies player events to the view until the subscription closes.
func (ui *UI) listen(sub *player.Subscription) {
	for {
		select {
		case <-sub.Done:
			return
		case e := <-sub.StateChanged:
			ui.app.QueueUpdateDraw(func() { ui.onStateChanged(e) })
		case e := <-sub.TrackChanging:
			ui.mu.Lock()
			t := e.Track
			ui.current = &t
			ui.position = 0
			ui.mu.Unlock()
			ui.app.QueueUpdateDraw(func() {
				ui.updateNowPlaying()
				ui.updateProgress()
				ui.refreshQueueTable()
			})
		case <-sub.TrackChanged:
			ui.app.QueueUpdateDraw(ui.refreshQueueTable)
		case e := <-sub.PositionChanged:
			ui.mu.Lock()
			ui.position = e.Position
			ui.mu.Unlock()
			ui.app.QueueUpdateDraw(ui.updateProgress)
		case <-sub.QueueChanged:
			ui.app.QueueUpdateDraw(ui.refreshQueueTable)
		}
	}
}

func (ui *UI) onStateChanged(e player.StateChange) {
	ui.updateNowPlaying()
	ui.refreshQueueTable()
	if e.State == player.StateError && e.Message != "" {
		ui.showPlaybackErrorModal(friendlyErrorMessage(e.Message))
	}
}

func (ui *UI) updateNowPlaying() {
	if ui.nowPlaying == nil {
		return
	}

	ui.mu.Lock()
	current := ui.current
	ui.mu.Unlock()

	if current == nil {
		ui.nowPlaying.SetText(fmt.Sprintf("\n [%s]Nothing playing[-]", ui.colors.foreground.String()))
		return
	}

	artist := current.Artist
	if artist == "" {
		artist = "Unknown artist"
	}
	tag := policyTag(current.Policy)
	if tag != "" {
		tag = fmt.Sprintf("  [%s]%s[-]", ui.colors.helpHotkey.String(), tag)
	}
	ui.nowPlaying.SetText(fmt.Sprintf(" [%s::b]%s[-::-]%s\n %s\n [::d]%s[::-]",
		ui.colors.highlight.String(), tview.Escape(current.Title), tag,
		tview.Escape(artist),
		current.Permalink))
}

func (ui *UI) updateProgress() {
	if ui.progressView == nil {
		return
	}

	ui.mu.Lock()
	var total time.Duration
	if ui.current != nil {
		total = ui.current.Duration
	}
	pos := ui.position
	ui.mu.Unlock()

	ui.progressView.SetText(renderTrackProgress(pos, total, ProgressBarWidth))
}

func (ui *UI) startAnimation() {
	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()
	if stop == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(ui.playingSpinner.FPS)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ui.statusRenderer.AdvanceAnimation()
				if ui.player.State() == player.StateLoading || ui.player.State() == player.StatePlaying {
					ui.app.QueueUpdateDraw(func() {})
				}
			}
		}
	}()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			go ui.player.TogglePause()
			return nil
		case 'n', '>':
			go ui.player.Next()
			return nil
		case 'p', '<':
			go ui.player.Previous()
			return nil
		case 's', 'S':
			ui.toggleShuffle()
			return nil
		case 'd', 'D':
			ui.removeSelected()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyEnter:
		ui.playSelected()
		return nil
	case tcell.KeyDelete:
		ui.removeSelected()
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.seekBy(SeekStep)
		return nil
	case tcell.KeyLeft:
		ui.seekBy(-SeekStep)
		return nil
	}
	return event
}

func (ui *UI) seekBy(delta time.Duration) {
	go func() {
		if err := ui.player.SeekBy(delta); err != nil {
			log.Debug().Err(err).Msg("Seek ignored")
		}
	}()
}

func (ui *UI) toggleShuffle() {
	ui.queue.SetShuffled(!ui.queue.Shuffled())
	ui.statusRenderer.SetShuffled(ui.queue.Shuffled())
	ui.SaveConfig()
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}
