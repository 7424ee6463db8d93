package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/glebovdev/soundcloud-cli/internal/api"
	"github.com/glebovdev/soundcloud-cli/internal/audio"
	"github.com/glebovdev/soundcloud-cli/internal/cache"
	"github.com/glebovdev/soundcloud-cli/internal/config"
	"github.com/glebovdev/soundcloud-cli/internal/loader"
	"github.com/glebovdev/soundcloud-cli/internal/player"
	"github.com/glebovdev/soundcloud-cli/internal/queue"
	"github.com/glebovdev/soundcloud-cli/internal/segcache"
	"github.com/glebovdev/soundcloud-cli/internal/service"
	"github.com/glebovdev/soundcloud-cli/internal/transport"
	"github.com/glebovdev/soundcloud-cli/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	debugFlag    bool
	shuffleFlag  bool
	autoplayFlag bool
	purgeFlag    bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "soundcloud-cli [track-id...]",
		Short:   config.AppDescription,
		Version: config.AppVersion,
		Args:    cobra.ArbitraryArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(debugFlag)
		},
		RunE:          runPlayer,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	root.Flags().BoolVar(&shuffleFlag, "shuffle", false, "Shuffle the queue on start")
	root.Flags().BoolVar(&autoplayFlag, "autoplay", true, "Start playing the first track")

	configPath, err := config.GetConfigPath()
	if err == nil {
		root.SetVersionTemplate(fmt.Sprintf("%s v{{.Version}}\nConfig file: %s\n", config.AppName, configPath))
	}

	root.AddCommand(cacheCmd(), checkCmd())
	return root
}

func logDir() string {
	return filepath.Join(xdg.CacheHome, cache.AppName)
}

func setupLogging(debug bool) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		log.Logger = log.Output(io.Discard)
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logPath := filepath.Join(logDir(), "debug.log")
	if err := os.MkdirAll(logDir(), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	rolling := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: rolling, TimeFormat: "15:04:05", NoColor: true})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}
	if path, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", path)
	}
	return cfg
}

func parseTrackIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid track id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runPlayer(cmd *cobra.Command, args []string) error {
	ids, err := parseTrackIDs(args)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	if cfg.ClientID == "" {
		return fmt.Errorf("no client_id configured: set %s or client_id in the config file", config.EnvClientID)
	}
	if cmd.Flags().Changed("shuffle") {
		cfg.Shuffle = shuffleFlag
	}
	if cmd.Flags().Changed("autoplay") {
		cfg.Autoplay = autoplayFlag
	}

	clients, err := transport.NewClients(cfg.ProxyURL)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	segments, err := segcache.Connect(connectCtx, cfg.RedisAddr, time.Duration(cfg.SegmentCacheTTL)*time.Hour)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("Segment cache disabled")
		segments = nil
	}
	defer segments.Close()

	catalog := api.NewSoundCloudClient(cfg.APIBaseURL, cfg.ClientID, cfg.ProbeURL, clients)
	fetcher := transport.NewSegmentFetcher(clients, segments, cfg.ProbeURL)
	store := cache.NewStore(cfg.CacheDir)
	log.Debug().Msgf("Track cache: %s", store.Dir())

	trackLoader := loader.New(catalog, fetcher, store, loader.Options{
		EstimatedBitrate: cfg.EstimatedBitrate,
		CacheTracks:      cfg.CacheTracks,
		Observer: func(trackID int64, state loader.State) {
			log.Debug().Int64("track", trackID).Stringer("state", state).Msg("Loader state")
		},
	})

	q := queue.New(nil)
	tracks := service.NewTrackService(catalog, store, q)
	device := audio.NewDevice(cfg.EstimatedBitrate, cfg.VolumeLevel())
	p := player.NewPlayer(trackLoader, device, q, player.Options{
		Continuation: tracks.Continuation,
		Volume:       cfg.VolumeLevel(),
	})
	defer p.Close()

	if len(ids) == 0 {
		log.Debug().Msg("No track ids given, starting with an empty queue")
	}

	view := ui.NewUI(p, tracks, q, cfg, ui.Options{
		TrackIDs: ids,
		Autoplay: cfg.Autoplay,
		Shuffle:  cfg.Shuffle,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		view.Shutdown()
	}()

	log.Info().Int("tracks", len(ids)).Msg("Starting UI...")
	if err := view.Run(); err != nil {
		log.Error().Err(err).Msg("Error running UI")
		return err
	}

	log.Info().Msgf("%s stopped", config.AppName)
	return nil
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local track cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cache.NewStore(loadConfig().CacheDir)
			files, size, err := store.Usage()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tracks, %s\n", store.Dir(), files, humanize.IBytes(uint64(size)))
			return nil
		},
	}

	clean := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired tracks (or all with --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cache.NewStore(loadConfig().CacheDir)
			_, before, err := store.Usage()
			if err != nil {
				return err
			}

			var removed int
			if purgeFlag {
				removed, err = store.Purge()
			} else {
				removed, err = store.CleanExpired()
			}
			if err != nil {
				return err
			}

			_, after, err := store.Usage()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tracks, freed %s\n", removed, humanize.IBytes(uint64(max(0, before-after))))
			return nil
		},
	}
	clean.Flags().BoolVar(&purgeFlag, "all", false, "Remove every cached track")

	cmd.AddCommand(clean)
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to SoundCloud, the proxy and the segment cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			out := cmd.OutOrStdout()

			clients, err := transport.NewClients(cfg.ProxyURL)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			var failed bool
			catalog := api.NewSoundCloudClient(cfg.APIBaseURL, cfg.ClientID, cfg.ProbeURL, clients)
			if catalog.ProbeConnectivity(ctx) {
				fmt.Fprintf(out, "catalog  %s: ok\n", cfg.APIBaseURL)
			} else {
				fmt.Fprintf(out, "catalog  %s: unreachable\n", cfg.APIBaseURL)
				failed = true
			}

			if clients.ProxyConfigured() {
				fetcher := transport.NewSegmentFetcher(clients, nil, cfg.ProbeURL)
				if err := fetcher.ProbeProxy(ctx); err != nil {
					fmt.Fprintf(out, "proxy    %s: %v\n", clients.ProxyHost(), err)
					failed = true
				} else {
					fmt.Fprintf(out, "proxy    %s: ok\n", clients.ProxyHost())
				}
			} else {
				fmt.Fprintln(out, "proxy    not configured")
			}

			if cfg.RedisAddr != "" {
				segments, err := segcache.Connect(ctx, cfg.RedisAddr, time.Hour)
				if err != nil {
					fmt.Fprintf(out, "redis    %s: %v\n", cfg.RedisAddr, err)
					failed = true
				} else {
					fmt.Fprintf(out, "redis    %s: ok\n", cfg.RedisAddr)
					segments.Close()
				}
			} else {
				fmt.Fprintln(out, "redis    not configured")
			}

			if failed {
				return errors.New("some checks failed")
			}
			return nil
		},
	}
}
