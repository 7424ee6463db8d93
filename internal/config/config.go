package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "SoundCloud CLI"
	AppTagline      = "Terminal track player"
	AppDescription  = "A terminal-based player for SoundCloud tracks"
	AppProjectURL   = "https://github.com/glebovdev/soundcloud-cli"
	AppProjectShort = "github.com/glebovdev/soundcloud-cli"

	ConfigDir      = ".config/soundcloud-cli"
	ConfigFileName = "config.yml"

	DefaultVolume           = 70
	MinVolume               = 0
	MaxVolume               = 100
	DefaultAPIBaseURL       = "https://api-v2.soundcloud.com"
	DefaultEstimatedBitrate = 128 // kbps, SoundCloud mp3 transcodings
	DefaultSegmentCacheTTL  = 24  // hours

	EnvClientID  = "SOUNDCLOUD_CLIENT_ID"
	EnvProxyURL  = "SOUNDCLOUD_PROXY_URL"
	EnvRedisAddr = "SOUNDCLOUD_REDIS_ADDR"
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/soundcloud-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	MutedVolume      string `yaml:"muted_volume"`
	HeaderBackground string `yaml:"header_background"`
	ErrorForeground  string `yaml:"error_foreground"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
}

type Config struct {
	Volume           int    `yaml:"volume"`
	ClientID         string `yaml:"client_id"`
	APIBaseURL       string `yaml:"api_base_url"`
	ProxyURL         string `yaml:"proxy_url"`
	ProbeURL         string `yaml:"probe_url"`
	CacheTracks      bool   `yaml:"cache_tracks"`
	CacheDir         string `yaml:"cache_dir"`
	EstimatedBitrate int    `yaml:"estimated_bitrate"`
	RedisAddr        string `yaml:"redis_addr"`
	SegmentCacheTTL  int    `yaml:"segment_cache_ttl"` // hours
	Autoplay         bool   `yaml:"autoplay"`
	Shuffle          bool   `yaml:"shuffle"`
	Theme            Theme  `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, err
	}

	cfg := DefaultConfig()

	if _, statErr := os.Stat(configPath); statErr == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			cfg.applyEnv()
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			cfg = DefaultConfig()
			cfg.applyEnv()
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	return cfg, nil
}

// applyEnv lets environment variables (or a .env file in the working
// directory) override secrets and endpoints without touching the YAML file.
func (c *Config) applyEnv() {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	if v, ok := os.LookupEnv(EnvClientID); ok && v != "" {
		c.ClientID = v
	}
	if v, ok := os.LookupEnv(EnvProxyURL); ok {
		c.ProxyURL = v
	}
	if v, ok := os.LookupEnv(EnvRedisAddr); ok {
		c.RedisAddr = v
	}
}

func (c *Config) normalize() {
	c.Volume = ClampVolume(c.Volume)
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.ProbeURL == "" {
		c.ProbeURL = c.APIBaseURL
	}
	if c.EstimatedBitrate <= 0 {
		c.EstimatedBitrate = DefaultEstimatedBitrate
	}
	if c.SegmentCacheTTL <= 0 {
		c.SegmentCacheTTL = DefaultSegmentCacheTTL
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:           DefaultVolume,
		APIBaseURL:       DefaultAPIBaseURL,
		ProbeURL:         DefaultAPIBaseURL,
		CacheTracks:      false,
		EstimatedBitrate: DefaultEstimatedBitrate,
		SegmentCacheTTL:  DefaultSegmentCacheTTL,
		Autoplay:         true,
		Shuffle:          false,
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff5500",
			MutedVolume:      "#fe0702",
			HeaderBackground: "#473533",
			ErrorForeground:  "#fe0702",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff5500",
		},
	}
}

// VolumeLevel returns the configured volume as a 0.0-1.0 level.
func (c *Config) VolumeLevel() float64 {
	return float64(ClampVolume(c.Volume)) / 100.0
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
