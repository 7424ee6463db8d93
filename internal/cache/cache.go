// Package cache stores fully downloaded tracks on disk so they can be played
// back later without touching the network.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/glebovdev/soundcloud-cli/internal/track"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultExpiry is how long cached tracks are kept (30 days).
	DefaultExpiry = 30 * 24 * time.Hour
	// TracksSubdir is the subdirectory for cached tracks.
	TracksSubdir = "tracks"
	// AppName is used for the cache directory name.
	AppName = "soundcloud-cli"
)

// Store manages the on-disk copies of tracks, one file per track id.
type Store struct {
	baseDir string
	expiry  time.Duration
}

// NewStore creates a Store rooted at dir. An empty dir means DefaultDir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Store{
		baseDir: dir,
		expiry:  DefaultExpiry,
	}
}

// DefaultDir returns the platform cache directory for tracks.
func DefaultDir() string {
	return filepath.Join(xdg.CacheHome, AppName, TracksSubdir)
}

func (s *Store) Dir() string {
	return s.baseDir
}

func (s *Store) path(t *track.Track) string {
	return t.LocalPath(s.baseDir)
}

// Has reports whether a non-empty, unexpired copy of t exists.
func (s *Store) Has(t *track.Track) bool {
	info, err := os.Stat(s.path(t))
	if err != nil {
		return false
	}
	return info.Size() > 0 && time.Since(info.ModTime()) <= s.expiry
}

// Load returns the cached bytes of t.
func (s *Store) Load(t *track.Track) ([]byte, error) {
	trackPath := s.path(t)

	info, err := os.Stat(trackPath)
	if err != nil {
		return nil, fmt.Errorf("track %d not cached: %w", t.ID, err)
	}

	if time.Since(info.ModTime()) > s.expiry {
		if err := os.Remove(trackPath); err != nil {
			log.Debug().Err(err).Str("file", trackPath).Msg("Failed to remove expired cache file")
		}
		return nil, fmt.Errorf("track %d cache entry expired", t.ID)
	}

	data, err := os.ReadFile(trackPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached track: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cached track %d is empty", t.ID)
	}

	return data, nil
}

// Save writes data as the cached copy of t atomically using temp file + rename.
func (s *Store) Save(t *track.Track, data []byte) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.baseDir, ".track-*.tmp")
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

	if err := os.Rename(tmpPath, s.path(t)); err != nil {
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	tmpPath = ""
	return nil
}

// Usage returns the number of cached tracks and their total size in bytes.
func (s *Store) Usage() (int, int64, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var files int
	var size int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp3") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files++
		size += info.Size()
	}
	return files, size, nil
}

// CleanExpired removes cached tracks older than the expiry duration and
// returns how many were removed.
func (s *Store) CleanExpired() (int, error) {
	return s.clean(func(info os.FileInfo, now time.Time) bool {
		return now.Sub(info.ModTime()) > s.expiry
	})
}

// Purge removes every cached track.
func (s *Store) Purge() (int, error) {
	return s.clean(func(os.FileInfo, time.Time) bool { return true })
}

func (s *Store) clean(shouldRemove func(os.FileInfo, time.Time) bool) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := time.Now()
	var removed, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", entry.Name()).Msg("Failed to get file info")
			continue
		}

		if shouldRemove(info, now) {
			filePath := filepath.Join(s.baseDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				log.Debug().Err(err).Str("file", filePath).Msg("Failed to remove cache file")
				failed++
			} else {
				removed++
			}
		}
	}

	if removed > 0 || failed > 0 {
		log.Debug().Int("removed", removed).Int("failed", failed).Msg("Cache cleanup completed")
	}

	return removed, nil
}
