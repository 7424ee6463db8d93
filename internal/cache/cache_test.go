package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebovdev/soundcloud-cli/internal/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestDefaultDir(t *testing.T) {
	dir := DefaultDir()

	if !strings.HasSuffix(dir, filepath.Join(AppName, TracksSubdir)) {
		t.Errorf("DefaultDir() = %q, want suffix %q", dir, filepath.Join(AppName, TracksSubdir))
	}
}

func TestNewStoreEmptyDirUsesDefault(t *testing.T) {
	s := NewStore("")
	if s.Dir() != DefaultDir() {
		t.Errorf("NewStore(\"\").Dir() = %q, want %q", s.Dir(), DefaultDir())
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	tr := &track.Track{ID: 42}
	data := []byte("fake mp3 bytes")

	if s.Has(tr) {
		t.Error("Has() = true before Save()")
	}

	if err := s.Save(tr, data); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !s.Has(tr) {
		t.Error("Has() = false after Save()")
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), "42.mp3")); err != nil {
		t.Errorf("cached file missing: %v", err)
	}

	loaded, err := s.Load(tr)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(loaded) != string(data) {
		t.Errorf("Load() = %q, want %q", loaded, data)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(&track.Track{ID: 1}, []byte("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %q left behind", e.Name())
		}
	}
}

func TestLoadNonExistent(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Load(&track.Track{ID: 404}); err == nil {
		t.Error("Load() of missing track returned no error")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	s := newTestStore(t)
	tr := &track.Track{ID: 3}

	if err := os.WriteFile(tr.LocalPath(s.Dir()), nil, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if s.Has(tr) {
		t.Error("Has() = true for an empty file")
	}
	if _, err := s.Load(tr); err == nil {
		t.Error("Load() of empty file returned no error")
	}
}

func TestLoadExpired(t *testing.T) {
	s := newTestStore(t)
	s.expiry = time.Millisecond
	tr := &track.Track{ID: 5}

	if err := s.Save(tr, []byte("old")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(tr.LocalPath(s.Dir()), old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if s.Has(tr) {
		t.Error("Has() = true for an expired file")
	}
	if _, err := s.Load(tr); err == nil {
		t.Error("Load() of expired file returned no error")
	}
	if _, err := os.Stat(tr.LocalPath(s.Dir())); !os.IsNotExist(err) {
		t.Error("expired file was not removed by Load()")
	}
}

func TestCleanExpired(t *testing.T) {
	s := newTestStore(t)

	fresh := &track.Track{ID: 1}
	stale := &track.Track{ID: 2}
	for _, tr := range []*track.Track{fresh, stale} {
		if err := s.Save(tr, []byte("data")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	old := time.Now().Add(-DefaultExpiry - time.Hour)
	if err := os.Chtimes(stale.LocalPath(s.Dir()), old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	removed, err := s.CleanExpired()
	if err != nil {
		t.Fatalf("CleanExpired() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanExpired() removed %d, want 1", removed)
	}
	if !s.Has(fresh) {
		t.Error("fresh track was removed")
	}
	if s.Has(stale) {
		t.Error("stale track survived")
	}
}

func TestCleanExpiredMissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))

	removed, err := s.CleanExpired()
	if err != nil {
		t.Errorf("CleanExpired() on missing dir error = %v", err)
	}
	if removed != 0 {
		t.Errorf("CleanExpired() removed %d, want 0", removed)
	}
}

func TestUsageAndPurge(t *testing.T) {
	s := newTestStore(t)

	for i, size := range []int{10, 20, 30} {
		if err := s.Save(&track.Track{ID: int64(i + 1)}, make([]byte, size)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	files, size, err := s.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if files != 3 || size != 60 {
		t.Errorf("Usage() = %d files, %d bytes, want 3 files, 60 bytes", files, size)
	}

	removed, err := s.Purge()
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Purge() removed %d, want 3", removed)
	}

	files, _, _ = s.Usage()
	if files != 0 {
		t.Errorf("Usage() after Purge() = %d files, want 0", files)
	}
}
