package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrSnapshotCorrupt is returned when the snapshot file cannot be decoded.
var ErrSnapshotCorrupt = errors.New("snapshot is corrupt")

// SnapshotStore persists the fingerprint map as a JSON object of hex
// fingerprint to epoch seconds.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the snapshot, so readers only ever see a complete file. A lock file
// next to the snapshot serialises writers across processes.
type SnapshotStore struct {
	path string
	lock *flock.Flock

	mu       sync.Mutex
	savedGen uint64
}

// NewSnapshotStore creates a store for the given path.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the snapshot location.
func (s *SnapshotStore) Path() string {
	return s.path
}

// Load reads the snapshot. A missing file yields an empty map and no error;
// an unreadable or corrupt file yields an empty map and the error.
func (s *SnapshotStore) Load() (map[string]int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]int64{}, nil
		}

		return map[string]int64{}, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}

	if len(data) == 0 {
		return map[string]int64{}, nil
	}

	entries := map[string]int64{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return map[string]int64{}, fmt.Errorf("%w: %s: %w", ErrSnapshotCorrupt, s.path, err)
	}

	return entries, nil
}

// Save writes entries if gen is newer than the last saved generation. It
// reports whether a write happened.
func (s *SnapshotStore) Save(gen uint64, entries map[string]int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen <= s.savedGen {
		return false, nil
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return false, fmt.Errorf("lock snapshot: %w", err)
	}

	defer func() {
		_ = s.lock.Unlock()
	}()

	if err := writeAtomic(s.path, data); err != nil {
		return false, err
	}

	s.savedGen = gen

	return true, nil
}

// SavedGeneration returns the generation of the last successful write.
func (s *SnapshotStore) SavedGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.savedGen
}

// Size returns the snapshot size on disk, or 0 when there is none.
func (s *SnapshotStore) Size() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}

	return info.Size()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)

		return fmt.Errorf("write temp snapshot: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)

		return fmt.Errorf("sync temp snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(name)

		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)

		return fmt.Errorf("chmod temp snapshot: %w", err)
	}

	if err := os.Rename(name, path); err != nil {
		os.Remove(name)

		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}
