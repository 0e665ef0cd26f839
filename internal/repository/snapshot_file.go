package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
)

// FileSnapshotStore keeps states and history as two JSON documents keyed by symbol.
// Files are replaced atomically so a crash never leaves a half-written snapshot.
type FileSnapshotStore struct {
	statePath   string
	historyPath string
}

func NewFileSnapshotStore(statePath, historyPath string) *FileSnapshotStore {
	return &FileSnapshotStore{statePath: statePath, historyPath: historyPath}
}

var _ repository.SnapshotStore = (*FileSnapshotStore)(nil)

// Paths returns the state and history file paths.
func (s *FileSnapshotStore) Paths() []string {
	return []string{s.statePath, s.historyPath}
}

func (s *FileSnapshotStore) SaveStates(_ context.Context, states map[string]*models.StateSnapshot) error {
	return writeJSONAtomic(s.statePath, states)
}

func (s *FileSnapshotStore) LoadStates(_ context.Context) (map[string]*models.StateSnapshot, error) {
	raw := make(map[string]json.RawMessage)
	if err := readJSON(s.statePath, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]*models.StateSnapshot, len(raw))
	for sym, msg := range raw {
		snap, err := models.DecodeStateSnapshot(msg)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", sym, err)
		}
		snap.Symbol = sym
		out[sym] = snap
	}
	return out, nil
}

func (s *FileSnapshotStore) SaveHistory(_ context.Context, history map[string][]models.Bar) error {
	return writeJSONAtomic(s.historyPath, history)
}

func (s *FileSnapshotStore) LoadHistory(_ context.Context) (map[string][]models.Bar, error) {
	out := make(map[string][]models.Bar)
	if err := readJSON(s.historyPath, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileSnapshotStore) Close() error { return nil }

// readJSON leaves dest untouched when the file does not exist.
func readJSON(path string, dest interface{}) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(bufio.NewReader(f)).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v interface{}) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	if err = json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
