// Package state persists per-stream pagination cursor state.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/crawlify/crawlify/internal/dip"
)

var validStreamName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// FileCursorStore keeps one JSON document per stream under a base directory.
// Writes go through a temp file and rename, so a crash mid-write leaves the
// previous state intact.
type FileCursorStore struct {
	baseDir string
}

// NewFileCursorStore creates the store, making the base directory if needed.
func NewFileCursorStore(baseDir string) (*FileCursorStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("cursor state directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create cursor state dir: %w", err)
	}
	return &FileCursorStore{baseDir: baseDir}, nil
}

// Load reads the persisted state for stream. The second return is false when
// no state has been saved yet.
func (s *FileCursorStore) Load(stream string) (dip.CursorState, bool, error) {
	path, err := s.path(stream)
	if err != nil {
		return dip.CursorState{}, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dip.CursorState{}, false, nil
		}
		return dip.CursorState{}, false, fmt.Errorf("read cursor state: %w", err)
	}
	var cs dip.CursorState
	if err := json.Unmarshal(data, &cs); err != nil {
		return dip.CursorState{}, false, fmt.Errorf("decode cursor state %s: %w", path, err)
	}
	return cs, true, nil
}

// Save atomically persists the state for stream.
func (s *FileCursorStore) Save(stream string, cs dip.CursorState) error {
	path, err := s.path(stream)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursor state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write cursor temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cursor state: %w", err)
	}
	return nil
}

// Reset removes the persisted state for stream. Missing state is fine.
func (s *FileCursorStore) Reset(stream string) error {
	path, err := s.path(stream)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cursor state: %w", err)
	}
	return nil
}

func (s *FileCursorStore) path(stream string) (string, error) {
	if !validStreamName.MatchString(stream) {
		return "", fmt.Errorf("invalid stream name %q", stream)
	}
	return filepath.Join(s.baseDir, stream+"_cursor.json"), nil
}
