package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ghrelay/pkg/logx"
)

// fileStore keeps the cursor in one small JSON file per watched channel:
// <dir>/.state-<channel>.json
type fileStore struct {
	path string
	log  logx.Logger
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := cfg.Path
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cursor: create state dir: %w", err)
	}
	path := filepath.Join(dir, ".state-"+cfg.Channel+".json")
	return &fileStore{path: path, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) (State, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		st := initialState()
		s.log.Info("no cursor state found, starting from now",
			logx.String("path", s.path), logx.String("last_ts", st.LastTS))
		if err := s.Save(context.Background(), st); err != nil {
			return State{}, err
		}
		return st, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("cursor: load state: %w", err)
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("cursor: decode state %q: %w", string(b), err)
	}
	return st, nil
}

// Save writes via a temp file + rename so a crash mid-write never leaves a
// truncated state file behind.
func (s *fileStore) Save(ctx context.Context, st State) error {
	_ = ctx
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("cursor: write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("cursor: commit state: %w", err)
	}
	return nil
}

func (s *fileStore) Close() error { return nil }
