// Package cursor persists the timestamp watermark of the last fully
// delivered batch.
//
// The store assumes a single writer: cycles are strictly sequential and
// nothing else touches the state, so no locking happens here. Running two
// relay instances against the same store is unsupported and will duplicate
// or lose deliveries.
package cursor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"ghrelay/pkg/logx"
)

// State is the persisted watermark. LastTS is an opaque Slack message
// timestamp; it only ever moves forward, one whole batch at a time.
type State struct {
	LastTS string `json:"last_ts"`
}

// Store loads and saves the cursor for one watched channel.
type Store interface {
	// Load returns the persisted state. A store with no prior state
	// initializes the cursor to the current time, so a fresh deployment
	// skips the channel's backlog instead of replaying it.
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
	Close() error
}

// Config selects and configures a driver.
//
// Driver values:
//   - "file": one JSON file per channel under Path (a directory)
//   - "sqlite": SQLite database file at Path, one row per channel
//
// An empty driver means "file".
type Config struct {
	Driver  string
	Path    string
	Channel string
	// BusyTimeout applies to the sqlite driver only; 0 means default.
	BusyTimeout time.Duration
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Channel) == "" {
		return nil, errors.New("cursor: channel is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("cursor: unknown driver: " + driver)
	}
}

func initialState() State {
	return State{LastTS: strconv.FormatInt(time.Now().Unix(), 10)}
}
