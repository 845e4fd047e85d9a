package cursor

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ghrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one cursor row per channel. Useful when several relay
// processes (for different channels) share a state directory.
type sqliteStore struct {
	db      *sql.DB
	channel string
	log     logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("cursor: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, channel: cfg.Channel, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	var lastTS string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_ts FROM cursor WHERE channel = ?`, s.channel).Scan(&lastTS)
	if errors.Is(err, sql.ErrNoRows) {
		st := initialState()
		s.log.Info("no cursor state found, starting from now",
			logx.String("channel", s.channel), logx.String("last_ts", st.LastTS))
		if err := s.Save(ctx, st); err != nil {
			return State{}, err
		}
		return st, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("cursor: load state: %w", err)
	}
	return State{LastTS: lastTS}, nil
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursor(channel, last_ts, updated_at) VALUES(?,?,?)
		 ON CONFLICT(channel) DO UPDATE SET last_ts=excluded.last_ts, updated_at=excluded.updated_at`,
		s.channel, st.LastTS, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cursor: save state: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
