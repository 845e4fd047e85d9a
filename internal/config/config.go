// Package config loads and watches the relay configuration.
//
// The file may be YAML or JSON; YAML is coerced to JSON so both formats go
// through the same strict decoder (DisallowUnknownFields catches typos and
// removed keys early). Durations are Go duration strings ("10s", "1m").
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"ghrelay/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Slack   SlackConfig   `json:"slack"`
	GitHub  GitHubConfig  `json:"github"`
	Poll    PollConfig    `json:"poll"`
	Store   StoreConfig   `json:"store"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Slack   LoggingSlack `json:"slack"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingSlack mirrors logx.SlackConfig: warn-and-above log lines posted
// to a channel, rate limited.
type LoggingSlack struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type SlackConfig struct {
	// BotToken may be left empty in the file and supplied via
	// GHRELAY_SLACK_TOKEN instead.
	BotToken     string `json:"bot_token,omitempty"`
	MailChannel  string `json:"mail_channel"`
	NotifChannel string `json:"notif_channel"`
	APIBase      string `json:"api_base,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
}

type GitHubConfig struct {
	// Token may be left empty in the file and supplied via
	// GHRELAY_GITHUB_TOKEN instead.
	Token string `json:"token,omitempty"`
	// Login is the GitHub user whose team-review noise gets the
	// unsubscribe treatment. Empty disables unsubscribing.
	Login      string `json:"login,omitempty"`
	APIBase    string `json:"api_base,omitempty"`
	GraphQLURL string `json:"graphql_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// PollConfig durations are Go duration strings.
type PollConfig struct {
	Interval     string `json:"interval,omitempty"`      // default 10s
	RetryBackoff string `json:"retry_backoff,omitempty"` // default 30s
	FetchLimit   int    `json:"fetch_limit,omitempty"`   // 0 = API default
}

type StoreConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

const (
	DefaultInterval     = 10 * time.Second
	DefaultRetryBackoff = 30 * time.Second
)

func (c *Config) Validate() error {
	if c.Slack.BotToken == "" {
		return errors.New("slack.bot_token is required (or set GHRELAY_SLACK_TOKEN)")
	}
	if c.Slack.MailChannel == "" {
		return errors.New("slack.mail_channel is required")
	}
	if c.Slack.NotifChannel == "" {
		return errors.New("slack.notif_channel is required")
	}
	if c.GitHub.Token == "" {
		return errors.New("github.token is required (or set GHRELAY_GITHUB_TOKEN)")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.RetryBackoff(); err != nil {
		return err
	}
	if _, err := c.StoreBusyTimeout(); err != nil {
		return err
	}
	return nil
}

func (c *Config) PollInterval() (time.Duration, error) {
	return ParseDurationOrDefault("poll.interval", c.Poll.Interval, DefaultInterval)
}

func (c *Config) RetryBackoff() (time.Duration, error) {
	return ParseDurationOrDefault("poll.retry_backoff", c.Poll.RetryBackoff, DefaultRetryBackoff)
}

func (c *Config) StoreBusyTimeout() (time.Duration, error) {
	return ParseDurationField("store.busy_timeout", c.Store.BusyTimeout)
}

// Logx converts the logging section for logx.Service.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Slack: logx.SlackConfig{
			Enabled:    c.Slack.Enabled,
			Channel:    c.Slack.Channel,
			MinLevel:   c.Slack.MinLevel,
			RatePerSec: c.Slack.RatePerSec,
		},
	}
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("invalid config: trailing data")
		}
		return nil, err
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so the strict JSON
// decoder serves both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
