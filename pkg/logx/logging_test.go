package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{raw: "debug", want: zerolog.DebugLevel},
		{raw: "INFO", want: zerolog.InfoLevel},
		{raw: " warn ", want: zerolog.WarnLevel},
		{raw: "warning", want: zerolog.WarnLevel},
		{raw: "error", want: zerolog.ErrorLevel},
		{raw: "bogus", want: zerolog.InfoLevel},
		{raw: "", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.raw, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 20)
	if len(got) != 20 {
		t.Fatalf("len = %d, want 20", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q, want ellipsis suffix", got)
	}
}

func TestFormatSlackJSON(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"2026-01-01T00:00:00Z","message":"cycle failed","err":"boom"}`
	got := formatSlackJSON([]byte(line))
	if !strings.HasPrefix(got, "[WARN] cycle failed") {
		t.Fatalf("formatSlackJSON = %q", got)
	}
	if !strings.Contains(got, "err=boom") {
		t.Fatalf("formatSlackJSON = %q, want fields rendered", got)
	}

	// Non-JSON input passes through trimmed.
	if got := formatSlackJSON([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("formatSlackJSON = %q", got)
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Info("must not panic", String("k", "v"))

	nop := Nop()
	if nop.IsZero() {
		t.Fatal("Nop() should not report IsZero")
	}
	nop.Error("also must not panic", Err(nil))
}

type recordingSender struct {
	mu    sync.Mutex
	lines []string
	got   chan struct{}
}

func (r *recordingSender) PostText(_ context.Context, channel, text string) error {
	r.mu.Lock()
	r.lines = append(r.lines, channel+": "+text)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
	return nil
}

func TestSlackSinkFiltersByLevel(t *testing.T) {
	t.Parallel()
	sender := &recordingSender{got: make(chan struct{}, 16)}
	svc, log := New(Config{
		Level: "debug",
		Slack: SlackConfig{
			Enabled:    true,
			Channel:    "C_LOG",
			MinLevel:   "warn",
			RatePerSec: 100,
		},
	}, sender)
	defer svc.Close()

	log.Info("below threshold")
	log.Warn("at threshold", String("detail", "x"))

	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no slack log delivered")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for _, l := range sender.lines {
		if strings.Contains(l, "below threshold") {
			t.Fatalf("info line reached slack sink: %q", l)
		}
	}
	found := false
	for _, l := range sender.lines {
		if strings.HasPrefix(l, "C_LOG: ") && strings.Contains(l, "at threshold") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warn line missing from slack sink: %v", sender.lines)
	}
}

func TestWithAddsFields(t *testing.T) {
	t.Parallel()
	base := Nop()
	derived := base.With(String("component", "poller"))
	if derived.IsZero() {
		t.Fatal("derived logger should not be zero")
	}
	// With must not mutate the receiver.
	if len(base.fields) != 0 {
		t.Fatal("With mutated the base logger")
	}
}
