package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	kit "remindbot/internal/transport"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("got %q (len %d)", got, len(got))
	}
	if got := truncate(long, 5); got != "xxxxx" {
		t.Errorf("tiny limit: got %q", got)
	}
	if got := truncate(long, 0); got != long {
		t.Errorf("zero limit must pass through, got %q", got)
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	got := formatChatLine([]byte(`{"level":"warn","message":"dispatch failed","id":7,"time":"x","caller":"y"}`))
	if !strings.HasPrefix(got, "[WARN] dispatch failed") {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(got, "id=7") {
		t.Errorf("missing field line: %q", got)
	}
	if strings.Contains(got, "time=") || strings.Contains(got, "caller=") {
		t.Errorf("noise keys must be dropped: %q", got)
	}

	// Non-JSON input falls back to the raw line.
	if got := formatChatLine([]byte("  plain text\n")); got != "plain text" {
		t.Errorf("got %q", got)
	}
}

// slowSender signals when a send starts, then stalls for delay.
type slowSender struct {
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (s *slowSender) SendText(_ context.Context, _ kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.once.Do(func() { close(s.started) })
	time.Sleep(s.delay)
	return kit.MessageRef{}, nil
}

func TestCloseWhileChatSendInFlight(t *testing.T) {
	t.Parallel()

	sender := &slowSender{delay: 300 * time.Millisecond, started: make(chan struct{})}
	svc, log := New(Config{
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	svc.SetChatTarget(kit.ChatTarget{ChatID: 1})

	log.Warn("mirrored line")
	select {
	case <-sender.started:
	case <-time.After(2 * time.Second):
		t.Fatal("mirrored line never reached the sender")
	}

	done := make(chan struct{})
	go func() {
		_ = svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung while a chat send was in flight")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value must report IsZero")
	}
	// Must not panic.
	l.Info("nobody hears this", String("k", "v"))
	l.With(Int("n", 1)).Error("still nothing", Err(nil))

	n := Nop()
	if n.IsZero() {
		t.Fatal("Nop is a real (discarding) logger, not the zero value")
	}
	n.Warn("discarded")
}
