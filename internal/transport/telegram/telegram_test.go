package telegram

import (
	"strings"
	"testing"

	logx "remindbot/pkg/logx"
)

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("empty token must be rejected")
	}
}

func TestSplitTextShortPassthrough(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "hi", strings.Repeat("a", 100)} {
		got := splitText(s, 100)
		if len(got) != 1 || got[0] != s {
			t.Errorf("splitText(%q) = %v", s, got)
		}
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	lines := []string{
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
	}
	s := strings.Join(lines, "\n")

	got := splitText(s, 90)
	if len(got) != 2 {
		t.Fatalf("chunks = %d: %q", len(got), got)
	}
	// The break lands on the newline between the b and c lines.
	if got[0] != lines[0]+"\n"+lines[1] {
		t.Errorf("first chunk = %q", got[0])
	}
	if got[1] != lines[2] {
		t.Errorf("second chunk = %q", got[1])
	}
}

func TestSplitTextHardBreakWithoutNewlines(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("x", 250)
	got := splitText(s, 100)
	if len(got) != 3 {
		t.Fatalf("chunks = %d", len(got))
	}
	for i, c := range got {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
	}
	if strings.Join(got, "") != s {
		t.Error("hard break lost characters")
	}
}

func TestSplitTextDropsEmptyChunks(t *testing.T) {
	t.Parallel()

	// A leading newline run longer than the limit would otherwise trim
	// to an empty chunk.
	s := strings.Repeat("\n", 15) + "tail"
	got := splitText(s, 10)
	if len(got) != 1 || got[0] != "tail" {
		t.Fatalf("chunks = %q", got)
	}

	for _, c := range splitText(strings.Repeat("\n", 25), 10) {
		if c == "" {
			t.Fatal("empty chunk survived")
		}
	}
}

func TestSplitTextMultibyte(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("⏰", 150)
	got := splitText(s, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d", len(got))
	}
	for i, c := range got {
		if !strings.HasPrefix(c, "⏰") || len([]rune(c)) > 100 {
			t.Errorf("chunk %d broke a rune or exceeds limit: %q...", i, c[:12])
		}
	}
}
