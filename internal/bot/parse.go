package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// dateTimeLayout is the command surface's wire format:
// date YYYY-MM-DD, time HH:MM (24-hour).
const dateTimeLayout = "2006-01-02 15:04"

// splitCommand extracts the command word and the verbatim remainder.
// Accepts "/add ...", "add ..." and "/add@SomeBot ..." forms.
func splitCommand(text string) (cmd, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	head := text
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head = text[:i]
		rest = strings.TrimSpace(text[i+1:])
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), rest
}

// splitArgs takes the first n whitespace-separated tokens from s and
// returns them together with the verbatim remainder, preserving inner
// spacing of the tail.
func splitArgs(s string, n int) (tokens []string, tail string) {
	tail = strings.TrimSpace(s)
	for len(tokens) < n && tail != "" {
		i := strings.IndexFunc(tail, unicode.IsSpace)
		if i < 0 {
			tokens = append(tokens, tail)
			tail = ""
			return
		}
		tokens = append(tokens, tail[:i])
		tail = strings.TrimLeftFunc(tail[i:], unicode.IsSpace)
	}
	return
}

// parseTarget parses "YYYY-MM-DD HH:MM" in loc.
func parseTarget(date, tod string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateTimeLayout, date+" "+tod, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: want YYYY-MM-DD HH:MM", date, tod)
	}
	return t, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid reminder id %q", s)
	}
	return id, nil
}
