package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// memStore is an in-memory storage.Store for router tests.
type memStore struct {
	nextID int64
	rems   map[int64]reminder.Reminder
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, rems: map[int64]reminder.Reminder{}}
}

func (s *memStore) Create(_ context.Context, n storage.NewReminder) (reminder.Reminder, error) {
	r := reminder.Reminder{
		ID:      s.nextID,
		OwnerID: n.OwnerID,
		Target:  n.Target,
		Payload: n.Payload,
		Sent:    map[string]bool{},
	}
	for _, b := range n.PreMarked {
		r.Sent[b] = true
	}
	s.nextID++
	s.rems[r.ID] = r
	return r, nil
}

func (s *memStore) ByID(_ context.Context, id int64) (reminder.Reminder, error) {
	r, ok := s.rems[id]
	if !ok {
		return reminder.Reminder{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ListByOwner(_ context.Context, ownerID int64) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	for id := int64(1); id < s.nextID; id++ {
		if r, ok := s.rems[id]; ok && r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Update(_ context.Context, id int64, updates []storage.FieldUpdate) error {
	r, ok := s.rems[id]
	if !ok {
		return storage.ErrNotFound
	}
	for _, u := range updates {
		switch u.Field {
		case storage.FieldTarget:
			r.Target = u.Target
		case storage.FieldPayload:
			r.Payload = u.Payload
		}
	}
	s.rems[id] = r
	return nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.rems[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rems, id)
	return nil
}

func (s *memStore) FetchCandidates(_ context.Context, _ time.Time) ([]reminder.Reminder, error) {
	var out []reminder.Reminder
	for id := int64(1); id < s.nextID; id++ {
		if r, ok := s.rems[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) MarkBucketSent(_ context.Context, id int64, bucket string) error {
	r, ok := s.rems[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Sent == nil {
		r.Sent = map[string]bool{}
	}
	r.Sent[bucket] = true
	s.rems[id] = r
	return nil
}

func (s *memStore) Close() error { return nil }

// recordSender captures every outbound text.
type recordSender struct {
	sent []string // "chatID: text"
}

func (s *recordSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.sent = append(s.sent, fmt.Sprintf("%d: %s", to.ChatID, text))
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (s *recordSender) last() string {
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

func newTestRouter(t *testing.T, now time.Time, owners ...int64) (*Router, *memStore, *recordSender) {
	t.Helper()
	store := newMemStore()
	sender := &recordSender{}
	disp := reminder.NewDispatcher(sender, 0, time.UTC, logx.Nop())
	sw := reminder.NewSweeper(store, disp, reminder.DefaultBuckets(), logx.Nop())
	sw.SetClock(func() time.Time { return now })
	r := New(Config{OwnerUserIDs: owners, Location: time.UTC}, store, sw, sender, logx.Nop())
	r.SetClock(func() time.Time { return now })
	return r, store, sender
}

func msg(chatID, fromID int64, text string) *kit.Message {
	return &kit.Message{ChatID: chatID, FromID: fromID, Text: text}
}

func TestCmdAdd(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, sender := newTestRouter(t, now)

	r.handle(context.Background(), msg(100, 5, "/add 2024-01-20 09:30 dentist appointment"))

	rem, err := store.ByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("reminder not created: %v", err)
	}
	if rem.OwnerID != 100 || rem.Payload != "dentist appointment" {
		t.Fatalf("unexpected reminder: %+v", rem)
	}
	want := time.Date(2024, 1, 20, 9, 30, 0, 0, time.UTC)
	if !rem.Target.Equal(want) {
		t.Fatalf("target = %v, want %v", rem.Target, want)
	}
	if len(rem.Sent) != 0 {
		t.Fatalf("no bucket should be pre-marked for a far target, got %v", rem.Sent)
	}
	if !strings.Contains(sender.last(), "Saved #1") {
		t.Fatalf("confirmation = %q", sender.last())
	}
}

func TestCmdAddPreMarksLapsedBuckets(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, _ := newTestRouter(t, now)

	// 90 minutes out: the 24h and 3h windows are both already behind us.
	r.handle(context.Background(), msg(100, 5, "/add 2024-01-15 11:30 board the train"))

	rem, err := store.ByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("reminder not created: %v", err)
	}
	if !rem.BucketSent("24h") || !rem.BucketSent("3h") {
		t.Fatalf("lapsed buckets not pre-marked: %v", rem.Sent)
	}
}

func TestCmdAddRejectsPastAndMalformed(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, sender := newTestRouter(t, now)

	tests := []struct {
		text  string
		reply string
	}{
		{"/add", "Usage:"},
		{"/add 2024-01-20 09:30", "Usage:"},
		{"/add 20.01.2024 09:30 x", "invalid date/time"},
		{"/add 2024-01-14 09:30 x", "in the past"},
	}
	for _, tt := range tests {
		r.handle(context.Background(), msg(100, 5, tt.text))
		if !strings.Contains(sender.last(), tt.reply) {
			t.Errorf("%q: reply = %q, want substring %q", tt.text, sender.last(), tt.reply)
		}
	}
	if len(store.rems) != 0 {
		t.Fatalf("rejected commands must not persist anything, got %d reminders", len(store.rems))
	}
}

func TestCmdList(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, sender := newTestRouter(t, now)

	r.handle(context.Background(), msg(100, 5, "/list"))
	if !strings.Contains(sender.last(), "No reminders") {
		t.Fatalf("empty list reply = %q", sender.last())
	}

	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 100, Target: time.Date(2024, 1, 20, 9, 30, 0, 0, time.UTC), Payload: "dentist",
	})
	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 100, Target: time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC), Payload: "call mom",
		PreMarked: []string{"24h"},
	})
	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 200, Target: time.Date(2024, 1, 21, 9, 0, 0, 0, time.UTC), Payload: "not yours",
	})

	r.handle(context.Background(), msg(100, 5, "/list"))
	got := sender.last()
	if !strings.Contains(got, "#1") || !strings.Contains(got, "dentist") {
		t.Errorf("list missing first reminder: %q", got)
	}
	if !strings.Contains(got, "✓24h") {
		t.Errorf("list missing sent marker: %q", got)
	}
	if strings.Contains(got, "not yours") {
		t.Errorf("list leaked another chat's reminder: %q", got)
	}
}

func TestCmdDeletePermissions(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, sender := newTestRouter(t, now, 42) // user 42 is a bot owner

	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 100, Target: now.Add(48 * time.Hour), Payload: "dentist",
	})

	// Another chat, non-owner: refused.
	r.handle(context.Background(), msg(200, 7, "/delete 1"))
	if !strings.Contains(sender.last(), "not yours") {
		t.Fatalf("foreign delete reply = %q", sender.last())
	}
	if _, err := store.ByID(context.Background(), 1); err != nil {
		t.Fatal("reminder must survive a refused delete")
	}

	// Owning chat: allowed.
	r.handle(context.Background(), msg(100, 7, "/delete 1"))
	if !strings.Contains(sender.last(), "Deleted #1") {
		t.Fatalf("delete reply = %q", sender.last())
	}
	if _, err := store.ByID(context.Background(), 1); err == nil {
		t.Fatal("reminder still present after delete")
	}

	// Bot owner may delete from any chat.
	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 100, Target: now.Add(48 * time.Hour), Payload: "second",
	})
	r.handle(context.Background(), msg(200, 42, "/delete 2"))
	if !strings.Contains(sender.last(), "Deleted #2") {
		t.Fatalf("bot-owner delete reply = %q", sender.last())
	}

	// Unknown id.
	r.handle(context.Background(), msg(100, 7, "/delete 99"))
	if !strings.Contains(sender.last(), "No reminder #99") {
		t.Fatalf("missing-id reply = %q", sender.last())
	}
}

func TestCmdUpdate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, sender := newTestRouter(t, now)

	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 100, Target: now.Add(48 * time.Hour), Payload: "dentist",
	})

	r.handle(context.Background(), msg(100, 5, "/update 1 2024-01-15 11:30 dentist moved up"))

	rem, err := store.ByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if rem.Payload != "dentist moved up" {
		t.Fatalf("payload = %q", rem.Payload)
	}
	want := time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC)
	if !rem.Target.Equal(want) {
		t.Fatalf("target = %v, want %v", rem.Target, want)
	}
	// New target is 90 minutes out; both windows lapsed and get marked.
	if !rem.BucketSent("24h") || !rem.BucketSent("3h") {
		t.Fatalf("lapsed buckets not marked after update: %v", rem.Sent)
	}
	if !strings.Contains(sender.last(), "Updated #1") {
		t.Fatalf("update reply = %q", sender.last())
	}

	r.handle(context.Background(), msg(100, 5, "/update 99 2024-01-20 10:00 nope"))
	if !strings.Contains(sender.last(), "No reminder #99") {
		t.Fatalf("missing-id reply = %q", sender.last())
	}
}

func TestCmdSweepOwnerOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, store, sender := newTestRouter(t, now, 42)

	// Due in exactly 3h: the 3h bucket fires during the sweep.
	store.Create(context.Background(), storage.NewReminder{
		OwnerID: 100, Target: now.Add(3 * time.Hour), Payload: "standup",
		PreMarked: []string{"24h"},
	})

	r.handle(context.Background(), msg(100, 7, "/sweep"))
	if !strings.Contains(sender.last(), "Owner-only") {
		t.Fatalf("non-owner sweep reply = %q", sender.last())
	}

	r.handle(context.Background(), msg(100, 42, "/sweep"))
	if !strings.Contains(sender.last(), "1 candidates, 1 sent, 0 errors") {
		t.Fatalf("sweep reply = %q", sender.last())
	}

	rem, _ := store.ByID(context.Background(), 1)
	if !rem.BucketSent("3h") {
		t.Fatal("sweep did not mark the delivered bucket")
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	r, _, sender := newTestRouter(t, now)

	// Group chatter stays unanswered.
	grp := msg(100, 5, "/frobnicate")
	grp.IsGroup = true
	r.handle(context.Background(), grp)
	if len(sender.sent) != 0 {
		t.Fatalf("group unknown command must be ignored, sent %v", sender.sent)
	}

	r.handle(context.Background(), msg(100, 5, "/frobnicate"))
	if !strings.Contains(sender.last(), "Unknown command") {
		t.Fatalf("private unknown command reply = %q", sender.last())
	}
}
