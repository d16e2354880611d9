package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ErrNoRecipient means neither a fixed notification chat nor an owner
// chat is available for a reminder.
var ErrNoRecipient = errors.New("no recipient configured")

// Dispatcher formats and delivers one notification per (reminder,
// bucket) pair. It never marks buckets sent; that stays with the
// sweeper, strictly after a successful send.
type Dispatcher struct {
	sender kit.Sender
	fixed  int64 // overrides the owner chat when non-zero
	loc    *time.Location
	log    logx.Logger
}

func NewDispatcher(sender kit.Sender, fixedChatID int64, loc *time.Location, log logx.Logger) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sender: sender, fixed: fixedChatID, loc: loc, log: log}
}

// Dispatch resolves the recipient, formats the message and hands it to
// the transport. The contract ends at the transport's accept/reject.
func (d *Dispatcher) Dispatch(ctx context.Context, r Reminder, b Bucket) error {
	chatID := d.fixed
	if chatID == 0 {
		chatID = r.OwnerID
	}
	if chatID == 0 {
		return ErrNoRecipient
	}

	text := FormatNotification(r, b, d.loc)
	_, err := d.sender.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	d.log.Debug("reminder notification sent",
		logx.Int64("id", r.ID),
		logx.String("bucket", b.Name),
		logx.Int64("chat_id", chatID),
	)
	return nil
}

// FormatNotification renders the outbound message. It always embeds the
// bucket label, the payload, and the target date and time in loc.
func FormatNotification(r Reminder, b Bucket, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t := r.Target.In(loc)
	return fmt.Sprintf("⏰ Reminder (%s ahead): %s\n📅 %s at %s",
		b.Label, r.Payload, t.Format("2006-01-02"), t.Format("15:04"))
}
