package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const helpText = `I keep reminders and ping you before they are due.

/add YYYY-MM-DD HH:MM <text> — create a reminder
/list — your reminders
/update <id> YYYY-MM-DD HH:MM <text> — change date, time and text
/delete <id> — remove a reminder
/help — this message

Times are interpreted in the bot's configured time zone.`

func (r *Router) cmdHelp(ctx context.Context, m *kit.Message) error {
	return r.reply(ctx, m, helpText)
}

func (r *Router) cmdAdd(ctx context.Context, m *kit.Message, args string) error {
	tokens, payload := splitArgs(args, 2)
	if len(tokens) < 2 || payload == "" {
		return r.reply(ctx, m, "Usage: /add YYYY-MM-DD HH:MM <text>")
	}
	target, err := parseTarget(tokens[0], tokens[1], r.cfg.Location)
	if err != nil {
		return r.reply(ctx, m, err.Error())
	}

	now := r.now()
	if target.Before(now) {
		return r.reply(ctx, m, "That time is already in the past.")
	}

	// Buckets whose window is unreachable for this target are marked at
	// creation so they never fire late.
	preMarked := reminder.LapsedBuckets(target, now, r.buckets)

	rem, err := r.store.Create(ctx, storage.NewReminder{
		OwnerID:   m.ChatID,
		Target:    target,
		Payload:   payload,
		PreMarked: preMarked,
	})
	if err != nil {
		_ = r.reply(ctx, m, "Could not save the reminder, try again.")
		return fmt.Errorf("create reminder: %w", err)
	}

	r.log.Info("reminder added",
		logx.Int64("id", rem.ID),
		logx.Time("target", rem.Target),
		logx.Int("pre_marked", len(preMarked)),
	)
	return r.reply(ctx, m, fmt.Sprintf("Saved #%d: %s at %s — %s",
		rem.ID,
		rem.Target.In(r.cfg.Location).Format("2006-01-02"),
		rem.Target.In(r.cfg.Location).Format("15:04"),
		rem.Payload,
	))
}

func (r *Router) cmdList(ctx context.Context, m *kit.Message) error {
	rems, err := r.store.ListByOwner(ctx, m.ChatID)
	if err != nil {
		_ = r.reply(ctx, m, "Could not load reminders, try again.")
		return fmt.Errorf("list reminders: %w", err)
	}
	if len(rems) == 0 {
		return r.reply(ctx, m, "No reminders. Create one with /add.")
	}

	var b strings.Builder
	b.WriteString("Your reminders:\n")
	for _, rem := range rems {
		t := rem.Target.In(r.cfg.Location)
		fmt.Fprintf(&b, "#%d  %s %s  %s%s\n",
			rem.ID, t.Format("2006-01-02"), t.Format("15:04"), rem.Payload, sentMarkers(rem, r.buckets))
	}
	return r.reply(ctx, m, strings.TrimRight(b.String(), "\n"))
}

// sentMarkers renders which buckets already fired, e.g. " [✓24h ✓3h]".
func sentMarkers(rem reminder.Reminder, buckets []reminder.Bucket) string {
	var fired []string
	for _, b := range buckets {
		if rem.BucketSent(b.Name) {
			fired = append(fired, "✓"+b.Name)
		}
	}
	if len(fired) == 0 {
		return ""
	}
	return "  [" + strings.Join(fired, " ") + "]"
}

func (r *Router) cmdDelete(ctx context.Context, m *kit.Message, args string) error {
	id, err := parseID(args)
	if err != nil {
		return r.reply(ctx, m, "Usage: /delete <id>")
	}

	rem, err := r.store.ByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return r.reply(ctx, m, fmt.Sprintf("No reminder #%d.", id))
	}
	if err != nil {
		_ = r.reply(ctx, m, "Could not load the reminder, try again.")
		return fmt.Errorf("load reminder %d: %w", id, err)
	}
	if !r.canManage(m, rem) {
		return r.reply(ctx, m, "That reminder is not yours.")
	}

	if err := r.store.Delete(ctx, id); err != nil {
		_ = r.reply(ctx, m, "Could not delete the reminder, try again.")
		return fmt.Errorf("delete reminder %d: %w", id, err)
	}
	return r.reply(ctx, m, fmt.Sprintf("Deleted #%d.", id))
}

func (r *Router) cmdUpdate(ctx context.Context, m *kit.Message, args string) error {
	tokens, payload := splitArgs(args, 3)
	if len(tokens) < 3 || payload == "" {
		return r.reply(ctx, m, "Usage: /update <id> YYYY-MM-DD HH:MM <text>")
	}
	id, err := parseID(tokens[0])
	if err != nil {
		return r.reply(ctx, m, err.Error())
	}
	target, err := parseTarget(tokens[1], tokens[2], r.cfg.Location)
	if err != nil {
		return r.reply(ctx, m, err.Error())
	}

	rem, err := r.store.ByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return r.reply(ctx, m, fmt.Sprintf("No reminder #%d.", id))
	}
	if err != nil {
		_ = r.reply(ctx, m, "Could not load the reminder, try again.")
		return fmt.Errorf("load reminder %d: %w", id, err)
	}
	if !r.canManage(m, rem) {
		return r.reply(ctx, m, "That reminder is not yours.")
	}

	err = r.store.Update(ctx, id, []storage.FieldUpdate{
		{Field: storage.FieldTarget, Target: target},
		{Field: storage.FieldPayload, Payload: payload},
	})
	if err != nil {
		_ = r.reply(ctx, m, "Could not update the reminder, try again.")
		return fmt.Errorf("update reminder %d: %w", id, err)
	}

	// Re-derive lapsed buckets for the new target. Flags are monotonic:
	// already-sent buckets stay sent even if the target moved out.
	now := r.now()
	for _, bucket := range reminder.LapsedBuckets(target, now, r.buckets) {
		if err := r.store.MarkBucketSent(ctx, id, bucket); err != nil {
			r.log.Warn("pre-mark after update failed",
				logx.Int64("id", id), logx.String("bucket", bucket), logx.Err(err))
		}
	}

	t := target.In(r.cfg.Location)
	return r.reply(ctx, m, fmt.Sprintf("Updated #%d: %s at %s — %s",
		id, t.Format("2006-01-02"), t.Format("15:04"), payload))
}

func (r *Router) cmdSweep(ctx context.Context, m *kit.Message) error {
	if !r.isBotOwner(m.FromID) {
		return r.reply(ctx, m, "Owner-only command.")
	}

	sum, err := r.sweeper.Run(ctx)
	if err != nil {
		_ = r.reply(ctx, m, "Sweep failed: "+err.Error())
		return fmt.Errorf("manual sweep: %w", err)
	}
	return r.reply(ctx, m, fmt.Sprintf("Sweep done: %d candidates, %d sent, %d errors.",
		sum.Candidates, sum.Sent, len(sum.Errors)))
}
