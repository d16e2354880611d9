// Package bot routes inbound chat commands to the reminder CRUD path:
// add, list, delete, update, plus the privileged manual sweep.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// OwnerUserIDs may delete/update any reminder and trigger /sweep.
	OwnerUserIDs []int64

	// Location is the single configured zone for parsing and display.
	Location *time.Location
}

type Router struct {
	cfg     Config
	store   storage.Store
	sweeper *reminder.Sweeper
	buckets []reminder.Bucket
	sender  kit.Sender
	log     logx.Logger
	now     func() time.Time
}

func New(cfg Config, store storage.Store, sw *reminder.Sweeper, sender kit.Sender, log logx.Logger) *Router {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:     cfg,
		store:   store,
		sweeper: sw,
		buckets: sw.Buckets(),
		sender:  sender,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the clock used for past-target checks and bucket
// pre-marking. Test hook.
func (r *Router) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Run consumes updates until ctx is done. One update is handled at a
// time; a panicking handler never takes the loop down.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil || strings.TrimSpace(up.Message.Text) == "" {
				continue
			}
			r.handle(ctx, up.Message)
		}
	}
}

func (r *Router) handle(ctx context.Context, m *kit.Message) {
	start := time.Now()
	cmd, rest := splitCommand(m.Text)
	if cmd == "" {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command handler",
				logx.String("cmd", cmd),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())),
			)
			r.reply(ctx, m, "Internal error, try again.")
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "start", "help":
		err = r.cmdHelp(hctx, m)
	case "add":
		err = r.cmdAdd(hctx, m, rest)
	case "list":
		err = r.cmdList(hctx, m)
	case "delete", "del":
		err = r.cmdDelete(hctx, m, rest)
	case "update":
		err = r.cmdUpdate(hctx, m, rest)
	case "sweep":
		err = r.cmdSweep(hctx, m)
	default:
		// Unknown text in a group is just chatter; only answer in private.
		if !m.IsGroup {
			err = r.reply(hctx, m, "Unknown command. Try /help.")
		}
	}

	fields := []logx.Field{
		logx.String("cmd", cmd),
		logx.Int64("chat_id", m.ChatID),
		logx.Int64("from_id", m.FromID),
		logx.Duration("dur", time.Since(start)),
	}
	if err != nil {
		r.log.Warn("command failed", append(fields, logx.Err(err))...)
	} else {
		r.log.Info("command ok", fields...)
	}
}

func (r *Router) isBotOwner(userID int64) bool {
	for _, id := range r.cfg.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// canManage reports whether the sender may modify reminder rem: the
// chat it was created in, or a bot owner.
func (r *Router) canManage(m *kit.Message, rem reminder.Reminder) bool {
	return rem.OwnerID == m.ChatID || r.isBotOwner(m.FromID)
}

func (r *Router) reply(ctx context.Context, m *kit.Message, text string) error {
	_, err := r.sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}
