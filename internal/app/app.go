// Package app wires configuration, logging, storage, the Telegram
// transport, the command router, the sweep pipeline and its two
// triggers (internal cron, external HTTP) into one lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/httpapi"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter *telegram.Adapter
	sweeper *reminder.Sweeper
	router  *bot.Router
	http    *httpapi.Server

	loc     *time.Location
	cron    *cron.Cron
	cronOn  bool
	updates chan kit.Update

	runMu     sync.Mutex
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfgm.SetValidator(validateConfig)

	loc, err := loadLocation(cfg.Reminders.Timezone)
	if err != nil {
		return nil, err
	}
	buckets, err := mapBuckets(cfg.Reminders.Buckets)
	if err != nil {
		return nil, err
	}

	// Transport first: the log service can mirror into a chat.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg.Logging), adapter)
	if cfg.Telegram.LogChatID != 0 {
		logs.SetChatTarget(kit.ChatTarget{ChatID: cfg.Telegram.LogChatID})
	}
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
		Horizon:     reminder.MaxHorizon(buckets) + time.Hour,
		BucketCount: len(buckets),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	disp := reminder.NewDispatcher(adapter, cfg.Telegram.NotifyChatID, loc, log.With(logx.String("comp", "dispatch")))
	sweeper := reminder.NewSweeper(store, disp, buckets, log.With(logx.String("comp", "sweep")))

	router := bot.New(bot.Config{
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		Location:     loc,
	}, store, sweeper, adapter, log.With(logx.String("comp", "bot")))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		store:   store,
		adapter: adapter,
		sweeper: sweeper,
		router:  router,
		loc:     loc,
		updates: make(chan kit.Update, 64),
	}

	if cfg.Reminders.HTTP.Enabled {
		a.http = httpapi.New(httpapi.Config{
			Addr:       cfg.Reminders.HTTP.Addr,
			APIKey:     cfg.Reminders.HTTP.APIKey,
			RatePerSec: cfg.Reminders.HTTP.RatePerSec,
		}, sweeper, log.With(logx.String("comp", "httpapi")))
	}

	if cfg.Reminders.Sweep.Enabled {
		spec, err := cronSpec(cfg.Reminders.Sweep.Every)
		if err != nil {
			return nil, err
		}
		a.cron = cron.New(cron.WithLocation(loc))
		if _, err := a.cron.AddFunc(spec, a.cronSweep); err != nil {
			return nil, fmt.Errorf("reminders.sweep.every: %w", err)
		}
		a.cronOn = true
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.runCancel != nil {
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	if err := a.adapter.Start(rctx, a.updates); err != nil {
		cancel()
		a.runCancel = nil
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(rctx, a.updates)
	}()

	if a.http != nil {
		if err := a.http.Start(rctx); err != nil {
			a.log.Error("sweep trigger failed to start", logx.Err(err))
			// Chat commands and the cron trigger still work without it.
			a.http = nil
		}
	}

	if a.cronOn {
		a.cron.Start()
		a.log.Info("periodic sweep enabled", logx.String("tz", a.loc.String()))
	}

	// Config hot reload: logging is the one section safe to re-apply
	// live; everything else takes a restart.
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(rctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	sub := a.cfgm.Subscribe(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-rctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(mapLogging(cfg.Logging))
				if cfg.Telegram.LogChatID != 0 {
					a.logs.SetChatTarget(kit.ChatTarget{ChatID: cfg.Telegram.LogChatID})
				}
				a.log.Info("logging config re-applied")
			}
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}

	if a.cronOn {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	if a.http != nil {
		_ = a.http.Stop(ctx)
	}
	cancel()
	_ = a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	err := a.store.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// cronSweep is the internal periodic trigger. It shares the serialized
// Sweeper.Run with the HTTP trigger and the /sweep command.
func (a *App) cronSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sum, err := a.sweeper.Run(ctx)
	if a.http != nil {
		a.http.RecordSummary(sum)
	}
	if err != nil {
		a.log.Error("periodic sweep failed", logx.Err(err))
	}
}

// cronSpec turns a config value into a robfig/cron spec: a plain Go
// duration becomes "@every d", anything else passes through as-is.
func cronSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "@every 10m", nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < time.Minute {
			return "", fmt.Errorf("reminders.sweep.every: %s is below the 1m minimum", d)
		}
		return "@every " + d.String(), nil
	}
	return s, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Telegram.Enabled,
			MinLevel:   c.Telegram.MinLevel,
			RatePerSec: c.Telegram.RatePerSec,
		},
	}
}

func mapBuckets(in []config.BucketConfig) ([]reminder.Bucket, error) {
	if len(in) == 0 {
		return reminder.DefaultBuckets(), nil
	}
	out := make([]reminder.Bucket, 0, len(in))
	seen := map[string]bool{}
	for i, b := range in {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return nil, fmt.Errorf("reminders.buckets[%d]: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("reminders.buckets[%d]: duplicate name %q", i, name)
		}
		seen[name] = true

		lead, err := config.ParseDurationField(fmt.Sprintf("reminders.buckets[%d].lead", i), b.Lead)
		if err != nil {
			return nil, err
		}
		if lead <= 0 {
			return nil, fmt.Errorf("reminders.buckets[%d].lead is required", i)
		}
		tol, err := config.ParseDurationOrDefault(fmt.Sprintf("reminders.buckets[%d].tolerance", i), b.Tolerance, 30*time.Minute)
		if err != nil {
			return nil, err
		}
		// The window lower edge lead-tol must stay positive: the store's
		// candidate fetch only reaches a fixed grace below the reference
		// instant, and a window past the target makes no sense anyway.
		if tol >= lead {
			return nil, fmt.Errorf("reminders.buckets[%d]: tolerance %s must be below lead %s", i, tol, lead)
		}
		label := strings.TrimSpace(b.Label)
		if label == "" {
			label = name
		}
		out = append(out, reminder.Bucket{Name: name, Label: label, Lead: lead, Tolerance: tol})
	}
	return out, nil
}

// validateConfig gates hot reloads: a file that fails here is rejected
// and the previous config stays committed.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	if _, err := loadLocation(cfg.Reminders.Timezone); err != nil {
		return err
	}
	if _, err := mapBuckets(cfg.Reminders.Buckets); err != nil {
		return err
	}
	if _, err := cronSpec(cfg.Reminders.Sweep.Every); err != nil {
		return err
	}
	_, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	return err
}
