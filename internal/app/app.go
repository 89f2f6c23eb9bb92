// Package app assembles the bot: config, logging, transport, storage,
// tracker, command routing and maintenance.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mcwatch/internal/config"
	"mcwatch/internal/eventbus"
	"mcwatch/internal/mcstatus"
	rtsup "mcwatch/internal/runtime/supervisor"
	"mcwatch/internal/storage"
	"mcwatch/internal/task/scheduler"
	"mcwatch/internal/track"
	kit "mcwatch/internal/transport"
	"mcwatch/internal/transport/telegram/adapter"
	"mcwatch/internal/transport/telegram/router"
	logx "mcwatch/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter *adapter.Adapter
	store   storage.Store
	src     *mcstatus.Client
	bus     eventbus.Bus
	tracker *track.Tracker
	router  *router.Manager
	maint   *scheduler.Service

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// The adapter logs to console until the logging service exists; the
	// service needs the adapter as its telegram sink sender.
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	trkCfg, err := trackerConfig(cfg.Tracker)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{
		Token:           cfg.Telegram.Token,
		PollTimeout:     pollTimeout,
		RenamePerMinute: cfg.Tracker.RenamePerMinute,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	logSvc, log := logx.New(logxConfig(cfg.Logging), ad)
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		if _, err := trackerConfig(c.Tracker); err != nil {
			return err
		}
		_, err := config.ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
		return err
	})

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	srcTimeout, err := config.ParseDurationField("mcstatus.timeout", cfg.MCStatus.Timeout)
	if err != nil {
		return nil, err
	}
	src := mcstatus.New(mcstatus.Config{BaseURL: cfg.MCStatus.BaseURL, Timeout: srcTimeout})

	bus := eventbus.New()
	tracker := track.New(trkCfg, store, src, track.NewSinks(ad), bus, log.With(logx.String("comp", "track")))

	rt := router.NewManager(log.With(logx.String("comp", "router")), ad, cfg.Telegram.OwnerUserIDs)
	track.RegisterCommands(rt, tracker)

	a := &App{
		cfgMgr:  mgr,
		logSvc:  logSvc,
		log:     log,
		adapter: ad,
		store:   store,
		src:     src,
		bus:     bus,
		tracker: tracker,
		router:  rt,
		maint:   scheduler.New(log.With(logx.String("comp", "maintenance"))),
		updates: make(chan kit.Update, 128),
	}
	a.setLogTarget(cfg.Telegram.GroupLog, cfg.Logging.Telegram.ThreadID)
	if err := a.registerMaintenance(cfg.Maintenance); err != nil {
		return nil, err
	}
	return a, nil
}

// Start brings everything up: transport, recovery, dispatch, maintenance,
// config hot-reload and the systemd watchdog.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}

	// Recovery runs before the dispatch loop so commands cannot race the
	// reconciliation pass on the store.
	rctx, cancel := context.WithTimeout(a.sup.Context(), 2*time.Minute)
	err := a.tracker.Recover(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	a.sup.Go0("router.dispatch", func(ctx context.Context) {
		_ = a.router.DispatchLoop(ctx, a.updates)
	})
	a.sup.GoRestart0("config.watch", func(ctx context.Context) {
		_ = a.cfgMgr.Watch(ctx)
	})
	a.sup.Go0("config.apply", a.applyConfigLoop)
	a.sup.Go0("watchdog", a.watchdogLoop)
	a.sup.Go0("events", a.eventLogLoop)

	a.maint.Start()
	a.log.Info("mcwatch started")
	notifyReady(a.log)
	return nil
}

// Stop tears the app down in reverse order. Jobs stay persisted.
func (a *App) Stop(ctx context.Context) error {
	notifyStopping(a.log)
	a.maint.Stop()
	a.tracker.Close()
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("mcwatch stopped")
	return a.logSvc.Close()
}

// applyConfigLoop picks up hot-reloaded config. Only the logging sinks are
// dynamic; timing and transport changes need a restart.
func (a *App) applyConfigLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logxConfig(cfg.Logging))
			a.setLogTarget(cfg.Telegram.GroupLog, cfg.Logging.Telegram.ThreadID)
			a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
			if trkCfg, err := trackerConfig(cfg.Tracker); err == nil {
				a.tracker.UpdateConfig(trkCfg)
			} else {
				a.log.Warn("tracker config not applied", logx.Err(err))
			}
			a.log.Info("configuration reloaded")
		}
	}
}

// eventLogLoop mirrors tracker lifecycle events into the log stream.
func (a *App) eventLogLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(16)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("tracker event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

func (a *App) registerMaintenance(cfg config.MaintenanceConfig) error {
	if !cfg.Enabled {
		return nil
	}
	compact := cfg.CompactSchedule
	if strings.TrimSpace(compact) == "" {
		compact = "@every 24h"
	}
	summary := cfg.SummarySchedule
	if strings.TrimSpace(summary) == "" {
		summary = "@every 1h"
	}
	if err := a.maint.AddCron("store.compact", compact, func(ctx context.Context) {
		if err := a.store.Compact(ctx); err != nil {
			a.log.Warn("store compaction failed", logx.Err(err))
		}
	}); err != nil {
		return err
	}
	return a.maint.AddCron("jobs.summary", summary, func(context.Context) {
		jobs := a.tracker.Jobs()
		var messages, channels int
		for _, j := range jobs {
			if j.Kind == storage.KindMessage {
				messages++
			} else {
				channels++
			}
		}
		a.log.Info("tracked jobs",
			logx.Int("messages", messages), logx.Int("channels", channels))
	})
}

// setLogTarget points the telegram log sink at the configured log chat.
// GroupLog is a numeric chat id; anything else disables the sink target.
func (a *App) setLogTarget(groupLog string, threadID int) {
	s := strings.TrimSpace(groupLog)
	if s == "" {
		return
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		a.log.Warn("telegram.group_log is not a chat id", logx.String("value", groupLog))
		return
	}
	a.logSvc.SetTelegramTarget(id, threadID)
}

func logxConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    c.Telegram.Enabled,
			ThreadID:   c.Telegram.ThreadID,
			MinLevel:   c.Telegram.MinLevel,
			RatePerSec: c.Telegram.RatePerSec,
		},
	}
}

func trackerConfig(c config.TrackerConfig) (track.Config, error) {
	msgPoll, err := config.ParseDurationOrDefault("tracker.message_poll_interval", c.MessagePollInterval, time.Minute)
	if err != nil {
		return track.Config{}, err
	}
	chanPoll, err := config.ParseDurationOrDefault("tracker.channel_poll_interval", c.ChannelPollInterval, 5*time.Minute)
	if err != nil {
		return track.Config{}, err
	}
	lifetime, err := config.ParseDurationOrDefault("tracker.default_lifetime", c.DefaultLifetime, 15*time.Minute)
	if err != nil {
		return track.Config{}, err
	}
	grace, err := config.ParseDurationOrDefault("tracker.grace_period", c.GracePeriod, time.Minute)
	if err != nil {
		return track.Config{}, err
	}
	return track.Config{
		MessagePollInterval: msgPoll,
		ChannelPollInterval: chanPoll,
		DefaultLifetime:     lifetime,
		GracePeriod:         grace,
	}, nil
}
