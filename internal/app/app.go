// Package app wires configuration, storage, transport, sites, and the
// scheduler into one runnable bot.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitewatch/internal/config"
	"sitewatch/internal/eventbus"
	"sitewatch/internal/notifier"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/site"
	"sitewatch/internal/site/example"
	"sitewatch/internal/site/hackernews"
	"sitewatch/internal/site/speedtest"
	"sitewatch/internal/storage"
	"sitewatch/internal/transport/telegram"
	"sitewatch/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	backend  storage.Backend
	cache    *storage.CacheStore
	dedup    *storage.DedupStore
	subs     *storage.SubscriptionStore
	bus      eventbus.Bus
	adapter  *telegram.Adapter
	notify   *notifier.Service
	sched    *scheduler.Service
	registry *site.Registry

	// builders construct a site plugin from its schedule override and
	// raw options block; used at startup and again on config reload.
	builders map[string]func(schedule string, options json.RawMessage) site.Site

	// applied remembers the schedule and options each registered site
	// was built with, so a reload can tell when to rebuild.
	applied map[string]string
}

func New(configPath string) (*App, error) {
	cfgMgr := config.NewManager(configPath, logx.Nop())
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())

	backend, err := storage.Open(cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ctx := context.Background()
	cache := storage.NewCacheStore(backend)
	dedup := storage.NewDedupStore(ctx, backend, storage.DefaultDedupWindow, log)
	subs := storage.NewSubscriptionStore(ctx, backend, log)
	bus := eventbus.New()

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	notify := notifier.New(cfg.NotifierConfig(), adapter, dedup, bus, log)
	sched, err := scheduler.New(cfg.SchedulerConfig(), subs, notify, bus, log)
	if err != nil {
		backend.Close()
		return nil, err
	}

	a := &App{
		cfgMgr:   cfgMgr,
		logSvc:   logSvc,
		log:      log,
		backend:  backend,
		cache:    cache,
		dedup:    dedup,
		subs:     subs,
		bus:      bus,
		adapter:  adapter,
		notify:   notify,
		sched:    sched,
		registry: site.NewRegistry(log),
		applied:  make(map[string]string),
	}
	a.builders = map[string]func(schedule string, options json.RawMessage) site.Site{
		"example": func(schedule string, _ json.RawMessage) site.Site {
			return example.New(cache, log, example.Options{Schedule: schedule})
		},
		"hackernews": func(schedule string, options json.RawMessage) site.Site {
			var opts hackernews.Options
			a.decodeOptions("hackernews", options, &opts)
			opts.Schedule = schedule
			return hackernews.New(cache, log, opts)
		},
		"speedtest": func(schedule string, options json.RawMessage) site.Site {
			var opts speedtest.Options
			a.decodeOptions("speedtest", options, &opts)
			opts.Schedule = schedule
			return speedtest.New(cache, log, opts)
		},
	}
	a.applySites(cfg)

	telegram.NewCommands(a.registry, subs, sched, log).Install(adapter)
	return a, nil
}

// Run blocks until ctx is done, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	events, stopEvents := a.bus.Subscribe(64)
	go a.logEvents(events)

	a.sched.Start()
	for _, js := range a.sched.Snapshot() {
		if js.Dormant {
			a.log.Warn("site dormant", logx.String("site", js.Site), logx.String("reason", js.DormantReason))
			continue
		}
		a.log.Info("site scheduled",
			logx.String("site", js.Site),
			logx.String("schedule", js.Schedule),
			logx.Time("next", js.Next))
	}
	a.adapter.Start()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := a.cfgMgr.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	updates := a.cfgMgr.Subscribe()

	a.log.Info("bot running")
	for {
		select {
		case <-ctx.Done():
			stopEvents()
			<-watchDone
			return a.shutdown()
		case cfg := <-updates:
			a.applyConfig(cfg)
		}
	}
}

// applyConfig carries a validated reload into the running services.
// The telegram token and storage driver are fixed for the process
// lifetime; changing those needs a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(cfg.LogxConfig())
	a.notify.Reconfigure(cfg.NotifierConfig())
	a.applySites(cfg)
	a.log.Info("config applied")
}

// applySites reconciles registered sites against the config: builds and
// registers enabled ones, drops disabled ones, re-registers on schedule
// override changes.
func (a *App) applySites(cfg *config.Config) {
	for id, build := range a.builders {
		enabled := cfg.SiteEnabled(id)
		_, registered := a.registry.Get(id)

		if !enabled {
			if registered {
				a.registry.Unregister(id)
				a.sched.Unregister(id)
				delete(a.applied, id)
				a.log.Info("site disabled", logx.String("site", id))
			}
			continue
		}

		schedule := cfg.SiteSchedule(id)
		options := cfg.SiteOptions(id)
		fingerprint := schedule + "\x00" + string(options)
		if registered && a.applied[id] == fingerprint {
			continue
		}
		s := build(schedule, options)
		if err := a.registry.Register(s); err != nil {
			a.log.Error("site registration failed", logx.String("site", id), logx.Err(err))
			continue
		}
		a.applied[id] = fingerprint
		if err := a.sched.Register(s); err != nil {
			var perr *scheduler.ScheduleParseError
			if !errors.As(err, &perr) {
				a.log.Error("site scheduling failed", logx.String("site", id), logx.Err(err))
			}
		}
	}
}

// decodeOptions fills a plugin's Options from its raw config block.
// Bad options fall back to plugin defaults instead of blocking the
// site.
func (a *App) decodeOptions(id string, raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		a.log.Warn("site options invalid, using defaults",
			logx.String("site", id),
			logx.Err(err))
	}
}

func (a *App) logEvents(events <-chan eventbus.Event) {
	for ev := range events {
		a.log.Debug("event",
			logx.String("type", ev.Type),
			logx.Any("data", ev.Data))
	}
}

func (a *App) shutdown() error {
	a.log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := a.sched.Shutdown(shCtx)
	a.adapter.Stop()
	if cerr := a.backend.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("shutdown complete")
	a.logSvc.Close()
	return err
}
