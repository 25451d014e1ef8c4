package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"tunebot/internal/download"
	"tunebot/internal/janitor"
	"tunebot/internal/notifier/broadcast"
	"tunebot/internal/storage"
	"tunebot/internal/telemetry"
	"tunebot/internal/transport"
	telegram "tunebot/internal/transport/telegram/adapter"
	"tunebot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	adapter  *telegram.Adapter
	counters *telemetry.Counters
	pipeline *download.Pipeline
	bc       *broadcast.Dispatcher
	handler  *Handler
	janitor  *janitor.Service
	metrics  *telemetry.Server

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole("INFO")
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}
	return assemble(cfgPath, cfgm, cfg, ad)
}

// assemble builds every component around an already created adapter.
// Storage opened here is closed again if a later step fails.
func assemble(cfgPath string, cfgm *ConfigManager, cfg *Config, ad *telegram.Adapter) (_ *App, err error) {
	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	ad.SetLogger(log)
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && store != nil {
			_ = store.Close()
		}
	}()

	counters := telemetry.New()
	pipeline, err := NewPipeline(cfg, counters, log)
	if err != nil {
		return nil, err
	}

	bcfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	bc := broadcast.New(bcfg, ad, counters, log)

	hcfg, err := mapHandlerConfig(cfg)
	if err != nil {
		return nil, err
	}
	handler := NewHandler(hcfg, ad, pipeline, store, bc, counters, log)

	jcfg, err := mapJanitorConfig(cfg, pipeline.Config().Dir)
	if err != nil {
		return nil, err
	}
	if !cfg.Janitor.Enabled {
		jcfg.Interval = 0
	}

	var metrics *telemetry.Server
	if cfg.Metrics.Enabled {
		if metrics, err = telemetry.NewServer(cfg.Metrics.Addr, counters, log, telemetry.WithProfiler(cfg.Metrics.Pprof)); err != nil {
			return nil, err
		}
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		counters: counters,
		pipeline: pipeline,
		bc:       bc,
		handler:  handler,
		janitor:  janitor.New(jcfg, log),
		metrics:  metrics,
		updates:  make(chan transport.Update, 256),
	}, nil
}

// openStore opens the configured storage. A nil store means storage is
// disabled.
func openStore(cfg *Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		log.Warn("storage disabled; ledger, directory and broadcast are unavailable")
		return nil, nil
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	return st, nil
}

// NewPipeline builds the download pipeline and its yt-dlp extractor.
func NewPipeline(cfg *Config, counters *telemetry.Counters, log logx.Logger) (*download.Pipeline, error) {
	dcfg, err := mapDownloadConfig(cfg)
	if err != nil {
		return nil, err
	}
	var ex download.Extractor
	if cfg.Download.YTDLPPath != "-" {
		ex = download.NewYTDLP(cfg.Download.YTDLPPath, cfg.Download.CookiesDir, log)
	}
	return download.New(dcfg, ex, counters, log), nil
}

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDownloadConfig(cfg); err != nil {
			return err
		}
		if _, err := mapBroadcastConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHandlerConfig(cfg); err != nil {
			return err
		}
		_, err := mapJanitorConfig(cfg, "")
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.handler.Run(c, a.updates)
	})
	if a.metrics != nil {
		a.sup.GoRestart("metrics.http", a.metrics.Run, WithRestartBackoff(time.Second, 30*time.Second), WithMaxRestarts(5))
	}
	a.janitor.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig pushes the live-reloadable sections into running components.
func (a *App) applyConfig(ctx context.Context, prev, next *Config) {
	sections, _ := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		return
	}

	if slices.Contains(sections, "logging") || slices.Contains(sections, "telegram") {
		a.logs.Apply(mapLogConfig(next))
	}
	if bcfg, err := mapBroadcastConfig(next); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.bc.Apply(bcfg)
	}
	if hcfg, err := mapHandlerConfig(next); err != nil {
		a.log.Warn("invalid handler config; keeping previous", logx.Err(err))
	} else {
		a.handler.Apply(hcfg)
	}
	if slices.Contains(sections, "janitor") {
		jcfg, err := mapJanitorConfig(next, a.pipeline.Config().Dir)
		if err != nil {
			a.log.Warn("invalid janitor config; keeping previous", logx.Err(err))
		} else {
			if !next.Janitor.Enabled {
				jcfg.Interval = 0
			}
			a.janitor.Apply(ctx, jcfg)
		}
	}
	if restart := RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for some sections", logx.String("sections", strings.Join(restart, ",")))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("broadcast", 5*time.Second, func(c context.Context) error {
		a.bc.Cancel()
		return a.bc.Wait(c)
	})
	step("janitor", time.Second, func(c context.Context) error { a.janitor.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// DefaultConfigPath returns the config file next to the working directory.
func DefaultConfigPath() string { return filepath.Join(".", "config.yaml") }
