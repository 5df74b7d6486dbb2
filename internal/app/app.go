// Package app wires configuration, logging, transport, stores, and the
// router together and owns process lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"vidbot/internal/bot"
	"vidbot/internal/broadcast"
	"vidbot/internal/config"
	"vidbot/internal/health"
	"vidbot/internal/report"
	"vidbot/internal/roster"
	"vidbot/internal/runtime/supervisor"
	"vidbot/internal/session"
	"vidbot/internal/transport"
	"vidbot/internal/transport/telegram"
	logx "vidbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter  transport.Adapter
	roster   *roster.Roster
	sessions *session.Store
	report   *report.Service
	health   *health.Server

	operator transport.ChatTarget
	updates  chan transport.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)

	pollTimeout, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	operator := transport.ChatTarget{ChatID: cfg.Telegram.OwnerID}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}, nil)
	// The chat log sink delivers to the operator through the adapter.
	logSvc.SetNotifier(func(text string) {
		_, _ = adapter.SendText(context.Background(), operator, text, &transport.SendOptions{DisablePreview: true})
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	r, err := roster.Open(roster.Config{
		Driver:      cfg.Roster.Driver,
		Path:        cfg.Roster.Path,
		BusyTimeout: cfg.Roster.BusyTimeout,
	}, log.With(logx.String("comp", "roster")))
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		adapter:  adapter,
		roster:   r,
		sessions: session.NewStore(),
		report:   report.New(adapter, r, operator, log.With(logx.String("comp", "report"))),
		health:   health.NewServer(cfg.Health.Port, log.With(logx.String("comp", "health"))),
		operator: operator,
		updates:  make(chan transport.Message, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	ownerID := cfg.Telegram.OwnerID
	isOperator := func(id int64) bool { return id == ownerID }

	dispatcher := broadcast.NewDispatcher(a.adapter, a.roster, a.log.With(logx.String("comp", "broadcast")))
	router := bot.NewRouter(
		a.log.With(logx.String("comp", "router")),
		a.adapter,
		a.sessions,
		a.roster,
		dispatcher,
		isOperator,
		a.sup,
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return router.DispatchLoop(c, a.updates)
	})

	a.sup.Go("health.serve", func(c context.Context) error {
		return a.health.Run(c)
	})

	if err := a.report.Apply(cfg.Report.Schedule); err != nil {
		a.log.Warn("stats report not started", logx.Err(err))
	}

	// Hot reload covers logging and report settings; identity changes
	// (token/owner) take effect on restart.
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c, func(newCfg *config.Config) {
			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
				Telegram: logx.TelegramConfig{
					Enabled:    newCfg.Logging.Telegram.Enabled,
					MinLevel:   newCfg.Logging.Telegram.MinLevel,
					RatePerSec: newCfg.Logging.Telegram.RatePerSec,
				},
			})
			if err := a.report.Apply(newCfg.Report.Schedule); err != nil {
				a.log.Warn("report reload rejected", logx.Err(err))
			}
		})
	})

	a.log.Info("app started",
		logx.Int("users", a.roster.Len()),
		logx.Int64("owner", ownerID),
		logx.Int("health_port", cfg.Health.Port),
	)
	return nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bounded stop steps so one component can't stall shutdown.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	}

	step("report", 1*time.Second, func(context.Context) error { a.report.Stop(); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("roster", 1*time.Second, func(c context.Context) error {
		a.roster.Save(c)
		return a.roster.Close()
	})

	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}
