package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"postbot/internal/bot"
	"postbot/internal/broadcast"
	"postbot/internal/channels"
	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/metrics"
	"postbot/internal/observability/ops"
	"postbot/internal/post"
	"postbot/internal/runtime/supervisor"
	"postbot/internal/schedule"
	"postbot/internal/storage"
	"postbot/internal/task/scheduler"
	kit "postbot/internal/transport"
	telegram "postbot/internal/transport/telegram/adapter"
	"postbot/internal/transport/telegram/router"
	"postbot/internal/wizard"
	logx "postbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	router  *router.Router
	bot     *bot.Bot

	engine    *broadcast.Engine
	sched     *scheduler.Service
	schedules *schedule.Registry
	metrics   *metrics.Metrics
	ops       *ops.Service

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateForRun(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, config.DefaultPollTimeout)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink off so Apply does not warn about a
	// missing target, then enable it once the target is set.
	logCfg := mapLogging(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(groupLogTarget(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	storeCfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", driverName(storeCfg.Driver)))

	bus := eventbus.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg, bus)

	chans := channels.New(store, ad,
		channels.WithLogger(log),
		channels.WithBus(bus),
	)

	bcCfg, err := mapBroadcast(cfg)
	if err != nil {
		return nil, err
	}
	engine := broadcast.New(bcCfg, chans, ad,
		broadcast.WithLogger(log),
		broadcast.WithBus(bus),
		broadcast.WithAudit(store),
		broadcast.WithChannels(chans),
	)

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log, bus)

	// One lock set: a wizard post and a scheduled fire for the same user
	// never interleave.
	locks := post.NewUserLocks()
	schedules := schedule.New(store, sched, engine,
		schedule.WithLogger(log),
		schedule.WithBus(bus),
		schedule.WithLocks(locks),
		schedule.WithJobTimeout(schedCfg.JobTimeout),
	)

	wiz := wizard.New(store, chans, engine, schedules,
		wizard.WithLogger(log),
		wizard.WithLocks(locks),
		wizard.WithTransitions(func(from, to wizard.Step) {
			met.WizardTransition(string(from), string(to))
		}),
	)

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		engine:    engine,
		sched:     sched,
		schedules: schedules,
		metrics:   met,
		updates:   make(chan kit.Update, 256),
	}

	a.bot = bot.New(ad, wiz, chans, schedules, sched,
		bot.WithLogger(log),
		bot.WithStatus(a.statusSections),
	)
	schedules.SetOnFired(a.bot.NotifyFired)

	cmdTimeout, err := commandTimeout(cfg)
	if err != nil {
		return nil, err
	}
	a.router = router.New(ad,
		router.WithLogger(log),
		router.WithOwners(cfg.Telegram.OwnerUserIDs),
		router.WithTimeout(cmdTimeout),
		router.WithFallback(a.bot.Fallback),
		router.WithErrorReply(a.bot.ErrorReply),
	)
	a.router.Register(a.bot.Commands(), a.bot.Callbacks())

	opsCfg, err := mapOps(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(opsCfg,
		ops.WithLogger(log),
		ops.WithGatherer(reg),
		ops.WithHealth(a.health),
	)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	if a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Validate before commit so a bad reload keeps the running config.
	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapScheduler(cfg); err != nil {
			return err
		}
		if _, err := mapBroadcast(cfg); err != nil {
			return err
		}
		if _, err := mapOps(cfg); err != nil {
			return err
		}
		_, err := commandTimeout(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sched.Start(a.sup.Context())
	if n, err := a.schedules.Restore(a.sup.Context()); err != nil {
		a.log.Warn("schedule restore failed", logx.Err(err))
	} else {
		a.log.Debug("schedule restore done", logx.Int("armed", n))
	}

	if err := a.adapter.UpdateMenuCommands(a.sup.Context(), a.router.MenuCommands()); err != nil {
		a.log.Warn("menu update failed", logx.Err(err))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.sup, a.updates)
	})
	a.sup.Go0("metrics.consume", func(c context.Context) {
		a.metrics.Consume(c, a.bus)
	})

	opsCfg, err := mapOps(a.cfgm.Get())
	if err != nil {
		return err
	}
	a.ops.Reconfigure(a.sup.Context(), opsCfg)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("bot", a.adapter.Username()))
	return nil
}

// applyConfig pushes the hot-reloadable sections into running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.Summarize(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range config.RestartRequired(sections, oldCfg, newCfg) {
		a.log.Warn("config change needs a restart", logx.String("section", s))
	}

	// Target first so Apply does not warn when the Telegram sink is enabled.
	a.logs.SetTelegramTarget(groupLogTarget(newCfg), newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogging(newCfg))

	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)
	if d, err := commandTimeout(newCfg); err == nil {
		a.router.SetTimeout(d)
	}

	if sc, err := mapScheduler(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}
	if bc, err := mapBroadcast(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(bc)
	}
	if oc, err := mapOps(newCfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TopicConfigReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; anything else is a leak worth logging.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Scheduler first so no fire starts while the adapter goes away.
	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// statusSections feeds the owner-only /status view.
func (a *App) statusSections() []bot.StatusSection {
	var out []bot.StatusSection
	out = append(out, goroutineSection("App goroutines", a.sup))
	out = append(out, goroutineSection("Telegram", a.adapter.Supervisor()))

	opsState := "disabled"
	if addr := a.ops.Addr(); addr != "" {
		opsState = addr
	}
	out = append(out, bot.StatusSection{
		Title: "Runtime",
		Rows: [][2]string{
			{"storage", driverName(a.cfgm.Get().Storage.Driver)},
			{"ops", opsState},
			{"bus dropped", strconv.FormatUint(eventbus.Dropped(a.bus), 10)},
		},
	})
	return out
}

func goroutineSection(title string, sup *supervisor.Supervisor) bot.StatusSection {
	snap := sup.Snapshot()
	sec := bot.StatusSection{
		Title: title,
		Rows: [][2]string{
			{"active", strconv.FormatInt(snap.Active, 10)},
			{"started", strconv.FormatUint(snap.Started, 10)},
		},
	}
	if snap.FirstError != "" {
		sec.Rows = append(sec.Rows, [2]string{"first error", snap.FirstError})
	}
	for _, g := range snap.Goroutines {
		if g.Restarts == 0 && g.Panics == 0 {
			continue
		}
		sec.Rows = append(sec.Rows, [2]string{g.Name, fmt.Sprintf("restarts=%d panics=%d", g.Restarts, g.Panics)})
	}
	return sec
}

func driverName(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return "memory"
	}
	return d
}

// notifySystemd is a no-op outside systemd (NOTIFY_SOCKET unset).
func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
