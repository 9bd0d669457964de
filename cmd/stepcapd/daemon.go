package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"stepcap/internal/capture"
	"stepcap/internal/config"
	"stepcap/internal/emitter"
	"stepcap/internal/health"
	"stepcap/internal/input"
	"stepcap/internal/ipc"
	"stepcap/internal/logging"
	"stepcap/internal/metrics"
	"stepcap/internal/schema"
	"stepcap/internal/screen"
	"stepcap/internal/tracking"
	"stepcap/internal/uia"
)

// daemon owns every long-lived component of stepcapd.
type daemon struct {
	cfg *config.Config
	log *logging.Logger

	crash   *logging.CrashHandler
	metrics *metrics.Capture
	bus     *emitter.Bus
	machine *tracking.Machine
	health  *health.Checker
	handler *ipc.DaemonHandler
	server  *ipc.Server
	loop    *capture.Loop // nil when input sampling is unavailable
	loader  *config.Loader

	inputErr error
	watching atomic.Bool

	stopLoop context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
}

func run(ctx context.Context, path string, autostart bool) error {
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lc, err := loggingConfig(cfg.Logging)
	if err != nil {
		return err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	if created {
		logger.Info("wrote default configuration", "path", path)
	}

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}
	if err := d.start(path); err != nil {
		d.shutdown()
		return err
	}
	defer d.shutdown()

	if autostart || cfg.Capture.AutoStart {
		id, err := d.machine.Start()
		if err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
		logger.Info("recording started", "session", id)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// loggingConfig converts the logging section to logger settings.
func loggingConfig(c config.LoggingConfig) (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Component = "stepcapd"
	if c.Output != "" {
		lc.Output = c.Output
	}
	if c.FilePath != "" {
		lc.FilePath = c.FilePath
	}
	if c.MaxSizeMB > 0 {
		lc.MaxSize = int64(c.MaxSizeMB)
	}
	if c.MaxBackups > 0 {
		lc.MaxBackups = c.MaxBackups
	}
	return lc, nil
}

// captureOptions converts the capture section to tracker options.
func captureOptions(cfg *config.Config) (capture.Options, error) {
	hotkey, err := cfg.Capture.Hotkey()
	if err != nil {
		return capture.Options{}, fmt.Errorf("manual hotkey: %w", err)
	}
	keys, err := cfg.Capture.Keys()
	if err != nil {
		return capture.Options{}, fmt.Errorf("monitored keys: %w", err)
	}
	return capture.Options{
		ClickInterval:     cfg.Capture.ClickInterval(),
		KeystrokeInterval: cfg.Capture.KeystrokeInterval(),
		Settle:            cfg.Capture.Settle(),
		Hotkey:            hotkey,
		Keys:              keys,
		SelfIdentifiers:   slices.Clone(cfg.Capture.SelfIdentifiers),
	}, nil
}

func newDaemon(cfg *config.Config, logger *logging.Logger) (*daemon, error) {
	d := &daemon{
		cfg:     cfg,
		log:     logger,
		crash:   logging.NewCrashHandler(logger.WithComponent("crash").Logger, cfg.Logging.CrashDir, Version),
		metrics: metrics.NewCapture(nil),
		bus:     emitter.New(logger.WithComponent("emitter").Logger),
		health:  health.NewChecker(),
		done:    make(chan struct{}),
	}
	if cfg.Schema.ValidateRecords {
		d.bus.SetValidator(schema.ValidateRecord)
	}
	d.bus.AddSink(sessionTagger{crash: d.crash})
	d.machine = tracking.NewMachine(d.bus)

	hcfg := ipc.DaemonHandlerConfig{
		Version: Version,
		Machine: d.machine,
		Health:  d.health,
		Logger:  logger.WithComponent("ipc").Logger,
	}
	if cfg.Metrics.Enabled {
		hcfg.Metrics = d.metrics
	}
	d.handler = ipc.NewDaemonHandler(hcfg)

	opts, err := captureOptions(cfg)
	if err != nil {
		return nil, err
	}
	sopts, err := cfg.ScreenOptions()
	if err != nil {
		return nil, fmt.Errorf("screenshot options: %w", err)
	}

	d.registerChecks()

	src, err := input.NewSystemSource()
	if err != nil {
		// Tracking commands and IPC keep working without sampling.
		logger.Error("input sampling unavailable, recording will produce no records", "error", err)
		d.inputErr = err
		return d, nil
	}
	deps := capture.Deps{
		Input:   src,
		Screen:  screen.NewCapturer(screen.SystemBackend{}, sopts),
		Emitter: d.bus,
		Machine: d.machine,
		Metrics: d.metrics,
		Logger:  logger.WithComponent("capture").Logger,
	}
	d.loop = capture.NewLoop(uia.Open, cfg.Capture.Tick(), opts, deps, d.crash)
	return d, nil
}

func (d *daemon) start(path string) error {
	if d.cfg.IPC.Enabled {
		scfg := ipc.DefaultServerConfig(d.cfg.IPC.SocketPath)
		scfg.Version = Version
		scfg.MaxClients = d.cfg.IPC.MaxClients
		scfg.EventQueue = d.cfg.IPC.EventQueue
		scfg.Logger = d.log.WithComponent("ipc").Logger
		scfg.OnClientsChanged = func(n int) { d.metrics.Subscribers.Set(int64(n)) }

		d.server = ipc.NewServer(scfg, d.handler)
		d.handler.SetClientCounter(d.server.ClientCount)
		if err := d.server.Start(); err != nil {
			if errors.Is(err, ipc.ErrAddressInUse) {
				return fmt.Errorf("stepcapd is already running on %s", scfg.SocketPath)
			}
			return fmt.Errorf("start ipc: %w", err)
		}
		d.bus.AddSink(d.server)
		d.log.Info("ipc listening", "socket", d.server.SocketPath())
	}

	d.loader = config.NewLoader(path)
	if _, err := d.loader.Load(); err != nil {
		d.log.Warn("config reload disabled", "error", err)
		d.loader = nil
	} else {
		d.loader.OnChange(d.reload)
		if err := d.loader.Watch(); err != nil {
			d.log.Warn("config watch disabled", "error", err)
		} else {
			d.watching.Store(true)
			d.wg.Add(1)
			go d.watchErrors()
		}
	}

	if d.loop != nil {
		ctx, cancel := context.WithCancel(context.Background())
		d.stopLoop = cancel
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.loop.Run(ctx); err != nil {
				d.log.Error("sampling loop exited", "error", err)
			}
		}()
	}
	d.health.SetReady(true)
	return nil
}

// registerChecks exposes the daemon's components to health requests.
func (d *daemon) registerChecks() {
	d.health.RegisterFunc("sampling", true, func(context.Context) health.CheckResult {
		switch {
		case d.loop == nil:
			return health.Unhealthy("input sampling unavailable", d.inputErr)
		case d.loop.Tracker() == nil:
			return health.Unhealthy("accessibility gateway not open", nil)
		}
		return health.Healthy("loop running, state " + d.machine.State().String())
	})
	d.health.RegisterFunc("ipc", false, func(context.Context) health.CheckResult {
		if d.server == nil {
			return health.Degraded("ipc disabled")
		}
		if n := d.server.Dropped(); n > 0 {
			return health.Degraded(fmt.Sprintf("%d clients, %d events dropped", d.server.ClientCount(), n))
		}
		return health.Healthy(fmt.Sprintf("%d clients", d.server.ClientCount()))
	})
	d.health.RegisterFunc("config_watch", false, health.Bool(func() bool { return d.watching.Load() },
		"watching for changes", "not watching, restart to apply changes"))
	d.health.RegisterFunc("panics", false, func(context.Context) health.CheckResult {
		if n := d.crash.Count(); n > 0 {
			return health.Degraded(fmt.Sprintf("%d panics recovered", n))
		}
		return health.Healthy("none")
	})
}

// reload applies the settings that can change without a restart.
func (d *daemon) reload(old, updated *config.Config) {
	if !slices.Equal(old.Capture.SelfIdentifiers, updated.Capture.SelfIdentifiers) {
		if d.loop != nil {
			d.loop.SetSelfIdentifiers(updated.Capture.SelfIdentifiers)
		}
		d.log.Info("self identifiers updated", "ids", updated.Capture.SelfIdentifiers)
	}
	if old.Logging.Level != updated.Logging.Level {
		level, err := logging.ParseLevel(updated.Logging.Level)
		if err != nil {
			d.log.Warn("ignoring log level", "level", updated.Logging.Level, "error", err)
		} else {
			d.log.SetLevel(level)
			d.log.Info("log level changed", "level", logging.LevelString(level))
		}
	}
	if restartRequired(old, updated) {
		d.log.Warn("configuration changed, restart stepcapd to apply capture timings, keys, screenshot and ipc settings")
	}
}

func restartRequired(old, updated *config.Config) bool {
	a, b := old.Capture, updated.Capture
	return a.TickMs != b.TickMs ||
		a.ClickDebounceMs != b.ClickDebounceMs ||
		a.KeystrokeDebounceMs != b.KeystrokeDebounceMs ||
		a.SettleMs != b.SettleMs ||
		a.CaptureTimeoutMs != b.CaptureTimeoutMs ||
		a.ManualHotkey != b.ManualHotkey ||
		!slices.Equal(a.MonitoredKeys, b.MonitoredKeys) ||
		old.Screenshot != updated.Screenshot ||
		old.IPC != updated.IPC
}

func (d *daemon) watchErrors() {
	defer d.wg.Done()
	for {
		select {
		case err, ok := <-d.loader.Errors():
			if !ok {
				return
			}
			d.log.Warn("config reload rejected", "error", err)
		case <-d.done:
			return
		}
	}
}

// shutdown stops recording and tears the components down in reverse
// order of creation.
func (d *daemon) shutdown() {
	if d.machine.State() != tracking.Stopped {
		if err := d.machine.Stop(); err == nil {
			d.log.Info("recording stopped on shutdown", "records", d.machine.Status().Records)
		}
	}
	close(d.done)
	if d.stopLoop != nil {
		d.stopLoop()
	}
	if d.loader != nil {
		if err := d.loader.Close(); err != nil {
			d.log.Warn("close config watcher", "error", err)
		}
	}
	d.wg.Wait()

	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.log.Warn("stop ipc", "error", err)
		}
	}
	d.bus.Close()
	if n := d.crash.Count(); n > 0 {
		d.log.Warn("recovered panics during this run", "count", n)
	}
}

// sessionTagger tags crash dumps with the session that produced the
// records being emitted.
type sessionTagger struct {
	crash *logging.CrashHandler
}

func (s sessionTagger) Publish(ev emitter.Event) error {
	switch {
	case ev.Name == emitter.EventInteraction && ev.Record != nil:
		s.crash.SetSessionID(ev.Record.SessionID)
	case ev.Name == emitter.EventRecordingMode && !ev.Value:
		s.crash.SetSessionID("")
	}
	return nil
}
