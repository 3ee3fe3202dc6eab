// Command clariond runs the Clarion webhook health-check daemon: it
// ingests provider webhooks, stores them, and periodically proves the
// delivery pipeline end to end with tagged probe messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	lj "gopkg.in/natefinch/lumberjack.v2"

	clarion "github.com/clarioncrm/clarion"
	"github.com/clarioncrm/clarion/api"
	"github.com/clarioncrm/clarion/cache"
	"github.com/clarioncrm/clarion/config"
	"github.com/clarioncrm/clarion/eventstore"
	"github.com/clarioncrm/clarion/healthcheck"
	"github.com/clarioncrm/clarion/mailer"
	"github.com/clarioncrm/clarion/messaging"
	"github.com/clarioncrm/clarion/metrics"
	"github.com/clarioncrm/clarion/monitor"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file (YAML or TOML)")
	runOnce := flag.Bool("check-now", false, "run one health-check cycle at startup")
	flag.Parse()

	if err := run(*configPath, *runOnce); err != nil {
		fmt.Fprintln(os.Stderr, "clariond:", err)
		os.Exit(1)
	}
}

func run(configPath string, runOnce bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logLevel := newLogger(cfg.Log)
	logger.Info("starting clariond", "config", configPath)

	registry := clarion.NewServiceRegistry(clarion.WithRegistryLogger(logger))
	if err := registerServices(registry, cfg, logger); err != nil {
		return err
	}
	if errs := registry.ValidateDependencies(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("dependency validation failed", "error", err)
		}
		return fmt.Errorf("service graph is invalid: %d missing dependencies", len(errs))
	}
	if err := registry.Warmup(); err != nil {
		return fmt.Errorf("warming up services: %w", err)
	}

	events, err := clarion.Resolve[*clarion.ObserverRegistry](registry, "events")
	if err != nil {
		return err
	}
	err = events.RegisterObserver(clarion.NewFunctionalObserver("event-log",
		func(_ context.Context, event clarion.CloudEvent) error {
			logger.Debug("event emitted", "type", event.Type(), "source", event.Source())
			return nil
		}))
	if err != nil {
		return err
	}

	store, err := clarion.Resolve[*eventstore.Store](registry, "eventstore")
	if err != nil {
		return err
	}
	defer store.Close()

	dedupe, err := clarion.Resolve[cache.Engine](registry, "cache")
	if err != nil {
		return err
	}
	defer dedupe.Close(context.Background())

	mon, err := clarion.Resolve[*monitor.Monitor](registry, "monitor")
	if err != nil {
		return err
	}
	if err := mon.Start(); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	defer func() {
		if err := mon.Stop(); err != nil {
			logger.Error("stopping monitor failed", "error", err)
		}
	}()

	server, err := clarion.Resolve[*api.Server](registry, "apiserver")
	if err != nil {
		return err
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg, logger)
		if err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
			watcher.OnChange(applyConfigReload(logLevel, logger))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runOnce {
		go func() {
			record := mon.RunNow(ctx)
			if record.Err != nil {
				logger.Error("startup health check failed", "error", record.Err)
			}
		}()
	}

	err = server.ListenAndServe(ctx)
	logger.Info("clariond stopped")
	return err
}

// registerServices wires every component into the registry. Factories
// receive their declared dependencies already resolved.
func registerServices(registry *clarion.ServiceRegistry, cfg *config.Config, logger clarion.Logger) error {
	if err := registry.RegisterInstance("config", cfg); err != nil {
		return err
	}
	if err := registry.RegisterInstance("logger", logger); err != nil {
		return err
	}

	err := registry.Register("events",
		clarion.WithFactory(func(clarion.Dependencies) (any, error) {
			return clarion.NewObserverRegistry(), nil
		}),
		clarion.WithTags("observability"))
	if err != nil {
		return err
	}

	err = registry.RegisterSingleton("eventstore", func(clarion.Dependencies) (any, error) {
		return eventstore.New(cfg.EventStore)
	})
	if err != nil {
		return err
	}

	err = registry.RegisterSingleton("cache", func(clarion.Dependencies) (any, error) {
		engine, err := cache.NewEngine(cfg.Cache)
		if err != nil {
			return nil, err
		}
		if err := engine.Connect(context.Background()); err != nil {
			return nil, err
		}
		return engine, nil
	})
	if err != nil {
		return err
	}

	err = registry.RegisterSingleton("messaging", func(clarion.Dependencies) (any, error) {
		return messaging.NewClient(cfg.Messaging, messaging.WithLogger(logger))
	})
	if err != nil {
		return err
	}

	err = registry.RegisterSingleton("mailer", func(clarion.Dependencies) (any, error) {
		return mailer.NewSMTPSender(cfg.Mail, logger), nil
	})
	if err != nil {
		return err
	}

	err = registry.Register("metrics",
		clarion.WithFactory(func(clarion.Dependencies) (any, error) {
			return metrics.New(), nil
		}),
		clarion.WithTags("observability"))
	if err != nil {
		return err
	}

	err = registry.RegisterSingleton("healthcheck", func(deps clarion.Dependencies) (any, error) {
		return healthcheck.NewService(
			cfg.HealthCheck,
			deps["messaging"].(*messaging.Client),
			deps["eventstore"].(*eventstore.Store),
			healthcheck.WithLogger(logger),
			healthcheck.WithAlertSender(deps["mailer"].(mailer.Sender)),
			healthcheck.WithMetrics(deps["metrics"].(*metrics.Metrics)),
			healthcheck.WithSubject(deps["events"].(clarion.Subject)),
		), nil
	}, "messaging", "eventstore", "mailer", "metrics", "events")
	if err != nil {
		return err
	}

	err = registry.RegisterSingleton("monitor", func(deps clarion.Dependencies) (any, error) {
		checks := deps["healthcheck"].(*healthcheck.Service)
		task := func(ctx context.Context) error {
			result := checks.RunHealthCheck(ctx)
			if result.Status.Failure() {
				return fmt.Errorf("health check ended with status %s: %s",
					result.Status, result.ErrorMessage)
			}
			return nil
		}
		return monitor.New(cfg.Monitor, task,
			monitor.WithLogger(logger),
			monitor.WithSubject(deps["events"].(clarion.Subject)))
	}, "healthcheck", "events")
	if err != nil {
		return err
	}

	return registry.RegisterSingleton("apiserver", func(deps clarion.Dependencies) (any, error) {
		m := deps["metrics"].(*metrics.Metrics)
		return api.NewServer(
			cfg.HTTP,
			deps["eventstore"].(*eventstore.Store),
			deps["healthcheck"].(*healthcheck.Service),
			deps["cache"].(cache.Engine),
			api.WithLogger(logger),
			api.WithMetrics(m, m.Handler()),
		), nil
	}, "eventstore", "healthcheck", "cache", "metrics")
}

// slogLogger adapts slog to the variadic key/value Logger interface the
// rest of the codebase consumes.
type slogLogger struct {
	inner *slog.Logger
}

func (l *slogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }

// newLogger builds the process logger. The returned LevelVar lets the
// config watcher adjust verbosity without a restart.
func newLogger(cfg config.LogConfig) (clarion.Logger, *slog.LevelVar) {
	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &slogLogger{inner: slog.New(handler)}, level
}

func parseLogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyConfigReload is the hot-reload handler. Only the log level can
// change while the daemon runs; everything else is captured by the
// service factories at startup.
func applyConfigReload(level *slog.LevelVar, logger clarion.Logger) func(*config.Config) {
	return func(updated *config.Config) {
		level.Set(parseLogLevel(updated.Log.Level))
		logger.Info("configuration reloaded", "log_level", updated.Log.Level)
		logger.Debug("non-logging sections take effect after a restart")
	}
}
