package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nmslite/hwmon/internal/api"
	"github.com/nmslite/hwmon/internal/auth"
	"github.com/nmslite/hwmon/internal/channels"
	"github.com/nmslite/hwmon/internal/config"
	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	httpext "github.com/nmslite/hwmon/internal/extension/http"
	"github.com/nmslite/hwmon/internal/extension/oscommand"
	"github.com/nmslite/hwmon/internal/extension/plugin"
	"github.com/nmslite/hwmon/internal/extension/snmp"
	"github.com/nmslite/hwmon/internal/extension/ssh"
	"github.com/nmslite/hwmon/internal/extension/winrm"
	otelexport "github.com/nmslite/hwmon/internal/exporter/otel"
	"github.com/nmslite/hwmon/internal/scheduler"
	"github.com/nmslite/hwmon/internal/stream"
	"github.com/nmslite/hwmon/internal/strategy"
	"github.com/nmslite/hwmon/internal/version"
)

func newRunCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, cfg)
		},
	}
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("Starting hwmon agent",
		"version", version.Version,
		"connectors", cfg.Connectors.Directory,
		"server_enabled", cfg.Server.Enabled,
	)

	var authService *auth.Service
	if cfg.Server.Enabled || cfg.Auth.EncryptionKey != "" {
		svc, err := newAuthService(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize auth service: %w", err)
		}
		authService = svc
	}
	if cfg.Auth.EncryptionKey != "" {
		if err := cfg.DecryptSecrets(authService); err != nil {
			return fmt.Errorf("failed to decrypt host secrets: %w", err)
		}
	}

	store := connector.NewStore(cfg.Connectors.Directory, logger)
	if err := store.Load(); err != nil {
		return err
	}
	logger.Info("Connectors loaded", "count", len(store.List()))

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	engine := strategy.NewEngine(store, registry, strategy.EngineConfig{
		FetchTimeout:        cfg.Scheduler.FetchTimeout(),
		DetectionValidity:   cfg.Scheduler.DetectionValidity(),
		DetectionWorkers:    cfg.Scheduler.DetectionWorkers,
		DiagnosticDetection: cfg.Scheduler.DiagnosticDetection,
		EngineVersion:       version.Version,
	}, logger)

	events := channels.NewEventChannels(channels.EventChannelsConfig{
		CycleBufferSize:     cfg.Channel.CycleChannelSize,
		HostStateBufferSize: cfg.Channel.HostStateChannelSize,
		ConnectorBufferSize: cfg.Channel.ConnectorChannelSize,
	})
	defer events.Close()

	sched := scheduler.New(registry, events, cfg.Scheduler, logger)

	hosts, err := cfg.ExpandHosts()
	if err != nil {
		return err
	}
	for _, h := range hosts {
		host, err := registry.BuildHost(h.ID, h.Hostname, h.Type, h.Connectors, h.Protocols)
		if err != nil {
			return err
		}
		if err := sched.AddHost(host, engine.NewHostRunner(host)); err != nil {
			return err
		}
	}
	logger.Info("Hosts scheduled", "count", len(hosts))

	var hooks []func(channels.CycleCompletedEvent)
	if cfg.Export.OTel {
		provider, err := newMeterProvider(ctx, cfg.Export)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("Meter provider shutdown failed", "error", err)
			}
		}()

		exp := otelexport.New(provider.Meter(cfg.Export.MeterName), sched, logger)
		defer exp.Close()
		hooks = append(hooks, func(channels.CycleCompletedEvent) {
			if err := exp.Sync(); err != nil {
				logger.Error("OTel gauge sync failed", "error", err)
			}
		})
		logger.Info("OTel export enabled", "endpoint", cfg.Export.OTLPEndpoint, "interval", cfg.Export.Interval())
	}

	var relays []channels.Broadcaster
	var hub *stream.Hub
	if cfg.Server.Enabled {
		hub = stream.NewHub(logger)
		relays = append(relays, hub)
		hooks = append(hooks, channels.RelayCycles(hub))
	}

	channels.StartEventLogger(ctx, events, logger, relays...)
	channels.StartCycleTracker(ctx, events, hooks...)

	if cfg.Connectors.Watch {
		go func() {
			err := store.Watch(ctx, func(count int) {
				sched.RedetectAll()
				events.PublishConnectorsReloaded(channels.ConnectorsReloadedEvent{
					Count:     count,
					Timestamp: time.Now(),
				})
			})
			if err != nil {
				logger.Error("Connector watcher stopped", "error", err)
			}
		}()
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      api.NewRouter(authService, sched, hub, cfg.Export.Prometheus, logger),
			ReadTimeout:  cfg.Server.ReadTimeout(),
			WriteTimeout: cfg.Server.WriteTimeout(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server failed", "error", err)
			}
		}()
	}

	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if srv != nil {
		// Hijacked websocket connections are not tracked by Shutdown.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", "error", err)
		}
	}

	logger.Info("Agent stopped gracefully")
	return err
}

// buildRegistry registers every protocol extension. The plugin extension is
// only added when a plugin directory is configured.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*extension.Registry, error) {
	registry := extension.NewRegistry(logger,
		snmp.New(logger),
		ssh.New(logger),
		winrm.New(logger),
		httpext.New(logger),
		oscommand.New(logger),
	)

	if cfg.Plugins.Directory != "" {
		p, err := plugin.New(cfg.Plugins.Directory, cfg.Plugins.Timeout(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
		registry.Register(p)
		logger.Info("Plugins loaded", "count", len(p.Registry().List()))
	}

	logger.Info("Extensions registered", "extensions", registry.Names())
	return registry, nil
}

func newMeterProvider(ctx context.Context, cfg config.ExportConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Interval()))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}
