// Package app wires the hub's components together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/amoylab/castwall/internal/audit"
	"github.com/amoylab/castwall/internal/broadcast"
	"github.com/amoylab/castwall/internal/capture"
	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/compositor"
	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/notifier"
	"github.com/amoylab/castwall/internal/registry"
	"github.com/amoylab/castwall/internal/server"
	"github.com/amoylab/castwall/internal/session"
	"github.com/amoylab/castwall/pkg/metrics"
	"github.com/amoylab/castwall/pkg/trace"

	"go.uber.org/zap"
)

// App is a fully wired hub
type App struct {
	logger *zap.Logger
	cfg    *config.CastwallConfig

	metrics    *metrics.Metrics
	notifier   notifier.Notifier
	dispatcher *notifier.Dispatcher
	audit      *audit.Store
	registry   *registry.Registry
	reaper     *registry.Reaper
	provider   *capture.Provider
	loop       *broadcast.Loop
	server     *server.Server

	shutdownTracing func(context.Context) error
}

// New builds every component from cfg. Nothing runs until Start.
func New(ctx context.Context, logger *zap.Logger, cfg *config.CastwallConfig) (_ *App, err error) {
	a := &App{logger: logger, cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.release(context.Background())
		}
	}()

	if cfg.Tracing.Enabled {
		a.shutdownTracing, err = trace.InitTracing(ctx, &cfg.Tracing, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics)
	}

	if a.notifier, err = notifier.NewNotifier(logger, &cfg.Notifier); err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	if cfg.Audit.Enabled {
		if a.audit, err = audit.NewStore(logger, &cfg.Audit); err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		a.notifier = notifier.NewCompositeNotifier(a.notifier, a.audit)
	}
	a.dispatcher = notifier.NewDispatcher(logger, a.notifier, cfg.Notifier.BufferSize)
	a.dispatcher.OnDrop(a.metrics.EventDropped)

	a.registry = registry.New(logger, cfg.Registry, registry.WithObserver(a.observe))
	a.reaper = registry.NewReaper(a.registry, logger, cfg.Registry.ReapInterval)
	a.reaper.OnSweep(a.afterSweep)

	source, err := capture.NewSource(logger, &cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture source: %w", err)
	}
	a.provider = capture.NewProvider(logger, source, &cfg.Capture, cfg.Registry.MaxWindows)

	a.loop = broadcast.New(logger, a.provider,
		compositor.New(cfg.Compositor),
		frame.NewEncoder(cfg.Compositor.JPEGQuality),
		a.registry, a.metrics, cfg.Broadcast)

	codec, err := session.NewCodec(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session codec: %w", err)
	}
	var opts []server.Option
	if a.metrics != nil {
		opts = append(opts, server.WithMetrics(a.metrics, cfg.Metrics.Path))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, server.WithTracing(cfg.Tracing.ServiceName))
	}
	if a.audit != nil {
		opts = append(opts, server.WithHistory(a.audit))
	}
	if a.server, err = server.NewServer(logger, cfg, a.registry, codec, a.loop, opts...); err != nil {
		return nil, err
	}
	return a, nil
}

// observe feeds registry lifecycle events to metrics and the dispatcher
func (a *App) observe(ev registry.Event) {
	switch ev.Type {
	case registry.EventClientCreated:
		a.metrics.ClientCreated()
	case registry.EventClientReaped:
		a.metrics.ClientsReaped(1)
	}
	a.dispatcher.Observe(ev)
}

func (a *App) afterSweep(reaped []int64) {
	if a.audit == nil || len(reaped) == 0 {
		return
	}
	n, err := a.audit.Prune(context.Background(), a.cfg.Audit.Retain)
	if err != nil {
		a.logger.Warn("failed to prune client history", zap.Error(err))
		return
	}
	if n > 0 {
		a.logger.Debug("pruned client history", zap.Int64("records", n))
	}
}

// Server returns the HTTP server
func (a *App) Server() *server.Server { return a.server }

// Registry returns the client registry
func (a *App) Registry() *registry.Registry { return a.registry }

// Start runs the dispatcher, the reaper, the broadcast loop and the HTTP
// server
func (a *App) Start(ctx context.Context) {
	a.dispatcher.Start(ctx)
	a.reaper.Start(ctx)
	a.loop.Start(ctx)
	a.server.Start()

	a.logger.Info("castwall started",
		zap.Int("port", a.cfg.Port),
		zap.String("capture", a.provider.SourceName()),
		zap.Duration("client_timeout", a.cfg.Registry.ClientTimeout),
		zap.Duration("cleanup_interval", a.cfg.Registry.ReapInterval),
		zap.Int("queue_capacity", a.cfg.Registry.QueueCapacity))
}

// Shutdown stops accepting requests, ends every stream and releases all
// resources
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: %w", err))
		}
	}
	if a.loop != nil {
		if err := a.loop.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("broadcast: %w", err))
		}
	}
	if a.reaper != nil {
		a.reaper.Stop()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if err := a.release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release flushes pending events and closes external connections
func (a *App) release(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.notifier != nil {
		// the composite closes the audit store as well
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier: %w", err))
		}
	} else if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
