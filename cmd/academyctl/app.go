package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"academycore/internal/config"
	"academycore/internal/core"
	"academycore/internal/messaging"
	"academycore/internal/observability"
	"academycore/internal/queue"
	"academycore/internal/syncer"
)

type options struct {
	offline bool
	metrics bool
	events  bool
}

// app holds everything a command needs, opened once per invocation.
type app struct {
	cfg     config.Config
	svc     *core.Service
	monitor syncer.ConnectivityMonitor
	logger  *slog.Logger
	reg     *prometheus.Registry
	closers []func() error
}

type rootState struct {
	opts options
	app  *app
}

func openApp(ctx context.Context, opts options, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.offline {
		cfg.RemoteDriver = string(core.RemoteNone)
	}
	logger := observability.NewSlogLogger(stderr, cfg.LogLevel)
	reg := prometheus.NewRegistry()
	prom, err := observability.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	metrics := observability.Multi{prom}
	if opts.events {
		metrics = append(metrics, observability.NewJSONEventLog(stderr))
	}
	a := &app{cfg: cfg, logger: logger, reg: reg}

	local, err := core.OpenLocal(cfg, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.closers = append(a.closers, local.Close)

	q := queue.New(local.Queue, queue.WithLogger(logger), queue.WithMetrics(metrics))
	if err := q.Load(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("load offline queue: %w", err), a.close())
	}

	gw, closeGateway, err := core.OpenGateway(ctx, cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open remote: %w", err), a.close())
	}
	a.closers = append(a.closers, closeGateway)

	a.monitor = core.NewMonitor(gw, cfg.ProbeInterval, logger)
	if probe, ok := a.monitor.(*syncer.ProbeMonitor); ok {
		probe.Check(ctx)
	}

	photos, err := core.OpenPhotos(ctx, cfg)
	if err != nil {
		return nil, errors.Join(err, a.close())
	}

	coordinator := syncer.New(q, gw, a.monitor, syncer.WithLogger(logger), syncer.WithMetrics(metrics))
	a.svc = core.NewService(local.Store,
		core.WithLogger(logger),
		core.WithMetrics(metrics),
		core.WithCoordinator(coordinator),
		core.WithPhotos(photos),
		core.WithOpener(messaging.WriterOpener{W: stdout}),
		core.WithAcademy(cfg.AcademyName, cfg.Currency),
	)
	logger.Debug("academy opened", "storage", cfg.StorageDriver, "remote", cfg.RemoteDriver, "pending", a.svc.PendingSync())
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// finish dumps metrics when asked and closes the app, if one was opened.
func (s *rootState) finish(stderr io.Writer) error {
	if s.app == nil {
		return nil
	}
	var errs []error
	if s.opts.metrics {
		errs = append(errs, s.app.writeMetrics(stderr))
	}
	errs = append(errs, s.app.close())
	s.app = nil
	return errors.Join(errs...)
}
