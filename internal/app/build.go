package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ent0n29/iris/internal/config"
	"github.com/ent0n29/iris/internal/desktop"
	"github.com/ent0n29/iris/internal/engine"
	"github.com/ent0n29/iris/internal/httpapi"
	"github.com/ent0n29/iris/internal/logging"
	"github.com/ent0n29/iris/internal/memory"
	"github.com/ent0n29/iris/internal/observability"
	"github.com/ent0n29/iris/internal/session"
	"github.com/ent0n29/iris/internal/tools"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Engine    *engine.Engine
	Sessions  *session.Manager
	Store     memory.Store
	Metrics   *observability.Metrics
	Registry  *prometheus.Registry
	Transport TransportInfo

	// Cleanup disconnects the session and releases the history store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	log := logging.L("app")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsNamespace, registry)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	opener := desktop.SystemOpener{}
	apps := desktop.NewAppLauncher(opener, nil)
	if strings.TrimSpace(cfg.AppsFile) != "" {
		if err := apps.LoadAliases(cfg.AppsFile); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("load app aliases: %w", err)
		}
	}
	processes := desktop.NewProcessEnumerator()
	stats := desktop.HostStats{}

	registryTools := tools.NewRegistry()
	if err := tools.RegisterDesktop(registryTools, tools.Desktop{
		Files:     desktop.NewFiles(cfg.WorkspaceDir, opener),
		Apps:      apps,
		Processes: processes,
		Stats:     stats,
	}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}
	dispatcher := tools.NewDispatcher(registryTools, cfg.ToolTimeout, metrics)

	transport, err := resolveTransport(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	devices := resolveAudio(cfg)

	sessions := session.NewManager(0)
	eng, err := engine.New(engine.Config{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		Voice:             cfg.Voice,
		SystemInstruction: cfg.SystemInstruction,
		CaptureFrameSize:  devices.frameSize,
		PlaybackRate:      cfg.PlaybackRate,
		ScheduleEpsilon:   cfg.ScheduleEpsilon,
		WatcherInterval:   cfg.WatcherInterval,
		HistoryLimit:      cfg.HistoryContextLimit,
		RedactHistory:     cfg.RedactHistory,
	}, engine.Deps{
		Dialer:    transport.dialer,
		Input:     devices.input,
		Output:    devices.output,
		History:   store,
		Processes: processes,
		Stats:     stats,
		Tools:     dispatcher,
		Metrics:   metrics,
		Sessions:  sessions,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	api := httpapi.New(cfg, httpapi.Deps{
		Engine:    eng,
		Sessions:  sessions,
		History:   store,
		Stats:     stats,
		Processes: processes,
		Metrics:   metrics,
		Gatherer:  registry,
	})

	log.Info().
		Str("transport", transport.info.Name).
		Str("model", cfg.Model).
		Str("playback", devices.detail).
		Int("tools", len(dispatcher.Declarations())).
		Msg("iris assembled")

	cleanup := func() error {
		var errs []string
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(shutdownCtx); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Engine:    eng,
		Sessions:  sessions,
		Store:     store,
		Metrics:   metrics,
		Registry:  registry,
		Transport: transport.info,
		Cleanup:   cleanup,
	}, nil
}
