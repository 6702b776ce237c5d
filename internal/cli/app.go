// Package cli wires forge from configuration for the command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/forge"
	"github.com/aretw0/forge/internal/config"
	"github.com/aretw0/forge/internal/logging"
	"github.com/aretw0/forge/pkg/adapters/badger"
	"github.com/aretw0/forge/pkg/adapters/memory"
	"github.com/aretw0/forge/pkg/adapters/nats"
	"github.com/aretw0/forge/pkg/adapters/redis"
	"github.com/aretw0/forge/pkg/adapters/sqlite"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/observability"
	"github.com/aretw0/forge/pkg/ports"
	"github.com/aretw0/forge/pkg/scanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is a configured forge instance plus the resources the CLI owns.
type App struct {
	Config   *config.Config
	Forge    *forge.Forge
	Logger   *slog.Logger
	Usage    ports.UsageRecorder
	Registry *prometheus.Registry
}

// Open builds an App from cfg.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, cfg.Log.Format)

	kv, usage, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	blockAt, err := scanner.ParseSeverity(cfg.Scanner.BlockAt)
	if err != nil {
		kv.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []forge.Option{
		forge.WithStore(kv),
		forge.WithLogger(logger),
		forge.WithMetrics(observability.NewMetrics(reg)),
		forge.WithScanner(scanner.New(scanner.WithBlockAt(blockAt))),
		forge.WithUsageSource(usage),
		forge.WithTokenLimit(cfg.Compose.TokenLimit),
		forge.WithLifecycleHooks(debugHooks(logger)),
	}
	if cfg.Events.Enabled {
		var natsOpts []nats.Option
		if cfg.Events.SubjectPrefix != "" {
			natsOpts = append(natsOpts, nats.WithSubjectPrefix(cfg.Events.SubjectPrefix))
		}
		opts = append(opts, forge.WithPublisher(nats.New(cfg.Events.NATSURL, natsOpts...)))
	}

	return &App{
		Config:   cfg,
		Forge:    forge.New(opts...),
		Logger:   logger,
		Usage:    usage,
		Registry: reg,
	}, nil
}

type usageLog interface {
	ports.UsageSource
	ports.UsageRecorder
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.KVStore, usageLog, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.NewStore(), memory.NewUsageLog(memory.WithMinSamples(cfg.Resolver.MinSamples)), nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.UsageLog(sqlite.WithMinSamples(cfg.Resolver.MinSamples)), nil
	case config.DriverBadger:
		bc := badger.DefaultConfig()
		bc.Path = cfg.Store.Path
		bc.Logger = logger
		st, err := badger.Open(bc)
		if err != nil {
			return nil, nil, err
		}
		return st, memory.NewUsageLog(memory.WithMinSamples(cfg.Resolver.MinSamples)), nil
	case config.DriverRedis:
		st := redis.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, redis.WithPrefix(cfg.Store.Redis.Prefix))
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, memory.NewUsageLog(memory.WithMinSamples(cfg.Resolver.MinSamples)), nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// ServeMetrics exposes the registry on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		a.Logger.Info("metrics.listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
}

// Close releases the store and publisher.
func (a *App) Close() error {
	return a.Forge.Close()
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMutation: func(ctx context.Context, e *domain.MutationEvent) {
			logger.DebugContext(ctx, "mutation", "type", e.Type, "slug", e.Component.Slug, "actor", e.Actor)
		},
	}
}

// Exit codes by error kind.
const (
	ExitOK               = 0
	ExitInternal         = 1
	ExitValidation       = 2
	ExitNotFound         = 3
	ExitConflict         = 4
	ExitInsufficientData = 5
	ExitUnavailable      = 6
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.ErrorKindNone:
		return ExitOK
	case domain.ErrorKindValidation:
		return ExitValidation
	case domain.ErrorKindNotFound:
		return ExitNotFound
	case domain.ErrorKindConflict:
		return ExitConflict
	case domain.ErrorKindInsufficientData:
		return ExitInsufficientData
	case domain.ErrorKindStoreUnavailable:
		return ExitUnavailable
	default:
		return ExitInternal
	}
}
