package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/cache"
	"github.com/autom8ter/pathfinder/config"
	"github.com/autom8ter/pathfinder/logging"
	"github.com/autom8ter/pathfinder/machine"
	"github.com/autom8ter/pathfinder/metrics"
	"github.com/autom8ter/pathfinder/pubsub"
	"github.com/autom8ter/pathfinder/server"
	"github.com/autom8ter/pathfinder/storage"
	"github.com/autom8ter/pathfinder/storage/badger"
	"github.com/autom8ter/pathfinder/storage/memory"
	"github.com/autom8ter/pathfinder/storage/redis"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the route graph over gRPC and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config file (defaults are used when empty)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(ctx context.Context, cfg config.Storage, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case "badger":
		return badger.Open(badger.Options{
			Path:       cfg.Path,
			SyncWrites: cfg.SyncWrites,
			Logger:     logger,
		})
	case "redis":
		return redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			Logger:   logger,
		})
	case "memory":
		return memory.New(), nil
	}
	return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, zap.String("service", "pathfinder"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := openStore(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	events := pubsub.New(pubsub.WithOnDrop(m.EventDropped))
	defer events.Close()
	opts := []pathfinder.Opt{
		pathfinder.WithLogger(logger),
		pathfinder.WithPublisher(events),
		pathfinder.WithObserver(m),
	}
	var routes *cache.RouteCache
	if cfg.Cache.Enabled {
		routes, err = cache.New(ctx, cache.Options{LifeWindow: cfg.Cache.LifeWindow, Shards: cfg.Cache.Shards})
		if err != nil {
			return err
		}
		defer routes.Close()
		opts = append(opts, pathfinder.WithRouteCache(routes))
	}
	admin, err := cfg.AdminIdentity()
	if err != nil {
		return err
	}
	pf, err := pathfinder.New(ctx, store, admin, opts...)
	if err != nil {
		return err
	}
	svc := server.NewService(pf,
		server.WithEvents(events),
		server.WithLogger(logger.Named("server")),
		server.WithVerifier(auth.NewVerifier(auth.WithMaxSkew(cfg.Auth.MaxClockSkew))),
	)

	var mach *machine.Machine
	mach = machine.New(ctx,
		machine.WithMiddlewares(m.Middleware(), machine.PanicRecover()),
		machine.WithErrHandler(func(routine machine.Routine, err error) {
			logger.Error("routine failed, shutting down", zap.String("routine", routine.Name()), zap.Error(err))
			mach.Cancel()
		}),
	)

	grpcServer := server.NewGRPCServer(svc,
		grpc.ChainUnaryInterceptor(m.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(m.StreamServerInterceptor()),
	)
	mach.Go("grpc", func(routine machine.Routine) error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return errors.Wrap(err, "grpc listen")
		}
		go func() {
			<-routine.Context().Done()
			grpcServer.GracefulStop()
		}()
		logger.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
		return grpcServer.Serve(lis)
	})

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.NewHTTPHandler(svc, server.HTTPOptions{Logger: logger.Named("http"), Metrics: m}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	mach.Go("http", func(routine machine.Routine) error {
		go func() {
			<-routine.Context().Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		}()
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http serve")
		}
		return nil
	})

	if cfg.StatsInterval > 0 {
		mach.Cron("stats", cfg.StatsInterval, func(routine machine.Routine) (bool, error) {
			running := mach.Stats()
			fields := []zap.Field{
				zap.Int("routines", running.Count),
				zap.Strings("running", running.Names()),
				zap.Int("routines_total", mach.Total()),
				zap.Int("subscribers", events.Subscribers()),
			}
			if edges, err := pf.EdgeCount(routine.Context()); err == nil {
				fields = append(fields, zap.Uint64("edges", edges))
			}
			if routes != nil {
				stats := routes.Stats()
				fields = append(fields,
					zap.Int("cached_routes", routes.Len()),
					zap.Int64("cache_hits", stats.Hits),
					zap.Int64("cache_misses", stats.Misses),
				)
			}
			logger.Info("stats", fields...)
			return true, nil
		})
	}

	logger.Info("pathfinder serving", zap.Stringer("admin", pf.Admin()))
	err = mach.Wait()
	logger.Info("pathfinder stopped")
	return err
}
