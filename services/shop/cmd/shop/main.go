package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"autoservice/internal/ratelimit"
	"autoservice/internal/util"
	"autoservice/pkg/lock"
	"autoservice/services/shop/internal/app"
	"autoservice/services/shop/internal/config"
	"autoservice/services/shop/internal/server"
)

const programName = "shop"

var globalFlags = struct {
	configFile string
	debug      bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Auto service task assignment API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVar(&globalFlags.configFile, "config", "", "path to config file (default "+config.ConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the schema and seed brands, then exit",
			RunE:  runMigrate,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error(), "component", programName)
		os.Exit(1)
	}
}

// setup loads config and installs the process logger.
func setup() (config.FileConfig, *slog.Logger, error) {
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	logger := util.InitLogger(level)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		logger.Info(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		logger.Warn("set GOMAXPROCS", "err", err)
	}
	return cfg, logger, nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	core, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		SeedBrands:  cfg.SeedBrands,
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer core.Close()
	logger.Info("schema up to date", "database", redactDSN(cfg.DatabaseURL), "seed_brands", len(cfg.SeedBrands))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	core, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Locker:      locker,
		SeedBrands:  cfg.SeedBrands,
		Registerer:  reg,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer core.Close()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	srvCfg := server.Config{App: core, TrustedProxies: trusted}
	if cfg.Metrics() {
		srvCfg.Gatherer = reg
	}
	if cfg.WriteRateLimitPerMinute > 0 {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		limiter, err := ratelimit.NewFixedWindowLimiter(client, ratelimit.Config{
			Prefix: "autoservice:ratelimit:write",
			Limit:  cfg.WriteRateLimitPerMinute,
			Window: time.Minute,
		})
		if err != nil {
			return fmt.Errorf("init write limiter: %w", err)
		}
		srvCfg.Limiter = limiter
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("shop server listening", "addr", addr, "database", redactDSN(cfg.DatabaseURL), "lock_backend", cfg.LockBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLocker(cfg config.FileConfig) (lock.Locker, func(), error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return lock.NewMemoryLocker(), func() {}, nil
	}
	locker, err := lock.NewRedisLocker(lock.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		TTL:      cfg.LockTTL(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init redis locker: %w", err)
	}
	return locker, func() { _ = locker.Close() }, nil
}

// redactDSN drops credentials from URL-style DSNs before logging.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	return scheme + "://" + rest
}
