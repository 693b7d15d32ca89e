package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/fairline/loft/internal/config"
	"github.com/fairline/loft/internal/engine"
	"github.com/fairline/loft/internal/feeder"
	"github.com/fairline/loft/internal/gateway"
	"github.com/fairline/loft/internal/instance"
	"github.com/fairline/loft/internal/piping"
	"github.com/fairline/loft/internal/registry"
	"github.com/fairline/loft/pkg/datum"
)

// retentionSweepEvery is the cadence of history pruning between the
// startup sweep and shutdown.
const retentionSweepEvery = time.Hour

func main() {
	// 1. Load loft.yml
	configPath := os.Getenv(instance.EnvConfigPath)
	if configPath == "" {
		configPath = "loft.yml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", configPath, err)
		os.Exit(1)
	}

	// 2. Resolve instance identity; the environment wins over the file
	instanceName := cfg.Instance.Name
	if env := os.Getenv(instance.EnvInstanceName); env != "" {
		instanceName = env
	}
	if err := instance.ValidateName(instanceName); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid instance name: %v\n", err)
		os.Exit(1)
	}

	// 3. Parse the Redis endpoint
	redisURL := instance.ResolveRedisURL(cfg.Redis.URL)
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid Redis URL %q: %v\n", redisURL, err)
		os.Exit(1)
	}

	// 4. Create the store client and verify connectivity
	client, err := datum.NewClient(redisOpts, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create store client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible at %s: %v\n", redisURL, err)
		os.Exit(1)
	}

	// 5. Structured logger for everything past bootstrap
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("instance", instanceName))

	// 6. Gateway fronts the store for subscribers and the inbox feeder
	gw := gateway.New(client, gateway.Config{Logger: logger})

	// 7. Engine, with the dependency graph rebuilt from the store
	eng := engine.New(client, registry.New(), engine.Config{
		Workers:        cfg.Engine.Workers,
		ReconcileEvery: cfg.Engine.ReconcileInterval(),
		Notifier:       gw,
		Logger:         logger,
	})
	if err := eng.LoadGraph(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load dependency graph: %v\n", err)
		os.Exit(1)
	}

	// 8. Seed configured parameters; existing ones are left alone
	seeds := make([]*datum.Parameter, 0, len(cfg.Parameters))
	for i := range cfg.Parameters {
		p, err := cfg.Parameters[i].ToParameter()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid parameter seed: %v\n", err)
			os.Exit(1)
		}
		seeds = append(seeds, p)
	}
	created, err := eng.SeedParameters(ctx, seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to seed parameters: %v\n", err)
		os.Exit(1)
	}
	if created > 0 {
		logger.Info("parameters seeded", zap.Int("created", created))
	}

	// 9. Register configured derivation packs
	for _, pack := range cfg.Packs {
		if pack != "piping" {
			fmt.Fprintf(os.Stderr, "Error: Unknown pack %q\n", pack)
			os.Exit(1)
		}
		if err := piping.Register(ctx, eng); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to register piping pack: %v\n", err)
			os.Exit(1)
		}
		logger.Info("derivation pack registered", zap.String("pack", pack))
	}

	fmt.Printf("loftd starting for instance '%s' (%d seed parameters, %d packs)\n",
		instanceName, len(seeds), len(cfg.Packs))

	// 10. Supervise the engine, the inbox feeder and history retention
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return eng.Run(groupCtx)
	})

	if cfg.Inbox != nil {
		f, err := feeder.New(gw, feeder.Config{
			Dir:      cfg.Inbox.Dir,
			Include:  cfg.Inbox.Include,
			Ignore:   cfg.Inbox.Ignore,
			Debounce: cfg.Inbox.DebounceWindow(),
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to create inbox feeder: %v\n", err)
			os.Exit(1)
		}
		group.Go(func() error {
			return f.Run(groupCtx)
		})
	}

	if window := cfg.Engine.RetentionWindow(); window > 0 {
		group.Go(func() error {
			return runRetention(groupCtx, client, logger, window)
		})
	}

	// 11. Wait for a shutdown signal or a task failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		}
	case <-groupCtx.Done():
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			gw.Close()
			os.Exit(1)
		}
	}

	// 12. Drain gateway subscribers
	gw.Close()
	fmt.Println("loftd stopped")
}

func newLogger() (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return logCfg.Build()
}

// runRetention prunes revision history older than the retention window,
// once at startup and then on a fixed cadence.
func runRetention(ctx context.Context, client *datum.Client, logger *zap.Logger, window time.Duration) error {
	prune := func() {
		cutoff := time.Now().Add(-window).UnixMilli()
		pruned, err := client.PruneHistory(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("history pruning failed", zap.Error(err))
			}
			return
		}
		if pruned > 0 {
			logger.Info("history pruned",
				zap.Int("revisions", pruned),
				zap.Duration("window", window))
		}
	}

	prune()

	ticker := time.NewTicker(retentionSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
