package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lazypower/seedbed/internal/config"
	"github.com/lazypower/seedbed/internal/feed"
	"github.com/lazypower/seedbed/internal/garden"
	"github.com/lazypower/seedbed/internal/seen"
	"github.com/lazypower/seedbed/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "seedbed",
	Short: "Lifecycle-driven content garden",
	Long: `Seedbed grows posts through a lifecycle: planted, sprouting, blooming,
wilting and composted. Engagement keeps content alive; neglect and toxic
comments compost it.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to seedbed.toml (default: search ./, ~/.seedbed, /etc/seedbed)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lifecycleCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(feedCmd)
}

// runtime is what every command needs: resolved config, a logger and the store.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	db     *store.DB
}

func (rt *runtime) Close() {
	rt.db.Close()
	_ = rt.logger.Sync()
}

// openRuntime loads config, builds the logger and opens the database.
func openRuntime() (*runtime, error) {
	cfg, used, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if used != "" {
		logger.Debug("loaded config", zap.String("path", used))
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, db: db}, nil
}

// newLogger builds a zap logger at the configured level, writing to stderr.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// feedBuilder wires the feed builder, with the Redis recently-seen cache when
// enabled. The returned cleanup closes the Redis client.
func (rt *runtime) feedBuilder(ctx context.Context) (*feed.Builder, func(), error) {
	if !rt.cfg.Redis.Enabled {
		return feed.New(rt.db, rt.logger), func() {}, nil
	}

	client, err := seen.Dial(rt.cfg.Redis.Address)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	cache := seen.New(client, garden.DiscoveryWindow)
	fmt.Fprintf(os.Stderr, "  recents: redis (%s)\n", rt.cfg.Redis.Address)
	return feed.New(rt.db, rt.logger, feed.WithRecents(cache)), client.Close, nil
}
