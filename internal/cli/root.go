package cli

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mindmate/cognition/internal/config"
	"github.com/mindmate/cognition/internal/dashcache"
	"github.com/mindmate/cognition/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mindmate",
	Short: "Cognitive analytics for memory-care check-ins",
	Long: "mindmate scores patient conversation sessions for memory capability, maps MRI volumetrics to " +
		"brain-region health, and flags patients at risk of cognitive decline.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mindmate/config.{toml,yaml})")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(mriCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(riskCmd)
	rootCmd.AddCommand(declineCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDB opens the configured database, falling back to the default path.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// openCache builds the configured dashboard cache. The returned close
// function releases the redis client, if any.
func openCache(cfg config.Config) (dashcache.Cache, func(), error) {
	opts := []dashcache.Option{dashcache.WithTTL(cfg.Cache.TTL)}
	closeFn := func() {}

	if cfg.Cache.Backend == dashcache.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		opts = append(opts, dashcache.WithRedisClient(client), dashcache.WithKeyPrefix(cfg.Cache.Redis.KeyPrefix))
		closeFn = func() {
			if err := client.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "close redis: %v\n", err)
			}
		}
	}

	c, err := dashcache.New(cfg.Cache.Backend, opts...)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("create cache: %w", err)
	}
	return c, closeFn, nil
}

// sharedCache returns the cache only when it outlives this process. An
// in-process cache would be discarded on exit, so one-shot commands skip it.
func sharedCache(cfg config.Config) (dashcache.Cache, func(), error) {
	if cfg.Cache.Backend != dashcache.BackendRedis {
		return nil, func() {}, nil
	}
	return openCache(cfg)
}
