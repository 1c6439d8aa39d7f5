// Package bootstrap wires the console's runtime dependencies from config.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	appconfig "github.com/wolfman30/frontdesk-calendar/internal/config"
	"github.com/wolfman30/frontdesk-calendar/internal/frontdesk"
	"github.com/wolfman30/frontdesk-calendar/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
	"github.com/wolfman30/frontdesk-calendar/internal/snapshotcache"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available; snapshot cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSnapshotCache returns the Redis snapshot cache, or nil without Redis.
func BuildSnapshotCache(client *redis.Client, cfg *appconfig.Config) frontdesk.SnapshotCache {
	if client == nil {
		return nil
	}
	return snapshotcache.New(client, cfg.SnapshotCacheTTL)
}

// Runtime is everything the HTTP server needs.
type Runtime struct {
	Config   *appconfig.Config
	Zone     *clinictime.Zone
	Console  *frontdesk.Console
	Poller   *frontdesk.Poller
	Metrics  *metrics.ConsoleMetrics
	Registry *prometheus.Registry
	Redis    *redis.Client
}

// Close releases connections held by the runtime.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Redis == nil {
		return nil
	}
	return rt.Redis.Close()
}

// BuildRuntime loads the grid, the schedule API client, the optional cache
// and the console. backend overrides the schedule API client when non-nil.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, backend frontdesk.Backend, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	gridCfg, err := cfg.GridConfig()
	if err != nil {
		return nil, err
	}
	grid, err := timegrid.NewGrid(gridCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: grid: %w", err)
	}
	providers, err := cfg.ProviderList()
	if err != nil {
		return nil, err
	}
	zone, err := clinictime.Load(cfg.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: clinic timezone: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewConsoleMetrics(registry)

	if backend == nil {
		client, err := scheduleapi.New(scheduleapi.Config{
			BaseURL:     cfg.ScheduleAPIBaseURL,
			BearerToken: cfg.ScheduleAPIToken,
			Timeout:     cfg.ScheduleAPITimeout,
			Zone:        zone,
			Logger:      logger,
			Metrics:     m,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: schedule api: %w", err)
		}
		if client.TokenExpired() {
			logger.Warn("schedule api token is already expired; mutations will fail until it is replaced")
		}
		backend = client
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	console, err := frontdesk.New(frontdesk.Config{
		Grid:         grid,
		Zone:         zone,
		Providers:    providers,
		Backend:      backend,
		Cache:        BuildSnapshotCache(redisClient, cfg),
		Metrics:      m,
		Logger:       logger,
		Drag:         cfg.DragConfig(),
		SlotHeightPx: cfg.SlotHeightPx,
	})
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("bootstrap: console: %w", err)
	}
	poller, err := frontdesk.NewPoller(frontdesk.PollerConfig{Console: console, Interval: cfg.PollInterval})
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("bootstrap: poller: %w", err)
	}

	warmed := console.Warm(ctx)
	logger.Info("console ready",
		"timezone", zone.Name(),
		"providers", len(providers),
		"slots", grid.Len(),
		"snapshot_cache", redisClient != nil,
		"warmed", warmed,
		"week_start", console.WeekStart().String(),
	)
	return &Runtime{
		Config:   cfg,
		Zone:     zone,
		Console:  console,
		Poller:   poller,
		Metrics:  m,
		Registry: registry,
		Redis:    redisClient,
	}, nil
}
