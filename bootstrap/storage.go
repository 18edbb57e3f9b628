package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"warptrace/config"
	"warptrace/core"
	"warptrace/storage"
)

// clickhouseRetryDelays spaces the connection attempts. The archive cluster
// usually starts alongside warptrace under compose and needs a few seconds
// before it accepts connections.
var clickhouseRetryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// InitSQLite opens the primary database and brings the schema up to date.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	path := cfg.GetSQLitePath()

	db, err := storage.NewSQLite(path, sugar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: cannot open the WarpTrace database\n%s\n", ClassifySQLiteError(err, path))
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}

	runner := storage.NewMigrationRunner(db, sugar)
	storage.RegisterSQLiteMigrations(runner)
	if err := runner.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := runner.VerifyIntegrity(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration history does not match this build: %w", err)
	}

	return db, nil
}

// InitClickHouse connects to the archive cluster, retrying while it starts
// up. The last error decides the remediation advice printed before giving up.
func InitClickHouse(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.ClickHouse, error) {
	attempts := len(clickhouseRetryDelays) + 1

	var (
		ch      *storage.ClickHouse
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		ch, lastErr = storage.NewClickHouse(cfg, sugar)
		if lastErr == nil {
			return ch, nil
		}

		if attempt < attempts {
			delay := clickhouseRetryDelays[attempt-1]
			sugar.Warnw("ClickHouse connection attempt failed, retrying",
				"attempt", attempt,
				"attempts", attempts,
				"delay", delay,
				"error", lastErr)
			time.Sleep(delay)
		}
	}

	fmt.Fprintf(os.Stderr, "FATAL: cannot reach the ClickHouse archive at %s\n%s\n",
		cfg.ClickHouse.Addr, ClassifyConnectionError(lastErr, cfg.ClickHouse.Addr))
	return nil, fmt.Errorf("failed to connect to ClickHouse after %d attempts: %w", attempts, lastErr)
}

// InitRedis connects the analysis cache and verifies the server answers.
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*core.RedisCache, error) {
	cache := core.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, sugar)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx); err != nil {
		_ = cache.Close()
		fmt.Fprintf(os.Stderr, "FATAL: cannot reach Redis at %s\n%s\n",
			cfg.Redis.Addr, ClassifyConnectionError(err, cfg.Redis.Addr))
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sugar.Infow("Redis cache ready", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	return cache, nil
}
