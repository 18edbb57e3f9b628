package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"warptrace/config"
)

// ClickHouse wraps the native-protocol connection used by the long-term
// event archive.
type ClickHouse struct {
	Conn   driver.Conn
	Config *config.Config
	Logger *zap.SugaredLogger
}

var validDatabaseName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// NewClickHouse connects to the archive cluster, verifies it is reachable
// and makes sure the archive database and table exist.
func NewClickHouse(cfg *config.Config, logger *zap.SugaredLogger) (*ClickHouse, error) {
	opts := &clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 10 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:     cfg.ClickHouse.MaxPoolSize,
		MaxIdleConns:     cfg.ClickHouse.MaxPoolSize / 2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			d := net.Dialer{KeepAlive: 30 * time.Second}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
	if cfg.ClickHouse.TLS {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS13}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	ch := &ClickHouse{Conn: conn, Config: cfg, Logger: logger}
	if err := ch.ensureDatabase(ctx); err != nil {
		return nil, err
	}
	if err := ch.CreateTablesIfNotExist(ctx); err != nil {
		return nil, err
	}

	logger.Infow("ClickHouse archive ready",
		"addr", cfg.ClickHouse.Addr, "database", cfg.ClickHouse.Database)
	return ch, nil
}

func (ch *ClickHouse) ensureDatabase(ctx context.Context) error {
	name := ch.Config.ClickHouse.Database
	if !validDatabaseName.MatchString(name) {
		return fmt.Errorf("invalid clickhouse database name %q", name)
	}
	if err := ch.Conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)); err != nil {
		return fmt.Errorf("failed to ensure database: %w", err)
	}
	return nil
}

// CreateTablesIfNotExist creates the archive table. Rows are partitioned by
// event month and expire after the retention window. Events without a
// parsed timestamp never reach this table.
func (ch *ClickHouse) CreateTablesIfNotExist(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS archived_events (
		event_id Int64,
		upload_id String,
		ts DateTime64(3, 'UTC'),
		src_ip LowCardinality(String),
		user String,
		url String,
		action LowCardinality(String),
		status Nullable(Int32),
		bytes Nullable(Int64),
		user_agent String,
		raw String,
		archived_at DateTime64(3, 'UTC') DEFAULT now64(3),
		INDEX idx_src_ip src_ip TYPE bloom_filter GRANULARITY 4,
		INDEX idx_status status TYPE set(100) GRANULARITY 4
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (upload_id, ts, event_id)
	TTL toDateTime(ts) + INTERVAL 180 DAY
	`
	if err := ch.Conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create archive table: %w", err)
	}
	return nil
}

// ArchivedEventCount reports how many events one upload has in the archive.
func (ch *ClickHouse) ArchivedEventCount(ctx context.Context, uploadID string) (uint64, error) {
	var n uint64
	row := ch.Conn.QueryRow(ctx,
		"SELECT count() FROM archived_events WHERE upload_id = ?", uploadID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count archived events: %w", err)
	}
	return n, nil
}

// HealthCheck verifies the archive connection is alive.
func (ch *ClickHouse) HealthCheck(ctx context.Context) error {
	return ch.Conn.Ping(ctx)
}

// Close shuts the connection down.
func (ch *ClickHouse) Close() error {
	return ch.Conn.Close()
}
