package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"warptrace/metrics"
)

// SQLite is the primary metadata store. WAL mode allows one writer alongside
// concurrent readers, so writes go through a single-connection pool while
// reads fan out over a larger read-only pool.
type SQLite struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	Logger  *zap.SugaredLogger

	// Previous pool counter values so the exported Prometheus counters
	// advance by delta instead of re-adding cumulative totals each sample.
	prevWriteWaitCount int64
	prevReadWaitCount  int64
}

// NewSQLite opens the database at dbPath, configures both connection pools
// and brings the schema up to date. Use ":memory:" for an in-process
// database shared between the two pools.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dsn := dbPath
	if dbPath == ":memory:" {
		// Both pools must see the same in-memory database.
		dsn = "file::memory:?cache=shared"
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for writing: %w", err)
	}
	// SQLite allows a single writer; more write connections would only queue
	// behind the busy timeout.
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	writeDB.SetConnMaxIdleTime(10 * time.Minute)
	if err := configurePool(writeDB, logger, dbPath, "write"); err != nil {
		writeDB.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open database for reading: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	readDB.SetConnMaxIdleTime(10 * time.Minute)
	if err := configurePool(readDB, logger, dbPath, "read"); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}
	if _, err := readDB.Exec("PRAGMA query_only=ON"); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("failed to mark read pool query-only: %w", err)
	}

	s := &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}

	if err := s.createTables(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infow("SQLite storage ready", "path", dbPath)
	return s, nil
}

// configurePool applies the pragmas every pool needs: WAL journaling,
// enforced foreign keys and a busy timeout so writer contention surfaces as
// a short wait instead of an immediate SQLITE_BUSY.
func configurePool(db *sql.DB, logger *zap.SugaredLogger, dbPath, pool string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode on %s pool: %w", pool, err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys on %s pool: %w", pool, err)
	}
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("failed to verify foreign keys on %s pool: %w", pool, err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign key enforcement not active on %s pool", pool)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout on %s pool: %w", pool, err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database on %s pool: %w", pool, err)
	}

	// In-memory databases report journal_mode=memory, which is expected.
	if dbPath != ":memory:" {
		var mode string
		if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			return fmt.Errorf("failed to verify journal mode on %s pool: %w", pool, err)
		}
		if !strings.EqualFold(mode, "wal") {
			logger.Warnf("journal_mode is %q on %s pool, expected wal", mode, pool)
		}
	}

	return nil
}

// createTables installs the base schema and then applies any registered
// migrations on top of it.
func (s *SQLite) createTables() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		status TEXT NOT NULL DEFAULT 'uploaded',
		progress INTEGER NOT NULL DEFAULT 0,
		raw_content TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_created_at ON uploads(created_at);

	CREATE TABLE IF NOT EXISTS log_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		ts TIMESTAMP,
		src_ip TEXT,
		user TEXT,
		url TEXT,
		action TEXT,
		status INTEGER,
		bytes INTEGER,
		user_agent TEXT,
		raw TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_log_events_upload_ts ON log_events(upload_id, ts);
	CREATE INDEX IF NOT EXISTS idx_log_events_upload_src_ip ON log_events(upload_id, src_ip);

	CREATE TABLE IF NOT EXISTS anomalies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upload_id TEXT NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
		event_id INTEGER REFERENCES log_events(id) ON DELETE SET NULL,
		kind TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_anomalies_upload ON anomalies(upload_id);
	`

	if _, err := s.WriteDB.Exec(schema); err != nil {
		return err
	}

	runner := NewMigrationRunner(s, s.Logger)
	RegisterSQLiteMigrations(runner)
	return runner.RunMigrations()
}

// WithTransaction runs fn inside a write transaction, rolling back when fn
// returns an error or panics.
func (s *SQLite) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := s.WriteDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (after: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck verifies both pools can reach the database.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	if err := s.WriteDB.PingContext(ctx); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	if err := s.ReadDB.PingContext(ctx); err != nil {
		return fmt.Errorf("read pool: %w", err)
	}
	return nil
}

// Close shuts down both connection pools and returns the first error seen.
func (s *SQLite) Close() error {
	var firstErr error
	if err := s.WriteDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.ReadDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PoolStats is a point-in-time snapshot of one connection pool.
type PoolStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	WaitCount       int64
	WaitDuration    time.Duration
}

// ConnectionPoolStats pairs the write and read pool snapshots.
type ConnectionPoolStats struct {
	Write PoolStats
	Read  PoolStats
}

// GetConnectionPoolStats snapshots both pools.
func (s *SQLite) GetConnectionPoolStats() ConnectionPoolStats {
	return ConnectionPoolStats{
		Write: poolStats(s.WriteDB.Stats()),
		Read:  poolStats(s.ReadDB.Stats()),
	}
}

func poolStats(st sql.DBStats) PoolStats {
	return PoolStats{
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
		WaitCount:       st.WaitCount,
		WaitDuration:    st.WaitDuration,
	}
}

// StartMetricsCollection exports pool statistics to Prometheus every
// interval until ctx is cancelled.
func (s *SQLite) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Logger.Debug("database pool metrics collection stopped")
				return
			case <-ticker.C:
				s.updatePoolMetrics()
			}
		}
	}()
}

func (s *SQLite) updatePoolMetrics() {
	s.exportPoolMetrics("write", s.WriteDB.Stats(), &s.prevWriteWaitCount)
	s.exportPoolMetrics("read", s.ReadDB.Stats(), &s.prevReadWaitCount)
}

func (s *SQLite) exportPoolMetrics(pool string, st sql.DBStats, prevWaitCount *int64) {
	metrics.DBPoolOpenConnections.WithLabelValues(pool).Set(float64(st.OpenConnections))
	metrics.DBPoolInUse.WithLabelValues(pool).Set(float64(st.InUse))
	metrics.DBPoolIdle.WithLabelValues(pool).Set(float64(st.Idle))
	metrics.DBPoolWaitSeconds.WithLabelValues(pool).Set(st.WaitDuration.Seconds())

	// sql.DBStats reports cumulative totals; counters take the delta.
	if d := st.WaitCount - *prevWaitCount; d > 0 {
		metrics.DBPoolWaitCount.WithLabelValues(pool).Add(float64(d))
		*prevWaitCount = st.WaitCount
	}
}

var windowsReservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// validateDatabasePath rejects paths that would escape the data directory.
// Relative paths are resolved against the working directory; absolute paths
// are only accepted under the system temp directory, which keeps tests
// working without opening up the rest of the filesystem.
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if dbPath == ":memory:" {
		return nil
	}
	if len(dbPath) > 512 {
		return fmt.Errorf("database path too long (%d characters)", len(dbPath))
	}
	if strings.ContainsRune(dbPath, 0) {
		return fmt.Errorf("database path contains null byte")
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("database path must not contain \"..\"")
	}

	base := filepath.Base(dbPath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	for _, reserved := range windowsReservedNames {
		if strings.EqualFold(base, reserved) {
			return fmt.Errorf("database path uses reserved name %q", base)
		}
	}

	if filepath.IsAbs(dbPath) {
		tmp := os.TempDir()
		rel, err := filepath.Rel(tmp, dbPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("absolute database path must be under %s", tmp)
		}
		return nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	rel, err := filepath.Rel(wd, filepath.Join(wd, dbPath))
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("database path escapes the working directory")
	}
	return nil
}
