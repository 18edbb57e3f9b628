package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Migration is one versioned schema change. Up and Down run inside a
// transaction managed by the runner.
type Migration struct {
	Version     string
	Name        string
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
	Checksum    string
}

// MigrationRecord is one row of the schema_migrations bookkeeping table.
type MigrationRecord struct {
	ID         int64
	Version    string
	Name       string
	Checksum   string
	AppliedAt  time.Time
	DurationMS int64
}

// MigrationRunner applies registered migrations in version order and records
// each one in schema_migrations. Rollbacks soft-delete the record so the
// history stays inspectable.
type MigrationRunner struct {
	db         *SQLite
	logger     *zap.SugaredLogger
	migrations []*Migration
}

// NewMigrationRunner creates a runner with no registered migrations.
func NewMigrationRunner(db *SQLite, logger *zap.SugaredLogger) *MigrationRunner {
	return &MigrationRunner{db: db, logger: logger}
}

// Register adds a migration and stamps it with a checksum derived from its
// version and name, so drift between the code and the applied history is
// detectable later.
func (r *MigrationRunner) Register(m *Migration) {
	if m.Checksum == "" {
		sum := sha256.Sum256([]byte(m.Version + ":" + m.Name))
		m.Checksum = hex.EncodeToString(sum[:8])
	}
	r.migrations = append(r.migrations, m)
}

func (r *MigrationRunner) ensureMigrationTable() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		rolled_back_at TIMESTAMP,
		rollback_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_schema_migrations_version ON schema_migrations(version);
	`
	_, err := r.db.WriteDB.Exec(schema)
	return err
}

// GetAppliedMigrations returns the active (not rolled back) migration
// records, oldest version first.
func (r *MigrationRunner) GetAppliedMigrations() ([]*MigrationRecord, error) {
	rows, err := r.db.ReadDB.Query(`
		SELECT id, version, name, checksum, applied_at, duration_ms
		FROM schema_migrations
		WHERE rolled_back_at IS NULL
		ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var records []*MigrationRecord
	for rows.Next() {
		rec := &MigrationRecord{}
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Name, &rec.Checksum,
			&rec.AppliedAt, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPendingMigrations returns registered migrations that have not been
// applied yet, sorted by version.
func (r *MigrationRunner) GetPendingMigrations() ([]*Migration, error) {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	var pending []*Migration
	for _, m := range r.migrations {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return compareVersions(pending[i].Version, pending[j].Version) < 0
	})
	return pending, nil
}

// RunMigrations applies all pending migrations in version order.
func (r *MigrationRunner) RunMigrations() error {
	if err := r.ensureMigrationTable(); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	pending, err := r.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to determine pending migrations: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	r.logger.Infof("Applying %d pending schema migrations", len(pending))
	for _, m := range pending {
		if err := r.runMigration(m); err != nil {
			return fmt.Errorf("migration %s (%s) failed: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (r *MigrationRunner) runMigration(m *Migration) (err error) {
	start := time.Now()

	tx, err := r.db.WriteDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("migration panicked: %v", p)
		}
	}()

	if err := m.Up(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	// Re-applying a rolled-back migration revives its record instead of
	// colliding with the UNIQUE version constraint.
	if _, err := tx.Exec(`
		INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			name = excluded.name,
			checksum = excluded.checksum,
			applied_at = excluded.applied_at,
			duration_ms = excluded.duration_ms,
			rolled_back_at = NULL,
			rollback_reason = NULL`,
		m.Version, m.Name, m.Checksum, time.Now().UTC(), time.Since(start).Milliseconds()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	r.logger.Infow("Schema migration applied",
		"version", m.Version, "name", m.Name, "duration", time.Since(start))
	return nil
}

// RollbackMigration reverses one applied migration and marks its record as
// rolled back instead of deleting it.
func (r *MigrationRunner) RollbackMigration(version, reason string) error {
	var m *Migration
	for _, c := range r.migrations {
		if c.Version == version {
			m = c
			break
		}
	}
	if m == nil {
		return fmt.Errorf("migration %s is not registered", version)
	}
	if m.Down == nil {
		return fmt.Errorf("migration %s has no rollback", version)
	}

	tx, err := r.db.WriteDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := m.Down(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rollback of %s failed: %w", version, err)
	}

	res, err := tx.Exec(`
		UPDATE schema_migrations
		SET rolled_back_at = ?, rollback_reason = ?
		WHERE version = ? AND rolled_back_at IS NULL`,
		time.Now().UTC(), reason, version)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record rollback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s is not applied", version)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	r.logger.Infow("Schema migration rolled back", "version", version, "reason", reason)
	return nil
}

// VerifyIntegrity compares the checksums of applied migrations against the
// registered code and fails on any mismatch.
func (r *MigrationRunner) VerifyIntegrity() error {
	applied, err := r.GetAppliedMigrations()
	if err != nil {
		return err
	}

	registered := make(map[string]*Migration, len(r.migrations))
	for _, m := range r.migrations {
		registered[m.Version] = m
	}

	for _, rec := range applied {
		m, ok := registered[rec.Version]
		if !ok {
			r.logger.Warnf("Applied migration %s is no longer registered", rec.Version)
			continue
		}
		if m.Checksum != rec.Checksum {
			return fmt.Errorf("migration %s checksum mismatch: registered %s, applied %s",
				rec.Version, m.Checksum, rec.Checksum)
		}
	}
	return nil
}

// compareVersions orders dotted numeric versions, so 1.2.0 sorts before
// 1.10.0.
func compareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			fmt.Sscanf(pa[i], "%d", &na)
		}
		if i < len(pb) {
			fmt.Sscanf(pb[i], "%d", &nb)
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// columnExists reports whether table has a column with the given name.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	if err := validateSQLIdentifier(table); err != nil {
		return false, err
	}
	var n int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?",
		table, column).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// addColumnIfNotExists adds a column when it is missing. SQLite has no
// ADD COLUMN IF NOT EXISTS, so existence is checked first.
func addColumnIfNotExists(tx *sql.Tx, table, column, definition string) error {
	if err := validateSQLIdentifier(table); err != nil {
		return err
	}
	if err := validateSQLIdentifier(column); err != nil {
		return err
	}
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// createIndexIfNotExists creates an index over the given columns.
func createIndexIfNotExists(tx *sql.Tx, table, index string, columns ...string) error {
	if err := validateSQLIdentifier(table); err != nil {
		return err
	}
	if err := validateSQLIdentifier(index); err != nil {
		return err
	}
	for _, c := range columns {
		if err := validateSQLIdentifier(c); err != nil {
			return err
		}
	}
	_, err := tx.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
		index, table, strings.Join(columns, ", ")))
	return err
}

// validateSQLIdentifier rejects names that could smuggle SQL into a DDL
// statement assembled with Sprintf.
func validateSQLIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty SQL identifier")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("invalid SQL identifier %q", name)
		}
	}
	return nil
}
