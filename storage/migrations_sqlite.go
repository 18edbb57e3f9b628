package storage

import "database/sql"

// RegisterSQLiteMigrations registers every schema change that postdates the
// base schema in createTables. New deployments get the base schema plus all
// of these; existing databases pick up only what they are missing.
func RegisterSQLiteMigrations(r *MigrationRunner) {
	r.Register(&Migration{
		Version:     "1.1.0",
		Name:        "add_summary_cache",
		Description: "Cache the generated narrative summary on the upload row",
		Up: func(tx *sql.Tx) error {
			if err := addColumnIfNotExists(tx, "uploads", "ai_summary", "TEXT"); err != nil {
				return err
			}
			if err := addColumnIfNotExists(tx, "uploads", "ai_summary_model", "TEXT"); err != nil {
				return err
			}
			return addColumnIfNotExists(tx, "uploads", "ai_summary_at", "TIMESTAMP")
		},
		Down: func(tx *sql.Tx) error {
			for _, column := range []string{"ai_summary", "ai_summary_model", "ai_summary_at"} {
				if _, err := tx.Exec("ALTER TABLE uploads DROP COLUMN " + column); err != nil {
					return err
				}
			}
			return nil
		},
	})

	r.Register(&Migration{
		Version:     "1.2.0",
		Name:        "index_anomalies_kind",
		Description: "Index persisted findings by upload and kind",
		Up: func(tx *sql.Tx) error {
			return createIndexIfNotExists(tx, "anomalies", "idx_anomalies_upload_kind", "upload_id", "kind")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP INDEX IF EXISTS idx_anomalies_upload_kind")
			return err
		},
	})
}
