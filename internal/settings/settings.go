// Package settings implements the per-station settings repository (component L):
// aliases, enabled/disabled flags, and preferred OCPP version, durable across restarts.
//
// Grounded on original_source/backend/services/settings_repository.py's upsert/load_all
// contract, with the SQLite backing swapped in per HyphaGroup-oubliette's
// internal/auth/store.go (database/sql + modernc.org/sqlite, migrate-on-open).
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Record is one charge point's durable settings.
type Record struct {
	ChargePointID string
	Alias         string
	Enabled       bool
	OCPPVersion   string
}

// Repository persists per-charge-point settings. A gateway is runnable with no backing
// store at all via NoopRepository; SQLiteRepository is the default production
// implementation (SPEC_FULL.md §4.L).
type Repository interface {
	SetAlias(ctx context.Context, chargePointID, alias string) error
	SetEnabled(ctx context.Context, chargePointID string, enabled bool) error
	SetOCPPVersion(ctx context.Context, chargePointID, version string) error
	Get(ctx context.Context, chargePointID string) (Record, bool, error)
	AllAliases(ctx context.Context) (map[string]string, error)
	All(ctx context.Context) ([]Record, error)
	Close() error
}

// NoopRepository discards every write and reports no records. Used when no durable
// settings store is configured; the registry's in-memory alias cache still works for the
// lifetime of the process.
type NoopRepository struct{}

func (NoopRepository) SetAlias(context.Context, string, string) error       { return nil }
func (NoopRepository) SetEnabled(context.Context, string, bool) error       { return nil }
func (NoopRepository) SetOCPPVersion(context.Context, string, string) error { return nil }
func (NoopRepository) Get(context.Context, string) (Record, bool, error)    { return Record{}, false, nil }
func (NoopRepository) AllAliases(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
func (NoopRepository) All(context.Context) ([]Record, error) { return nil, nil }
func (NoopRepository) Close() error                          { return nil }

// SQLiteRepository is a pure-Go (cgo-free) SQLite-backed Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLiteRepository opens (creating if needed) a SQLite database under dataDir.
// Per SPEC_FULL.md §4.L, a failure to open or migrate degrades to NoopRepository rather
// than failing gateway startup — settings are a convenience, not a correctness
// requirement for serving live OCPP traffic.
func OpenSQLiteRepository(dataDir string) (Repository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return NoopRepository{}, fmt.Errorf("settings: create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "settings.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return NoopRepository{}, fmt.Errorf("settings: open sqlite: %w", err)
	}
	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		_ = db.Close()
		return NoopRepository{}, fmt.Errorf("settings: migrate: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS charge_point_settings (
		charge_point_id TEXT PRIMARY KEY,
		alias           TEXT NOT NULL DEFAULT '',
		enabled         INTEGER NOT NULL DEFAULT 0,
		ocpp_version    TEXT NOT NULL DEFAULT ''
	);`
	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) upsert(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO charge_point_settings (charge_point_id) VALUES (?)
		 ON CONFLICT(charge_point_id) DO NOTHING`, id)
	return err
}

func (r *SQLiteRepository) SetAlias(ctx context.Context, id, alias string) error {
	if err := r.upsert(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE charge_point_settings SET alias = ? WHERE charge_point_id = ?`, alias, id)
	return err
}

func (r *SQLiteRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if err := r.upsert(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE charge_point_settings SET enabled = ? WHERE charge_point_id = ?`, enabled, id)
	return err
}

func (r *SQLiteRepository) SetOCPPVersion(ctx context.Context, id, version string) error {
	if err := r.upsert(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE charge_point_settings SET ocpp_version = ? WHERE charge_point_id = ?`, version, id)
	return err
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT charge_point_id, alias, enabled, ocpp_version FROM charge_point_settings WHERE charge_point_id = ?`, id)
	var rec Record
	if err := row.Scan(&rec.ChargePointID, &rec.Alias, &rec.Enabled, &rec.OCPPVersion); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *SQLiteRepository) AllAliases(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT charge_point_id, alias FROM charge_point_settings WHERE alias != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, alias string
		if err := rows.Scan(&id, &alias); err != nil {
			return nil, err
		}
		out[id] = alias
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) All(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT charge_point_id, alias, enabled, ocpp_version FROM charge_point_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ChargePointID, &rec.Alias, &rec.Enabled, &rec.OCPPVersion); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
