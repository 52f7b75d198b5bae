package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"image-optimizer/internal/logging"
)

// DB wraps the sqlite handle with the application queries.
type DB struct {
	conn *sql.DB
	path string
}

// New opens (or creates) the job database at dir/jobs.db and applies
// the schema. WAL keeps the worker and the API server from blocking
// each other.
func New(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	path := filepath.Join(dir, "jobs.db")
	// _txlock=immediate takes the write lock when a claim transaction
	// begins, not at its first UPDATE, so concurrent claimers serialize
	// instead of failing on a deferred-lock upgrade
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; a single writer connection avoids
	// SQLITE_BUSY churn under concurrent job updates
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	logging.Info("Job database ready at %s", path)
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			status TEXT NOT NULL DEFAULT 'PENDING',
			preset TEXT NOT NULL DEFAULT '',
			progress INTEGER NOT NULL DEFAULT 0,
			total_files INTEGER NOT NULL DEFAULT 0,
			processed_files INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			zip_key TEXT NOT NULL DEFAULT '',
			zip_name TEXT NOT NULL DEFAULT '',
			started_at DATETIME,
			finished_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS job_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'PENDING',
			error TEXT NOT NULL DEFAULT '',
			original_name TEXT NOT NULL,
			original_key TEXT NOT NULL,
			original_size INTEGER NOT NULL DEFAULT 0,
			original_width INTEGER NOT NULL DEFAULT 0,
			original_height INTEGER NOT NULL DEFAULT 0,
			orientation TEXT NOT NULL DEFAULT '',
			aspect_label TEXT NOT NULL DEFAULT '',
			has_transparency INTEGER NOT NULL DEFAULT 0,
			analysis_type TEXT NOT NULL DEFAULT '',
			metadata_tags TEXT NOT NULL DEFAULT '[]',
			recommended_preset_id TEXT NOT NULL DEFAULT '',
			recommended_preset_label TEXT NOT NULL DEFAULT '',
			recommended_formats TEXT NOT NULL DEFAULT '[]',
			recommended_quality TEXT NOT NULL DEFAULT '{}',
			recommended_crop_mode TEXT NOT NULL DEFAULT '',
			recommended_crop_reason TEXT NOT NULL DEFAULT '',
			recommended_notes TEXT NOT NULL DEFAULT '',
			selected_preset_id TEXT NOT NULL DEFAULT '',
			output_format TEXT NOT NULL DEFAULT '',
			output_formats TEXT NOT NULL DEFAULT '[]',
			quality_webp INTEGER NOT NULL DEFAULT 0,
			quality_jpg INTEGER NOT NULL DEFAULT 0,
			keep_transparency INTEGER NOT NULL DEFAULT 1,
			keep_metadata INTEGER NOT NULL DEFAULT 0,
			generate_2x INTEGER NOT NULL DEFAULT 0,
			generate_sharpened INTEGER NOT NULL DEFAULT 0,
			crop_enabled INTEGER NOT NULL DEFAULT 0,
			crop_x REAL NOT NULL DEFAULT 0,
			crop_y REAL NOT NULL DEFAULT 0,
			crop_width REAL NOT NULL DEFAULT 0,
			crop_height REAL NOT NULL DEFAULT 0,
			rename_pattern TEXT NOT NULL DEFAULT '',
			normalize_lowercase INTEGER,
			normalize_remove_accents INTEGER,
			normalize_replace_spaces TEXT NOT NULL DEFAULT '',
			normalize_collapse_dashes INTEGER,
			applied_preset_id TEXT NOT NULL DEFAULT '',
			applied_preset_label TEXT NOT NULL DEFAULT '',
			applied_format TEXT NOT NULL DEFAULT '',
			applied_quality INTEGER NOT NULL DEFAULT 0,
			output_name TEXT NOT NULL DEFAULT '',
			output_key TEXT NOT NULL DEFAULT '',
			output_size INTEGER NOT NULL DEFAULT 0,
			output_width INTEGER NOT NULL DEFAULT 0,
			output_height INTEGER NOT NULL DEFAULT 0,
			outputs TEXT NOT NULL DEFAULT '[]',
			transparency_action TEXT NOT NULL DEFAULT '',
			process_notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			worker_concurrency INTEGER NOT NULL DEFAULT 2,
			default_keep_metadata INTEGER NOT NULL DEFAULT 0,
			default_keep_transparency INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS custom_presets (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			aspect TEXT NOT NULL DEFAULT '',
			type_hint TEXT NOT NULL DEFAULT 'photo',
			recommended_format TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_job_files_job ON job_files(job_id)`,
		`INSERT OR IGNORE INTO app_settings (id, worker_concurrency) VALUES (1, 2)`,
	}
	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	if _, err := db.conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		logging.Warn("Failed to marshal JSON column: %v", err)
		return ""
	}
	return string(data)
}

func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logging.Warn("Failed to parse JSON column: %v", err)
		return nil
	}
	return out
}

func unmarshalIntMap(raw string) map[string]int {
	if raw == "" || raw == "{}" {
		return nil
	}
	var out map[string]int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logging.Warn("Failed to parse JSON column: %v", err)
		return nil
	}
	return out
}

func unmarshalOutputs(raw string) []OutputInfo {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []OutputInfo
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logging.Warn("Failed to parse JSON column: %v", err)
		return nil
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func scanNullBool(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}

func now() time.Time {
	return time.Now().UTC()
}
