package database

import "fmt"

// GetSettings returns the singleton settings row.
func (db *DB) GetSettings() (*AppSettings, error) {
	row := db.conn.QueryRow(
		`SELECT id, worker_concurrency, default_keep_metadata, default_keep_transparency, updated_at
		 FROM app_settings WHERE id = 1`,
	)
	var s AppSettings
	if err := row.Scan(&s.ID, &s.WorkerConcurrency, &s.DefaultKeepMetadata, &s.DefaultKeepTransparency, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return &s, nil
}

// UpdateSettings stores the full settings row. The concurrency value
// is clamped again at read time, so out-of-range writes are stored as
// given but never acted on.
func (db *DB) UpdateSettings(concurrency int, keepMetadata, keepTransparency bool) (*AppSettings, error) {
	if _, err := db.conn.Exec(
		`UPDATE app_settings SET worker_concurrency = ?, default_keep_metadata = ?,
			default_keep_transparency = ?, updated_at = ? WHERE id = 1`,
		concurrency, keepMetadata, keepTransparency, now(),
	); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return db.GetSettings()
}

// UpdateConcurrency stores a new worker concurrency, leaving the
// policy flags as they are.
func (db *DB) UpdateConcurrency(concurrency int) (*AppSettings, error) {
	if _, err := db.conn.Exec(
		`UPDATE app_settings SET worker_concurrency = ?, updated_at = ? WHERE id = 1`,
		concurrency, now(),
	); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return db.GetSettings()
}
