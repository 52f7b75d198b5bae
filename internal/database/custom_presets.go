package database

import (
	"database/sql"
	"errors"
	"fmt"

	"image-optimizer/internal/presets"
)

// CreateCustomPreset stores a team-created preset. The id must not
// collide with another custom preset; shadowing a base catalog entry
// is allowed.
func (db *DB) CreateCustomPreset(p *CustomPreset) error {
	if p.ID == "" || p.Label == "" || p.Width <= 0 || p.Height <= 0 {
		return errors.New("custom preset needs id, label and positive dimensions")
	}
	if p.Category == "" {
		p.Category = presets.InferCategory(p.ID)
	}
	_, err := db.conn.Exec(
		`INSERT INTO custom_presets (id, label, category, width, height, aspect, type_hint, recommended_format, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Label, p.Category, p.Width, p.Height, p.Aspect, p.TypeHint, p.RecommendedFormat, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create custom preset: %w", err)
	}
	return nil
}

// DeleteCustomPreset removes a custom preset by id.
func (db *DB) DeleteCustomPreset(id string) error {
	res, err := db.conn.Exec(`DELETE FROM custom_presets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete custom preset: %w", err)
	}
	return requireRow(res)
}

// GetCustomPreset implements presets.CustomSource.
func (db *DB) GetCustomPreset(id string) (*presets.Preset, error) {
	row := db.conn.QueryRow(
		`SELECT id, label, category, width, height, aspect, type_hint, recommended_format
		 FROM custom_presets WHERE id = ?`, id,
	)
	preset, err := scanCustomPreset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return preset, err
}

// ListCustomPresets implements presets.CustomSource.
func (db *DB) ListCustomPresets() ([]presets.Preset, error) {
	rows, err := db.conn.Query(
		`SELECT id, label, category, width, height, aspect, type_hint, recommended_format
		 FROM custom_presets ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom presets: %w", err)
	}
	defer rows.Close()

	var out []presets.Preset
	for rows.Next() {
		preset, err := scanCustomPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *preset)
	}
	return out, rows.Err()
}

func scanCustomPreset(row rowScanner) (*presets.Preset, error) {
	var p presets.Preset
	err := row.Scan(&p.ID, &p.Label, &p.Category, &p.Width, &p.Height, &p.Aspect, &p.TypeHint, &p.RecommendedFormat)
	if err != nil {
		return nil, err
	}
	p.Source = presets.SourceCustom
	return &p, nil
}
