package database

import (
	"database/sql"
	"errors"
	"fmt"
)

const fileColumns = `id, job_id, status, error,
	original_name, original_key, original_size,
	original_width, original_height, orientation, aspect_label, has_transparency, analysis_type, metadata_tags,
	recommended_preset_id, recommended_preset_label, recommended_formats, recommended_quality,
	recommended_crop_mode, recommended_crop_reason, recommended_notes,
	selected_preset_id, output_format, output_formats, quality_webp, quality_jpg,
	keep_transparency, keep_metadata, generate_2x, generate_sharpened,
	crop_enabled, crop_x, crop_y, crop_width, crop_height,
	rename_pattern, normalize_lowercase, normalize_remove_accents, normalize_replace_spaces, normalize_collapse_dashes,
	applied_preset_id, applied_preset_label, applied_format, applied_quality,
	output_name, output_key, output_size, output_width, output_height, outputs,
	transparency_action, process_notes, created_at, updated_at`

// CreateJobFile inserts one uploaded file for a job. The metadata and
// transparency flags are seeded from the app-wide policy defaults at
// submission time.
func (db *DB) CreateJobFile(jobID int64, originalName, originalKey string, originalSize int64, keepMetadata, keepTransparency bool) (*JobFile, error) {
	res, err := db.conn.Exec(
		`INSERT INTO job_files (job_id, status, original_name, original_key, original_size,
			keep_metadata, keep_transparency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, FileStatusPending, originalName, originalKey, originalSize,
		keepMetadata, keepTransparency, now(), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetJobFile(id)
}

// GetJobFile fetches one file by id.
func (db *DB) GetJobFile(id int64) (*JobFile, error) {
	row := db.conn.QueryRow(`SELECT `+fileColumns+` FROM job_files WHERE id = ?`, id)
	return scanJobFile(row)
}

// ListJobFiles returns a job's files in upload order.
func (db *DB) ListJobFiles(jobID int64) ([]*JobFile, error) {
	rows, err := db.conn.Query(
		`SELECT `+fileColumns+` FROM job_files WHERE job_id = ? ORDER BY id ASC`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}
	defer rows.Close()

	var files []*JobFile
	for rows.Next() {
		file, err := scanJobFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// SaveAnalysis persists the analyzer result for a file.
func (db *DB) SaveAnalysis(f *JobFile) error {
	res, err := db.conn.Exec(
		`UPDATE job_files SET original_width = ?, original_height = ?, orientation = ?, aspect_label = ?,
			has_transparency = ?, analysis_type = ?, metadata_tags = ?, updated_at = ?
		 WHERE id = ?`,
		f.OriginalWidth, f.OriginalHeight, f.Orientation, f.AspectLabel,
		boolToInt(f.HasTransparency), f.AnalysisType, marshalJSON(f.MetadataTags), now(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return requireRow(res)
}

// SaveRecommendation persists the recommendation block for a file.
func (db *DB) SaveRecommendation(f *JobFile) error {
	res, err := db.conn.Exec(
		`UPDATE job_files SET recommended_preset_id = ?, recommended_preset_label = ?,
			recommended_formats = ?, recommended_quality = ?, recommended_crop_mode = ?,
			recommended_crop_reason = ?, recommended_notes = ?, updated_at = ?
		 WHERE id = ?`,
		f.RecommendedPresetID, f.RecommendedPresetLabel,
		marshalJSON(f.RecommendedFormats), marshalJSON(f.RecommendedQuality),
		f.RecommendedCropMode, f.RecommendedCropReason, f.RecommendedNotes, now(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save recommendation: %w", err)
	}
	return requireRow(res)
}

// SaveOverrides persists the user-editable per-file settings.
// Generate2x and GenerateSharpened are mutually exclusive; 2x wins
// when both arrive set.
func (db *DB) SaveOverrides(f *JobFile) error {
	if f.Generate2x && f.GenerateSharpened {
		f.GenerateSharpened = false
	}
	res, err := db.conn.Exec(
		`UPDATE job_files SET selected_preset_id = ?, output_format = ?, output_formats = ?,
			quality_webp = ?, quality_jpg = ?, keep_transparency = ?, keep_metadata = ?,
			generate_2x = ?, generate_sharpened = ?,
			crop_enabled = ?, crop_x = ?, crop_y = ?, crop_width = ?, crop_height = ?,
			rename_pattern = ?, normalize_lowercase = ?, normalize_remove_accents = ?,
			normalize_replace_spaces = ?, normalize_collapse_dashes = ?, updated_at = ?
		 WHERE id = ?`,
		f.SelectedPresetID, f.OutputFormat, marshalJSON(f.OutputFormats),
		f.QualityWebP, f.QualityJPG, boolToInt(f.KeepTransparency), boolToInt(f.KeepMetadata),
		boolToInt(f.Generate2x), boolToInt(f.GenerateSharpened),
		boolToInt(f.CropEnabled), f.CropX, f.CropY, f.CropWidth, f.CropHeight,
		f.RenamePattern, nullBool(f.NormalizeLowercase), nullBool(f.NormalizeRemoveAccents),
		f.NormalizeReplaceSpaces, nullBool(f.NormalizeCollapseDashes), now(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}
	return requireRow(res)
}

// SaveRenderResult persists the outcome of processing one file.
func (db *DB) SaveRenderResult(f *JobFile) error {
	res, err := db.conn.Exec(
		`UPDATE job_files SET status = ?, error = ?,
			applied_preset_id = ?, applied_preset_label = ?, applied_format = ?, applied_quality = ?,
			output_name = ?, output_key = ?, output_size = ?, output_width = ?, output_height = ?,
			outputs = ?, output_formats = ?, output_format = ?, generate_2x = ?, generate_sharpened = ?,
			transparency_action = ?, process_notes = ?, updated_at = ?
		 WHERE id = ?`,
		f.Status, f.Error,
		f.AppliedPresetID, f.AppliedPresetLabel, f.AppliedFormat, f.AppliedQuality,
		f.OutputName, f.OutputKey, f.OutputSize, f.OutputWidth, f.OutputHeight,
		marshalJSON(f.Outputs), marshalJSON(f.OutputFormats), f.OutputFormat,
		boolToInt(f.Generate2x), boolToInt(f.GenerateSharpened),
		f.TransparencyAction, f.ProcessNotes, now(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save render result: %w", err)
	}
	return requireRow(res)
}

// SetFileError marks one file as failed with a human-readable message.
func (db *DB) SetFileError(id int64, message string) error {
	res, err := db.conn.Exec(
		`UPDATE job_files SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		FileStatusError, message, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set file error: %w", err)
	}
	return requireRow(res)
}

// MarkFileProcessing flags one file as in progress.
func (db *DB) MarkFileProcessing(id int64) error {
	res, err := db.conn.Exec(
		`UPDATE job_files SET status = ?, updated_at = ? WHERE id = ?`,
		FileStatusProcessing, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file processing: %w", err)
	}
	return requireRow(res)
}

// DeleteJobFile removes one file row. The caller releases its blobs.
func (db *DB) DeleteJobFile(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM job_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job file: %w", err)
	}
	return requireRow(res)
}

// ResetFileResults clears render output before a reprocess run.
func (db *DB) ResetFileResults(id int64) error {
	res, err := db.conn.Exec(
		`UPDATE job_files SET status = ?, error = '', output_name = '', output_key = '',
			output_size = 0, output_width = 0, output_height = 0, outputs = '[]',
			transparency_action = '', process_notes = '', updated_at = ?
		 WHERE id = ?`,
		FileStatusPending, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to reset file results: %w", err)
	}
	return requireRow(res)
}

func scanJobFile(row rowScanner) (*JobFile, error) {
	var (
		f                                       JobFile
		hasTransparency, keepTransparency       int
		keepMetadata, generate2x, generateSharp int
		cropEnabled                             int
		metadataTags, recFormats, recQuality    string
		outputFormats, outputs                  string
		nLower, nAccents, nCollapse             sql.NullInt64
	)
	err := row.Scan(
		&f.ID, &f.JobID, &f.Status, &f.Error,
		&f.OriginalName, &f.OriginalKey, &f.OriginalSize,
		&f.OriginalWidth, &f.OriginalHeight, &f.Orientation, &f.AspectLabel, &hasTransparency, &f.AnalysisType, &metadataTags,
		&f.RecommendedPresetID, &f.RecommendedPresetLabel, &recFormats, &recQuality,
		&f.RecommendedCropMode, &f.RecommendedCropReason, &f.RecommendedNotes,
		&f.SelectedPresetID, &f.OutputFormat, &outputFormats, &f.QualityWebP, &f.QualityJPG,
		&keepTransparency, &keepMetadata, &generate2x, &generateSharp,
		&cropEnabled, &f.CropX, &f.CropY, &f.CropWidth, &f.CropHeight,
		&f.RenamePattern, &nLower, &nAccents, &f.NormalizeReplaceSpaces, &nCollapse,
		&f.AppliedPresetID, &f.AppliedPresetLabel, &f.AppliedFormat, &f.AppliedQuality,
		&f.OutputName, &f.OutputKey, &f.OutputSize, &f.OutputWidth, &f.OutputHeight, &outputs,
		&f.TransparencyAction, &f.ProcessNotes, &f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job file: %w", err)
	}

	f.HasTransparency = hasTransparency != 0
	f.KeepTransparency = keepTransparency != 0
	f.KeepMetadata = keepMetadata != 0
	f.Generate2x = generate2x != 0
	f.GenerateSharpened = generateSharp != 0
	f.CropEnabled = cropEnabled != 0
	f.MetadataTags = unmarshalStrings(metadataTags)
	f.RecommendedFormats = unmarshalStrings(recFormats)
	f.RecommendedQuality = unmarshalIntMap(recQuality)
	f.OutputFormats = unmarshalStrings(outputFormats)
	f.Outputs = unmarshalOutputs(outputs)
	f.NormalizeLowercase = scanNullBool(nLower)
	f.NormalizeRemoveAccents = scanNullBool(nAccents)
	f.NormalizeCollapseDashes = scanNullBool(nCollapse)
	return &f, nil
}
