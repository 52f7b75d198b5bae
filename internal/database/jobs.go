package database

import (
	"database/sql"
	"errors"
	"fmt"

	"image-optimizer/internal/logging"
)

// ErrNotFound is returned when a job or file id does not exist.
var ErrNotFound = errors.New("not found")

// CreateJob inserts a pending job and returns it.
func (db *DB) CreateJob(preset string) (*Job, error) {
	res, err := db.conn.Exec(
		`INSERT INTO jobs (status, preset, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		StatusPending, preset, now(), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetJob(id)
}

// GetJob fetches one job by id.
func (db *DB) GetJob(id int64) (*Job, error) {
	row := db.conn.QueryRow(
		`SELECT id, status, preset, progress, total_files, processed_files, error, zip_key, zip_name,
			started_at, finished_at, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	)
	return scanJob(row)
}

// ListJobs returns jobs newest-first.
func (db *DB) ListJobs(limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(
		`SELECT id, status, preset, progress, total_files, processed_files, error, zip_key, zip_name,
			started_at, finished_at, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimPending atomically moves up to limit of the oldest pending jobs
// to PROCESSING and returns them. The transaction takes the write lock
// up front (_txlock=immediate) and the guarded UPDATE skips jobs a
// concurrent claimer already won, so no job is handed to two workers.
func (db *DB) ClaimPending(limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		StatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	won := ids[:0]
	for _, id := range ids {
		res, err := tx.Exec(
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusProcessing, now(), id, StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %d: %w", id, err)
		}
		// 0 rows means another claimer got there first; skip it
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		won = append(won, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	var claimed []*Job
	for _, id := range won {
		job, err := db.GetJob(id)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, job)
	}
	logging.Debug("Claimed %d pending job(s)", len(claimed))
	return claimed, nil
}

// UpdateJobStatus sets status and clears/sets the error message.
func (db *DB) UpdateJobStatus(id int64, status, errMsg string) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return requireRow(res)
}

// UpdateJobProgress persists the completion percentage.
func (db *DB) UpdateJobProgress(id int64, progress int) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return requireRow(res)
}

// SetJobTotals records how many files the job carries.
func (db *DB) SetJobTotals(id int64, total int) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET total_files = ?, updated_at = ? WHERE id = ?`,
		total, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set job totals: %w", err)
	}
	return requireRow(res)
}

// MarkJobStarted stamps started_at and resets the per-run counters.
func (db *DB) MarkJobStarted(id int64) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET status = ?, started_at = ?, progress = 0, processed_files = 0,
			error = '', updated_at = ? WHERE id = ?`,
		StatusProcessing, now(), now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job started: %w", err)
	}
	return requireRow(res)
}

// MarkJobFinished sets the terminal status and stamps finished_at.
func (db *DB) MarkJobFinished(id int64, status, errMsg string) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET status = ?, error = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, now(), now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job finished: %w", err)
	}
	return requireRow(res)
}

// UpdateJobCounters persists processed-file count and progress in one
// statement; the per-file loop calls it after every file.
func (db *DB) UpdateJobCounters(id int64, processed, progress int) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET processed_files = ?, progress = ?, updated_at = ? WHERE id = ?`,
		processed, progress, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}
	return requireRow(res)
}

// SetJobZip records the report archive for a finished job.
func (db *DB) SetJobZip(id int64, key, name string) error {
	res, err := db.conn.Exec(
		`UPDATE jobs SET zip_key = ?, zip_name = ?, updated_at = ? WHERE id = ?`,
		key, name, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set job zip: %w", err)
	}
	return requireRow(res)
}

// RequestStatus moves a job to the requested control status (PAUSED,
// CANCELED, PENDING for resume/reprocess) only from states where the
// transition makes sense.
func (db *DB) RequestStatus(id int64, target string, allowedFrom ...string) (bool, error) {
	if len(allowedFrom) == 0 {
		return false, errors.New("no source statuses given")
	}
	query := `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN (?` +
		repeat(",?", len(allowedFrom)-1) + `)`
	args := []any{target, now(), id}
	for _, from := range allowedFrom {
		args = append(args, from)
	}
	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteJob removes the job row; job_files go with it via cascade.
// Blob cleanup is the caller's responsibility (it needs the keys
// first).
func (db *DB) DeleteJob(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return requireRow(res)
}

// CountJobsByStatus returns how many jobs sit in each status, for the
// queue-depth metrics.
func (db *DB) CountJobsByStatus() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var started, finished sql.NullTime
	err := row.Scan(
		&job.ID, &job.Status, &job.Preset, &job.Progress, &job.TotalFiles, &job.ProcessedFiles,
		&job.Error, &job.ZipKey, &job.ZipName, &started, &finished, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
