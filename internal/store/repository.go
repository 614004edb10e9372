package store

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	UpdateJobStage(ctx context.Context, id, status, stage string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	FinishJob(ctx context.Context, id string, outcome JobOutcome) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, title, status, stage, progress, source_path, output_path, edl_path,
	error_kind, error, duration_ms, size_bytes, request, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	request := j.Request
	if request == "" {
		request = "{}"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO export_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Title, j.Status, j.Stage, j.Progress, j.SourcePath,
		nullString(j.OutputPath), nullString(j.EDLPath), nullString(j.ErrorKind), nullString(j.Error),
		j.DurationMs, j.SizeBytes, request,
		j.CreatedAt.UTC().Format(time.RFC3339), j.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetJob returns nil, nil when no job has that id.
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM export_jobs ORDER BY created_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStage(ctx context.Context, id, status, stage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, stage = ?, updated_at = ? WHERE id = ?
	`, status, stage, now(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, now(), id)
	return err
}

func (r *SQLiteRepository) FinishJob(ctx context.Context, id string, o JobOutcome) error {
	progress := 0
	if o.Status == JobStatusCompleted {
		progress = 100
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = ?, stage = ?, output_path = ?, edl_path = ?, error_kind = ?, error = ?,
		    duration_ms = ?, size_bytes = ?, progress = MAX(progress, ?), updated_at = ?
		WHERE id = ?
	`, o.Status, o.Stage, nullString(o.OutputPath), nullString(o.EDLPath),
		nullString(o.ErrorKind), nullString(o.Error), o.DurationMs, o.SizeBytes, progress, now(), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var outputPath, edlPath, errorKind, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Title, &j.Status, &j.Stage, &j.Progress, &j.SourcePath,
		&outputPath, &edlPath, &errorKind, &errMsg, &j.DurationMs, &j.SizeBytes, &j.Request,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.OutputPath = outputPath.String
	j.EDLPath = edlPath.String
	j.ErrorKind = errorKind.String
	j.Error = errMsg.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
