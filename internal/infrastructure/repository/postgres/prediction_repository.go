package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pulmonics/lung-sound-api/internal/core/domain"
)

type PredictionRepository struct {
	db *sql.DB
}

func NewPredictionRepository(db *sql.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PredictionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	label TEXT,
	confidence DOUBLE PRECISION,
	probabilities JSONB,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status);
CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PredictionRepository) Create(ctx context.Context, rec *domain.Prediction) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO predictions (
	id, filename, content_type, file_size, storage_path, status, notes, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		rec.ID, rec.Filename, rec.ContentType, rec.SizeBytes, rec.StoragePath,
		string(rec.Status), rec.Notes, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*domain.Prediction, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, content_type, file_size, storage_path, status, label, confidence, probabilities, notes, created_at, updated_at
FROM predictions
WHERE id = $1
`, id)

	rec, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "select prediction", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("select prediction: %w", err)
	}
	return &rec, nil
}

func (r *PredictionRepository) ListRecent(ctx context.Context, limit int) ([]domain.Prediction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, filename, content_type, file_size, storage_path, status, label, confidence, probabilities, notes, created_at, updated_at
FROM predictions
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Prediction, 0)
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return out, nil
}

func (r *PredictionRepository) MarkProcessing(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE predictions
SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusProcessing), time.Now().UTC(), string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return r.checkGuard(ctx, result, id, domain.StatusProcessing)
}

// MarkCompleted writes the terminal status together with the inference result
// so pollers never observe a completed record with missing fields.
func (r *PredictionRepository) MarkCompleted(ctx context.Context, id string, res domain.Result) error {
	probsJSON, err := json.Marshal(res.Probabilities)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE predictions
SET status = $2, label = $3, confidence = $4, probabilities = $5, updated_at = $6
WHERE id = $1 AND status = $7
`, id, string(domain.StatusCompleted), string(res.Label), res.Confidence, probsJSON,
		time.Now().UTC(), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return r.checkGuard(ctx, result, id, domain.StatusCompleted)
}

func (r *PredictionRepository) MarkFailed(ctx context.Context, id string, notes string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE predictions
SET status = $2, notes = $3, updated_at = $4
WHERE id = $1 AND status IN ($5, $6)
`, id, string(domain.StatusFailed), notes, time.Now().UTC(),
		string(domain.StatusPending), string(domain.StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return r.checkGuard(ctx, result, id, domain.StatusFailed)
}

func (r *PredictionRepository) FailStale(ctx context.Context, olderThan time.Duration, notes string) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, `
UPDATE predictions
SET status = $1, notes = $2, updated_at = $3
WHERE status = $4 AND updated_at < $5
`, string(domain.StatusFailed), notes, time.Now().UTC(), string(domain.StatusProcessing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale predictions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale rows affected: %w", err)
	}
	return int(rows), nil
}

// checkGuard turns a zero-row guarded update into the domain error the caller
// can act on: the record is either missing or already past the transition.
func (r *PredictionRepository) checkGuard(ctx context.Context, result sql.Result, id string, to domain.Status) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM predictions WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrRecordNotFound, "select prediction status", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("select prediction status: %w", err)
	}
	return domain.WrapError(domain.ErrInvalidTransition, "guard status transition",
		fmt.Errorf("%s to %s", status, to))
}

type predictionScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(s predictionScanner) (domain.Prediction, error) {
	var rec domain.Prediction
	var status string
	var label sql.NullString
	var confidence sql.NullFloat64
	var probsRaw []byte

	err := s.Scan(
		&rec.ID, &rec.Filename, &rec.ContentType, &rec.SizeBytes, &rec.StoragePath,
		&status, &label, &confidence, &probsRaw, &rec.Notes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Prediction{}, err
		}
		return domain.Prediction{}, fmt.Errorf("scan prediction: %w", err)
	}

	rec.Status = domain.Status(status)
	if label.Valid {
		rec.Label = domain.Label(label.String)
	}
	if confidence.Valid {
		c := confidence.Float64
		rec.Confidence = &c
	}
	if len(probsRaw) > 0 {
		if err := json.Unmarshal(probsRaw, &rec.Probabilities); err != nil {
			return domain.Prediction{}, fmt.Errorf("unmarshal probabilities: %w", err)
		}
	}
	return rec, nil
}
