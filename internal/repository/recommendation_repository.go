package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/shuttle-backend-go/internal/database"
	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// DefaultRunLimit caps ListRuns when no limit is given
const DefaultRunLimit = 20

// RecommendationRepository stores the history of pipeline runs
type RecommendationRepository struct {
	db     *sql.DB
	driver string
}

// NewRecommendationRepository creates a new recommendation repository
func NewRecommendationRepository(db *sql.DB, driver string) *RecommendationRepository {
	return &RecommendationRepository{db: db, driver: driver}
}

// SaveRun inserts a run, assigning an id and creation time when missing
func (r *RecommendationRepository) SaveRun(ctx context.Context, run *models.RecommendationRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if len(run.Payload) == 0 {
		run.Payload = []byte("null")
	}

	query := database.Rebind(r.driver, `
		INSERT INTO recommendation_runs (id, kind, source, fallback_reason, item_count, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Kind,
		run.Source,
		run.FallbackReason,
		run.ItemCount,
		string(run.Payload),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save recommendation run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, optionally filtered by kind
func (r *RecommendationRepository) ListRuns(ctx context.Context, kind string, limit int) ([]*models.RecommendationRun, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	query := `
		SELECT id, kind, source, fallback_reason, item_count, payload_json, created_at
		FROM recommendation_runs
		WHERE 1=1
	`
	args := []interface{}{}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, database.Rebind(r.driver, query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendation runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.RecommendationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by id
func (r *RecommendationRepository) GetRun(ctx context.Context, id string) (*models.RecommendationRun, error) {
	query := database.Rebind(r.driver, `
		SELECT id, kind, source, fallback_reason, item_count, payload_json, created_at
		FROM recommendation_runs
		WHERE id = ?
	`)
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recommendation run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*models.RecommendationRun, error) {
	run := &models.RecommendationRun{}
	var payload, createdAt string
	err := s.Scan(&run.ID, &run.Kind, &run.Source, &run.FallbackReason, &run.ItemCount, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recommendation run: %w", err)
	}
	run.Payload = []byte(payload)
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for run %s: %w", run.ID, err)
	}
	return run, nil
}
