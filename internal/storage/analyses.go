package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medreport/internal/models"
)

var ErrNotFound = errors.New("not found")

const maxListLimit = 100

// AnalysisRepository persists analysis results.
type AnalysisRepository struct {
	db     *sql.DB
	driver string
}

func NewAnalysisRepository(db *sql.DB, driver string) *AnalysisRepository {
	return &AnalysisRepository{db: db, driver: driver}
}

// Save inserts a. Missing ID and CreatedAt are filled in.
func (r *AnalysisRepository) Save(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	record, err := json.Marshal(a.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = r.db.ExecContext(ctx, rebind(r.driver, `
		INSERT INTO analyses (id, filename, mime_type, model_choice, medical, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Filename, a.MimeType, a.ModelChoice, a.Medical, string(record), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Get(ctx context.Context, id string) (*models.Analysis, error) {
	row := r.db.QueryRowContext(ctx, rebind(r.driver, `
		SELECT id, filename, mime_type, model_choice, medical, record, created_at
		FROM analyses WHERE id = ?`), id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

// ListRecent returns up to limit analyses, newest first.
func (r *AnalysisRepository) ListRecent(ctx context.Context, limit int) ([]models.Analysis, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, `
		SELECT id, filename, mime_type, model_choice, medical, record, created_at
		FROM analyses ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []models.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*models.Analysis, error) {
	var (
		a      models.Analysis
		record string
	)
	if err := s.Scan(&a.ID, &a.Filename, &a.MimeType, &a.ModelChoice, &a.Medical, &record, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Record = models.NewRecord()
	if err := json.Unmarshal([]byte(record), a.Record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &a, nil
}
