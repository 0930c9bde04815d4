package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cavotieno/forgery-analyzer/internal/detector"
	"github.com/cavotieno/forgery-analyzer/internal/regions"
)

type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// Analysis is one analyzed image: a case. The regions column is JSONB;
// the mask column holds the run-length-encoded duplicated-region mask.
type Analysis struct {
	ID       int64   `json:"-"`
	CaseID   string  `json:"case_id"`
	BatchID  *string `json:"batch_id,omitempty"`
	Filename string  `json:"filename"`
	FileSize int64   `json:"file_size"`

	Result     string           `json:"result"`
	Confidence float64          `json:"confidence"`
	Mask       string           `json:"mask"`
	Regions    []regions.Region `json:"regions"`

	Status       AnalysisStatus `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"timestamp"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Statistics aggregates completed analyses for the dashboard and the
// statistics endpoint.
type Statistics struct {
	TotalAnalyses  int     `json:"total_analyses"`
	AuthenticCount int     `json:"authentic_count"`
	ForgedCount    int     `json:"forged_count"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// AnalysisFilter narrows List results. Zero values mean "no filter".
type AnalysisFilter struct {
	Result  string
	BatchID string
	Limit   int
}

type AnalysisService struct {
	pool *pgxpool.Pool
}

func NewAnalysisService(pool *pgxpool.Pool) *AnalysisService {
	return &AnalysisService{pool: pool}
}

func (s *AnalysisService) Create(ctx context.Context, caseID string, batchID *string, filename string, fileSize int64) (*Analysis, error) {
	query := `
		INSERT INTO analyses (case_id, batch_id, filename, file_size, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	analysis := &Analysis{
		CaseID:   caseID,
		BatchID:  batchID,
		Filename: filename,
		FileSize: fileSize,
		Status:   StatusPending,
	}

	err := s.pool.QueryRow(ctx, query, caseID, batchID, filename, fileSize, StatusPending).
		Scan(&analysis.ID, &analysis.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrDuplicateCaseID
		}
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}

	return analysis, nil
}

func (s *AnalysisService) MarkProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE analyses
		SET status = $1, started_at = NOW()
		WHERE id = $2
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, query, StatusProcessing, id)
	if err != nil {
		return fmt.Errorf("failed to mark analysis as processing: %w", err)
	}

	return nil
}

// Complete stores the model's verdict and marks the analysis done.
func (s *AnalysisService) Complete(ctx context.Context, id int64, det *detector.Detection) error {
	regionsJSON, err := json.Marshal(det.Regions)
	if err != nil {
		return fmt.Errorf("failed to marshal regions: %w", err)
	}

	query := `
		UPDATE analyses
		SET status = $1, result = $2, confidence = $3, mask = $4, regions = $5, completed_at = NOW()
		WHERE id = $6
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = s.pool.Exec(ctx, query, StatusCompleted, det.Result, det.Confidence, det.Mask, regionsJSON, id)
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}

	return nil
}

// Fail marks the analysis as failed with an error message.
func (s *AnalysisService) Fail(ctx context.Context, id int64, errorMsg string) error {
	query := `
		UPDATE analyses
		SET status = $1, error_message = $2, completed_at = NOW()
		WHERE id = $3
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, query, StatusFailed, errorMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark analysis as failed: %w", err)
	}

	return nil
}

func (s *AnalysisService) ByCaseID(ctx context.Context, caseID string) (*Analysis, error) {
	query := `
		SELECT id, case_id, batch_id, filename, file_size, result, confidence,
		       mask, regions, status, error_message, created_at, started_at, completed_at
		FROM analyses
		WHERE case_id = $1
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	analysis, err := scanAnalysis(s.pool.QueryRow(ctx, query, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return analysis, nil
}

func (s *AnalysisService) List(ctx context.Context, filter AnalysisFilter) ([]*Analysis, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Result != "" && filter.Result != detector.LabelAuthentic && filter.Result != detector.LabelForged {
		return nil, ErrInvalidResultName
	}

	query := `
		SELECT id, case_id, batch_id, filename, file_size, result, confidence,
		       mask, regions, status, error_message, created_at, started_at, completed_at
		FROM analyses
		WHERE ($1 = '' OR result = $1)
		  AND ($2 = '' OR batch_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, filter.Result, filter.BatchID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, analysis)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyses: %w", err)
	}

	return analyses, nil
}

// Statistics aggregates completed analyses.
func (s *AnalysisService) Statistics(ctx context.Context) (*Statistics, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE result = 'authentic'),
		       COUNT(*) FILTER (WHERE result = 'forged'),
		       COALESCE(AVG(confidence), 0)
		FROM analyses
		WHERE status = $1
	`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	stats := &Statistics{}
	err := s.pool.QueryRow(ctx, query, StatusCompleted).Scan(
		&stats.TotalAnalyses,
		&stats.AuthenticCount,
		&stats.ForgedCount,
		&stats.AvgConfidence,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	return stats, nil
}

// Health reports whether the backing pool is reachable.
func (s *AnalysisService) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *AnalysisService) Delete(ctx context.Context, caseID string) error {
	query := `DELETE FROM analyses WHERE case_id = $1`

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, query, caseID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAnalysisNotFound
	}

	return nil
}

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	analysis := &Analysis{}
	var result, mask *string
	var confidence *float64
	var regionsJSON []byte

	err := row.Scan(
		&analysis.ID,
		&analysis.CaseID,
		&analysis.BatchID,
		&analysis.Filename,
		&analysis.FileSize,
		&result,
		&confidence,
		&mask,
		&regionsJSON,
		&analysis.Status,
		&analysis.ErrorMessage,
		&analysis.CreatedAt,
		&analysis.StartedAt,
		&analysis.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if result != nil {
		analysis.Result = *result
	}
	if confidence != nil {
		analysis.Confidence = *confidence
	}
	if mask != nil {
		analysis.Mask = *mask
	}
	if len(regionsJSON) > 0 {
		if err := json.Unmarshal(regionsJSON, &analysis.Regions); err != nil {
			return nil, fmt.Errorf("failed to parse regions: %w", err)
		}
	}

	return analysis, nil
}

// HELPER FUNCS --------------------------------

// Duration returns how long the analysis took.
// Returns 0 if not completed.
func (a *Analysis) Duration() time.Duration {
	if a.StartedAt == nil || a.CompletedAt == nil {
		return 0
	}
	return a.CompletedAt.Sub(*a.StartedAt)
}

func (a *Analysis) IsCompleted() bool {
	return a.Status == StatusCompleted
}

func (a *Analysis) IsFailed() bool {
	return a.Status == StatusFailed
}

// RegionsCount is the number of duplicated regions found.
func (a *Analysis) RegionsCount() int {
	return len(a.Regions)
}
