// Package storage provides an in-memory analysis store. It backs
// handler tests and local development without PostgreSQL.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cavotieno/forgery-analyzer/internal/detector"
	"github.com/cavotieno/forgery-analyzer/internal/models"
	"github.com/cavotieno/forgery-analyzer/internal/regions"
)

type MemoryAnalysisStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.Analysis
	byCase map[string]*models.Analysis
}

func NewMemoryAnalysisStore() *MemoryAnalysisStore {
	return &MemoryAnalysisStore{
		nextID: 1,
		byID:   make(map[int64]*models.Analysis),
		byCase: make(map[string]*models.Analysis),
	}
}

func (s *MemoryAnalysisStore) Create(ctx context.Context, caseID string, batchID *string, filename string, fileSize int64) (*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCase[caseID]; exists {
		return nil, models.ErrDuplicateCaseID
	}

	analysis := &models.Analysis{
		ID:        s.nextID,
		CaseID:    caseID,
		BatchID:   batchID,
		Filename:  filename,
		FileSize:  fileSize,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.byID[analysis.ID] = analysis
	s.byCase[caseID] = analysis

	return copyAnalysis(analysis), nil
}

func (s *MemoryAnalysisStore) MarkProcessing(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysis, ok := s.byID[id]
	if !ok {
		return models.ErrAnalysisNotFound
	}
	now := time.Now()
	analysis.Status = models.StatusProcessing
	analysis.StartedAt = &now
	return nil
}

func (s *MemoryAnalysisStore) Complete(ctx context.Context, id int64, det *detector.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysis, ok := s.byID[id]
	if !ok {
		return models.ErrAnalysisNotFound
	}
	now := time.Now()
	analysis.Status = models.StatusCompleted
	analysis.Result = det.Result
	analysis.Confidence = det.Confidence
	analysis.Mask = det.Mask
	analysis.Regions = det.Regions
	analysis.CompletedAt = &now
	return nil
}

func (s *MemoryAnalysisStore) Fail(ctx context.Context, id int64, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysis, ok := s.byID[id]
	if !ok {
		return models.ErrAnalysisNotFound
	}
	now := time.Now()
	analysis.Status = models.StatusFailed
	analysis.ErrorMessage = &errorMsg
	analysis.CompletedAt = &now
	return nil
}

func (s *MemoryAnalysisStore) ByCaseID(ctx context.Context, caseID string) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis, ok := s.byCase[caseID]
	if !ok {
		return nil, models.ErrAnalysisNotFound
	}
	return copyAnalysis(analysis), nil
}

func (s *MemoryAnalysisStore) List(ctx context.Context, filter models.AnalysisFilter) ([]*models.Analysis, error) {
	if filter.Result != "" && filter.Result != detector.LabelAuthentic && filter.Result != detector.LabelForged {
		return nil, models.ErrInvalidResultName
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Analysis
	for _, analysis := range s.byID {
		if filter.Result != "" && analysis.Result != filter.Result {
			continue
		}
		if filter.BatchID != "" && (analysis.BatchID == nil || *analysis.BatchID != filter.BatchID) {
			continue
		}
		out = append(out, copyAnalysis(analysis))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (s *MemoryAnalysisStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.Statistics{}
	sum := 0.0
	for _, analysis := range s.byID {
		if analysis.Status != models.StatusCompleted {
			continue
		}
		stats.TotalAnalyses++
		sum += analysis.Confidence
		switch analysis.Result {
		case detector.LabelAuthentic:
			stats.AuthenticCount++
		case detector.LabelForged:
			stats.ForgedCount++
		}
	}
	if stats.TotalAnalyses > 0 {
		stats.AvgConfidence = sum / float64(stats.TotalAnalyses)
	}

	return stats, nil
}

func (s *MemoryAnalysisStore) Health(ctx context.Context) error {
	return nil
}

func copyAnalysis(a *models.Analysis) *models.Analysis {
	dup := *a
	if a.Regions != nil {
		dup.Regions = append([]regions.Region(nil), a.Regions...)
	}
	return &dup
}
