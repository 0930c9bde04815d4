package controllers

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cavotieno/forgery-analyzer/internal/cache"
	"github.com/cavotieno/forgery-analyzer/internal/config"
	"github.com/cavotieno/forgery-analyzer/internal/detector"
	"github.com/cavotieno/forgery-analyzer/internal/metrics"
	"github.com/cavotieno/forgery-analyzer/internal/models"
	"github.com/cavotieno/forgery-analyzer/internal/regions"
)

// AnalysisStore is the persistence surface the API handlers need.
// *models.AnalysisService implements it in production; the in-memory
// store backs tests.
type AnalysisStore interface {
	Create(ctx context.Context, caseID string, batchID *string, filename string, fileSize int64) (*models.Analysis, error)
	MarkProcessing(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64, det *detector.Detection) error
	Fail(ctx context.Context, id int64, errorMsg string) error
	ByCaseID(ctx context.Context, caseID string) (*models.Analysis, error)
	List(ctx context.Context, filter models.AnalysisFilter) ([]*models.Analysis, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
	Health(ctx context.Context) error
}

// ModelInfo is reported by the statistics and health endpoints.
type ModelInfo struct {
	Version             string  `json:"version"`
	Device              string  `json:"device"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	ImageSize           int     `json:"image_size"`
}

// APIController serves the JSON analysis API.
type APIController struct {
	store    AnalysisStore
	detector detector.Detector
	results  *cache.Results
	limits   config.LimitsConfig
	info     ModelInfo
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewAPIController(
	store AnalysisStore,
	det detector.Detector,
	results *cache.Results,
	limits config.LimitsConfig,
	info ModelInfo,
	workers int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *APIController {
	if workers <= 0 {
		workers = 1
	}
	return &APIController{
		store:    store,
		detector: det,
		results:  results,
		limits:   limits,
		info:     info,
		workers:  workers,
		logger:   logger,
		metrics:  m,
	}
}

type analysisResponse struct {
	CaseID           string           `json:"case_id"`
	BatchID          string           `json:"batch_id,omitempty"`
	Result           string           `json:"result"`
	Confidence       float64          `json:"confidence"`
	Mask             string           `json:"mask"`
	Regions          []regions.Region `json:"regions"`
	Filename         string           `json:"filename"`
	FileSize         int64            `json:"file_size"`
	Timestamp        time.Time        `json:"timestamp"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
}

type batchSummary struct {
	Authentic     int     `json:"authentic"`
	Forged        int     `json:"forged"`
	AvgConfidence float64 `json:"avg_confidence"`
}

type batchResponse struct {
	BatchID         string             `json:"batch_id"`
	TotalImages     int                `json:"total_images"`
	ProcessedImages int                `json:"processed_images"`
	Results         []analysisResponse `json:"results"`
	Summary         batchSummary       `json:"summary"`
}

// Analyze handles POST /api/v1/analyze: one multipart image upload.
func (c *APIController) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, c.limits.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(c.limits.MaxFileSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided, use 'file' as the form field name")
		return
	}
	defer file.Close()

	if err := c.validateUpload(header); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	caseID := strings.TrimSpace(r.FormValue("case_id"))
	if caseID == "" {
		caseID = newCaseID()
	}

	resp, err := c.analyzeOne(r.Context(), caseID, nil, header.Filename, data)
	if err != nil {
		c.respondAnalysisError(w, caseID, err)
		return
	}

	c.logger.Info("analysis complete",
		"case_id", caseID,
		"result", resp.Result,
		"confidence", resp.Confidence,
	)
	respondJSON(w, http.StatusOK, resp)
}

// BatchAnalyze handles POST /api/v1/batch-analyze: multiple uploads in
// the 'files' field. Invalid files are skipped, the rest are analyzed
// with bounded concurrency.
func (c *APIController) BatchAnalyze(w http.ResponseWriter, r *http.Request) {
	maxBody := c.limits.MaxFileSize*int64(c.limits.MaxBatchSize) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxBody); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	if r.MultipartForm == nil {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}
	if len(files) > c.limits.MaxBatchSize {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("maximum %d files allowed per batch", c.limits.MaxBatchSize))
		return
	}

	batchID := newBatchID()
	c.logger.Info("starting batch analysis", "batch_id", batchID, "files", len(files))
	if c.metrics != nil {
		c.metrics.BatchSize.Observe(float64(len(files)))
	}

	type upload struct {
		filename string
		data     []byte
	}
	var uploads []upload
	for _, header := range files {
		if err := c.validateUpload(header); err != nil {
			c.logger.Warn("skipping invalid batch file", "filename", header.Filename, "reason", err.Error())
			continue
		}
		data, err := readMultipartFile(header)
		if err != nil {
			c.logger.Warn("skipping unreadable batch file", "filename", header.Filename)
			continue
		}
		uploads = append(uploads, upload{filename: header.Filename, data: data})
	}

	if len(uploads) == 0 {
		respondError(w, http.StatusBadRequest, "no valid images found")
		return
	}

	var mu sync.Mutex
	var results []analysisResponse

	g, gctx := errgroup.WithContext(r.Context())
	g.SetLimit(c.workers)
	for _, up := range uploads {
		g.Go(func() error {
			resp, err := c.analyzeOne(gctx, newCaseID(), &batchID, up.filename, up.data)
			if err != nil {
				// A single bad image does not sink the batch.
				c.logger.Warn("batch image failed", "batch_id", batchID, "filename", up.filename, "error", err)
				return nil
			}
			mu.Lock()
			results = append(results, *resp)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(results) == 0 {
		respondError(w, http.StatusInternalServerError, "batch analysis failed")
		return
	}

	summary := batchSummary{}
	sum := 0.0
	for _, res := range results {
		sum += res.Confidence
		if res.Result == detector.LabelForged {
			summary.Forged++
		} else {
			summary.Authentic++
		}
	}
	summary.AvgConfidence = sum / float64(len(results))

	c.logger.Info("batch analysis complete", "batch_id", batchID, "processed", len(results))
	respondJSON(w, http.StatusOK, batchResponse{
		BatchID:         batchID,
		TotalImages:     len(files),
		ProcessedImages: len(results),
		Results:         results,
		Summary:         summary,
	})
}

// GetResult handles GET /api/v1/results/{case_id}.
func (c *APIController) GetResult(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "case_id")

	if analysis, ok := c.results.Get(caseID); ok {
		respondJSON(w, http.StatusOK, analysis)
		return
	}

	analysis, err := c.store.ByCaseID(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, models.ErrAnalysisNotFound) {
			respondError(w, http.StatusNotFound, "analysis result not found")
			return
		}
		c.logger.Error("failed to load analysis", "case_id", caseID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve result")
		return
	}

	if analysis.IsCompleted() {
		c.results.Set(analysis)
	}
	respondJSON(w, http.StatusOK, analysis)
}

// ListResults handles GET /api/v1/results with optional result and
// batch_id filters.
func (c *APIController) ListResults(w http.ResponseWriter, r *http.Request) {
	filter := models.AnalysisFilter{
		Result:  r.URL.Query().Get("result"),
		BatchID: r.URL.Query().Get("batch_id"),
	}

	analyses, err := c.store.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, models.ErrInvalidResultName) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		c.logger.Error("failed to list analyses", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	if analyses == nil {
		analyses = []*models.Analysis{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":   len(analyses),
		"results": analyses,
	})
}

// Statistics handles GET /api/v1/statistics.
func (c *APIController) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := c.store.Statistics(r.Context())
	if err != nil {
		c.logger.Error("failed to compute statistics", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to retrieve statistics")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total_analyses":  stats.TotalAnalyses,
		"authentic_count": stats.AuthenticCount,
		"forged_count":    stats.ForgedCount,
		"avg_confidence":  stats.AvgConfidence,
		"success_rate":    100.0,
		"model_info":      c.info,
	})
}

// Health handles GET /api/v1/health.
func (c *APIController) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	dbState := "connected"

	if err := c.store.Health(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		dbState = "unreachable"
	}

	respondJSON(w, code, map[string]any{
		"status":        status,
		"timestamp":     time.Now().UTC(),
		"models_loaded": c.detector != nil,
		"services": map[string]string{
			"database":  dbState,
			"ml_models": "operational",
		},
	})
}

// analyzeOne runs the create → processing → complete|fail lifecycle for
// a single image and returns the wire response.
func (c *APIController) analyzeOne(ctx context.Context, caseID string, batchID *string, filename string, data []byte) (*analysisResponse, error) {
	record, err := c.store.Create(ctx, caseID, batchID, filename, int64(len(data)))
	if err != nil {
		return nil, err
	}

	if err := c.store.MarkProcessing(ctx, record.ID); err != nil {
		c.logger.Warn("failed to mark analysis as processing", "case_id", caseID, "error", err)
	}

	start := time.Now()
	det, err := c.detector.Analyze(ctx, data)
	if err != nil {
		_ = c.store.Fail(ctx, record.ID, err.Error())
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	elapsed := time.Since(start)

	if err := c.store.Complete(ctx, record.ID, det); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ObserveAnalysis(det.Result, elapsed)
	}
	c.results.Delete(caseID)

	resp := &analysisResponse{
		CaseID:           caseID,
		Result:           det.Result,
		Confidence:       det.Confidence,
		Mask:             det.Mask,
		Regions:          det.Regions,
		Filename:         filename,
		FileSize:         int64(len(data)),
		Timestamp:        record.CreatedAt,
		ProcessingTimeMS: elapsed.Milliseconds(),
	}
	if batchID != nil {
		resp.BatchID = *batchID
	}
	if resp.Regions == nil {
		resp.Regions = []regions.Region{}
	}
	return resp, nil
}

func (c *APIController) respondAnalysisError(w http.ResponseWriter, caseID string, err error) {
	switch {
	case errors.Is(err, models.ErrDuplicateCaseID):
		respondError(w, http.StatusConflict, "case id already exists")
	default:
		c.logger.Error("analysis failed", "case_id", caseID, "error", err)
		respondError(w, http.StatusInternalServerError, "analysis failed")
	}
}

// validateUpload rejects files the model cannot or should not process.
func (c *APIController) validateUpload(header *multipart.FileHeader) error {
	if header.Size > c.limits.MaxFileSize {
		return models.FileError{Issue: fmt.Sprintf("file exceeds maximum size of %d bytes", c.limits.MaxFileSize)}
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !c.limits.AllowsExtension(ext) {
		return models.FileError{Issue: fmt.Sprintf("file type %q not supported", ext)}
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return models.FileError{Issue: "file must be an image"}
	}
	return nil
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func newCaseID() string {
	return "img_" + shortHex()
}

func newBatchID() string {
	return "batch_" + shortHex()
}

func shortHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:8]
}
