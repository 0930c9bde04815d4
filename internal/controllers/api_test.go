package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/cavotieno/forgery-analyzer/internal/cache"
	"github.com/cavotieno/forgery-analyzer/internal/config"
	"github.com/cavotieno/forgery-analyzer/internal/detector"
	"github.com/cavotieno/forgery-analyzer/internal/metrics"
	"github.com/cavotieno/forgery-analyzer/internal/regions"
	"github.com/cavotieno/forgery-analyzer/internal/storage"
)

// stubDetector classifies by payload content so tests can steer the
// outcome per file without a real model.
type stubDetector struct {
	err error
}

func (d *stubDetector) Analyze(ctx context.Context, imageData []byte) (*detector.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	if bytes.Contains(imageData, []byte("forged")) {
		return &detector.Detection{
			Result:     detector.LabelForged,
			Confidence: 0.93,
			Mask:       "1 4 9 4",
			Regions: []regions.Region{
				{Coordinates: [2][2]int{{0, 0}, {4, 2}}, Confidence: 0.5, Area: 8},
			},
		}, nil
	}
	return &detector.Detection{
		Result:     detector.LabelAuthentic,
		Confidence: 0.88,
		Mask:       "",
		Regions:    nil,
	}, nil
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxFileSize:        1 << 20,
		AllowedExtensions:  []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"},
		MaxBatchSize:       10,
		RateLimitPerMinute: 100,
		ResultsCacheTTL:    time.Minute,
	}
}

func newTestController(t *testing.T, det detector.Detector) (*APIController, *storage.MemoryAnalysisStore) {
	t.Helper()

	store := storage.NewMemoryAnalysisStore()
	m, err := metrics.New()
	require.NoError(t, err)

	ctrl := NewAPIController(
		store,
		det,
		cache.NewResults(time.Minute),
		testLimits(),
		ModelInfo{Version: "1.0.0", Device: "cpu", ConfidenceThreshold: 0.5, ImageSize: 512},
		2,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		m,
	)
	return ctrl, store
}

func newTestRouter(t *testing.T, det detector.Detector) (*chi.Mux, *storage.MemoryAnalysisStore) {
	t.Helper()

	ctrl, store := newTestController(t, det)
	r := chi.NewRouter()
	r.Post("/api/v1/analyze", ctrl.Analyze)
	r.Post("/api/v1/batch-analyze", ctrl.BatchAnalyze)
	r.Get("/api/v1/results", ctrl.ListResults)
	r.Get("/api/v1/results/{case_id}", ctrl.GetResult)
	r.Get("/api/v1/statistics", ctrl.Statistics)
	r.Get("/api/v1/health", ctrl.Health)
	return r, store
}

type filePart struct {
	field    string
	filename string
	content  string
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	for _, fp := range files {
		part, err := writer.CreateFormFile(fp.field, fp.filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(fp.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doRequest(r http.Handler, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func errorDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Detail string `json:"detail"`
	}
	decodeJSON(t, rec, &payload)
	return payload.Detail
}

func TestAnalyzeForged(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, nil, filePart{"file", "scan.png", "forged payload"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp analysisResponse
	decodeJSON(t, rec, &resp)
	require.True(t, strings.HasPrefix(resp.CaseID, "img_"))
	require.Len(t, strings.TrimPrefix(resp.CaseID, "img_"), 8)
	require.Equal(t, "forged", resp.Result)
	require.InDelta(t, 0.93, resp.Confidence, 1e-9)
	require.Equal(t, "1 4 9 4", resp.Mask)
	require.Len(t, resp.Regions, 1)
	require.Equal(t, "scan.png", resp.Filename)
	require.Equal(t, int64(len("forged payload")), resp.FileSize)
}

func TestAnalyzeAuthenticHasEmptyRegions(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, nil, filePart{"file", "scan.png", "clean payload"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp analysisResponse
	decodeJSON(t, rec, &resp)
	require.Equal(t, "authentic", resp.Result)
	require.Empty(t, resp.Mask)
	require.NotNil(t, resp.Regions)
	require.Empty(t, resp.Regions)
}

func TestAnalyzeCustomCaseID(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, map[string]string{"case_id": "img_deadbeef"},
		filePart{"file", "scan.png", "clean"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp analysisResponse
	decodeJSON(t, rec, &resp)
	require.Equal(t, "img_deadbeef", resp.CaseID)
}

func TestAnalyzeDuplicateCaseID(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	for i, wantCode := range []int{http.StatusOK, http.StatusConflict} {
		body, ct := multipartBody(t, map[string]string{"case_id": "img_deadbeef"},
			filePart{"file", "scan.png", "clean"})
		rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)
		require.Equal(t, wantCode, rec.Code, "request %d", i)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, map[string]string{"other": "field"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorDetail(t, rec), "file")
}

func TestAnalyzeRejectsUnsupportedExtension(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, nil, filePart{"file", "notes.txt", "hello"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorDetail(t, rec), "not supported")
}

func TestAnalyzeRejectsOversizeFile(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	big := strings.Repeat("x", (1<<20)+1)
	body, ct := multipartBody(t, nil, filePart{"file", "huge.png", big})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeDetectorFailureMarksAnalysisFailed(t *testing.T) {
	r, store := newTestRouter(t, &stubDetector{err: fmt.Errorf("model exploded")})

	body, ct := multipartBody(t, map[string]string{"case_id": "img_aaaa0000"},
		filePart{"file", "scan.png", "clean"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	record, err := store.ByCaseID(context.Background(), "img_aaaa0000")
	require.NoError(t, err)
	require.True(t, record.IsFailed())
	require.NotNil(t, record.ErrorMessage)
	require.Contains(t, *record.ErrorMessage, "model exploded")
}

func TestBatchAnalyzeSummaryInvariant(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, nil,
		filePart{"files", "a.png", "forged one"},
		filePart{"files", "b.png", "clean one"},
		filePart{"files", "c.png", "forged two"},
	)
	rec := doRequest(r, http.MethodPost, "/api/v1/batch-analyze", ct, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	decodeJSON(t, rec, &resp)
	require.True(t, strings.HasPrefix(resp.BatchID, "batch_"))
	require.Equal(t, 3, resp.TotalImages)
	require.Equal(t, 3, resp.ProcessedImages)
	require.Len(t, resp.Results, 3)

	require.Equal(t, 2, resp.Summary.Forged)
	require.Equal(t, 1, resp.Summary.Authentic)
	require.Equal(t, resp.ProcessedImages, resp.Summary.Authentic+resp.Summary.Forged)
	require.InDelta(t, (0.93+0.88+0.93)/3, resp.Summary.AvgConfidence, 1e-9)

	for _, res := range resp.Results {
		require.Equal(t, resp.BatchID, res.BatchID)
	}
}

func TestBatchAnalyzeSkipsInvalidFiles(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, nil,
		filePart{"files", "a.png", "clean"},
		filePart{"files", "readme.txt", "not an image"},
		filePart{"files", "b.png", "forged"},
	)
	rec := doRequest(r, http.MethodPost, "/api/v1/batch-analyze", ct, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	decodeJSON(t, rec, &resp)
	require.Equal(t, 3, resp.TotalImages)
	require.Equal(t, 2, resp.ProcessedImages)
	require.Equal(t, resp.ProcessedImages, resp.Summary.Authentic+resp.Summary.Forged)
}

func TestBatchAnalyzeNoFiles(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, map[string]string{"other": "field"})
	rec := doRequest(r, http.MethodPost, "/api/v1/batch-analyze", ct, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchAnalyzeTooManyFiles(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	var parts []filePart
	for i := 0; i < 11; i++ {
		parts = append(parts, filePart{"files", fmt.Sprintf("f%d.png", i), "clean"})
	}
	body, ct := multipartBody(t, nil, parts...)
	rec := doRequest(r, http.MethodPost, "/api/v1/batch-analyze", ct, body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, errorDetail(t, rec), "maximum 10 files")
}

func TestGetResultNotFound(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	rec := doRequest(r, http.MethodGet, "/api/v1/results/img_missing1", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, errorDetail(t, rec), "not found")
}

func TestGetResultRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	body, ct := multipartBody(t, map[string]string{"case_id": "img_cafe0001"},
		filePart{"file", "scan.png", "forged"})
	rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/v1/results/img_cafe0001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CaseID     string  `json:"case_id"`
		Result     string  `json:"result"`
		Confidence float64 `json:"confidence"`
		Status     string  `json:"status"`
	}
	decodeJSON(t, rec, &resp)
	require.Equal(t, "img_cafe0001", resp.CaseID)
	require.Equal(t, "forged", resp.Result)
	require.Equal(t, "completed", resp.Status)
}

func TestListResultsFilterByResult(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	for i, content := range []string{"forged a", "clean b", "forged c"} {
		body, ct := multipartBody(t, nil, filePart{"file", fmt.Sprintf("f%d.png", i), content})
		rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(r, http.MethodGet, "/api/v1/results?result=forged", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Total   int `json:"total"`
		Results []struct {
			Result string `json:"result"`
		} `json:"results"`
	}
	decodeJSON(t, rec, &resp)
	require.Equal(t, 2, resp.Total)
	for _, res := range resp.Results {
		require.Equal(t, "forged", res.Result)
	}
}

func TestListResultsRejectsUnknownResultName(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	rec := doRequest(r, http.MethodGet, "/api/v1/results?result=bogus", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatistics(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	for i, content := range []string{"forged", "clean", "clean"} {
		body, ct := multipartBody(t, nil, filePart{"file", fmt.Sprintf("f%d.png", i), content})
		rec := doRequest(r, http.MethodPost, "/api/v1/analyze", ct, body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(r, http.MethodGet, "/api/v1/statistics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TotalAnalyses  int     `json:"total_analyses"`
		AuthenticCount int     `json:"authentic_count"`
		ForgedCount    int     `json:"forged_count"`
		AvgConfidence  float64 `json:"avg_confidence"`
		ModelInfo      struct {
			Version   string `json:"version"`
			Device    string `json:"device"`
			ImageSize int    `json:"image_size"`
		} `json:"model_info"`
	}
	decodeJSON(t, rec, &resp)
	require.Equal(t, 3, resp.TotalAnalyses)
	require.Equal(t, 2, resp.AuthenticCount)
	require.Equal(t, 1, resp.ForgedCount)
	require.InDelta(t, (0.93+0.88+0.88)/3, resp.AvgConfidence, 1e-9)
	require.Equal(t, "1.0.0", resp.ModelInfo.Version)
	require.Equal(t, 512, resp.ModelInfo.ImageSize)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, &stubDetector{})

	rec := doRequest(r, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status       string `json:"status"`
		ModelsLoaded bool   `json:"models_loaded"`
	}
	decodeJSON(t, rec, &resp)
	require.Equal(t, "healthy", resp.Status)
	require.True(t, resp.ModelsLoaded)
}
