package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cavotieno/forgery-analyzer/internal/metrics"
)

// RequestLogger logs every request with its status and latency, sets
// the X-Process-Time header, and feeds the HTTP metrics.
func RequestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK, start: start}

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", elapsed.Milliseconds(),
			)
			if m != nil {
				m.ObserveRequest(r.Method, r.URL.Path, sw.status, elapsed)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	start       time.Time
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.2f", float64(time.Since(w.start).Microseconds())/1000.0))
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
