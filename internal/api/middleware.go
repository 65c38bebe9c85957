package api

import (
	"net/http"
	"strconv"
	"time"

	"hospalloc/internal/buildinfo"
	"hospalloc/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware records request counts and durations on the package
// registry. Paths are recorded as registered route patterns, not raw
// URLs, to keep label cardinality bounded.
func MetricsMiddleware(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, pattern, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, pattern, status).Observe(time.Since(start).Seconds())
	}
}

// VersionHandler reports build metadata.
func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info())
}
