package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/financetracker/backend/internal/logger"
)

// SlowRequestThreshold is the duration above which Timing logs a warning.
const SlowRequestThreshold = 500 * time.Millisecond

// Timing adds a Server-Timing header (visible in browser DevTools) and
// warns about slow requests.
func Timing(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &timingResponseWriter{ResponseWriter: w, start: start, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			if duration := time.Since(start); duration > SlowRequestThreshold {
				log.Warn(r.Context(), "slow request", map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      wrapped.statusCode,
					"duration_ms": duration.Milliseconds(),
				})
			}
		})
	}
}

// timingResponseWriter sets Server-Timing just before the header is sent.
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.statusCode = code
		w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *timingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return "total;dur=" + strconv.FormatFloat(ms, 'f', 2, 64)
}
