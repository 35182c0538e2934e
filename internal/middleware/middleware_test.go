package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/financetracker/backend/internal/errors"
	"github.com/financetracker/backend/internal/logger"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = apperrors.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(apperrors.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(apperrors.RequestIDHeader, "client-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "client-id", seen)

	req.Header.Set(apperrors.RequestIDHeader, strings.Repeat("x", 200))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, strings.Repeat("x", 200), seen)
}

func TestLogging_RedactsTokenQuery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Output: &buf, Level: logger.LevelDebug})

	h := Chain(okHandler(`{}`), RequestID, Logging(log))
	req := httptest.NewRequest(http.MethodGet, "/api/ws?token=abc.def.ghi&x=1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry logger.Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry.Message)
	assert.NotEmpty(t, entry.RequestID)
	assert.Equal(t, "203.0.113.9", entry.Fields["client_ip"])
	assert.NotContains(t, buf.String(), "abc.def.ghi")

	q, err := url.ParseQuery(entry.Fields["query"].(string))
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", q.Get("token"))
	assert.Equal(t, "1", q.Get("x"))
}

func TestLogging_LevelsByStatus(t *testing.T) {
	for status, level := range map[int]string{200: "info", 404: "warn", 503: "error"} {
		var buf bytes.Buffer
		log := logger.New(&logger.Config{Output: &buf, Level: logger.LevelDebug})
		h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		var entry logger.Entry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, level, entry.Level, "status %d", status)
	}
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Output: &buf, Level: logger.LevelDebug})

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom: secret detail")
	}), RequestID, Recoverer(log))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp apperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, apperrors.CodeInternalError, resp.Error.Code)
	assert.Equal(t, "an unexpected error occurred", resp.Error.Message)
	assert.NotEmpty(t, resp.Error.RequestID)
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler(`{}`))

	req := httptest.NewRequest(http.MethodOptions, "/api/transactions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGzip(t *testing.T) {
	body := strings.Repeat(`{"category":"Food"}`, 50)
	h := Gzip(okHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, body, w.Body.String())
}

func TestTiming_SetsHeaderBeforeBody(t *testing.T) {
	h := Timing(logger.Nop())(okHandler(`{}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, strings.HasPrefix(w.Header().Get("Server-Timing"), "total;dur="))
	assert.Equal(t, `{}`, w.Body.String())
}

func TestETag(t *testing.T) {
	h := ETag(okHandler(`{"income":["Salary"]}`))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, `{"income":["Salary"]}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestETag_PassesErrorsThrough(t *testing.T) {
	h := ETag(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{}}`)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))
	assert.Equal(t, `{"error":{}}`, w.Body.String())
}
