package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/exams/123/attempt")
	want := "/api/v1/exams/{id}/attempt"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractExamID(t *testing.T) {
	if id := extractExamID("/api/v1/exams/456/result"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractExamID("/api/v1/admin/attempts"); id != 0 {
		t.Fatalf("expected 0 for non-exam path, got %d", id)
	}
}

func TestMiddlewareLogsAndCounts(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	c := NewCollector(nil, logger)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/exams/7/attempt", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	if entry["status"].(float64) != 409 || entry["exam_id"].(float64) != 7 || entry["level"] != "warning" {
		t.Fatalf("unexpected log entry %v", entry)
	}

	rr := httptest.NewRecorder()
	c.MetricsHandler(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/metrics", nil))
	want := `examportal_http_requests_total{method="PUT",path="/api/v1/exams/{id}/attempt",status="409"} 1`
	if !strings.Contains(rr.Body.String(), want) {
		t.Fatalf("metrics missing %q:\n%s", want, rr.Body.String())
	}
}

func TestReporterWithoutTokenOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	r := NewReporter(ReporterConfig{}, logger)
	if r.Enabled() {
		t.Fatalf("reporter should be disabled without a token")
	}
	r.ReportRequest(httptest.NewRequest(http.MethodGet, "/api/v1/exams", nil), errors.New("boom"))
	r.Close()
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected error logged, got %q", buf.String())
	}
}
