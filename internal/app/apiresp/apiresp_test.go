package apiresp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"examportal/internal/apperr"
)

func TestWriteErrClassified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	WriteErr(w, req, apperr.Conflict("duplicate_attempt", "attempt already exists"))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.OK || env.Error == nil || env.Error.Code != "duplicate_attempt" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestWriteErrHidesInternalDetails(t *testing.T) {
	var reported error
	SetInternalReporter(func(r *http.Request, err error) { reported = err })
	defer SetInternalReporter(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	WriteErr(w, req, errors.New("pq: connection refused at 10.0.0.3"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var env Envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env.Error == nil || env.Error.Message != "internal error" {
		t.Fatalf("expected generic message, got %+v", env.Error)
	}
	if reported == nil {
		t.Fatalf("expected internal error to be reported")
	}
}
