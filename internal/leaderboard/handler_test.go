package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"examportal/internal/exam"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type mockBoardService struct {
	topNFn           func(ctx context.Context, examID int64, n int) (*Board, error)
	exportReportFn   func(ctx context.Context, examID int64) ([]byte, error)
	averageRatingsFn func(ctx context.Context) ([]ExamRating, error)
}

func (m *mockBoardService) TopN(ctx context.Context, examID int64, n int) (*Board, error) {
	if m.topNFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.topNFn(ctx, examID, n)
}

func (m *mockBoardService) ExportReport(ctx context.Context, examID int64) ([]byte, error) {
	if m.exportReportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportReportFn(ctx, examID)
}

func (m *mockBoardService) AverageRatings(ctx context.Context) ([]ExamRating, error) {
	if m.averageRatingsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.averageRatingsFn(ctx)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestTopHandler(t *testing.T) {
	var gotN int
	h := NewHandler(&mockBoardService{
		topNFn: func(_ context.Context, examID int64, n int) (*Board, error) {
			gotN = n
			return &Board{ExamID: examID, Entries: []Entry{{Rank: 1, Username: "alice", Score: 8}}}, nil
		},
	}, NewHub(), quietLogger())

	req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/v1/exams/4/top?n=5", nil), "id", "4")
	rr := httptest.NewRecorder()
	h.Top(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotN != 5 {
		t.Fatalf("expected n=5, got %d", gotN)
	}
	var out struct {
		Data Board `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.ExamID != 4 || out.Data.Entries[0].Username != "alice" {
		t.Fatalf("unexpected board %+v", out.Data)
	}
}

func TestTopHandlerNotFound(t *testing.T) {
	h := NewHandler(&mockBoardService{
		topNFn: func(context.Context, int64, int) (*Board, error) { return nil, exam.ErrExamNotFound },
	}, NewHub(), quietLogger())

	req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/v1/exams/4/top", nil), "id", "4")
	rr := httptest.NewRecorder()
	h.Top(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestReportHandlerDownload(t *testing.T) {
	h := NewHandler(&mockBoardService{
		exportReportFn: func(context.Context, int64) ([]byte, error) { return []byte("xlsx"), nil },
	}, NewHub(), quietLogger())

	req := withChiParam(httptest.NewRequest(http.MethodGet, "/api/v1/exams/9/report", nil), "id", "9")
	rr := httptest.NewRecorder()
	h.Report(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "xlsx" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "exam_9_report.xlsx") {
		t.Fatalf("unexpected disposition %q", cd)
	}
}

func TestLiveHandlerStreamsBoards(t *testing.T) {
	hub := NewHub()
	h := NewHandler(&mockBoardService{
		topNFn: func(_ context.Context, examID int64, _ int) (*Board, error) {
			return &Board{ExamID: examID, Entries: []Entry{}}, nil
		},
	}, hub, quietLogger())

	r := chi.NewRouter()
	r.Get("/exams/{id}/leaderboard/ws", h.Live)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/exams/6/leaderboard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type    string `json:"type"`
		Payload Board  `json:"payload"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial board: %v", err)
	}
	if first.Type != "leaderboard" || first.Payload.ExamID != 6 {
		t.Fatalf("unexpected initial message %+v", first)
	}

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers(6) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish(&Board{ExamID: 6, Entries: []Entry{{Rank: 1, Username: "bob", Score: 3}}})

	var next struct {
		Type    string `json:"type"`
		Payload Board  `json:"payload"`
	}
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if len(next.Payload.Entries) != 1 || next.Payload.Entries[0].Username != "bob" {
		t.Fatalf("unexpected update %+v", next)
	}
}

func TestLiveHandlerQueuesSubmissionDuringInitialRead(t *testing.T) {
	hub := NewHub()
	h := NewHandler(&mockBoardService{
		topNFn: func(_ context.Context, examID int64, _ int) (*Board, error) {
			hub.Publish(&Board{ExamID: examID, Entries: []Entry{{Rank: 1, Username: "bo", Score: 10}}})
			return &Board{ExamID: examID, Entries: []Entry{{Rank: 1, Username: "ana", Score: 5}}}, nil
		},
	}, hub, quietLogger())

	r := chi.NewRouter()
	r.Get("/exams/{id}/leaderboard/ws", h.Live)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/exams/6/leaderboard/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	for i, want := range []string{"ana", "bo"} {
		var msg struct {
			Payload Board `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if len(msg.Payload.Entries) != 1 || msg.Payload.Entries[0].Username != want {
			t.Fatalf("message %d: expected %s, got %+v", i, want, msg.Payload.Entries)
		}
	}
}

func TestLiveHandlerOrigin(t *testing.T) {
	h := NewHandler(&mockBoardService{
		topNFn: func(_ context.Context, examID int64, _ int) (*Board, error) {
			return &Board{ExamID: examID}, nil
		},
	}, NewHub(), quietLogger())

	r := chi.NewRouter()
	r.Get("/exams/{id}/leaderboard/ws", h.Live)
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/exams/6/leaderboard/ws"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{name: "no origin", origin: "", ok: true},
		{name: "same origin", origin: srv.URL, ok: true},
		{name: "other site", origin: "https://attacker.example", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatalf("expected handshake to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Fatalf("expected 403, got %+v", resp)
			}
		})
	}
}
