package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examportal/internal/app/observability"
	"examportal/internal/auth"

	"github.com/sirupsen/logrus"
)

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *Services) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := Config{AppEnv: "test", JWTSecret: "test-secret", JWTTTLHours: 1, AuthRateLimitPerMin: 100}
	svcs, err := BuildMemoryServices(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	t.Cleanup(svcs.Close)
	return NewRouter(cfg, svcs, observability.NewCollector(nil, logger), logger), svcs
}

func call(t *testing.T, h http.Handler, method, target, token string, body any) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr.Code, env
}

func login(t *testing.T, h http.Handler, identifier, password string) string {
	t.Helper()
	code, env := call(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": identifier, "password": password})
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d", identifier, code)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil || out.Token == "" {
		t.Fatalf("login %s: no token (%v)", identifier, err)
	}
	return out.Token
}

func TestRouterExamLifecycle(t *testing.T) {
	h, svcs := newTestRouter(t)
	ctx := context.Background()

	if _, err := svcs.Auth.CreateUser(ctx, auth.RegisterInput{
		Username: "teacher", FullName: "Tess Teacher", Email: "teacher@example.com", Password: "teacherpass",
	}, auth.RoleTeacher); err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	teacherToken := login(t, h, "teacher", "teacherpass")

	code, _ := call(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "sam", "full_name": "Sam Student", "email": "sam@example.com", "password": "studentpass",
	})
	if code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", code)
	}
	studentToken := login(t, h, "sam", "studentpass")

	examBody := map[string]any{
		"name":           "Go Basics",
		"description":    "Intro quiz",
		"scheduled_date": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"duration":       30,
		"price":          "0",
		"rules":          []string{"no notes"},
		"module": map[string]any{
			"name": "Go",
			"questions": []map[string]any{{
				"text":                 map[string]string{"en": "2+2?"},
				"options":              map[string][]string{"en": {"3", "4"}},
				"correct_option_index": []int{1},
				"marks":                4,
				"subject":              "math",
			}},
		},
	}
	if code, _ := call(t, h, http.MethodPost, "/api/v1/exams", studentToken, examBody); code != http.StatusForbidden {
		t.Fatalf("student create exam: expected 403, got %d", code)
	}
	code, env := call(t, h, http.MethodPost, "/api/v1/exams", teacherToken, examBody)
	if code != http.StatusCreated {
		t.Fatalf("create exam: expected 201, got %d", code)
	}
	var created struct {
		ID     int64 `json:"id"`
		Module struct {
			Questions []struct {
				ID int64 `json:"id"`
			} `json:"questions"`
		} `json:"module"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil || created.ID == 0 || len(created.Module.Questions) != 1 {
		t.Fatalf("unexpected created exam %s (%v)", env.Data, err)
	}
	base := fmt.Sprintf("/api/v1/exams/%d", created.ID)

	steps := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{name: "enroll", method: http.MethodPost, target: base + "/enroll", want: http.StatusCreated},
		{name: "enroll again", method: http.MethodPost, target: base + "/enroll", want: http.StatusConflict},
		{name: "result before start", method: http.MethodGet, target: base + "/result", want: http.StatusNotFound},
		{name: "start", method: http.MethodPost, target: base + "/attempt", body: map[string]string{"identity_image": "selfie.png"}, want: http.StatusCreated},
		{name: "start again", method: http.MethodPost, target: base + "/attempt", body: map[string]string{"identity_image": "selfie.png"}, want: http.StatusConflict},
		{name: "submit", method: http.MethodPut, target: base + "/attempt", body: map[string]any{
			"answers": []map[string]any{{"question_id": created.Module.Questions[0].ID, "selected_option_index": 1}},
		}, want: http.StatusOK},
		{name: "submit again", method: http.MethodPut, target: base + "/attempt", body: map[string]any{"answers": []any{}}, want: http.StatusConflict},
		{name: "review", method: http.MethodPost, target: base + "/review", body: map[string]int{"rating": 5}, want: http.StatusOK},
		{name: "result", method: http.MethodGet, target: base + "/result", want: http.StatusOK},
	}
	for _, st := range steps {
		if code, _ := call(t, h, st.method, st.target, studentToken, st.body); code != st.want {
			t.Fatalf("%s: expected %d, got %d", st.name, st.want, code)
		}
	}

	code, env = call(t, h, http.MethodGet, base+"/top", studentToken, nil)
	if code != http.StatusOK {
		t.Fatalf("top: expected 200, got %d", code)
	}
	var board struct {
		Entries []struct {
			Username string  `json:"username"`
			Score    float64 `json:"score"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(env.Data, &board); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if len(board.Entries) != 1 || board.Entries[0].Username != "sam" || board.Entries[0].Score != 4 {
		t.Fatalf("unexpected board %s", env.Data)
	}
}

func TestRouterAccessControl(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{name: "health", method: http.MethodGet, target: "/healthz", want: http.StatusOK},
		{name: "public listing", method: http.MethodGet, target: "/api/v1/exams", want: http.StatusOK},
		{name: "public ratings", method: http.MethodGet, target: "/api/v1/exams/ratings", want: http.StatusOK},
		{name: "exam needs auth", method: http.MethodGet, target: "/api/v1/exams/1", want: http.StatusUnauthorized},
		{name: "admin needs auth", method: http.MethodGet, target: "/api/v1/admin/stats", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := call(t, h, tc.method, tc.target, "", nil); code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, code)
			}
		})
	}
}
