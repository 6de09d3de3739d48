package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	createExamFn      func(ctx context.Context, actor auth.Principal, in CreateExamInput) (*Exam, error)
	listExamsFn       func(ctx context.Context, f ExamFilter) (*ExamPage, error)
	getExamFn         func(ctx context.Context, actor auth.Principal, examID int64) (*Exam, error)
	updateExamFn      func(ctx context.Context, actor auth.Principal, examID int64, in UpdateExamInput) (*Exam, error)
	deleteExamFn      func(ctx context.Context, actor auth.Principal, examID int64) error
	setExamImageFn    func(ctx context.Context, actor auth.Principal, examID int64, img Image) (*Exam, error)
	enrollFn          func(ctx context.Context, actor auth.Principal, examID int64) (*Enrollment, error)
	listEnrollmentsFn func(ctx context.Context, actor auth.Principal) ([]Enrollment, error)
	startAttemptFn    func(ctx context.Context, actor auth.Principal, examID int64, identityImage string) (*Attempt, error)
	submitAttemptFn   func(ctx context.Context, actor auth.Principal, examID int64, answers []Answer) (*Attempt, error)
	submitReviewFn    func(ctx context.Context, actor auth.Principal, examID int64, rating int) (*Review, error)
	getResultFn       func(ctx context.Context, actor auth.Principal, examID int64) (*Result, error)
	listAttemptsFn    func(ctx context.Context, examID int64) ([]AttemptRecord, error)
}

func (m *mockExamService) CreateExam(ctx context.Context, actor auth.Principal, in CreateExamInput) (*Exam, error) {
	if m.createExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createExamFn(ctx, actor, in)
}

func (m *mockExamService) ListExams(ctx context.Context, f ExamFilter) (*ExamPage, error) {
	if m.listExamsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listExamsFn(ctx, f)
}

func (m *mockExamService) GetExam(ctx context.Context, actor auth.Principal, examID int64) (*Exam, error) {
	if m.getExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getExamFn(ctx, actor, examID)
}

func (m *mockExamService) UpdateExam(ctx context.Context, actor auth.Principal, examID int64, in UpdateExamInput) (*Exam, error) {
	if m.updateExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateExamFn(ctx, actor, examID, in)
}

func (m *mockExamService) DeleteExam(ctx context.Context, actor auth.Principal, examID int64) error {
	if m.deleteExamFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteExamFn(ctx, actor, examID)
}

func (m *mockExamService) SetExamImage(ctx context.Context, actor auth.Principal, examID int64, img Image) (*Exam, error) {
	if m.setExamImageFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.setExamImageFn(ctx, actor, examID, img)
}

func (m *mockExamService) Enroll(ctx context.Context, actor auth.Principal, examID int64) (*Enrollment, error) {
	if m.enrollFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.enrollFn(ctx, actor, examID)
}

func (m *mockExamService) ListEnrollments(ctx context.Context, actor auth.Principal) ([]Enrollment, error) {
	if m.listEnrollmentsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listEnrollmentsFn(ctx, actor)
}

func (m *mockExamService) StartAttempt(ctx context.Context, actor auth.Principal, examID int64, identityImage string) (*Attempt, error) {
	if m.startAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startAttemptFn(ctx, actor, examID, identityImage)
}

func (m *mockExamService) SubmitAttempt(ctx context.Context, actor auth.Principal, examID int64, answers []Answer) (*Attempt, error) {
	if m.submitAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitAttemptFn(ctx, actor, examID, answers)
}

func (m *mockExamService) SubmitReview(ctx context.Context, actor auth.Principal, examID int64, rating int) (*Review, error) {
	if m.submitReviewFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitReviewFn(ctx, actor, examID, rating)
}

func (m *mockExamService) GetResult(ctx context.Context, actor auth.Principal, examID int64) (*Result, error) {
	if m.getResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getResultFn(ctx, actor, examID)
}

func (m *mockExamService) ListAttempts(ctx context.Context, examID int64) ([]AttemptRecord, error) {
	if m.listAttemptsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAttemptsFn(ctx, examID)
}

type fakeUploader struct {
	folder, filename, contentType string
	body                          []byte
}

func (f *fakeUploader) Upload(_ context.Context, folder, filename, contentType string, body io.Reader) (string, string, error) {
	f.folder, f.filename, f.contentType = folder, filename, contentType
	b, err := io.ReadAll(body)
	if err != nil {
		return "", "", err
	}
	f.body = b
	return folder + "/" + filename, "https://cdn.example.test/" + folder + "/" + filename, nil
}

var (
	studentUser = &auth.User{ID: 200, Username: "student", Role: auth.RoleStudent}
	teacherUser = &auth.User{ID: 100, Username: "guru", Role: auth.RoleTeacher}
)

func TestSubmitAttemptHandlerPassesAnswers(t *testing.T) {
	var got []Answer
	end := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := &mockExamService{
		submitAttemptFn: func(_ context.Context, actor auth.Principal, examID int64, answers []Answer) (*Attempt, error) {
			if actor.ID != studentUser.ID || examID != 7 {
				t.Fatalf("unexpected actor %+v exam %d", actor, examID)
			}
			got = answers
			return &Attempt{ID: 1, UserID: actor.ID, ExamID: examID, Score: 8, Status: AttemptCompleted, EndTime: &end}, nil
		},
	}
	h := NewHandler(svc, nil)

	body := []byte(`{"answers":[{"question_id":1,"selected_option_index":0},{"question_id":2,"selected_option_index":2}]}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/exams/7/attempt", bytes.NewReader(body))
	req = withChiParam(req, "id", "7")
	req = req.WithContext(auth.ContextWithUser(req.Context(), studentUser))
	rr := httptest.NewRecorder()

	h.SubmitAttempt(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(got) != 2 || got[1].QuestionID != 2 || got[1].SelectedOptionIndex != 2 {
		t.Fatalf("unexpected answers %+v", got)
	}
	out := decodeBody(t, rr)
	data := out["data"].(map[string]interface{})
	if data["score"].(float64) != 8 {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestSubmitAttemptHandlerMapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "already completed", err: ErrAlreadyCompleted, want: http.StatusConflict},
		{name: "no attempt", err: ErrAttemptNotFound, want: http.StatusNotFound},
		{name: "unknown question", err: ErrQuestionNotFound, want: http.StatusUnprocessableEntity},
		{name: "duplicate answer", err: ErrDuplicateAnswer, want: http.StatusBadRequest},
		{name: "unclassified", err: errors.New("db down"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockExamService{
				submitAttemptFn: func(context.Context, auth.Principal, int64, []Answer) (*Attempt, error) {
					return nil, tc.err
				},
			}, nil)
			req := httptest.NewRequest(http.MethodPut, "/api/v1/exams/7/attempt", bytes.NewReader([]byte(`{"answers":[]}`)))
			req = withChiParam(req, "id", "7")
			req = req.WithContext(auth.ContextWithUser(req.Context(), studentUser))
			rr := httptest.NewRecorder()

			h.SubmitAttempt(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestExamHandlerRequiresUserAndValidID(t *testing.T) {
	h := NewHandler(&mockExamService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exams/7/result", nil)
	req = withChiParam(req, "id", "7")
	rr := httptest.NewRecorder()
	h.GetResult(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/exams/abc/result", nil)
	req = withChiParam(req, "id", "abc")
	req = req.WithContext(auth.ContextWithUser(req.Context(), studentUser))
	rr = httptest.NewRecorder()
	h.GetResult(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateExamHandler(t *testing.T) {
	h := NewHandler(&mockExamService{
		createExamFn: func(_ context.Context, actor auth.Principal, in CreateExamInput) (*Exam, error) {
			if actor.Role != auth.RoleTeacher || in.Name != "Mock Test" || in.Duration != 30 {
				t.Fatalf("unexpected input actor=%+v in=%+v", actor, in)
			}
			return &Exam{ID: 5, Name: in.Name, Duration: in.Duration, CreatedBy: actor.ID}, nil
		},
	}, nil)

	body := []byte(`{"name":"Mock Test","description":"d","duration":30,"scheduled_date":"2026-07-01T10:00:00Z","module":{"name":"A","questions":[]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams", bytes.NewReader(body))
	req = req.WithContext(auth.ContextWithUser(req.Context(), teacherUser))
	rr := httptest.NewRecorder()

	h.CreateExam(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateExamHandlerRejectsBadJSON(t *testing.T) {
	h := NewHandler(&mockExamService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams", bytes.NewReader([]byte(`{`)))
	req = req.WithContext(auth.ContextWithUser(req.Context(), teacherUser))
	rr := httptest.NewRecorder()

	h.CreateExam(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListExamsHandlerParsesQuery(t *testing.T) {
	var got ExamFilter
	h := NewHandler(&mockExamService{
		listExamsFn: func(_ context.Context, f ExamFilter) (*ExamPage, error) {
			got = f
			return &ExamPage{Items: []ExamSummary{}, Page: f.Page, Limit: f.Limit}, nil
		},
	}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exams?keyword=phys&page=2&limit=5", nil)
	rr := httptest.NewRecorder()

	h.ListExams(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.Keyword != "phys" || got.Page != 2 || got.Limit != 5 {
		t.Fatalf("unexpected filter %+v", got)
	}
}

func TestListAttemptsHandlerExamFilter(t *testing.T) {
	var got int64 = -1
	h := NewHandler(&mockExamService{
		listAttemptsFn: func(_ context.Context, examID int64) ([]AttemptRecord, error) {
			got = examID
			return []AttemptRecord{}, nil
		},
	}, nil)

	rr := httptest.NewRecorder()
	h.ListAttempts(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/attempts", nil))
	if rr.Code != http.StatusOK || got != 0 {
		t.Fatalf("expected all exams, got code=%d exam=%d", rr.Code, got)
	}

	rr = httptest.NewRecorder()
	h.ListAttempts(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/attempts?exam_id=x", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUploadImageHandler(t *testing.T) {
	var saved Image
	up := &fakeUploader{}
	h := NewHandler(&mockExamService{
		setExamImageFn: func(_ context.Context, _ auth.Principal, examID int64, img Image) (*Exam, error) {
			saved = img
			return &Exam{ID: examID, Image: &img}, nil
		},
	}, up)

	req := imageUploadRequest(t, "cover.png", "image/png", []byte("png-bytes"))
	req = withChiParam(req, "id", "7")
	req = req.WithContext(auth.ContextWithUser(req.Context(), teacherUser))
	rr := httptest.NewRecorder()

	h.UploadImage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if up.folder != "exams/7" || up.filename != "cover.png" || string(up.body) != "png-bytes" {
		t.Fatalf("unexpected upload %+v", up)
	}
	if saved.PublicID != "exams/7/cover.png" {
		t.Fatalf("unexpected image %+v", saved)
	}
}

func TestUploadImageHandlerRejectsContentType(t *testing.T) {
	h := NewHandler(&mockExamService{}, &fakeUploader{})

	req := imageUploadRequest(t, "notes.txt", "text/plain", []byte("hello"))
	req = withChiParam(req, "id", "7")
	req = req.WithContext(auth.ContextWithUser(req.Context(), teacherUser))
	rr := httptest.NewRecorder()

	h.UploadImage(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func imageUploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exams/7/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rr.Body.String())
	}
	return out
}
