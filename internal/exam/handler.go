package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

const maxImageBytes = 5 << 20

// ImageUploader stores raw image bytes and returns where they live.
type ImageUploader interface {
	Upload(ctx context.Context, folder, filename, contentType string, body io.Reader) (publicID, secureURL string, err error)
}

type Handler struct {
	svc      examService
	uploader ImageUploader
}

type examService interface {
	CreateExam(ctx context.Context, actor auth.Principal, in CreateExamInput) (*Exam, error)
	ListExams(ctx context.Context, f ExamFilter) (*ExamPage, error)
	GetExam(ctx context.Context, actor auth.Principal, examID int64) (*Exam, error)
	UpdateExam(ctx context.Context, actor auth.Principal, examID int64, in UpdateExamInput) (*Exam, error)
	DeleteExam(ctx context.Context, actor auth.Principal, examID int64) error
	SetExamImage(ctx context.Context, actor auth.Principal, examID int64, img Image) (*Exam, error)
	Enroll(ctx context.Context, actor auth.Principal, examID int64) (*Enrollment, error)
	ListEnrollments(ctx context.Context, actor auth.Principal) ([]Enrollment, error)
	StartAttempt(ctx context.Context, actor auth.Principal, examID int64, identityImage string) (*Attempt, error)
	SubmitAttempt(ctx context.Context, actor auth.Principal, examID int64, answers []Answer) (*Attempt, error)
	SubmitReview(ctx context.Context, actor auth.Principal, examID int64, rating int) (*Review, error)
	GetResult(ctx context.Context, actor auth.Principal, examID int64) (*Result, error)
	ListAttempts(ctx context.Context, examID int64) ([]AttemptRecord, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startAttemptRequest struct {
	IdentityImage string `json:"identity_image"`
}

type submitAttemptRequest struct {
	Answers []Answer `json:"answers"`
}

type reviewRequest struct {
	Rating int `json:"rating"`
}

func NewHandler(svc examService, uploader ImageUploader) *Handler {
	return &Handler{svc: svc, uploader: uploader}
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	out, err := h.svc.ListExams(r.Context(), ExamFilter{Keyword: q.Get("keyword"), Page: page, Limit: limit})
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	out, err := h.svc.GetExam(r.Context(), user.Principal(), examID)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	var req CreateExamInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	out, err := h.svc.CreateExam(r.Context(), user.Principal(), req)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: out})
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req UpdateExamInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	out, err := h.svc.UpdateExam(r.Context(), user.Principal(), examID, req)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) DeleteExam(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteExam(r.Context(), user.Principal(), examID); err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]interface{}{"deleted": true, "exam_id": examID}})
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	if h.uploader == nil {
		writeJSON(w, r, http.StatusServiceUnavailable, response{OK: false, Error: "media storage is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "image file is required (max 5MB)"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
	default:
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "image must be jpeg, png or webp"})
		return
	}

	folder := fmt.Sprintf("exams/%d", examID)
	publicID, secureURL, err := h.uploader.Upload(r.Context(), folder, path.Base(header.Filename), contentType, file)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	out, err := h.svc.SetExamImage(r.Context(), user.Principal(), examID, Image{PublicID: publicID, SecureURL: secureURL})
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Enroll(r.Context(), user.Principal(), examID)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: out})
}

func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	out, err := h.svc.ListEnrollments(r.Context(), user.Principal())
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	out, err := h.svc.StartAttempt(r.Context(), user.Principal(), examID, req.IdentityImage)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: out})
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req submitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	out, err := h.svc.SubmitAttempt(r.Context(), user.Principal(), examID, req.Answers)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	out, err := h.svc.SubmitReview(r.Context(), user.Principal(), examID, req.Rating)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	user, examID, ok := h.requestScope(w, r)
	if !ok {
		return
	}
	out, err := h.svc.GetResult(r.Context(), user.Principal(), examID)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	var examID int64
	if v := strings.TrimSpace(r.URL.Query().Get("exam_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam_id"})
			return
		}
		examID = id
	}
	out, err := h.svc.ListAttempts(r.Context(), examID)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: out})
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return nil, 0, false
	}
	examID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || examID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return nil, 0, false
	}
	return user, examID, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
