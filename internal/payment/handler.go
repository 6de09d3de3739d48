package payment

import (
	"context"
	"encoding/json"
	"net/http"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"
	"examportal/internal/exam"
)

type paymentService interface {
	CreateOrder(ctx context.Context, actor auth.Principal, examID int64) (*Checkout, error)
	VerifyPayment(ctx context.Context, actor auth.Principal, in VerifyInput) (*exam.Enrollment, error)
}

type Handler struct {
	svc paymentService
}

type createOrderRequest struct {
	ExamID int64 `json:"exam_id"`
}

func NewHandler(svc paymentService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExamID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.CreateOrder(r.Context(), user.Principal(), req.ExamID)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, out)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req VerifyInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.VerifyPayment(r.Context(), user.Principal(), req)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}
