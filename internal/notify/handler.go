package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"examportal/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type mailService interface {
	BroadcastToStudents(ctx context.Context, in MailInput) (*BroadcastResult, error)
	SendToUser(ctx context.Context, userID int64, in MailInput) error
}

type Handler struct {
	svc mailService
}

func NewHandler(svc mailService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req MailInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.BroadcastToStudents(r.Context(), req)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) SendToUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	var req MailInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.SendToUser(r.Context(), userID, req); err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"sent": true, "user_id": userID})
}
