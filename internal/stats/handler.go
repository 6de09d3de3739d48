package stats

import (
	"context"
	"net/http"
	"strconv"

	"examportal/internal/app/apiresp"
)

type statsService interface {
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

type Handler struct {
	svc statsService
}

func NewHandler(svc statsService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.List(r.Context(), limit)
	if err != nil {
		apiresp.WriteErr(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}
