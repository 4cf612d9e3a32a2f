package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/library-reservations/internal/http/response"
	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

func (h *Handlers) GetWaitlistPosition(w http.ResponseWriter, r *http.Request) {
	entry, err := h.waitlist.Position(r.Context(), actor(r), chi.URLParam(r, "bookId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.WaitlistRes{Data: *entry})
}

func (h *Handlers) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	entry, err := h.waitlist.Join(r.Context(), actor(r), chi.URLParam(r, "bookId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.WaitlistRes{Data: *entry})
}

func (h *Handlers) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := h.waitlist.Leave(r.Context(), actor(r), chi.URLParam(r, "bookId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
