package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/library-reservations/internal/http/response"
	"github.com/diagnosis/library-reservations/services/reservations/internal/domain"
)

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := domain.ListFilter{
		UserID: r.URL.Query().Get("userId"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			response.BadRequest(w, "Invalid status parameter")
			return
		}
		filter.Status = &st
	}

	res, err := h.reservations.List(r.Context(), actor(r), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) ListOverdue(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.ListOverdue(r.Context(), actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReservationReq
	if !decode(w, r, &req) {
		return
	}

	res, err := h.reservations.Create(r.Context(), actor(r), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, domain.ReservationRes{Data: *res})
}

func (h *Handlers) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReservationReq
	if !decode(w, r, &req) {
		return
	}

	series, err := h.reservations.CreateRecurring(r.Context(), actor(r), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, domain.SeriesRes{Data: series})
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.ReservationRes{Data: *res})
}

func (h *Handlers) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	var patch domain.ReservationPatch
	if !decode(w, r, &patch) {
		return
	}

	res, err := h.reservations.Update(r.Context(), actor(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.ReservationRes{Data: *res})
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.reservations.Cancel(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.reservations.History(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.HistoryRes{Data: history})
}

func (h *Handlers) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationsReq
	if !decode(w, r, &req) {
		return
	}

	res, err := h.reservations.UpdateNotifications(r.Context(), actor(r), chi.URLParam(r, "id"), req.Notifications)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.ReservationRes{Data: *res})
}

func (h *Handlers) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	var req domain.CompleteReq
	if !decode(w, r, &req) {
		return
	}

	completion, err := h.reservations.Complete(r.Context(), actor(r), chi.URLParam(r, "id"), req.ReturnDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, completion)
}

func (h *Handlers) ExtendReservation(w http.ResponseWriter, r *http.Request) {
	var req domain.ExtendReq
	if !decode(w, r, &req) {
		return
	}

	res, err := h.reservations.Extend(r.Context(), actor(r), chi.URLParam(r, "id"), req.ReturnDate)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, domain.ReservationRes{Data: *res})
}
