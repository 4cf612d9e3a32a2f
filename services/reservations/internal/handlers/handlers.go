package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	httpmw "github.com/diagnosis/library-reservations/internal/http/middleware"
	"github.com/diagnosis/library-reservations/internal/http/response"
	"github.com/diagnosis/library-reservations/pkg/logger"
	mw "github.com/diagnosis/library-reservations/pkg/middleware"
	"github.com/diagnosis/library-reservations/services/reservations/internal/service"
)

const maxBodyBytes = 1 << 20

type Options struct {
	JWTSecret   string
	RateLimiter *httpmw.RateLimiter
	Idempotency mw.IdempotencyStore
}

type Handlers struct {
	reservations service.ReservationService
	waitlist     service.WaitlistService
	opts         Options
}

func New(reservations service.ReservationService, waitlist service.WaitlistService, opts Options) *Handlers {
	return &Handlers{
		reservations: reservations,
		waitlist:     waitlist,
		opts:         opts,
	}
}

// Routes mounts every authenticated endpoint. Callers add request ID,
// logging and CORS around it.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmw.RequireJWT(h.opts.JWTSecret))
	if h.opts.RateLimiter != nil {
		r.Use(h.opts.RateLimiter.Middleware())
	}
	if h.opts.Idempotency != nil {
		r.Use(mw.IdempotencyMiddleware(h.opts.Idempotency, memberScope))
	}

	r.Route("/reservations", func(r chi.Router) {
		r.Get("/", h.ListReservations)
		r.Post("/", h.CreateReservation)
		r.Get("/overdue", h.ListOverdue)
		r.Post("/recurring", h.CreateRecurring)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetReservation)
			r.Put("/", h.UpdateReservation)
			r.Delete("/", h.CancelReservation)
			r.Get("/history", h.GetHistory)
			r.Put("/notifications", h.UpdateNotifications)
			r.Put("/complete", h.CompleteReservation)
			r.Put("/extend", h.ExtendReservation)
		})
	})

	r.Route("/books/{bookId}/waitlist", func(r chi.Router) {
		r.Get("/", h.GetWaitlistPosition)
		r.Post("/", h.JoinWaitlist)
		r.Delete("/", h.LeaveWaitlist)
	})

	return r
}

func memberScope(r *http.Request) string {
	if c := httpmw.Claims(r); c != nil {
		return c.UserID()
	}
	return ""
}

func actor(r *http.Request) service.Actor {
	c := httpmw.Claims(r)
	if c == nil {
		return service.Actor{}
	}
	return service.Actor{UserID: c.UserID(), Email: c.Email, Librarian: c.IsLibrarian()}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	return true
}

// writeServiceError maps service errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vf *service.ValidationFailedError
	switch {
	case errors.As(err, &vf):
		fields := make([]response.FieldError, len(vf.Errors))
		for i, e := range vf.Errors {
			fields[i] = response.FieldError{Field: e.Field, Message: e.Message}
		}
		response.ValidationErrors(w, fields)
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, "Reservation not found")
	case errors.Is(err, service.ErrNotOnWaitlist):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		response.WriteError(w, http.StatusConflict, "Reservation can no longer change to that status", response.CodeInvalidTransition)
	default:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}

// Helper to parse pagination parameters
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
