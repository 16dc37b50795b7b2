package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/medimeet/telehealth-scheduling/internal/instant"
	redisclient "github.com/medimeet/telehealth-scheduling/internal/redis"
)

const maxAwaitTimeout = 30 * time.Second

func createInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInstantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Specialty == "" {
			writeError(w, http.StatusBadRequest, "missing_specialty", "specialty is required")
			return
		}

		created, err := svc.CreateRequest(r.Context(), GetActorID(r.Context()), req.Specialty)
		if err != nil {
			handleInstantError(w, err)
			return
		}

		instantRequestsCreated.Inc()
		writeJSON(w, http.StatusCreated, toInstantResponse(created))
	}
}

func listPendingHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := svc.ListPending(r.Context(), GetActorID(r.Context()), r.URL.Query().Get("specialty"))
		if err != nil {
			handleInstantError(w, err)
			return
		}

		resp := make([]InstantRequestResponse, 0, len(reqs))
		for i := range reqs {
			resp = append(resp, toInstantResponse(&reqs[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func instantStatusHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := svc.Status(r.Context(), id, GetActorID(r.Context()))
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(req))
	}
}

// awaitMatchHandler long-polls until the request leaves waiting or the
// timeout lapses, then returns the snapshot either way. Clients that prefer
// plain polling just hit the status endpoint instead.
func awaitMatchHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		timeout := maxAwaitTimeout
		if raw := r.URL.Query().Get("timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_timeout", "timeout must be a positive duration")
				return
			}
			if d < timeout {
				timeout = d
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		req, err := svc.AwaitMatch(ctx, id, GetActorID(r.Context()))
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(req))
	}
}

func payInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := svc.ConfirmPayment(r.Context(), id, GetActorID(r.Context()))
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(req))
	}
}

func acceptInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := svc.Accept(r.Context(), id, GetActorID(r.Context()))
		if err != nil {
			if errors.Is(err, instant.ErrNoLongerAvailable) {
				instantAccepts.WithLabelValues("lost").Inc()
			}
			handleInstantError(w, err)
			return
		}

		instantAccepts.WithLabelValues("won").Inc()
		writeJSON(w, http.StatusOK, toInstantResponse(req))
	}
}

func startInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := svc.Start(r.Context(), id)
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(req))
	}
}

func endInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req EndInstantRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		updated, err := svc.End(r.Context(), id, req.Notes, req.Transcription)
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(updated))
	}
}

func cancelInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		req, err := svc.Cancel(r.Context(), id, GetActorID(r.Context()))
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(req))
	}
}

func rateInstantRequestHandler(svc *instant.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req RateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.Rate(r.Context(), id, GetActorID(r.Context()), req.Rating, req.Review)
		if err != nil {
			handleInstantError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInstantResponse(updated))
	}
}

func handleInstantError(w http.ResponseWriter, err error) {
	var activeErr *instant.ActiveRequestError

	switch {
	case errors.As(err, &activeErr):
		writeJSON(w, http.StatusConflict, struct {
			ErrorResponse
			ExistingID string `json:"existing_request_id"`
		}{
			ErrorResponse: ErrorResponse{Error: "active_request_exists", Details: err.Error()},
			ExistingID:    activeErr.ExistingID.String(),
		})
	case errors.Is(err, instant.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, instant.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, instant.ErrNotYourRequest):
		writeError(w, http.StatusForbidden, "not_your_request", err.Error())
	case errors.Is(err, instant.ErrNoLongerAvailable):
		writeError(w, http.StatusConflict, "no_longer_available", err.Error())
	case errors.Is(err, instant.ErrDoctorCommitted):
		writeError(w, http.StatusConflict, "doctor_already_accepted", err.Error())
	case errors.Is(err, instant.ErrNotCompleted):
		writeError(w, http.StatusConflict, "request_not_completed", err.Error())
	case errors.Is(err, instant.ErrNotInSession):
		writeError(w, http.StatusConflict, "not_in_session", err.Error())
	case errors.Is(err, instant.ErrInvalidRating):
		writeError(w, http.StatusUnprocessableEntity, "invalid_rating", err.Error())
	case errors.Is(err, instant.ErrRequestBeingCreated),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "request_being_created", "a create is already in flight for this patient, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
