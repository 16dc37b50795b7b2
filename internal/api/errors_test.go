package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimeet/telehealth-scheduling/internal/booking"
	"github.com/medimeet/telehealth-scheduling/internal/instant"
	"github.com/medimeet/telehealth-scheduling/internal/schedule"
)

func TestHandleInstantError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", instant.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
		{"not participant", instant.ErrNotYourRequest, http.StatusForbidden, "not_your_request"},
		{"claim lost", instant.ErrNoLongerAvailable, http.StatusConflict, "no_longer_available"},
		{"cancel after accept", instant.ErrDoctorCommitted, http.StatusConflict, "doctor_already_accepted"},
		{"rate too early", instant.ErrNotCompleted, http.StatusConflict, "request_not_completed"},
		{"end outside session", instant.ErrNotInSession, http.StatusConflict, "not_in_session"},
		{"doctor missing", instant.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"rating range", instant.ErrInvalidRating, http.StatusUnprocessableEntity, "invalid_rating"},
		{"create in flight", instant.ErrRequestBeingCreated, http.StatusConflict, "request_being_created"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleInstantError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Error)
		})
	}
}

func TestHandleInstantErrorActiveRequest(t *testing.T) {
	existingID := uuid.New()
	rec := httptest.NewRecorder()

	handleInstantError(rec, &instant.ActiveRequestError{ExistingID: existingID})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error      string `json:"error"`
		ExistingID string `json:"existing_request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "active_request_exists", body.Error)
	assert.Equal(t, existingID.String(), body.ExistingID, "caller must be routed back to the surviving request")
}

func TestHandleBookingError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"doctor missing", booking.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"appointment missing", booking.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"not participant", booking.ErrNotYourAppointment, http.StatusForbidden, "not_your_appointment"},
		{"bad transition", booking.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{"rate too early", booking.ErrNotCompleted, http.StatusConflict, "appointment_not_completed"},
		{"rating range", booking.ErrInvalidRating, http.StatusUnprocessableEntity, "invalid_rating"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleBookingError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Error)
		})
	}
}

func TestHandleScheduleError(t *testing.T) {
	rec := httptest.NewRecorder()
	handleScheduleError(rec, schedule.ErrWindowInverted)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	handleScheduleError(rec, booking.ErrDoctorNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
