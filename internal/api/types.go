package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/telehealth-scheduling/internal/booking"
	"github.com/medimeet/telehealth-scheduling/internal/instant"
)

type CreateAppointmentRequest struct {
	DoctorID        string  `json:"doctor_id"`
	ScheduledAt     string  `json:"scheduled_at"` // RFC3339
	DurationMinutes int     `json:"duration_minutes"`
	Amount          int64   `json:"amount"`
	Notes           *string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	Amount          int64     `json:"amount"`
	MeetingLink     string    `json:"meeting_link"`
	Notes           *string   `json:"notes,omitempty"`
	Rating          *int      `json:"rating,omitempty"`
	Review          *string   `json:"review,omitempty"`
	Joinable        bool      `json:"joinable"`
}

type CompleteAppointmentRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type RateRequest struct {
	Rating int     `json:"rating"`
	Review *string `json:"review,omitempty"`
}

type UpdateAvailabilityRequest struct {
	WorkingDays []string `json:"working_days"`
	StartTime   string   `json:"start_time"` // HH:MM
	EndTime     string   `json:"end_time"`   // HH:MM
	SlotMinutes int      `json:"slot_minutes"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
}

type CreateInstantRequest struct {
	Specialty string `json:"specialty"`
}

type InstantRequestResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      *uuid.UUID `json:"doctor_id,omitempty"`
	Specialty     string     `json:"specialty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	Amount        int64      `json:"amount"`
	MeetingLink   string     `json:"meeting_link"`
	MatchedAt     *time.Time `json:"matched_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Rating        *int       `json:"rating,omitempty"`
	Review        *string    `json:"review,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type EndInstantRequest struct {
	Notes         *string `json:"notes,omitempty"`
	Transcription *string `json:"transcription,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment, joinable bool) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		PaymentStatus:   string(a.PaymentStatus),
		Amount:          a.Amount,
		MeetingLink:     a.MeetingLink,
		Notes:           a.Notes,
		Rating:          a.Rating,
		Review:          a.Review,
		Joinable:        joinable,
	}
}

func toInstantResponse(r *instant.Request) InstantRequestResponse {
	return InstantRequestResponse{
		ID:            r.ID,
		PatientID:     r.PatientID,
		DoctorID:      r.DoctorID,
		Specialty:     r.Specialty,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		Amount:        r.Amount,
		MeetingLink:   r.MeetingLink,
		MatchedAt:     r.MatchedAt,
		CompletedAt:   r.CompletedAt,
		Rating:        r.Rating,
		Review:        r.Review,
		CreatedAt:     r.CreatedAt,
	}
}
