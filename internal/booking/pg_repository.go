package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medimeet/telehealth-scheduling/internal/schedule"
)

// DB is the subset of pgxpool.Pool the repository uses; pgxmock satisfies
// it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB allows injecting mocks for tests.
func NewPgRepositoryWithDB(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, patient_id, doctor_id, scheduled_at, duration_minutes,
	status, payment_status, amount, meeting_link, notes, rating, review,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&a.PaymentStatus,
		&a.Amount,
		&a.MeetingLink,
		&a.Notes,
		&a.Rating,
		&a.Review,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var workingDays []string
	var startTime, endTime *string
	var slotMinutes *int

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&workingDays,
		&startTime,
		&endTime,
		&slotMinutes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if startTime != nil && endTime != nil && slotMinutes != nil {
		d.Availability = &schedule.AvailabilityTemplate{
			WorkingDays: workingDays,
			StartTime:   *startTime,
			EndTime:     *endTime,
			SlotMinutes: *slotMinutes,
		}
	}

	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, working_days, start_time, end_time, slot_minutes, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, duration_minutes,
			status, payment_status, amount, meeting_link, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.DurationMinutes,
		a.Status, a.PaymentStatus, a.Amount, a.MeetingLink, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, ps PaymentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, ps)
	return scanAppointment(row)
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus, notes *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = COALESCE($3, notes),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status, notes)
	return scanAppointment(row)
}

func (r *PgRepository) SetRating(ctx context.Context, id uuid.UUID, rating int, review *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET rating = $2,
		    review = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, rating, review)
	return scanAppointment(row)
}

func (r *PgRepository) AvailabilityForDoctor(ctx context.Context, doctorID uuid.UUID) (*schedule.AvailabilityTemplate, error) {
	d, err := r.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return d.Availability, nil
}

func (r *PgRepository) SaveAvailability(ctx context.Context, doctorID uuid.UUID, tpl schedule.AvailabilityTemplate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE doctors
		SET working_days = $2,
		    start_time = $3,
		    end_time = $4,
		    slot_minutes = $5,
		    updated_at = now()
		WHERE id = $1
	`, doctorID, tpl.WorkingDays, tpl.StartTime, tpl.EndTime, tpl.SlotMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) BusyIntervalsForDay(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) ([]schedule.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT scheduled_at, duration_minutes
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'cancelled'
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at
	`, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []schedule.Interval
	for rows.Next() {
		var start time.Time
		var mins int
		if err := rows.Scan(&start, &mins); err != nil {
			return nil, err
		}
		busy = append(busy, schedule.BookingInterval(start, mins))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return busy, nil
}
