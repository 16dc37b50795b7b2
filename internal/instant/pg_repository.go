package instant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
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

const requestColumns = `id, patient_id, doctor_id, specialty, status, payment_status,
	amount, meeting_link, notes, matched_at, completed_at, rating, review, transcription,
	created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request

	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.DoctorID,
		&r.Specialty,
		&r.Status,
		&r.PaymentStatus,
		&r.Amount,
		&r.MeetingLink,
		&r.Notes,
		&r.MatchedAt,
		&r.CompletedAt,
		&r.Rating,
		&r.Review,
		&r.Transcription,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var result []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM instant_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM instant_requests
		WHERE patient_id = $1
		  AND status IN ('waiting', 'matched', 'in_progress')
		ORDER BY created_at DESC
		LIMIT 1
	`, patientID)
	return scanRequest(row)
}

// CreateIfNoneActive is a conditional insert: the existence check and the
// insert run as one statement, so two concurrent creates for the same
// patient cannot both land.
func (r *PgRepository) CreateIfNoneActive(ctx context.Context, req *Request) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO instant_requests (id, patient_id, specialty, status, payment_status,
			amount, meeting_link, created_at, updated_at)
		SELECT $1, $2, $3, 'waiting', 'pending', $4, $5, now(), now()
		WHERE NOT EXISTS (
			SELECT 1 FROM instant_requests
			WHERE patient_id = $2
			  AND status IN ('waiting', 'matched', 'in_progress')
		)
		RETURNING `+requestColumns+`
	`, req.ID, req.PatientID, req.Specialty, req.Amount, req.MeetingLink)

	created, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrDuplicateActive
		}
		return nil, err
	}
	return created, nil
}

// AcceptWaiting claims a waiting, paid request for a doctor. Precondition
// and mutation are one UPDATE, never a read-then-write pair; this is what
// keeps two doctors from claiming the same patient.
func (r *PgRepository) AcceptWaiting(ctx context.Context, id, doctorID uuid.UUID) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE instant_requests
		SET doctor_id = $2,
		    status = 'matched',
		    matched_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'waiting'
		  AND payment_status = 'paid'
		RETURNING `+requestColumns+`
	`, id, doctorID)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrNoLongerAvailable
		}
		return nil, err
	}
	return req, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE instant_requests
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+requestColumns+`
	`, id, to, from)

	return scanRequest(row)
}

func (r *PgRepository) CompleteRequest(ctx context.Context, id uuid.UUID, notes, transcription *string) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE instant_requests
		SET status = 'completed',
		    completed_at = now(),
		    notes = COALESCE($2, notes),
		    transcription = COALESCE($3, transcription),
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('matched', 'in_progress')
		RETURNING `+requestColumns+`
	`, id, notes, transcription)

	return scanRequest(row)
}

func (r *PgRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, ps PaymentStatus) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE instant_requests
		SET payment_status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns+`
	`, id, ps)
	return scanRequest(row)
}

func (r *PgRepository) SetRating(ctx context.Context, id uuid.UUID, rating int, review *string) (*Request, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE instant_requests
		SET rating = $2,
		    review = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns+`
	`, id, rating, review)
	return scanRequest(row)
}

func (r *PgRepository) ListPending(ctx context.Context, specialty string) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM instant_requests
		WHERE status = 'waiting'
		  AND payment_status = 'paid'
		  AND specialty ILIKE '%' || $1 || '%'
		ORDER BY created_at ASC
	`, specialty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *PgRepository) DoctorSpecialty(ctx context.Context, doctorID uuid.UUID) (string, error) {
	var specialty string
	err := r.db.QueryRow(ctx, `
		SELECT specialty
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&specialty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrDoctorNotFound
		}
		return "", err
	}
	return specialty, nil
}

func (r *PgRepository) FindStaleWaiting(ctx context.Context, olderThan time.Time) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM instant_requests
		WHERE status = 'waiting'
		  AND created_at < $1
		ORDER BY created_at ASC
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}
