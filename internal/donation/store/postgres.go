package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
	txcontext "bloodlink/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists donation requests in PostgreSQL. History and
// suggestions are JSONB arrays appended with ||, so every guarded write is a
// single statement.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, requester_id, requester_name, requester_email,
	recipient_name, recipient_district, recipient_sub_district, hospital_name, hospital_address,
	blood_group, donation_date, donation_time, message, urgency, units_required,
	donor_id, donor_name, donor_email, status, status_history, suggestions,
	is_active, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.DonationRequest) error {
	history, err := json.Marshal(r.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	suggestions, err := json.Marshal(nonNil(r.Suggestions))
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO donation_requests (`+requestColumns+`, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        NULL, NULL, NULL, $16, $17::jsonb, $18::jsonb, $19, $20, $21, $22, $23)`,
		uuid.UUID(r.ID), uuid.UUID(r.RequesterID), r.RequesterName, r.RequesterEmail,
		r.Recipient.Name, r.Recipient.District, r.Recipient.SubDistrict, r.Recipient.HospitalName, r.Recipient.HospitalAddress,
		string(r.BloodGroup), r.DonationDate, r.DonationTime, r.Message, string(r.Urgency), r.UnitsRequired,
		string(r.Status), string(history), string(suggestions),
		r.IsActive, r.Version, r.CreatedAt, r.UpdatedAt, r.ScheduledAt(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert donation request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.DonationRequestID) (*models.DonationRequest, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM donation_requests WHERE id = $1`, uuid.UUID(requestID))
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find donation request: %w", err)
	}
	return r, nil
}

// ClaimIfPending is the acceptance compare-and-swap: one UPDATE that matches
// only an active, pending, unclaimed, not-yet-due row.
func (s *PostgresStore) ClaimIfPending(ctx context.Context, requestID id.DonationRequestID, claim models.Claim) (*models.DonationRequest, error) {
	entry, err := json.Marshal([]models.StatusChange{{
		Status:    models.StatusInProgress,
		ChangedBy: claim.Actor(),
		ChangedAt: claim.At,
		Note:      claim.Note,
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal history entry: %w", err)
	}
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		UPDATE donation_requests
		SET status = 'inprogress',
		    donor_id = $2,
		    donor_name = $3,
		    donor_email = $4,
		    status_history = status_history || $5::jsonb,
		    updated_at = $6,
		    version = version + 1
		WHERE id = $1
		  AND status = 'pending'
		  AND donor_id IS NULL
		  AND is_active
		  AND scheduled_at > $6
		RETURNING `+requestColumns,
		uuid.UUID(requestID), uuid.UUID(claim.Donor.ID), claim.Donor.Name, claim.Donor.Email,
		string(entry), claim.At,
	)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim donation request: %w", err)
	}
	return r, nil
}

// Update writes the lifecycle fields if the row's version is unchanged.
func (s *PostgresStore) Update(ctx context.Context, r *models.DonationRequest, expectedVersion int64) error {
	history, err := json.Marshal(r.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	var donorID any
	var donorName, donorEmail sql.NullString
	if r.Donor != nil {
		donorID = uuid.UUID(r.Donor.ID)
		donorName = sql.NullString{String: r.Donor.Name, Valid: true}
		donorEmail = sql.NullString{String: r.Donor.Email, Valid: true}
	}
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE donation_requests
		SET status = $2,
		    donor_id = $3,
		    donor_name = $4,
		    donor_email = $5,
		    status_history = $6::jsonb,
		    is_active = $7,
		    updated_at = $8,
		    version = version + 1
		WHERE id = $1 AND version = $9`,
		uuid.UUID(r.ID), string(r.Status), donorID, donorName, donorEmail,
		string(history), r.IsActive, r.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update donation request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	}
	if n == 0 {
		return s.missOrConflict(ctx, r.ID)
	}
	r.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) AppendSuggestion(ctx context.Context, requestID id.DonationRequestID, suggestion models.VolunteerSuggestion) error {
	entry, err := json.Marshal([]models.VolunteerSuggestion{suggestion})
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE donation_requests
		SET suggestions = suggestions || $2::jsonb
		WHERE id = $1 AND status = 'pending' AND is_active`,
		uuid.UUID(requestID), string(entry),
	)
	if err != nil {
		return fmt.Errorf("append suggestion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append suggestion rows affected: %w", err)
	}
	if n == 0 {
		err := s.missOrConflict(ctx, requestID)
		if errors.Is(err, sentinel.ErrConflict) {
			return sentinel.ErrInvalidState
		}
		return err
	}
	return nil
}

// missOrConflict distinguishes a missing row from a guard that did not match.
func (s *PostgresStore) missOrConflict(ctx context.Context, requestID id.DonationRequestID) error {
	var exists bool
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM donation_requests WHERE id = $1)`, uuid.UUID(requestID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check donation request: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.DonationRequest, error) {
	var (
		r                     models.DonationRequest
		rawID, rawRequester   uuid.UUID
		group, urgency, state string
		donorID               uuid.NullUUID
		donorName, donorEmail sql.NullString
		history, suggestions  []byte
	)
	err := row.Scan(
		&rawID, &rawRequester, &r.RequesterName, &r.RequesterEmail,
		&r.Recipient.Name, &r.Recipient.District, &r.Recipient.SubDistrict, &r.Recipient.HospitalName, &r.Recipient.HospitalAddress,
		&group, &r.DonationDate, &r.DonationTime, &r.Message, &urgency, &r.UnitsRequired,
		&donorID, &donorName, &donorEmail, &state, &history, &suggestions,
		&r.IsActive, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = id.DonationRequestID(rawID)
	r.RequesterID = id.UserID(rawRequester)
	r.BloodGroup = id.BloodGroup(group)
	r.Urgency = models.Urgency(urgency)
	r.Status = models.Status(state)
	r.DonationDate = models.CivilDate(r.DonationDate)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if donorID.Valid {
		r.Donor = &models.DonorRef{ID: id.UserID(donorID.UUID), Name: donorName.String, Email: donorEmail.String}
	}
	if err := json.Unmarshal(history, &r.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	if err := json.Unmarshal(suggestions, &r.Suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	return &r, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
