package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
)

// PostgresStore reads the account service's users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, email, phone, role, blood_group, district, sub_district,
	status, available, last_donation_date, total_donations, last_donation_request_id`

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) ListStaff(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role IN ('admin', 'volunteer') AND status = 'active'
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return collectUsers(rows)
}

// ListMatchingDonors is keyset-paginated on id so large fan-outs never use OFFSET.
func (s *PostgresStore) ListMatchingDonors(ctx context.Context, bloodGroup id.BloodGroup, district string, after id.UserID, limit int) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'donor'
		  AND status = 'active'
		  AND available
		  AND blood_group = $1
		  AND district = $2
		  AND id > $3
		ORDER BY id
		LIMIT $4`, string(bloodGroup), district, uuid.UUID(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list matching donors: %w", err)
	}
	return collectUsers(rows)
}

// RecordDonation is a single guarded UPDATE; replays for the same request match no row.
func (s *PostgresStore) RecordDonation(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID, date time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET last_donation_date = $2,
		    total_donations = total_donations + 1,
		    last_donation_request_id = $3
		WHERE id = $1
		  AND last_donation_request_id IS DISTINCT FROM $3`,
		uuid.UUID(donorID), date, uuid.UUID(requestID))
	if err != nil {
		return fmt.Errorf("record donation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record donation rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, uuid.UUID(donorID)).Scan(&exists); err != nil {
			return fmt.Errorf("record donation lookup: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u         models.User
		rawID     uuid.UUID
		phone     sql.NullString
		role      string
		group     string
		status    string
		lastDate  sql.NullTime
		lastReqID uuid.NullUUID
	)
	if err := row.Scan(&rawID, &u.Name, &u.Email, &phone, &role, &group, &u.District, &u.SubDistrict,
		&status, &u.Available, &lastDate, &u.TotalDonations, &lastReqID); err != nil {
		return nil, err
	}
	u.ID = id.UserID(rawID)
	u.Phone = phone.String
	u.Role = models.Role(role)
	u.BloodGroup = id.BloodGroup(group)
	u.Status = models.AccountStatus(status)
	if lastDate.Valid {
		t := lastDate.Time.UTC()
		u.LastDonationDate = &t
	}
	if lastReqID.Valid {
		r := id.DonationRequestID(lastReqID.UUID)
		u.LastDonationRequest = &r
	}
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]*models.User, error) {
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}
