// Package domain holds typed identifiers shared across modules.
//
// Each identifier wraps a uuid.UUID so a UserID can never be passed where a
// DonationRequestID is expected. Parsing happens once at the trust boundary.
package domain

import (
	"github.com/google/uuid"

	dErrors "bloodlink/pkg/domain-errors"
)

type (
	UserID              uuid.UUID
	DonationRequestID   uuid.UUID
	NotificationID      uuid.UUID
	ReconciliationJobID uuid.UUID
)

func (id UserID) String() string            { return uuid.UUID(id).String() }
func (id DonationRequestID) String() string { return uuid.UUID(id).String() }
func (id NotificationID) String() string    { return uuid.UUID(id).String() }
func (id ReconciliationJobID) String() string {
	return uuid.UUID(id).String()
}

func (id UserID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id DonationRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewDonationRequestID returns a fresh random request identifier.
func NewDonationRequestID() DonationRequestID { return DonationRequestID(uuid.New()) }

// NewNotificationID returns a fresh random notification identifier.
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

// NewReconciliationJobID returns a fresh random job identifier.
func NewReconciliationJobID() ReconciliationJobID { return ReconciliationJobID(uuid.New()) }

// ParseUserID parses a user identifier. Empty, malformed and nil UUIDs are rejected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseDonationRequestID parses a donation request identifier.
func ParseDonationRequestID(s string) (DonationRequestID, error) {
	u, err := parseUUID(s, "donation request ID")
	return DonationRequestID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id DonationRequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DonationRequestID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *NotificationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ReconciliationJobID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ReconciliationJobID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
