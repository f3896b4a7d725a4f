package models

import (
	"time"

	id "bloodlink/pkg/domain"
)

// TransitionEvent is emitted after a committed status change.
type TransitionEvent struct {
	RequestID id.DonationRequestID
	From      Status
	To        Status
	ActorID   id.UserID
	At        time.Time
	Note      string
}

// Claim is the conditional write that binds a donor to a pending request,
// either by the donor accepting or by staff assigning them.
type Claim struct {
	Donor DonorRef
	At    time.Time
	Note  string
	// ActorID is recorded in history. Zero means the donor acted.
	ActorID id.UserID
}

// Actor returns who performed the claim.
func (c Claim) Actor() id.UserID {
	if c.ActorID.IsNil() {
		return c.Donor.ID
	}
	return c.ActorID
}

const (
	// AcceptanceNote is recorded in history when a donor claims a request.
	AcceptanceNote = "accepted by donor"
	// AssignmentNote is recorded when staff bind a donor without a note.
	AssignmentNote = "donor assigned by staff"
)
