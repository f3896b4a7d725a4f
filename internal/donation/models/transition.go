package models

import (
	"time"

	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
)

// Actor is the caller of a lifecycle operation.
type Actor struct {
	ID   id.UserID
	Role usermodels.Role
}

func ActorFrom(u *usermodels.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

func (a Actor) IsStaff() bool {
	return a.Role == usermodels.RoleAdmin || a.Role == usermodels.RoleVolunteer
}

// Transition is a status change ready to be applied.
type Transition struct {
	To      Status
	ActorID id.UserID
	At      time.Time
	Note    string
	// Donor is required when To is StatusInProgress.
	Donor *DonorRef
}

// CheckTransition enforces the guard table for status changes requested
// through ChangeStatus. Acceptance by a donor goes through CheckAcceptance.
//
//	target      from                 actor
//	inprogress  pending              staff (not expired)
//	done        inprogress           staff, bound donor
//	canceled    pending, inprogress  requester, bound donor, staff
//	pending     inprogress           staff
func CheckTransition(a Actor, r *DonationRequest, target Status, now time.Time) error {
	if !r.IsActive {
		return dErrors.New(dErrors.CodeInvalidTransition, "request has been deleted")
	}
	if !target.IsValid() {
		return dErrors.New(dErrors.CodeInvalidTransition, "unknown target status")
	}
	if r.Status == target {
		return dErrors.New(dErrors.CodeInvalidTransition, "request is already "+string(target))
	}

	switch target {
	case StatusInProgress:
		if r.Status != StatusPending {
			return invalidFrom(r.Status, target)
		}
		if !a.IsStaff() {
			return dErrors.New(dErrors.CodeForbidden, "only staff can assign a donor; donors must accept the request")
		}
		if r.IsExpired(now) {
			return dErrors.New(dErrors.CodeExpired, "request has expired")
		}
	case StatusDone:
		if r.Status != StatusInProgress || !r.HasDonor() {
			return invalidFrom(r.Status, target)
		}
		if !a.IsStaff() && !r.IsBoundDonor(a.ID) {
			return dErrors.New(dErrors.CodeForbidden, "only staff or the bound donor can complete a request")
		}
	case StatusCanceled:
		if r.Status.IsTerminal() {
			return invalidFrom(r.Status, target)
		}
		if !canCancel(a, r) {
			return dErrors.New(dErrors.CodeForbidden, "only the requester, the bound donor or staff can cancel a request")
		}
	case StatusPending:
		if r.Status != StatusInProgress {
			return invalidFrom(r.Status, target)
		}
		if !a.IsStaff() {
			return dErrors.New(dErrors.CodeForbidden, "only staff can revert a request to pending")
		}
	}
	return nil
}

// CheckAcceptance is the request-side guard for a donor claiming a request.
// Donor eligibility is checked separately.
func CheckAcceptance(a Actor, r *DonationRequest, now time.Time) error {
	if a.Role != usermodels.RoleDonor {
		return dErrors.New(dErrors.CodeForbidden, "only donors can accept donation requests")
	}
	if r.RequesterID == a.ID {
		return dErrors.New(dErrors.CodeForbidden, "cannot accept your own request")
	}
	if !r.IsActive {
		return dErrors.New(dErrors.CodeNotFound, "donation request not found")
	}
	if r.IsExpired(now) && !r.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeExpired, "request has expired")
	}
	if r.Status != StatusPending {
		if r.HasDonor() {
			return dErrors.New(dErrors.CodeAlreadyClaimed, "request has already been accepted by another donor")
		}
		return invalidFrom(r.Status, StatusInProgress)
	}
	return nil
}

// CheckDelete applies the cancel guard to soft deletion.
func CheckDelete(a Actor, r *DonationRequest) error {
	if !r.IsActive {
		return dErrors.New(dErrors.CodeNotFound, "donation request not found")
	}
	if !canCancel(a, r) {
		return dErrors.New(dErrors.CodeForbidden, "only the requester, the bound donor or staff can delete a request")
	}
	return nil
}

func canCancel(a Actor, r *DonationRequest) bool {
	return a.IsStaff() || r.RequesterID == a.ID || r.IsBoundDonor(a.ID)
}

func invalidFrom(from, to Status) error {
	return dErrors.New(dErrors.CodeInvalidTransition, "cannot move request from "+string(from)+" to "+string(to))
}

// Apply mutates the request for t: status, donor binding and one history entry.
// Reverting to pending or canceling clears the donor so the donor invariant holds.
func (r *DonationRequest) Apply(t Transition) error {
	switch t.To {
	case StatusInProgress:
		if t.Donor == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "inprogress requires a donor")
		}
		d := *t.Donor
		r.Donor = &d
	case StatusPending, StatusCanceled:
		r.Donor = nil
	case StatusDone:
		if r.Donor == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "done requires a bound donor")
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status")
	}
	r.Status = t.To
	r.StatusHistory = append(r.StatusHistory, StatusChange{
		Status:    t.To,
		ChangedBy: t.ActorID,
		ChangedAt: t.At,
		Note:      t.Note,
	})
	r.UpdatedAt = t.At
	return nil
}

// MarkDeleted soft-deletes the request, canceling it first if it is still open.
// It reports whether a cancel transition was applied.
func (r *DonationRequest) MarkDeleted(actorID id.UserID, at time.Time, reason string) (bool, error) {
	canceled := false
	if !r.Status.IsTerminal() {
		if err := r.Apply(Transition{To: StatusCanceled, ActorID: actorID, At: at, Note: reason}); err != nil {
			return false, err
		}
		canceled = true
	}
	r.IsActive = false
	r.UpdatedAt = at
	return canceled, nil
}
