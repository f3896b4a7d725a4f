package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"bloodlink/internal/donation/eligibility"
	"bloodlink/internal/donation/models"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/sentinel"
)

const deletedNote = "request deleted"

// ChangeStatusCommand moves a request to Status. DonorID names the donor to
// bind and is required when staff move a request to inprogress.
type ChangeStatusCommand struct {
	ActorID   id.UserID
	RequestID id.DonationRequestID
	Status    models.Status
	Note      string
	DonorID   *id.UserID
}

// ChangeStatus applies a guarded transition. Writes are conditional on the
// version that was read, so a concurrent change turns into
// CodeInvalidTransition instead of being overwritten.
func (s *Service) ChangeStatus(ctx context.Context, cmd ChangeStatusCommand) (_ *models.DonationRequest, err error) {
	ctx, finish := s.startSpan(ctx, "change_status",
		actorAttr(cmd.ActorID),
		requestAttr(cmd.RequestID),
		attribute.String("donation_request.target_status", string(cmd.Status)),
	)
	defer finish(&err)

	if !cmd.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be one of pending, inprogress, done, canceled")
	}
	actorUser, err := s.loadActor(ctx, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	at := now(ctx)
	actor := models.ActorFrom(actorUser)
	if err := models.CheckTransition(actor, r, cmd.Status, at); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(cmd.Note)

	if cmd.Status == models.StatusInProgress {
		return s.assign(ctx, actor, r, cmd.DonorID, note)
	}

	from := r.Status
	previousDonor := r.Donor
	version := r.Version
	if err := r.Apply(models.Transition{To: cmd.Status, ActorID: actor.ID, At: at, Note: note}); err != nil {
		return nil, err
	}
	if err := r.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := s.update(ctx, r, version); err != nil {
		return nil, err
	}
	s.countTransition(from, r.Status)

	event := audit.EventRequestStatusChanged
	switch r.Status {
	case models.StatusDone:
		s.notify(ctx, notification.Completed{Request: notification.Summarize(r), Donor: *r.Donor})
	case models.StatusCanceled:
		event = audit.EventRequestCanceled
		s.notify(ctx, notification.Cancelled{
			Request: notification.Summarize(r),
			ActorID: actor.ID,
			Donor:   previousDonor,
			Reason:  note,
		})
	}
	s.recordAudit(ctx, auditEntry{
		event:      event,
		request:    r,
		transition: models.TransitionEvent{
			RequestID: r.ID,
			From:      from,
			To:        r.Status,
			ActorID:   actor.ID,
			Note:      note,
		},
		description: transitionDescription(from, r.Status, note),
	})
	return r, nil
}

// assign binds a donor chosen by staff. The donor goes through the same
// eligibility rules and the same conditional claim as a donor accepting.
func (s *Service) assign(ctx context.Context, actor models.Actor, r *models.DonationRequest, donorID *id.UserID, note string) (*models.DonationRequest, error) {
	if donorID == nil || donorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "donor_id is required to move a request to inprogress")
	}
	donor, err := s.loadDonor(ctx, *donorID)
	if err != nil {
		return nil, err
	}
	if err := checkCandidate(donor, r); err != nil {
		return nil, err
	}

	at := now(ctx)
	if res := eligibility.Check(*donor, *r, at); !res.Eligible {
		return nil, dErrors.New(dErrors.CodeNotEligible, res.Reason)
	}
	if note == "" {
		note = models.AssignmentNote
	}
	claimed, err := s.claim(ctx, r.ID, models.Claim{
		Donor:   donorRef(donor),
		At:      at,
		Note:    note,
		ActorID: actor.ID,
	})
	if err != nil {
		return nil, err
	}
	s.afterClaim(ctx, claimed, donor, actor.ID, audit.EventRequestStatusChanged, "staff assigned donor "+donor.ID.String())
	return claimed, nil
}

// checkCandidate rejects users that can never donate to r, whatever their
// eligibility state.
func checkCandidate(donor *usermodels.User, r *models.DonationRequest) error {
	if !donor.IsDonor() {
		return dErrors.New(dErrors.CodeNotEligible, "user is not a donor")
	}
	if donor.ID == r.RequesterID {
		return dErrors.New(dErrors.CodeNotEligible, "requester cannot donate to their own request")
	}
	return nil
}

// Cancel is ChangeStatus to canceled with reason as the history note.
func (s *Service) Cancel(ctx context.Context, actorID id.UserID, requestID id.DonationRequestID, reason string) (*models.DonationRequest, error) {
	return s.ChangeStatus(ctx, ChangeStatusCommand{
		ActorID:   actorID,
		RequestID: requestID,
		Status:    models.StatusCanceled,
		Note:      reason,
	})
}

// SoftDelete hides a request. Open requests are canceled in the same write.
func (s *Service) SoftDelete(ctx context.Context, actorID id.UserID, requestID id.DonationRequestID, reason string) (err error) {
	ctx, finish := s.startSpan(ctx, "soft_delete", actorAttr(actorID), requestAttr(requestID))
	defer finish(&err)

	actorUser, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	actor := models.ActorFrom(actorUser)
	if err := models.CheckDelete(actor, r); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = deletedNote
	}
	from := r.Status
	previousDonor := r.Donor
	version := r.Version
	canceled, err := r.MarkDeleted(actor.ID, now(ctx), reason)
	if err != nil {
		return err
	}
	if err := r.CheckInvariants(); err != nil {
		return err
	}
	if err := s.update(ctx, r, version); err != nil {
		return err
	}

	if canceled {
		s.countTransition(from, r.Status)
		s.notify(ctx, notification.Cancelled{
			Request: notification.Summarize(r),
			ActorID: actor.ID,
			Donor:   previousDonor,
			Reason:  reason,
		})
	}
	s.recordAudit(ctx, auditEntry{
		event:      audit.EventRequestDeleted,
		request:    r,
		transition: models.TransitionEvent{
			RequestID: r.ID,
			From:      from,
			To:        r.Status,
			ActorID:   actor.ID,
			Note:      reason,
		},
		description: reason,
	})
	return nil
}

func (s *Service) update(ctx context.Context, r *models.DonationRequest, version int64) error {
	err := s.store.Update(ctx, r, version)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeInvalidTransition, "donation request was changed concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "donation request not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update donation request")
}

func transitionDescription(from, to models.Status, note string) string {
	d := "status changed from " + string(from) + " to " + string(to)
	if note != "" {
		d += ": " + note
	}
	return d
}
