package service

import (
	"context"
	"errors"

	"bloodlink/internal/donation/eligibility"
	"bloodlink/internal/donation/models"
	"bloodlink/internal/donation/reconcile"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/sentinel"
)

const (
	outcomeAccepted       = "accepted"
	outcomeAlreadyClaimed = "already_claimed"
	outcomeExpired        = "expired"
	outcomeNotEligible    = "not_eligible"
	outcomeRejected       = "rejected"
)

// Accept lets a donor claim a pending request. Of any number of concurrent
// callers at most one succeeds; the rest get CodeAlreadyClaimed.
func (s *Service) Accept(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID) (_ *models.DonationRequest, err error) {
	ctx, finish := s.startSpan(ctx, "accept", actorAttr(donorID), requestAttr(requestID))
	defer func() {
		s.countAccept(acceptOutcome(err))
		finish(&err)
	}()

	if donorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	donor, err := s.loadDonor(ctx, donorID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown user")
		}
		return nil, err
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	at := now(ctx)
	if err := models.CheckAcceptance(models.ActorFrom(donor), r, at); err != nil {
		return nil, err
	}
	if res := eligibility.Check(*donor, *r, at); !res.Eligible {
		return nil, dErrors.New(dErrors.CodeNotEligible, res.Reason)
	}

	claimed, err := s.claim(ctx, r.ID, models.Claim{
		Donor: donorRef(donor),
		At:    at,
		Note:  models.AcceptanceNote,
	})
	if err != nil {
		return nil, err
	}

	s.afterClaim(ctx, claimed, donor, donor.ID, audit.EventRequestAccepted, "donor accepted the request")
	return claimed, nil
}

// claim runs the conditional write and, when it loses, re-reads the request
// to report why.
func (s *Service) claim(ctx context.Context, requestID id.DonationRequestID, c models.Claim) (*models.DonationRequest, error) {
	claimed, err := s.store.ClaimIfPending(ctx, requestID, c)
	if err == nil {
		return claimed, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "donation request not found")
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim donation request")
	}

	current, readErr := s.loadRequest(ctx, requestID)
	if readErr != nil {
		return nil, dErrors.New(dErrors.CodeAlreadyClaimed, "request has already been accepted by another donor")
	}
	switch {
	case current.HasDonor():
		return nil, dErrors.New(dErrors.CodeAlreadyClaimed, "request has already been accepted by another donor")
	case !current.IsActive:
		return nil, dErrors.New(dErrors.CodeNotFound, "donation request not found")
	case current.Status == models.StatusPending && current.IsExpired(c.At):
		return nil, dErrors.New(dErrors.CodeExpired, "request has expired")
	}
	return nil, dErrors.New(dErrors.CodeInvalidTransition, "request is no longer pending")
}

// afterClaim runs the post-commit side effects shared by donor acceptance and
// staff assignment. None of them can fail the operation.
func (s *Service) afterClaim(ctx context.Context, r *models.DonationRequest, donor *usermodels.User, actorID id.UserID, event audit.AuditEvent, description string) {
	s.countTransition(models.StatusPending, models.StatusInProgress)

	if err := s.users.RecordDonation(ctx, donor.ID, r.ID, r.DonationDate); err != nil {
		s.logger.ErrorContext(ctx, "failed to record donation on donor profile",
			"donor_id", donor.ID.String(),
			"donation_request_id", r.ID.String(),
			"error", err,
		)
		s.sideEffectFailed("donor_record")
		s.enqueueReconcile(ctx, reconcile.NewJob(donor.ID, r.ID, r.DonationDate, err, now(ctx)))
	}

	s.notify(ctx, notification.Accepted{
		Request:    notification.Summarize(r),
		Donor:      *r.Donor,
		DonorPhone: donor.Phone,
	})
	s.recordAudit(ctx, auditEntry{
		event:      event,
		request:    r,
		transition: models.TransitionEvent{
			RequestID: r.ID,
			From:      models.StatusPending,
			To:        models.StatusInProgress,
			ActorID:   actorID,
		},
		description: description,
	})
}

func (s *Service) enqueueReconcile(ctx context.Context, job reconcile.Job) {
	if s.reconcile == nil {
		s.logger.WarnContext(ctx, "no reconcile queue configured; donor record left stale",
			"donor_id", job.DonorID.String(),
			"donation_request_id", job.RequestID.String(),
		)
		return
	}
	if err := s.reconcile.Enqueue(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue donor record reconciliation",
			"donor_id", job.DonorID.String(),
			"donation_request_id", job.RequestID.String(),
			"error", err,
		)
		s.sideEffectFailed("reconcile_enqueue")
	}
}

func acceptOutcome(err error) string {
	if err == nil {
		return outcomeAccepted
	}
	code, _ := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeAlreadyClaimed:
		return outcomeAlreadyClaimed
	case dErrors.CodeExpired:
		return outcomeExpired
	case dErrors.CodeNotEligible:
		return outcomeNotEligible
	}
	return outcomeRejected
}
