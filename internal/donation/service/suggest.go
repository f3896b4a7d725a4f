package service

import (
	"context"
	"errors"
	"strings"

	"bloodlink/internal/donation/eligibility"
	"bloodlink/internal/donation/models"
	"bloodlink/internal/notification"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/sentinel"
)

// SuggestDonor records a staff member's advisory donor match. It never binds
// the donor or changes status.
func (s *Service) SuggestDonor(ctx context.Context, volunteerID id.UserID, requestID id.DonationRequestID, donorID id.UserID, note string) (err error) {
	ctx, finish := s.startSpan(ctx, "suggest_donor", actorAttr(volunteerID), requestAttr(requestID))
	defer finish(&err)

	volunteer, err := s.loadActor(ctx, volunteerID)
	if err != nil {
		return err
	}
	if !volunteer.IsStaff() {
		return dErrors.New(dErrors.CodeForbidden, "only volunteers and admins can suggest donors")
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if err := r.CanSuggest(); err != nil {
		return err
	}

	donor, err := s.loadDonor(ctx, donorID)
	if err != nil {
		return err
	}
	if err := checkCandidate(donor, r); err != nil {
		return err
	}
	at := now(ctx)
	if res := eligibility.Check(*donor, *r, at); !res.Eligible {
		return dErrors.New(dErrors.CodeNotEligible, res.Reason)
	}

	suggestion := models.VolunteerSuggestion{
		VolunteerID: volunteer.ID,
		DonorID:     donor.ID,
		SuggestedAt: at,
		Note:        strings.TrimSpace(note),
	}
	if err := s.store.AppendSuggestion(ctx, r.ID, suggestion); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			return dErrors.New(dErrors.CodeInvalidState, "suggestions are only accepted on pending requests")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "donation request not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save suggestion")
	}
	r.Suggestions = append(r.Suggestions, suggestion)

	s.notify(ctx, notification.Suggested{
		Request:     notification.Summarize(r),
		VolunteerID: volunteer.ID,
		DonorID:     donor.ID,
		Note:        suggestion.Note,
	})
	s.recordAudit(ctx, auditEntry{
		event:      audit.EventDonorSuggested,
		request:    r,
		transition: models.TransitionEvent{
			RequestID: r.ID,
			From:      r.Status,
			To:        r.Status,
			ActorID:   volunteer.ID,
		},
		description: "suggested donor " + donor.ID.String(),
	})
	return nil
}
