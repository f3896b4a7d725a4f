package service

import (
	"context"
	"errors"
	"time"

	"bloodlink/internal/donation/models"
	"bloodlink/internal/notification"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/sentinel"
)

// CreateCommand is the requester's input. Free text is expected to be
// sanitized by the transport layer.
type CreateCommand struct {
	RequesterID   id.UserID
	Recipient     models.Recipient
	BloodGroup    string
	DonationDate  time.Time
	DonationTime  string
	Message       string
	Urgency       string
	UnitsRequired int
}

// Create validates and stores a new pending request, then announces it to
// staff and to matching donors in the recipient's district.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (_ *models.DonationRequest, err error) {
	ctx, finish := s.startSpan(ctx, "create", actorAttr(cmd.RequesterID))
	defer finish(&err)

	requester, err := s.loadActor(ctx, cmd.RequesterID)
	if err != nil {
		return nil, err
	}

	at := now(ctx)
	r, err := models.NewDonationRequest(models.NewRequestParams{
		ID:             id.NewDonationRequestID(),
		RequesterID:    requester.ID,
		RequesterName:  requester.Name,
		RequesterEmail: requester.Email,
		Recipient:      cmd.Recipient,
		BloodGroup:     cmd.BloodGroup,
		DonationDate:   cmd.DonationDate,
		DonationTime:   cmd.DonationTime,
		Message:        cmd.Message,
		Urgency:        cmd.Urgency,
		UnitsRequired:  cmd.UnitsRequired,
	}, at)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "donation request already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save donation request")
	}
	if s.metrics != nil {
		s.metrics.IncrementRequestsCreated()
	}

	s.notify(ctx, notification.Created{Request: notification.Summarize(r)})
	s.recordAudit(ctx, auditEntry{
		event:      audit.EventRequestCreated,
		request:    r,
		transition: models.TransitionEvent{
			RequestID: r.ID,
			To:        models.StatusPending,
			ActorID:   requester.ID,
		},
		description: "donation request created for " + string(r.BloodGroup) + " in " + r.Recipient.District,
	})
	return r, nil
}

// Get returns a request the caller may see. Open requests are visible to
// every signed-in user so donors can find them; once claimed or closed only
// the parties and staff can read them. Deleted requests exist for staff only.
func (s *Service) Get(ctx context.Context, actorID id.UserID, requestID id.DonationRequestID) (_ *models.DonationRequest, err error) {
	ctx, finish := s.startSpan(ctx, "get", actorAttr(actorID), requestAttr(requestID))
	defer finish(&err)

	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	r, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsStaff():
		return r, nil
	case !r.IsActive:
		return nil, dErrors.New(dErrors.CodeNotFound, "donation request not found")
	case r.Status == models.StatusPending:
		return r, nil
	case r.RequesterID == actor.ID || r.IsBoundDonor(actor.ID):
		return r, nil
	}
	return nil, dErrors.New(dErrors.CodeForbidden, "not a party to this donation request")
}
