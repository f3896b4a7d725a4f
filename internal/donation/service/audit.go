package service

import (
	"context"

	"bloodlink/internal/donation/models"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/requestcontext"
)

type auditEntry struct {
	event       audit.AuditEvent
	request     *models.DonationRequest
	transition  models.TransitionEvent
	description string
}

// recordAudit logs the entry and emits it to the publisher. A publish failure
// is logged and counted; the committed change stands.
func (s *Service) recordAudit(ctx context.Context, e auditEntry) {
	requestID := requestcontext.RequestID(ctx)
	t := e.transition
	if t.At.IsZero() {
		t.At = now(ctx)
	}
	attrs := []any{
		"event", string(e.event),
		"log_type", "audit",
		"category", string(e.event.Category()),
		"actor_id", t.ActorID.String(),
		"donation_request_id", t.RequestID.String(),
		"from", string(t.From),
		"to", string(t.To),
	}
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if t.Note != "" {
		attrs = append(attrs, "note", t.Note)
	}
	s.logger.InfoContext(ctx, string(e.event), attrs...)

	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp:   t.At,
		ActorID:     t.ActorID,
		Action:      string(e.event),
		EntityRef:   audit.EntityRef(t.RequestID),
		Description: e.description,
		Status:      string(e.request.Status),
		From:        string(t.From),
		To:          string(t.To),
		RequestID:   requestID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"event", string(e.event),
			"donation_request_id", e.request.ID.String(),
			"error", err,
		)
		s.sideEffectFailed("audit")
	}
}
