package audit

import (
	"context"
	"time"

	id "bloodlink/pkg/domain"
)

// EventCategory classifies audit events for retention and routing.
type EventCategory string

const (
	// CategoryLifecycle covers request status changes and deletion.
	CategoryLifecycle EventCategory = "lifecycle"
	// CategoryMatching covers advisory matching such as volunteer suggestions.
	CategoryMatching EventCategory = "matching"
)

// Event is emitted after a committed change to a donation request. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp   time.Time
	ActorID     id.UserID
	Action      string
	EntityRef   string // "donation_request:<id>"
	Description string
	Status      string
	From        string
	To          string
	// RequestID is the HTTP correlation ID, when the change came from a request.
	RequestID string
}

type AuditEvent string

const (
	EventRequestCreated       AuditEvent = "donation_request_created"
	EventRequestAccepted      AuditEvent = "donation_request_accepted"
	EventRequestStatusChanged AuditEvent = "donation_request_status_changed"
	EventRequestCanceled      AuditEvent = "donation_request_canceled"
	EventRequestDeleted       AuditEvent = "donation_request_deleted"
	EventDonorSuggested       AuditEvent = "donor_suggested"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRequestCreated:       CategoryLifecycle,
	EventRequestAccepted:      CategoryLifecycle,
	EventRequestStatusChanged: CategoryLifecycle,
	EventRequestCanceled:      CategoryLifecycle,
	EventRequestDeleted:       CategoryLifecycle,
	EventDonorSuggested:       CategoryMatching,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryLifecycle.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryLifecycle
}

// EntityRef formats the reference stored on every donation request event.
func EntityRef(requestID id.DonationRequestID) string {
	return "donation_request:" + requestID.String()
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actorID id.UserID) ([]Event, error)
	ListByEntity(ctx context.Context, entityRef string) ([]Event, error)
}
