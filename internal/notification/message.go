package notification

import (
	"time"

	id "bloodlink/pkg/domain"
)

type Category string

const (
	CategoryNewRequest Category = "donation_request"
	CategoryAccepted   Category = "donation_accepted"
	CategoryCompleted  Category = "donation_completed"
	CategoryCancelled  Category = "donation_cancelled"
	CategorySuggestion Category = "donor_suggestion"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is one notification record handed to a Sink.
type Message struct {
	ID          id.NotificationID    `json:"id"`
	RecipientID id.UserID            `json:"recipient_id"`
	RequestID   id.DonationRequestID `json:"request_id"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Category    Category             `json:"category"`
	Priority    Priority             `json:"priority"`
	ActionRef   string               `json:"action_ref"`
	CreatedAt   time.Time            `json:"created_at"`
}

// ActionRef is the client route for a request.
func ActionRef(requestID id.DonationRequestID) string {
	return "/donation-requests/" + requestID.String()
}
