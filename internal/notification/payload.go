package notification

import (
	"time"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
)

// Kind names a payload variant.
type Kind string

const (
	KindCreated   Kind = "created"
	KindAccepted  Kind = "accepted"
	KindCompleted Kind = "completed"
	KindCancelled Kind = "cancelled"
	KindSuggested Kind = "suggested"
)

// RequestSummary is the request snapshot every payload carries. It is taken
// after the commit, so workers never read the store again.
type RequestSummary struct {
	ID            id.DonationRequestID
	RequesterID   id.UserID
	RecipientName string
	BloodGroup    id.BloodGroup
	District      string
	HospitalName  string
	ScheduledAt   time.Time
	Urgency       models.Urgency
	UnitsRequired int
}

func Summarize(r *models.DonationRequest) RequestSummary {
	return RequestSummary{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		RecipientName: r.Recipient.Name,
		BloodGroup:    r.BloodGroup,
		District:      r.Recipient.District,
		HospitalName:  r.Recipient.HospitalName,
		ScheduledAt:   r.ScheduledAt(),
		Urgency:       r.Urgency,
		UnitsRequired: r.UnitsRequired,
	}
}

// Payload is a closed union: only the types in this file implement it.
type Payload interface {
	Kind() Kind
	Summary() RequestSummary
	sealed()
}

// Created fans out to staff and to matching donors in the recipient's district.
type Created struct {
	Request RequestSummary
}

// Accepted tells the requester who claimed the request.
type Accepted struct {
	Request    RequestSummary
	Donor      models.DonorRef
	DonorPhone string
}

// Completed thanks the donor and informs the requester.
type Completed struct {
	Request RequestSummary
	Donor   models.DonorRef
}

// Cancelled reaches the requester and the donor that was bound, if any.
type Cancelled struct {
	Request RequestSummary
	ActorID id.UserID
	Donor   *models.DonorRef
	Reason  string
}

// Suggested is advisory and never escalates priority.
type Suggested struct {
	Request     RequestSummary
	VolunteerID id.UserID
	DonorID     id.UserID
	Note        string
}

func (Created) Kind() Kind   { return KindCreated }
func (Accepted) Kind() Kind  { return KindAccepted }
func (Completed) Kind() Kind { return KindCompleted }
func (Cancelled) Kind() Kind { return KindCancelled }
func (Suggested) Kind() Kind { return KindSuggested }

func (p Created) Summary() RequestSummary   { return p.Request }
func (p Accepted) Summary() RequestSummary  { return p.Request }
func (p Completed) Summary() RequestSummary { return p.Request }
func (p Cancelled) Summary() RequestSummary { return p.Request }
func (p Suggested) Summary() RequestSummary { return p.Request }

func (Created) sealed()   {}
func (Accepted) sealed()  {}
func (Completed) sealed() {}
func (Cancelled) sealed() {}
func (Suggested) sealed() {}
