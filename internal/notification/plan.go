package notification

import (
	"fmt"
	"strings"
	"time"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
)

// Audience is the role a recipient plays for one payload. It selects the copy.
type Audience string

const (
	AudienceRequester      Audience = "requester"
	AudienceDonor          Audience = "donor"
	AudienceStaff          Audience = "staff"
	AudienceMatchingDonor  Audience = "matching_donor"
	AudienceSuggestedDonor Audience = "suggested_donor"
)

type Recipient struct {
	UserID   id.UserID
	Audience Audience
}

// Plan is the recipient set of a payload before any directory lookup.
type Plan struct {
	Direct         []Recipient
	Staff          bool
	MatchingDonors bool
}

// PlanFor returns the recipients of p. Direct recipients are unique by user.
func PlanFor(p Payload) Plan {
	req := p.Summary()
	var plan Plan
	switch p := p.(type) {
	case Created:
		plan.Staff = true
		plan.MatchingDonors = true
	case Accepted:
		plan.Direct = []Recipient{{UserID: req.RequesterID, Audience: AudienceRequester}}
	case Completed:
		plan.Direct = []Recipient{
			{UserID: req.RequesterID, Audience: AudienceRequester},
			{UserID: p.Donor.ID, Audience: AudienceDonor},
		}
	case Cancelled:
		plan.Direct = []Recipient{{UserID: req.RequesterID, Audience: AudienceRequester}}
		if p.Donor != nil {
			plan.Direct = append(plan.Direct, Recipient{UserID: p.Donor.ID, Audience: AudienceDonor})
		}
	case Suggested:
		plan.Direct = []Recipient{
			{UserID: p.DonorID, Audience: AudienceSuggestedDonor},
			{UserID: req.RequesterID, Audience: AudienceRequester},
		}
	}
	plan.Direct = uniqueRecipients(plan.Direct)
	return plan
}

func uniqueRecipients(in []Recipient) []Recipient {
	seen := make(map[id.UserID]struct{}, len(in))
	out := in[:0]
	for _, r := range in {
		if _, dup := seen[r.UserID]; dup {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// UrgencyPriority maps request urgency onto notification priority.
func UrgencyPriority(u models.Urgency) Priority {
	switch u {
	case models.UrgencyLow:
		return PriorityLow
	case models.UrgencyHigh:
		return PriorityHigh
	case models.UrgencyCritical:
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Compose renders the message p sends to one recipient.
func Compose(p Payload, to Recipient, messageID id.NotificationID, now time.Time) Message {
	req := p.Summary()
	msg := Message{
		ID:          messageID,
		RecipientID: to.UserID,
		RequestID:   req.ID,
		Priority:    PriorityNormal,
		ActionRef:   ActionRef(req.ID),
		CreatedAt:   now,
	}
	when := req.ScheduledAt.Format("02 Jan 2006 15:04")

	switch p := p.(type) {
	case Created:
		msg.Category = CategoryNewRequest
		msg.Priority = UrgencyPriority(req.Urgency)
		if to.Audience == AudienceMatchingDonor {
			msg.Title = fmt.Sprintf("%s blood needed near you", req.BloodGroup)
			msg.Message = fmt.Sprintf("A patient at %s, %s needs %s blood on %s. Can you help?",
				req.HospitalName, req.District, req.BloodGroup, when)
		} else {
			msg.Title = fmt.Sprintf("New blood request: %s", req.BloodGroup)
			msg.Message = fmt.Sprintf("%s needs %d unit(s) of %s blood at %s, %s on %s.",
				req.RecipientName, req.UnitsRequired, req.BloodGroup, req.HospitalName, req.District, when)
		}
	case Accepted:
		msg.Category = CategoryAccepted
		msg.Priority = UrgencyPriority(req.Urgency)
		msg.Title = fmt.Sprintf("Donor found for %s", req.RecipientName)
		msg.Message = fmt.Sprintf("%s accepted your request for %s blood on %s. Contact: %s.",
			p.Donor.Name, req.BloodGroup, when, contact(p.Donor.Email, p.DonorPhone))
	case Completed:
		msg.Category = CategoryCompleted
		if to.Audience == AudienceDonor {
			msg.Title = "Thank you for donating"
			msg.Message = fmt.Sprintf("Your donation for %s at %s has been recorded. Thank you for saving a life.",
				req.RecipientName, req.HospitalName)
		} else {
			msg.Title = "Donation completed"
			msg.Message = fmt.Sprintf("%s completed the donation for %s. We wish a speedy recovery.",
				p.Donor.Name, req.RecipientName)
		}
	case Cancelled:
		msg.Category = CategoryCancelled
		msg.Title = "Donation request cancelled"
		msg.Message = fmt.Sprintf("The %s request for %s on %s was cancelled.", req.BloodGroup, req.RecipientName, when)
		if reason := strings.TrimSpace(p.Reason); reason != "" {
			msg.Message += " Reason: " + reason
		}
	case Suggested:
		msg.Category = CategorySuggestion
		if to.Audience == AudienceSuggestedDonor {
			msg.Title = "You were suggested as a donor"
			msg.Message = fmt.Sprintf("A volunteer thinks you are a good match for a %s request at %s on %s.",
				req.BloodGroup, req.HospitalName, when)
		} else {
			msg.Title = "A donor was suggested for your request"
			msg.Message = fmt.Sprintf("A volunteer suggested a matching donor for %s.", req.RecipientName)
		}
		if note := strings.TrimSpace(p.Note); note != "" {
			msg.Message += " Note: " + note
		}
	}
	return msg
}

func contact(email, phone string) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{email, phone} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "not provided"
	}
	return strings.Join(parts, ", ")
}
