package handler

import (
	"time"

	"bloodlink/internal/donation/models"
)

type DonorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type StatusChangeResponse struct {
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Note      string    `json:"note,omitempty"`
}

type SuggestionResponse struct {
	VolunteerID string    `json:"volunteer_id"`
	DonorID     string    `json:"donor_id"`
	SuggestedAt time.Time `json:"suggested_at"`
	Note        string    `json:"note,omitempty"`
}

// DonationRequestResponse is the HTTP representation of a request.
type DonationRequestResponse struct {
	ID             string                 `json:"id"`
	RequesterID    string                 `json:"requester_id"`
	RequesterName  string                 `json:"requester_name"`
	RequesterEmail string                 `json:"requester_email"`
	Recipient      models.Recipient       `json:"recipient"`
	BloodGroup     string                 `json:"blood_group"`
	DonationDate   string                 `json:"donation_date"`
	DonationTime   string                 `json:"donation_time"`
	Message        string                 `json:"message"`
	Urgency        string                 `json:"urgency"`
	UnitsRequired  int                    `json:"units_required"`
	Status         string                 `json:"status"`
	Donor          *DonorResponse         `json:"donor,omitempty"`
	StatusHistory  []StatusChangeResponse `json:"status_history"`
	Suggestions    []SuggestionResponse   `json:"suggestions"`
	IsActive       bool                   `json:"is_active"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// FromRequest converts the aggregate to its HTTP response.
func FromRequest(r *models.DonationRequest) *DonationRequestResponse {
	resp := &DonationRequestResponse{
		ID:             r.ID.String(),
		RequesterID:    r.RequesterID.String(),
		RequesterName:  r.RequesterName,
		RequesterEmail: r.RequesterEmail,
		Recipient:      r.Recipient,
		BloodGroup:     string(r.BloodGroup),
		DonationDate:   r.DonationDate.Format(dateLayout),
		DonationTime:   r.DonationTime,
		Message:        r.Message,
		Urgency:        string(r.Urgency),
		UnitsRequired:  r.UnitsRequired,
		Status:         string(r.Status),
		StatusHistory:  make([]StatusChangeResponse, 0, len(r.StatusHistory)),
		Suggestions:    make([]SuggestionResponse, 0, len(r.Suggestions)),
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Donor != nil {
		resp.Donor = &DonorResponse{ID: r.Donor.ID.String(), Name: r.Donor.Name, Email: r.Donor.Email}
	}
	for _, h := range r.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, StatusChangeResponse{
			Status:    string(h.Status),
			ChangedBy: h.ChangedBy.String(),
			ChangedAt: h.ChangedAt,
			Note:      h.Note,
		})
	}
	for _, s := range r.Suggestions {
		resp.Suggestions = append(resp.Suggestions, SuggestionResponse{
			VolunteerID: s.VolunteerID.String(),
			DonorID:     s.DonorID.String(),
			SuggestedAt: s.SuggestedAt,
			Note:        s.Note,
		})
	}
	return resp
}
