package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
)

const (
	MinMessageLength = 10
	MinUnits         = 1
	MaxUnits         = 10
	timeOfDayLayout  = "15:04"
)

// Recipient describes who needs the blood and where.
type Recipient struct {
	Name            string `json:"name"`
	District        string `json:"district"`
	SubDistrict     string `json:"sub_district"`
	HospitalName    string `json:"hospital_name"`
	HospitalAddress string `json:"hospital_address"`
}

// DonorRef is the denormalized donor bound to a request.
type DonorRef struct {
	ID    id.UserID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// StatusChange is one append-only history entry.
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedBy id.UserID `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Note      string    `json:"note,omitempty"`
}

// VolunteerSuggestion is an advisory donor match. It never changes status or donor.
type VolunteerSuggestion struct {
	VolunteerID id.UserID `json:"volunteer_id"`
	DonorID     id.UserID `json:"donor_id"`
	SuggestedAt time.Time `json:"suggested_at"`
	Note        string    `json:"note,omitempty"`
}

// DonationRequest is the aggregate root. Mutate it only through the methods in
// this package so the status/donor/history invariants hold.
type DonationRequest struct {
	ID             id.DonationRequestID
	RequesterID    id.UserID
	RequesterName  string
	RequesterEmail string
	Recipient      Recipient
	BloodGroup     id.BloodGroup
	DonationDate   time.Time // UTC midnight of the civil date
	DonationTime   string    // HH:MM, UTC
	Message        string
	Urgency        Urgency
	UnitsRequired  int
	Donor          *DonorRef
	Status         Status
	StatusHistory  []StatusChange
	Suggestions    []VolunteerSuggestion
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Version increments on every guarded write and backs optimistic updates.
	Version int64
}

// NewRequestParams carries validated-at-boundary input for NewDonationRequest.
type NewRequestParams struct {
	ID             id.DonationRequestID
	RequesterID    id.UserID
	RequesterName  string
	RequesterEmail string
	Recipient      Recipient
	BloodGroup     string
	DonationDate   time.Time
	DonationTime   string
	Message        string
	Urgency        string
	UnitsRequired  int
}

// NewDonationRequest validates input and returns a pending request with its
// first history entry. Every failure is CodeValidation.
func NewDonationRequest(p NewRequestParams, now time.Time) (*DonationRequest, error) {
	group, err := id.ParseBloodGroup(p.BloodGroup)
	if err != nil {
		return nil, err
	}
	urgency, err := ParseUrgency(p.Urgency)
	if err != nil {
		return nil, err
	}

	msg := strings.TrimSpace(p.Message)
	if utf8.RuneCountInString(msg) < MinMessageLength {
		return nil, dErrors.New(dErrors.CodeValidation, "message must be at least 10 characters")
	}
	if p.UnitsRequired < MinUnits || p.UnitsRequired > MaxUnits {
		return nil, dErrors.New(dErrors.CodeValidation, "units required must be between 1 and 10")
	}

	rec := Recipient{
		Name:            strings.TrimSpace(p.Recipient.Name),
		District:        strings.TrimSpace(p.Recipient.District),
		SubDistrict:     strings.TrimSpace(p.Recipient.SubDistrict),
		HospitalName:    strings.TrimSpace(p.Recipient.HospitalName),
		HospitalAddress: strings.TrimSpace(p.Recipient.HospitalAddress),
	}
	switch {
	case rec.Name == "":
		return nil, dErrors.New(dErrors.CodeValidation, "recipient name is required")
	case rec.District == "":
		return nil, dErrors.New(dErrors.CodeValidation, "recipient district is required")
	case rec.HospitalName == "":
		return nil, dErrors.New(dErrors.CodeValidation, "hospital name is required")
	}

	clock := strings.TrimSpace(p.DonationTime)
	if _, err := time.Parse(timeOfDayLayout, clock); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "donation time must be HH:MM")
	}

	date := CivilDate(p.DonationDate)
	if date.Before(CivilDate(now)) {
		return nil, dErrors.New(dErrors.CodeValidation, "donation date cannot be in the past")
	}

	r := &DonationRequest{
		ID:             p.ID,
		RequesterID:    p.RequesterID,
		RequesterName:  strings.TrimSpace(p.RequesterName),
		RequesterEmail: strings.TrimSpace(p.RequesterEmail),
		Recipient:      rec,
		BloodGroup:     group,
		DonationDate:   date,
		DonationTime:   clock,
		Message:        msg,
		Urgency:        urgency,
		UnitsRequired:  p.UnitsRequired,
		Status:         StatusPending,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !r.ScheduledAt().After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "scheduled time has already passed")
	}
	r.StatusHistory = []StatusChange{{
		Status:    StatusPending,
		ChangedBy: p.RequesterID,
		ChangedAt: now,
		Note:      "request created",
	}}
	return r, nil
}

// CivilDate truncates t to midnight UTC of its UTC calendar date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ScheduledAt combines the donation date and time of day.
func (r *DonationRequest) ScheduledAt() time.Time {
	clock, err := time.Parse(timeOfDayLayout, r.DonationTime)
	if err != nil {
		return r.DonationDate
	}
	return r.DonationDate.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
}

// IsExpired reports whether the scheduled donation time has been reached.
func (r *DonationRequest) IsExpired(now time.Time) bool {
	return !now.Before(r.ScheduledAt())
}

func (r *DonationRequest) HasDonor() bool { return r.Donor != nil }

func (r *DonationRequest) IsBoundDonor(userID id.UserID) bool {
	return r.Donor != nil && r.Donor.ID == userID
}

// CanSuggest reports whether a volunteer suggestion may be appended.
func (r *DonationRequest) CanSuggest() error {
	if !r.IsActive || r.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvalidState, "suggestions are only accepted on pending requests")
	}
	return nil
}

// CheckInvariants verifies the aggregate's structural invariants.
func (r *DonationRequest) CheckInvariants() error {
	if r.Status.RequiresDonor() != r.HasDonor() {
		return dErrors.New(dErrors.CodeInvariantViolation, "donor must be bound exactly when status is inprogress or done")
	}
	if len(r.StatusHistory) == 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "status history is empty")
	}
	if r.StatusHistory[len(r.StatusHistory)-1].Status != r.Status {
		return dErrors.New(dErrors.CodeInvariantViolation, "last history entry does not match status")
	}
	if !r.IsActive && r.Status == StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "deleted request cannot be pending")
	}
	return nil
}

// Clone returns a deep copy.
func (r *DonationRequest) Clone() *DonationRequest {
	c := *r
	if r.Donor != nil {
		d := *r.Donor
		c.Donor = &d
	}
	c.StatusHistory = append([]StatusChange(nil), r.StatusHistory...)
	c.Suggestions = append([]VolunteerSuggestion(nil), r.Suggestions...)
	return &c
}
