package models

import (
	"strings"

	dErrors "bloodlink/pkg/domain-errors"
)

// Status is the authoritative lifecycle state of a donation request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
	StatusCanceled   Status = "canceled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusCanceled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// RequiresDonor reports whether a request in this status must have a bound donor.
func (s Status) RequiresDonor() bool {
	return s == StatusInProgress || s == StatusDone
}

func (s Status) String() string { return string(s) }

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of pending, inprogress, done, canceled")
	}
	return s, nil
}

// Urgency tiers drive notification priority.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func ParseUrgency(raw string) (Urgency, error) {
	u := Urgency(strings.ToLower(strings.TrimSpace(raw)))
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return u, nil
	case "":
		return UrgencyMedium, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "urgency must be one of low, medium, high, critical")
}
