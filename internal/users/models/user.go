package models

import (
	"time"

	id "bloodlink/pkg/domain"
)

type Role string

const (
	RoleDonor     Role = "donor"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// User is the donor-relevant projection of an account. The account service
// owns it; this module only reads it and records completed claims.
type User struct {
	ID               id.UserID     `json:"id"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Phone            string        `json:"phone,omitempty"`
	Role             Role          `json:"role"`
	BloodGroup       id.BloodGroup `json:"blood_group"`
	District         string        `json:"district"`
	SubDistrict      string        `json:"sub_district"`
	Status           AccountStatus `json:"status"`
	Available        bool          `json:"available"`
	LastDonationDate *time.Time    `json:"last_donation_date,omitempty"`
	TotalDonations   int           `json:"total_donations"`

	// LastDonationRequest is the request behind LastDonationDate; it keys
	// idempotent replays of ApplyDonation.
	LastDonationRequest *id.DonationRequestID `json:"-"`
}

// IsStaff reports whether the user may act on requests they are not party to.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleVolunteer
}

func (u *User) IsDonor() bool { return u.Role == RoleDonor }

func (u *User) IsActive() bool { return u.Status == AccountActive }

// ApplyDonation records a claimed donation. Replaying the same request is a
// no-op, so a retried reconciliation never double counts.
func (u *User) ApplyDonation(requestID id.DonationRequestID, date time.Time) bool {
	if u.LastDonationRequest != nil && *u.LastDonationRequest == requestID {
		return false
	}
	d := date
	u.LastDonationDate = &d
	u.LastDonationRequest = &requestID
	u.TotalDonations++
	return true
}
