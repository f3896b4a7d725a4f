// Package eligibility decides whether a donor may take a donation request.
// Everything here is pure: no I/O, and "now" is an argument.
package eligibility

import (
	"strconv"
	"time"

	"bloodlink/internal/donation/models"
	usermodels "bloodlink/internal/users/models"
)

// RestPeriodDays is the mandatory wait between two donations.
const RestPeriodDays = 90

// Rule names the check that rejected a donor.
type Rule string

const (
	RuleNone          Rule = ""
	RuleAccountActive Rule = "account_active"
	RuleAvailable     Rule = "available"
	RuleBloodGroup    Rule = "blood_group"
	RuleRestPeriod    Rule = "rest_period"
	RuleRequestOpen   Rule = "request_open"
)

const (
	ReasonBlocked     = "donor account is blocked"
	ReasonUnavailable = "donor is not available"
	ReasonMismatch    = "blood group mismatch"
	ReasonExpired     = "request has expired"
	ReasonNotPending  = "request is no longer pending"
)

// Result is the outcome of Check. Reason is empty when Eligible.
type Result struct {
	Eligible bool
	Reason   string
	Rule     Rule
}

func reject(rule Rule, reason string) Result {
	return Result{Eligible: false, Reason: reason, Rule: rule}
}

// Check applies the rules in order; the first failure wins.
//  1. donor account is active
//  2. donor is available
//  3. donor blood group equals the request's exactly
//  4. at least RestPeriodDays since the last donation
//  5. request is active, pending and not expired
func Check(donor usermodels.User, req models.DonationRequest, now time.Time) Result {
	if !donor.IsActive() {
		return reject(RuleAccountActive, ReasonBlocked)
	}
	if !donor.Available {
		return reject(RuleAvailable, ReasonUnavailable)
	}
	if donor.BloodGroup != req.BloodGroup {
		return reject(RuleBloodGroup, ReasonMismatch)
	}
	if remaining := DaysRemaining(donor.LastDonationDate, now); remaining > 0 {
		return reject(RuleRestPeriod, strconv.Itoa(remaining)+" days remaining")
	}
	if req.IsExpired(now) {
		return reject(RuleRequestOpen, ReasonExpired)
	}
	if !req.IsActive || req.Status != models.StatusPending {
		return reject(RuleRequestOpen, ReasonNotPending)
	}
	return Result{Eligible: true}
}

// DaysRemaining is the number of whole days left in the rest period, measured
// on UTC calendar dates. A nil last donation, or a finished period, yields 0.
func DaysRemaining(lastDonation *time.Time, now time.Time) int {
	if lastDonation == nil {
		return 0
	}
	elapsed := int(models.CivilDate(now).Sub(models.CivilDate(*lastDonation)).Hours() / 24)
	if remaining := RestPeriodDays - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}
