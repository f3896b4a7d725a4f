package eligibility

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink/internal/donation/models"
	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/testutil"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func request(t *testing.T, group id.BloodGroup) models.DonationRequest {
	t.Helper()
	r, err := models.NewDonationRequest(models.NewRequestParams{
		ID:          id.NewDonationRequestID(),
		RequesterID: id.UserID(uuid.New()),
		Recipient: models.Recipient{
			Name: "Recipient", District: "Dhaka", HospitalName: "Square Hospital",
		},
		BloodGroup:    string(group),
		DonationDate:  now.AddDate(0, 0, 1),
		DonationTime:  "09:00",
		Message:       "Needs blood for surgery tomorrow",
		Urgency:       "high",
		UnitsRequired: 1,
	}, now)
	require.NoError(t, err)
	return *r
}

func donor(group id.BloodGroup) usermodels.User {
	return usermodels.User{
		ID:         id.UserID(uuid.New()),
		Role:       usermodels.RoleDonor,
		BloodGroup: group,
		Status:     usermodels.AccountActive,
		Available:  true,
	}
}

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		donor    func() usermodels.User
		reqGroup id.BloodGroup
		eligible bool
		rule     Rule
		reason   string
	}{
		{
			name:     "first-time donor with matching group",
			donor:    func() usermodels.User { return donor(id.BloodGroupOPos) },
			reqGroup: id.BloodGroupOPos,
			eligible: true,
		},
		{
			name: "donated 30 days ago",
			donor: func() usermodels.User {
				d := donor(id.BloodGroupOPos)
				d.LastDonationDate = daysAgo(30)
				return d
			},
			reqGroup: id.BloodGroupOPos,
			rule:     RuleRestPeriod,
			reason:   "60 days remaining",
		},
		{
			name:     "blood group mismatch",
			donor:    func() usermodels.User { return donor(id.BloodGroupANeg) },
			reqGroup: id.BloodGroupBPos,
			rule:     RuleBloodGroup,
			reason:   "blood group mismatch",
		},
		{
			name: "compatible but not identical group",
			donor: func() usermodels.User {
				return donor(id.BloodGroupONeg)
			},
			reqGroup: id.BloodGroupAPos,
			rule:     RuleBloodGroup,
			reason:   "blood group mismatch",
		},
		{
			name: "exactly 90 days",
			donor: func() usermodels.User {
				d := donor(id.BloodGroupBNeg)
				d.LastDonationDate = daysAgo(90)
				return d
			},
			reqGroup: id.BloodGroupBNeg,
			eligible: true,
		},
		{
			name: "89 days",
			donor: func() usermodels.User {
				d := donor(id.BloodGroupBNeg)
				d.LastDonationDate = daysAgo(89)
				return d
			},
			reqGroup: id.BloodGroupBNeg,
			rule:     RuleRestPeriod,
			reason:   "1 days remaining",
		},
		{
			name: "blocked wins over everything",
			donor: func() usermodels.User {
				d := donor(id.BloodGroupANeg)
				d.Status = usermodels.AccountBlocked
				d.Available = false
				d.LastDonationDate = daysAgo(1)
				return d
			},
			reqGroup: id.BloodGroupBPos,
			rule:     RuleAccountActive,
			reason:   "donor account is blocked",
		},
		{
			name: "unavailable before mismatch",
			donor: func() usermodels.User {
				d := donor(id.BloodGroupANeg)
				d.Available = false
				return d
			},
			reqGroup: id.BloodGroupBPos,
			rule:     RuleAvailable,
			reason:   "donor is not available",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Check(tt.donor(), request(t, tt.reqGroup), now)
			assert.Equal(t, tt.eligible, res.Eligible)
			assert.Equal(t, tt.rule, res.Rule)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestCheck_RequestState(t *testing.T) {
	d := donor(id.BloodGroupOPos)

	t.Run("expired", func(t *testing.T) {
		req := request(t, id.BloodGroupOPos)
		res := Check(d, req, req.ScheduledAt().Add(time.Minute))
		assert.False(t, res.Eligible)
		assert.Equal(t, ReasonExpired, res.Reason)
	})

	t.Run("not pending", func(t *testing.T) {
		req := request(t, id.BloodGroupOPos)
		req.Status = models.StatusInProgress
		res := Check(d, req, now)
		assert.Equal(t, ReasonNotPending, res.Reason)
	})

	t.Run("soft deleted", func(t *testing.T) {
		req := request(t, id.BloodGroupOPos)
		req.IsActive = false
		res := Check(d, req, now)
		assert.Equal(t, ReasonNotPending, res.Reason)
	})
}

func TestCheck_Deterministic(t *testing.T) {
	d := donor(id.BloodGroupOPos)
	d.LastDonationDate = daysAgo(45)
	req := request(t, id.BloodGroupOPos)

	first := Check(d, req, now)
	for range 100 {
		assert.Equal(t, first, Check(d, req, now))
	}
	assert.Equal(t, "45 days remaining", first.Reason)
}

func TestDaysRemaining(t *testing.T) {
	assert.Equal(t, 0, DaysRemaining(nil, now))
	assert.Equal(t, 60, DaysRemaining(daysAgo(30), now))
	assert.Equal(t, 0, DaysRemaining(daysAgo(365), now))

	// Same calendar day late in the evening still counts as zero days elapsed.
	lastNight := time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 90, DaysRemaining(&lastNight, now))

	future := now.AddDate(0, 0, 5)
	assert.Equal(t, 95, DaysRemaining(&future, now))
}

func TestCompatibilityChart(t *testing.T) {
	assert.True(t, Compatible(id.BloodGroupONeg, id.BloodGroupABPos))
	assert.True(t, Compatible(id.BloodGroupAPos, id.BloodGroupABPos))
	assert.False(t, Compatible(id.BloodGroupAPos, id.BloodGroupOPos))
	assert.False(t, Compatible(id.BloodGroupABPos, id.BloodGroupABNeg))

	assert.Len(t, CanDonateTo(id.BloodGroupONeg), 8)
	assert.Len(t, CanReceiveFrom(id.BloodGroupABPos), 8)
	assert.Equal(t, []id.BloodGroup{id.BloodGroupONeg}, CanReceiveFrom(id.BloodGroupONeg))

	for _, g := range id.BloodGroups {
		assert.True(t, Compatible(g, g), "every group can donate to itself: %s", g)
	}
}

func TestRestPeriodAfterAcceptance(t *testing.T) {
	testutil.Given(t, "a donor who just claimed a request dated tomorrow", func(t *testing.T) {
		d := donor(id.BloodGroupOPos)
		claimed := request(t, id.BloodGroupOPos)
		d.ApplyDonation(claimed.ID, claimed.DonationDate)

		testutil.When(t, "they try to accept another request today", func(t *testing.T) {
			res := Check(d, request(t, id.BloodGroupOPos), now)

			testutil.Then(t, "the full rest period plus the day before the donation remains", func(t *testing.T) {
				assert.False(t, res.Eligible)
				assert.Equal(t, RuleRestPeriod, res.Rule)
				assert.Equal(t, "91 days remaining", res.Reason)
			})
		})

		testutil.When(t, "the rest period has passed", func(t *testing.T) {
			later := claimed.DonationDate.AddDate(0, 0, RestPeriodDays)
			assert.Zero(t, DaysRemaining(d.LastDonationDate, later))
		})
	})
}
