package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
)

type fixture struct {
	req       *DonationRequest
	requester Actor
	donor     Actor
	other     Actor
	staff     Actor
}

func newFixture(t *testing.T, status Status) fixture {
	t.Helper()
	p := validParams()
	r, err := NewDonationRequest(p, now)
	require.NoError(t, err)

	f := fixture{
		req:       r,
		requester: Actor{ID: p.RequesterID, Role: usermodels.RoleDonor},
		donor:     Actor{ID: id.UserID(uuid.New()), Role: usermodels.RoleDonor},
		other:     Actor{ID: id.UserID(uuid.New()), Role: usermodels.RoleDonor},
		staff:     Actor{ID: id.UserID(uuid.New()), Role: usermodels.RoleVolunteer},
	}
	if status == StatusPending {
		return f
	}
	require.NoError(t, r.Apply(Transition{To: StatusInProgress, ActorID: f.donor.ID, At: now, Donor: &DonorRef{ID: f.donor.ID}}))
	if status == StatusInProgress {
		return f
	}
	require.NoError(t, r.Apply(Transition{To: status, ActorID: f.staff.ID, At: now}))
	return f
}

func codeOf(err error) dErrors.Code {
	c, _ := dErrors.CodeOf(err)
	return c
}

func TestCheckTransition_GuardTable(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		target Status
		actor  func(f fixture) Actor
		want   dErrors.Code
	}{
		{"staff assigns pending", StatusPending, StatusInProgress, func(f fixture) Actor { return f.staff }, ""},
		{"donor cannot mark inprogress directly", StatusPending, StatusInProgress, func(f fixture) Actor { return f.donor }, dErrors.CodeForbidden},
		{"staff done on pending", StatusPending, StatusDone, func(f fixture) Actor { return f.staff }, dErrors.CodeInvalidTransition},
		{"bound donor completes", StatusInProgress, StatusDone, func(f fixture) Actor { return f.donor }, ""},
		{"staff completes", StatusInProgress, StatusDone, func(f fixture) Actor { return f.staff }, ""},
		{"stranger cannot complete", StatusInProgress, StatusDone, func(f fixture) Actor { return f.other }, dErrors.CodeForbidden},
		{"requester cannot complete", StatusInProgress, StatusDone, func(f fixture) Actor { return f.requester }, dErrors.CodeForbidden},
		{"requester cancels pending", StatusPending, StatusCanceled, func(f fixture) Actor { return f.requester }, ""},
		{"requester cancels inprogress", StatusInProgress, StatusCanceled, func(f fixture) Actor { return f.requester }, ""},
		{"bound donor cancels", StatusInProgress, StatusCanceled, func(f fixture) Actor { return f.donor }, ""},
		{"stranger cannot cancel", StatusPending, StatusCanceled, func(f fixture) Actor { return f.other }, dErrors.CodeForbidden},
		{"cancel done", StatusDone, StatusCanceled, func(f fixture) Actor { return f.staff }, dErrors.CodeInvalidTransition},
		{"reopen canceled", StatusCanceled, StatusPending, func(f fixture) Actor { return f.staff }, dErrors.CodeInvalidTransition},
		{"staff reverts", StatusInProgress, StatusPending, func(f fixture) Actor { return f.staff }, ""},
		{"donor cannot revert", StatusInProgress, StatusPending, func(f fixture) Actor { return f.donor }, dErrors.CodeForbidden},
		{"same status", StatusPending, StatusPending, func(f fixture) Actor { return f.staff }, dErrors.CodeInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.from)
			err := CheckTransition(tt.actor(f), f.req, tt.target, now)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, codeOf(err), err.Error())
		})
	}
}

func TestCheckTransition_ExpiredAssignment(t *testing.T) {
	f := newFixture(t, StatusPending)
	err := CheckTransition(f.staff, f.req, StatusInProgress, f.req.ScheduledAt().Add(time.Hour))
	assert.Equal(t, dErrors.CodeExpired, codeOf(err))
}

func TestCheckTransition_DeletedRequest(t *testing.T) {
	f := newFixture(t, StatusPending)
	_, err := f.req.MarkDeleted(f.requester.ID, now, "duplicate")
	require.NoError(t, err)

	err = CheckTransition(f.staff, f.req, StatusInProgress, now)
	assert.Equal(t, dErrors.CodeInvalidTransition, codeOf(err))
}

func TestCheckAcceptance(t *testing.T) {
	t.Run("pending request", func(t *testing.T) {
		f := newFixture(t, StatusPending)
		assert.NoError(t, CheckAcceptance(f.other, f.req, now))
	})
	t.Run("staff cannot accept", func(t *testing.T) {
		f := newFixture(t, StatusPending)
		assert.Equal(t, dErrors.CodeForbidden, codeOf(CheckAcceptance(f.staff, f.req, now)))
	})
	t.Run("own request", func(t *testing.T) {
		f := newFixture(t, StatusPending)
		assert.Equal(t, dErrors.CodeForbidden, codeOf(CheckAcceptance(f.requester, f.req, now)))
	})
	t.Run("already claimed", func(t *testing.T) {
		f := newFixture(t, StatusInProgress)
		assert.Equal(t, dErrors.CodeAlreadyClaimed, codeOf(CheckAcceptance(f.other, f.req, now)))
	})
	t.Run("canceled", func(t *testing.T) {
		f := newFixture(t, StatusCanceled)
		assert.Equal(t, dErrors.CodeInvalidTransition, codeOf(CheckAcceptance(f.other, f.req, now)))
	})
	t.Run("expired", func(t *testing.T) {
		f := newFixture(t, StatusPending)
		later := f.req.ScheduledAt().Add(time.Minute)
		assert.Equal(t, dErrors.CodeExpired, codeOf(CheckAcceptance(f.other, f.req, later)))
	})
}

func TestApply_MaintainsInvariants(t *testing.T) {
	f := newFixture(t, StatusInProgress)
	require.NoError(t, f.req.CheckInvariants())
	historyLen := len(f.req.StatusHistory)

	require.NoError(t, f.req.Apply(Transition{To: StatusPending, ActorID: f.staff.ID, At: now, Note: "wrong donor"}))
	assert.Nil(t, f.req.Donor, "revert clears donor")
	assert.Len(t, f.req.StatusHistory, historyLen+1)
	assert.NoError(t, f.req.CheckInvariants())

	require.NoError(t, f.req.Apply(Transition{To: StatusInProgress, ActorID: f.other.ID, At: now, Donor: &DonorRef{ID: f.other.ID}}))
	require.NoError(t, f.req.Apply(Transition{To: StatusCanceled, ActorID: f.requester.ID, At: now, Note: "recovered"}))
	assert.Nil(t, f.req.Donor)
	assert.Equal(t, "recovered", f.req.StatusHistory[len(f.req.StatusHistory)-1].Note)
	assert.NoError(t, f.req.CheckInvariants())
}

func TestApply_InProgressNeedsDonor(t *testing.T) {
	f := newFixture(t, StatusPending)
	err := f.req.Apply(Transition{To: StatusInProgress, ActorID: f.staff.ID, At: now})
	assert.Equal(t, dErrors.CodeInvariantViolation, codeOf(err))
	assert.Equal(t, StatusPending, f.req.Status)
}

func TestMarkDeleted(t *testing.T) {
	t.Run("open request is canceled", func(t *testing.T) {
		f := newFixture(t, StatusInProgress)
		canceled, err := f.req.MarkDeleted(f.requester.ID, now, "no longer needed")
		require.NoError(t, err)
		assert.True(t, canceled)
		assert.False(t, f.req.IsActive)
		assert.Equal(t, StatusCanceled, f.req.Status)
		assert.NoError(t, f.req.CheckInvariants())
	})
	t.Run("done request keeps status", func(t *testing.T) {
		f := newFixture(t, StatusDone)
		canceled, err := f.req.MarkDeleted(f.staff.ID, now, "cleanup")
		require.NoError(t, err)
		assert.False(t, canceled)
		assert.Equal(t, StatusDone, f.req.Status)
		assert.NoError(t, f.req.CheckInvariants())
	})
	t.Run("guard", func(t *testing.T) {
		f := newFixture(t, StatusPending)
		assert.Equal(t, dErrors.CodeForbidden, codeOf(CheckDelete(f.other, f.req)))
		assert.NoError(t, CheckDelete(f.requester, f.req))
	})
}
