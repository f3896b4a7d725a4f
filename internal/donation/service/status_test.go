package service

import (
	"time"

	"bloodlink/internal/donation/models"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
)

// =============================================================================
// ChangeStatus Tests
// =============================================================================

func (s *ServiceSuite) TestChangeStatus_DoneOnPendingIsInvalid() {
	r := s.createRequest()

	_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
		ActorID:   s.volunteer.ID,
		RequestID: r.ID,
		Status:    models.StatusDone,
	})
	s.requireCode(err, dErrors.CodeInvalidTransition)
	s.Equal(models.StatusPending, s.stored(r.ID).Status)
}

func (s *ServiceSuite) TestChangeStatus_BoundDonorCompletes() {
	r := s.inProgressRequest()

	got, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
		ActorID:   s.donor.ID,
		RequestID: r.ID,
		Status:    models.StatusDone,
		Note:      "donated at 10:15",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusDone, got.Status)

	stored := s.stored(r.ID)
	s.Equal(s.donor.ID, stored.Donor.ID)
	s.Equal("donated at 10:15", stored.StatusHistory[len(stored.StatusHistory)-1].Note)

	completed, ok := s.notifier.last().(notification.Completed)
	s.Require().True(ok)
	s.Equal(s.donor.ID, completed.Donor.ID)
	s.Contains(s.auditActions(r.ID), string(audit.EventRequestStatusChanged))
}

func (s *ServiceSuite) TestChangeStatus_StaffAssignsDonor() {
	s.Run("binds an eligible donor", func() {
		r := s.createRequest()
		got, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
			ActorID:   s.volunteer.ID,
			RequestID: r.ID,
			Status:    models.StatusInProgress,
			DonorID:   &s.donor.ID,
		})
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, got.Status)
		s.Equal(s.donor.ID, got.Donor.ID)

		last := got.StatusHistory[len(got.StatusHistory)-1]
		s.Equal(s.volunteer.ID, last.ChangedBy)
		s.Equal(models.AssignmentNote, last.Note)

		_, ok := s.notifier.last().(notification.Accepted)
		s.True(ok)
	})

	s.Run("requires a donor", func() {
		r := s.createRequest()
		_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
			ActorID:   s.volunteer.ID,
			RequestID: r.ID,
			Status:    models.StatusInProgress,
		})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("rejects an ineligible donor", func() {
		r := s.createRequest()
		mismatch := s.addUser(usermodels.RoleDonor, id.BloodGroupABPos)
		_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
			ActorID:   s.volunteer.ID,
			RequestID: r.ID,
			Status:    models.StatusInProgress,
			DonorID:   &mismatch.ID,
		})
		s.requireCode(err, dErrors.CodeNotEligible)
		s.Equal(models.StatusPending, s.stored(r.ID).Status)
	})

	s.Run("rejects staff as the donor", func() {
		r := s.createRequest()
		_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
			ActorID:   s.volunteer.ID,
			RequestID: r.ID,
			Status:    models.StatusInProgress,
			DonorID:   &s.volunteer.ID,
		})
		s.requireCode(err, dErrors.CodeNotEligible)
	})

	s.Run("donor cannot self-assign through change status", func() {
		r := s.createRequest()
		_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
			ActorID:   s.donor.ID,
			RequestID: r.ID,
			Status:    models.StatusInProgress,
			DonorID:   &s.donor.ID,
		})
		s.requireCode(err, dErrors.CodeForbidden)
	})
}

func (s *ServiceSuite) TestChangeStatus_StaffRevertsToPending() {
	r := s.inProgressRequest()
	before := len(s.notifier.all())

	got, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
		ActorID:   s.volunteer.ID,
		RequestID: r.ID,
		Status:    models.StatusPending,
		Note:      "donor unreachable",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Nil(got.Donor)
	s.Len(s.notifier.all(), before, "reverting does not notify")

	// The request can be claimed again.
	other := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
	_, err = s.service.Accept(s.ctx, other.ID, r.ID)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestChangeStatus_StaleReadIsRejected() {
	r := s.inProgressRequest()
	stale := s.stored(r.ID)

	_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
		ActorID:   s.volunteer.ID,
		RequestID: r.ID,
		Status:    models.StatusDone,
	})
	s.Require().NoError(err)

	s.Require().NoError(stale.Apply(models.Transition{To: models.StatusCanceled, ActorID: s.requester.ID, At: testNow}))
	err = s.store.Update(s.ctx, stale, stale.Version)
	s.Error(err, "a write based on the old version must not land")
	s.Equal(models.StatusDone, s.stored(r.ID).Status)
}

func (s *ServiceSuite) TestChangeStatus_UnknownStatus() {
	r := s.createRequest()
	_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{
		ActorID:   s.volunteer.ID,
		RequestID: r.ID,
		Status:    models.Status("archived"),
	})
	s.requireCode(err, dErrors.CodeValidation)
}

// =============================================================================
// Cancel Tests
// =============================================================================

func (s *ServiceSuite) TestCancel_RequesterCancelsInProgress() {
	r := s.inProgressRequest()

	got, err := s.service.Cancel(s.ctx, s.requester.ID, r.ID, "patient recovered")
	s.Require().NoError(err)
	s.Equal(models.StatusCanceled, got.Status)
	s.Nil(got.Donor)

	cancelled, ok := s.notifier.last().(notification.Cancelled)
	s.Require().True(ok)
	s.Equal("patient recovered", cancelled.Reason)
	s.Require().NotNil(cancelled.Donor)
	s.Equal(s.donor.ID, cancelled.Donor.ID)

	recipients := map[id.UserID]bool{}
	for _, rc := range notification.PlanFor(cancelled).Direct {
		recipients[rc.UserID] = true
	}
	s.True(recipients[s.requester.ID])
	s.True(recipients[s.donor.ID])

	s.Equal(string(audit.EventRequestCanceled), s.auditActions(r.ID)[len(s.auditActions(r.ID))-1])
}

func (s *ServiceSuite) TestCancel_Guards() {
	s.Run("stranger cannot cancel", func() {
		r := s.createRequest()
		stranger := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
		_, err := s.service.Cancel(s.ctx, stranger.ID, r.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("done request cannot be canceled", func() {
		r := s.inProgressRequest()
		_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{ActorID: s.donor.ID, RequestID: r.ID, Status: models.StatusDone})
		s.Require().NoError(err)

		_, err = s.service.Cancel(s.ctx, s.requester.ID, r.ID, "")
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})

	s.Run("blocked actor", func() {
		r := s.createRequest()
		s.requester.Status = usermodels.AccountBlocked
		s.Require().NoError(s.users.Save(s.ctx, s.requester))
		defer func() {
			s.requester.Status = usermodels.AccountActive
			s.Require().NoError(s.users.Save(s.ctx, s.requester))
		}()

		_, err := s.service.Cancel(s.ctx, s.requester.ID, r.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})
}

// =============================================================================
// SoftDelete Tests
// =============================================================================

func (s *ServiceSuite) TestSoftDelete() {
	s.Run("open request is canceled and hidden", func() {
		r := s.inProgressRequest()

		s.Require().NoError(s.service.SoftDelete(s.ctx, s.requester.ID, r.ID, ""))
		stored := s.stored(r.ID)
		s.False(stored.IsActive)
		s.Equal(models.StatusCanceled, stored.Status)
		s.Equal(deletedNote, stored.StatusHistory[len(stored.StatusHistory)-1].Note)

		_, ok := s.notifier.last().(notification.Cancelled)
		s.True(ok)
		s.Equal(string(audit.EventRequestDeleted), s.auditActions(r.ID)[len(s.auditActions(r.ID))-1])
	})

	s.Run("done request keeps its status", func() {
		r := s.inProgressRequest()
		_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{ActorID: s.volunteer.ID, RequestID: r.ID, Status: models.StatusDone})
		s.Require().NoError(err)
		before := len(s.notifier.all())

		s.Require().NoError(s.service.SoftDelete(s.ctx, s.volunteer.ID, r.ID, "cleanup"))
		stored := s.stored(r.ID)
		s.False(stored.IsActive)
		s.Equal(models.StatusDone, stored.Status)
		s.Len(s.notifier.all(), before)
	})

	s.Run("deleted request cannot be deleted or claimed again", func() {
		r := s.createRequest()
		s.Require().NoError(s.service.SoftDelete(s.ctx, s.requester.ID, r.ID, "duplicate"))

		err := s.service.SoftDelete(s.ctx, s.requester.ID, r.ID, "again")
		s.requireCode(err, dErrors.CodeNotFound)

		_, err = s.service.Accept(s.ctx, s.donor.ID, r.ID)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("stranger cannot delete", func() {
		r := s.createRequest()
		stranger := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
		err := s.service.SoftDelete(s.ctx, stranger.ID, r.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})
}

func (s *ServiceSuite) TestAuditEntriesCarryTransition() {
	r := s.inProgressRequest()
	_, err := s.service.ChangeStatus(s.ctx, ChangeStatusCommand{ActorID: s.donor.ID, RequestID: r.ID, Status: models.StatusDone})
	s.Require().NoError(err)

	events, err := s.auditStore.ListByEntity(s.ctx, audit.EntityRef(r.ID))
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	last := events[2]
	s.Equal(s.donor.ID, last.ActorID)
	s.Equal(string(models.StatusInProgress), last.From)
	s.Equal(string(models.StatusDone), last.To)
	s.Equal(string(models.StatusDone), last.Status)
	s.WithinDuration(testNow, last.Timestamp, time.Second)
}
