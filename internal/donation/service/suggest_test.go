package service

import (
	"github.com/google/uuid"

	"bloodlink/internal/donation/models"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
)

// =============================================================================
// SuggestDonor Tests
// =============================================================================

func (s *ServiceSuite) TestSuggestDonor_RecordsAdvisoryMatch() {
	r := s.createRequest()

	err := s.service.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, s.donor.ID, "  lives near the hospital ")
	s.Require().NoError(err)

	stored := s.stored(r.ID)
	s.Equal(models.StatusPending, stored.Status, "suggestions never change status")
	s.Nil(stored.Donor)
	s.Require().Len(stored.Suggestions, 1)
	s.Equal(s.volunteer.ID, stored.Suggestions[0].VolunteerID)
	s.Equal(s.donor.ID, stored.Suggestions[0].DonorID)
	s.Equal("lives near the hospital", stored.Suggestions[0].Note)
	s.Equal(testNow, stored.Suggestions[0].SuggestedAt)

	suggested, ok := s.notifier.last().(notification.Suggested)
	s.Require().True(ok)
	s.Equal(s.donor.ID, suggested.DonorID)
	s.Contains(s.auditActions(r.ID), string(audit.EventDonorSuggested))
}

func (s *ServiceSuite) TestSuggestDonor_Guards() {
	s.Run("donors cannot suggest", func() {
		r := s.createRequest()
		err := s.service.SuggestDonor(s.ctx, s.donor.ID, r.ID, s.donor.ID, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("request must be pending", func() {
		r := s.inProgressRequest()
		other := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
		err := s.service.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, other.ID, "")
		s.requireCode(err, dErrors.CodeInvalidState)
	})

	s.Run("deleted request", func() {
		r := s.createRequest()
		s.Require().NoError(s.service.SoftDelete(s.ctx, s.requester.ID, r.ID, ""))
		err := s.service.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, s.donor.ID, "")
		s.requireCode(err, dErrors.CodeInvalidState)
	})

	s.Run("suggested donor must be eligible", func() {
		r := s.createRequest()
		unavailable := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
		unavailable.Available = false
		s.Require().NoError(s.users.Save(s.ctx, unavailable))

		err := s.service.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, unavailable.ID, "")
		s.requireCode(err, dErrors.CodeNotEligible)
		s.Equal("donor is not available", dErrors.MessageOf(err))
		s.Empty(s.stored(r.ID).Suggestions)
	})

	s.Run("requester cannot be suggested", func() {
		cmd := s.createCommand()
		cmd.RequesterID = s.donor.ID
		r, err := s.service.Create(s.ctx, cmd)
		s.Require().NoError(err)

		err = s.service.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, s.donor.ID, "")
		s.requireCode(err, dErrors.CodeNotEligible)
	})

	s.Run("unknown donor", func() {
		r := s.createRequest()
		err := s.service.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, id.UserID(uuid.New()), "")
		s.requireCode(err, dErrors.CodeNotFound)
	})
}
