package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bloodlink/internal/donation/models"
	"bloodlink/internal/donation/reconcile"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	userstore "bloodlink/internal/users/store"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/requestcontext"
)

type failingRecorder struct {
	*userstore.InMemoryStore
	err error
}

func (f *failingRecorder) RecordDonation(context.Context, id.UserID, id.DonationRequestID, time.Time) error {
	return f.err
}

// cachingDirectory serves a snapshot taken at construction from FindByID,
// the way a profile cache can lag behind the account service.
type cachingDirectory struct {
	*userstore.InMemoryStore
	snapshot map[id.UserID]usermodels.User
}

func newCachingDirectory(backing *userstore.InMemoryStore, users ...*usermodels.User) *cachingDirectory {
	d := &cachingDirectory{InMemoryStore: backing, snapshot: map[id.UserID]usermodels.User{}}
	for _, u := range users {
		d.snapshot[u.ID] = *u
	}
	return d
}

func (d *cachingDirectory) FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	if u, ok := d.snapshot[userID]; ok {
		return &u, nil
	}
	return d.InMemoryStore.FindByID(ctx, userID)
}

func (d *cachingDirectory) FindByIDFresh(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	return d.InMemoryStore.FindByID(ctx, userID)
}

// =============================================================================
// Accept Tests
// =============================================================================

func (s *ServiceSuite) TestAccept_EligibleDonorClaimsRequest() {
	r := s.createRequest()

	got, err := s.service.Accept(s.ctx, s.donor.ID, r.ID)
	s.Require().NoError(err)

	s.Equal(models.StatusInProgress, got.Status)
	s.Require().NotNil(got.Donor)
	s.Equal(s.donor.ID, got.Donor.ID)
	s.Equal(s.donor.Email, got.Donor.Email)

	stored := s.stored(r.ID)
	last := stored.StatusHistory[len(stored.StatusHistory)-1]
	s.Equal(models.AcceptanceNote, last.Note)
	s.Equal(s.donor.ID, last.ChangedBy)

	donor, err := s.users.FindByID(s.ctx, s.donor.ID)
	s.Require().NoError(err)
	s.Equal(1, donor.TotalDonations)
	s.Require().NotNil(donor.LastDonationDate)
	s.True(r.DonationDate.Equal(*donor.LastDonationDate))

	accepted, ok := s.notifier.last().(notification.Accepted)
	s.Require().True(ok)
	s.Equal(s.donor.ID, accepted.Donor.ID)
	s.Equal(s.donor.Phone, accepted.DonorPhone)
	s.Equal([]string{
		string(audit.EventRequestCreated),
		string(audit.EventRequestAccepted),
	}, s.auditActions(r.ID))
}

func (s *ServiceSuite) TestAccept_RestPeriodNotElapsed() {
	last := testNow.AddDate(0, 0, -30)
	s.donor.LastDonationDate = &last
	s.Require().NoError(s.users.Save(s.ctx, s.donor))
	r := s.createRequest()

	_, err := s.service.Accept(s.ctx, s.donor.ID, r.ID)
	s.requireCode(err, dErrors.CodeNotEligible)
	s.Equal("60 days remaining", dErrors.MessageOf(err))
	s.Equal(models.StatusPending, s.stored(r.ID).Status)
}

func (s *ServiceSuite) TestAccept_EligibilityIgnoresCachedProfile() {
	cached := newCachingDirectory(s.users, s.donor, s.volunteer)
	svc, err := New(s.store, cached,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotifier(s.notifier),
	)
	s.Require().NoError(err)
	r := s.createRequest()

	s.donor.Status = usermodels.AccountBlocked
	s.Require().NoError(s.users.Save(s.ctx, s.donor))
	_, err = svc.Accept(s.ctx, s.donor.ID, r.ID)
	s.requireCode(err, dErrors.CodeNotEligible)
	s.Equal("donor account is blocked", dErrors.MessageOf(err))

	other := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
	cached.snapshot[other.ID] = *other
	last := testNow.AddDate(0, 0, -10)
	other.LastDonationDate = &last
	s.Require().NoError(s.users.Save(s.ctx, other))
	err = svc.SuggestDonor(s.ctx, s.volunteer.ID, r.ID, other.ID, "nearby")
	s.requireCode(err, dErrors.CodeNotEligible)
	s.Equal("80 days remaining", dErrors.MessageOf(err))
	s.Equal(models.StatusPending, s.stored(r.ID).Status)
}

func (s *ServiceSuite) TestAccept_BloodGroupMismatch() {
	donor := s.addUser(usermodels.RoleDonor, id.BloodGroupANeg)
	cmd := s.createCommand()
	cmd.BloodGroup = "B+"
	r, err := s.service.Create(s.ctx, cmd)
	s.Require().NoError(err)

	_, err = s.service.Accept(s.ctx, donor.ID, r.ID)
	s.requireCode(err, dErrors.CodeNotEligible)
	s.Equal("blood group mismatch", dErrors.MessageOf(err))
}

func (s *ServiceSuite) TestAccept_ConcurrentDonorsOnlyOneWins() {
	r := s.createRequest()
	const donors = 16
	candidates := make([]*usermodels.User, donors)
	for i := range candidates {
		candidates[i] = s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
	}

	var wins, claimed atomic.Int32
	var winner atomic.Value
	g, ctx := errgroup.WithContext(s.ctx)
	for _, d := range candidates {
		g.Go(func() error {
			got, err := s.service.Accept(ctx, d.ID, r.ID)
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(got.Donor.ID)
			case dErrors.HasCode(err, dErrors.CodeAlreadyClaimed):
				claimed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(donors-1), claimed.Load())
	stored := s.stored(r.ID)
	s.Equal(winner.Load(), stored.Donor.ID)

	for _, d := range candidates {
		u, err := s.users.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		if u.ID == stored.Donor.ID {
			s.Equal(1, u.TotalDonations)
			continue
		}
		s.Zero(u.TotalDonations, "losing donors keep their counters")
		s.Nil(u.LastDonationDate)
	}
}

func (s *ServiceSuite) TestAccept_Guards() {
	s.Run("requester cannot accept own request", func() {
		cmd := s.createCommand()
		cmd.RequesterID = s.donor.ID
		r, err := s.service.Create(s.ctx, cmd)
		s.Require().NoError(err)

		_, err = s.service.Accept(s.ctx, s.donor.ID, r.ID)
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("staff cannot accept", func() {
		r := s.createRequest()
		_, err := s.service.Accept(s.ctx, s.volunteer.ID, r.ID)
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("blocked donor is not eligible", func() {
		blocked := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
		blocked.Status = usermodels.AccountBlocked
		s.Require().NoError(s.users.Save(s.ctx, blocked))
		r := s.createRequest()

		_, err := s.service.Accept(s.ctx, blocked.ID, r.ID)
		s.requireCode(err, dErrors.CodeNotEligible)
		s.Equal("donor account is blocked", dErrors.MessageOf(err))
	})

	s.Run("expired request", func() {
		cmd := s.createCommand()
		cmd.DonationDate = testNow
		cmd.DonationTime = "10:00"
		r, err := s.service.Create(s.ctx, cmd)
		s.Require().NoError(err)

		later := requestcontext.WithTime(s.ctx, testNow.Add(90*time.Minute))
		_, err = s.service.Accept(later, s.donor.ID, r.ID)
		s.requireCode(err, dErrors.CodeExpired)
	})

	s.Run("canceled request", func() {
		r := s.createRequest()
		_, err := s.service.Cancel(s.ctx, s.requester.ID, r.ID, "found a donor elsewhere")
		s.Require().NoError(err)

		_, err = s.service.Accept(s.ctx, s.donor.ID, r.ID)
		s.requireCode(err, dErrors.CodeInvalidTransition)
	})

	s.Run("unknown request", func() {
		_, err := s.service.Accept(s.ctx, s.donor.ID, id.NewDonationRequestID())
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestAccept_DonorRecordFailureIsReconciled() {
	svc, err := New(s.store, &failingRecorder{InMemoryStore: s.users, err: errors.New("users db down")},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotifier(s.notifier),
		WithReconcileQueue(s.queue),
	)
	s.Require().NoError(err)
	r := s.createRequest()

	got, err := svc.Accept(s.ctx, s.donor.ID, r.ID)
	s.Require().NoError(err, "the claim stands when the donor update fails")
	s.Equal(models.StatusInProgress, got.Status)
	s.Equal(1, s.queue.Len())

	processed, err := reconcile.NewWorker(s.queue, s.users,
		reconcile.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		reconcile.WithClock(func() time.Time { return testNow }),
	).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, processed)

	donor, err := s.users.FindByID(s.ctx, s.donor.ID)
	s.Require().NoError(err)
	s.Equal(1, donor.TotalDonations)
}
