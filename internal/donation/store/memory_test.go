package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func pendingRequest(t *testing.T) *models.DonationRequest {
	t.Helper()
	r, err := models.NewDonationRequest(models.NewRequestParams{
		ID:          id.NewDonationRequestID(),
		RequesterID: id.UserID(uuid.New()),
		Recipient: models.Recipient{
			Name:         "Rahim",
			District:     "Dhaka",
			HospitalName: "Dhaka Medical College",
		},
		BloodGroup:    "O+",
		DonationDate:  testNow.AddDate(0, 0, 2),
		DonationTime:  "10:30",
		Message:       "urgent surgery tomorrow morning",
		UnitsRequired: 2,
	}, testNow)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return r
}

func donorRef() models.DonorRef {
	return models.DonorRef{ID: id.UserID(uuid.New()), Name: "Karim", Email: "karim@example.com"}
}

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) create() *models.DonationRequest {
	r := pendingRequest(s.T())
	s.Require().NoError(s.store.Create(s.ctx, r))
	return r
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	r := s.create()

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)
	s.Equal(models.StatusPending, got.Status)

	got.StatusHistory[0].Note = "mutated"
	again, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal("request created", again.StatusHistory[0].Note)

	s.ErrorIs(s.store.Create(s.ctx, r), sentinel.ErrConflict)

	_, err = s.store.FindByID(s.ctx, id.NewDonationRequestID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestClaimIfPending() {
	s.Run("binds the donor and appends history", func() {
		r := s.create()
		donor := donorRef()

		got, err := s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donor, At: testNow, Note: models.AcceptanceNote})
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, got.Status)
		s.Require().NotNil(got.Donor)
		s.Equal(donor.ID, got.Donor.ID)
		s.Len(got.StatusHistory, 2)
		s.Equal(int64(1), got.Version)
		s.NoError(got.CheckInvariants())
	})

	s.Run("second claim conflicts", func() {
		r := s.create()
		_, err := s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donorRef(), At: testNow})
		s.Require().NoError(err)

		_, err = s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donorRef(), At: testNow})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("expired request conflicts", func() {
		r := s.create()
		_, err := s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donorRef(), At: r.ScheduledAt()})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing request", func() {
		_, err := s.store.ClaimIfPending(s.ctx, id.NewDonationRequestID(), models.Claim{Donor: donorRef(), At: testNow})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentClaimsHaveOneWinner() {
	r := s.create()

	const donors = 32
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for range donors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donorRef(), At: testNow})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(donors-1), conflicts.Load())

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(got.StatusHistory, 2, "exactly one inprogress entry")
	s.NoError(got.CheckInvariants())
}

func (s *InMemoryStoreSuite) TestUpdateIsVersionGuarded() {
	r := s.create()

	first, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	stale, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)

	s.Require().NoError(first.Apply(models.Transition{To: models.StatusCanceled, ActorID: r.RequesterID, At: testNow}))
	s.Require().NoError(s.store.Update(s.ctx, first, first.Version))
	s.Equal(int64(1), first.Version)

	s.Require().NoError(stale.Apply(models.Transition{To: models.StatusCanceled, ActorID: r.RequesterID, At: testNow}))
	s.ErrorIs(s.store.Update(s.ctx, stale, stale.Version), sentinel.ErrConflict)

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(got.StatusHistory, 2)

	missing := pendingRequest(s.T())
	s.ErrorIs(s.store.Update(s.ctx, missing, 0), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestUpdateKeepsSuggestions() {
	r := s.create()
	suggestion := models.VolunteerSuggestion{VolunteerID: id.UserID(uuid.New()), DonorID: id.UserID(uuid.New()), SuggestedAt: testNow}
	s.Require().NoError(s.store.AppendSuggestion(s.ctx, r.ID, suggestion))

	s.Require().NoError(r.Apply(models.Transition{To: models.StatusCanceled, ActorID: r.RequesterID, At: testNow}))
	s.Require().NoError(s.store.Update(s.ctx, r, r.Version))

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(got.Suggestions, 1)
}

func (s *InMemoryStoreSuite) TestAppendSuggestion() {
	r := s.create()
	suggestion := models.VolunteerSuggestion{VolunteerID: id.UserID(uuid.New()), DonorID: id.UserID(uuid.New()), SuggestedAt: testNow}

	s.Require().NoError(s.store.AppendSuggestion(s.ctx, r.ID, suggestion))
	s.Require().NoError(s.store.AppendSuggestion(s.ctx, r.ID, suggestion))

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(got.Suggestions, 2)
	s.Equal(models.StatusPending, got.Status)
	s.Nil(got.Donor)

	_, err = s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donorRef(), At: testNow})
	s.Require().NoError(err)
	s.ErrorIs(s.store.AppendSuggestion(s.ctx, r.ID, suggestion), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.AppendSuggestion(s.ctx, id.NewDonationRequestID(), suggestion), sentinel.ErrNotFound)
}
