//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
	txcontext "bloodlink/pkg/platform/tx"
	"bloodlink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.pg.Close(s.ctx)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "donation_requests"))
}

func (s *PostgresStoreSuite) create() *models.DonationRequest {
	r := pendingRequest(s.T())
	s.Require().NoError(s.store.Create(s.ctx, r))
	return r
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	r := s.create()

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.ID, got.ID)
	s.Equal(r.DonationDate, got.DonationDate)
	s.Equal(r.ScheduledAt(), got.ScheduledAt())
	s.Equal(r.Recipient, got.Recipient)
	s.Len(got.StatusHistory, 1)
	s.Empty(got.Suggestions)

	s.ErrorIs(s.store.Create(s.ctx, r), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestConcurrentClaimsHaveOneWinner() {
	r := s.create()

	const donors = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range donors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.ClaimIfPending(s.ctx, r.ID, models.Claim{Donor: donorRef(), At: testNow, Note: models.AcceptanceNote})
			if err == nil {
				wins.Add(1)
				return
			}
			s.True(errors.Is(err, sentinel.ErrConflict), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusInProgress, got.Status)
	s.Len(got.StatusHistory, 2)
	s.NoError(got.CheckInvariants())
}

func (s *PostgresStoreSuite) TestUpdateIsVersionGuarded() {
	r := s.create()
	stale := r.Clone()

	s.Require().NoError(r.Apply(models.Transition{To: models.StatusCanceled, ActorID: r.RequesterID, At: testNow}))
	s.Require().NoError(s.store.Update(s.ctx, r, r.Version))

	s.Require().NoError(stale.Apply(models.Transition{To: models.StatusCanceled, ActorID: r.RequesterID, At: testNow}))
	s.ErrorIs(s.store.Update(s.ctx, stale, stale.Version), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestSchemaRejectsDonorlessInProgress() {
	r := s.create()
	_, err := s.pg.DB.ExecContext(s.ctx, `UPDATE donation_requests SET status = 'inprogress' WHERE id = $1`, uuid.UUID(r.ID))
	s.Error(err)
}

func (s *PostgresStoreSuite) TestUpdateInsideTransactionRollsBack() {
	r := s.create()

	err := txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context) error {
		s.Require().NoError(r.Apply(models.Transition{To: models.StatusCanceled, ActorID: r.RequesterID, At: testNow}))
		if err := s.store.Update(ctx, r, r.Version); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
}

func (s *PostgresStoreSuite) TestAppendSuggestion() {
	r := s.create()
	suggestion := models.VolunteerSuggestion{VolunteerID: id.UserID(uuid.New()), DonorID: id.UserID(uuid.New()), SuggestedAt: testNow}

	s.Require().NoError(s.store.AppendSuggestion(s.ctx, r.ID, suggestion))
	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(got.Suggestions, 1)

	s.ErrorIs(s.store.AppendSuggestion(s.ctx, id.NewDonationRequestID(), suggestion), sentinel.ErrNotFound)
}
