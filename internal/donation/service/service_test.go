package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bloodlink/internal/donation/models"
	"bloodlink/internal/donation/reconcile"
	donationstore "bloodlink/internal/donation/store"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	userstore "bloodlink/internal/users/store"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/audit/publisher"
	auditmemory "bloodlink/pkg/platform/audit/store/memory"
	"bloodlink/pkg/requestcontext"
)

// =============================================================================
// Service Test Suite
// =============================================================================
// The suite runs the engine against the in-memory stores so guards, the claim
// CAS and the side effects are exercised together.

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notification.Payload
	drop     bool
}

func (n *recordingNotifier) Handle(_ context.Context, p notification.Payload) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.drop {
		return false
	}
	n.payloads = append(n.payloads, p)
	return true
}

func (n *recordingNotifier) all() []notification.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Payload(nil), n.payloads...)
}

func (n *recordingNotifier) last() notification.Payload {
	all := n.all()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *donationstore.InMemoryStore
	users      *userstore.InMemoryStore
	notifier   *recordingNotifier
	auditStore *auditmemory.InMemoryStore
	queue      *reconcile.MemoryQueue
	service    *Service

	requester *usermodels.User
	donor     *usermodels.User
	volunteer *usermodels.User
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), testNow)
	s.store = donationstore.NewInMemoryStore()
	s.users = userstore.NewInMemoryStore()
	s.notifier = &recordingNotifier{}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.queue = reconcile.NewMemoryQueue()

	var err error
	s.service, err = New(s.store, s.users,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotifier(s.notifier),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithReconcileQueue(s.queue),
	)
	s.Require().NoError(err)

	s.requester = s.addUser(usermodels.RoleDonor, id.BloodGroupAPos)
	s.donor = s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
	s.volunteer = s.addUser(usermodels.RoleVolunteer, id.BloodGroupBPos)
}

// SetupSubTest gives every subtest a donor outside the rest window, since a
// claim in one subtest records a donation for the bound donor.
func (s *ServiceSuite) SetupSubTest() {
	s.donor = s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
}

func (s *ServiceSuite) addUser(role usermodels.Role, group id.BloodGroup) *usermodels.User {
	u := &usermodels.User{
		ID:         id.UserID(uuid.New()),
		Name:       "user " + string(role),
		Email:      string(role) + "@example.com",
		Phone:      "+8801700000000",
		Role:       role,
		BloodGroup: group,
		District:   "Dhaka",
		Status:     usermodels.AccountActive,
		Available:  true,
	}
	s.Require().NoError(s.users.Save(s.ctx, u))
	return u
}

func (s *ServiceSuite) createCommand() CreateCommand {
	return CreateCommand{
		RequesterID: s.requester.ID,
		Recipient: models.Recipient{
			Name:         "Karim",
			District:     "Dhaka",
			SubDistrict:  "Mirpur",
			HospitalName: "Dhaka Medical College",
		},
		BloodGroup:    "O+",
		DonationDate:  testNow.AddDate(0, 0, 1),
		DonationTime:  "10:00",
		Message:       "Surgery tomorrow morning, need blood",
		Urgency:       "high",
		UnitsRequired: 2,
	}
}

func (s *ServiceSuite) createRequest() *models.DonationRequest {
	r, err := s.service.Create(s.ctx, s.createCommand())
	s.Require().NoError(err)
	return r
}

func (s *ServiceSuite) inProgressRequest() *models.DonationRequest {
	r := s.createRequest()
	r, err := s.service.Accept(s.ctx, s.donor.ID, r.ID)
	s.Require().NoError(err)
	return r
}

func (s *ServiceSuite) stored(requestID id.DonationRequestID) *models.DonationRequest {
	r, err := s.store.FindByID(s.ctx, requestID)
	s.Require().NoError(err)
	s.Require().NoError(r.CheckInvariants())
	return r
}

func (s *ServiceSuite) auditActions(requestID id.DonationRequestID) []string {
	events, err := s.auditStore.ListByEntity(s.ctx, audit.EntityRef(requestID))
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	got, _ := dErrors.CodeOf(err)
	s.Require().Equal(code, got, err.Error())
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.users)
		s.Error(err)
		s.Contains(err.Error(), "store is required")
	})

	s.Run("nil directory returns error", func() {
		_, err := New(s.store, nil)
		s.Error(err)
		s.Contains(err.Error(), "user directory is required")
	})
}

// =============================================================================
// Create Tests
// =============================================================================

func (s *ServiceSuite) TestCreate() {
	s.Run("stores a pending request and announces it", func() {
		r, err := s.service.Create(s.ctx, s.createCommand())
		s.Require().NoError(err)

		s.Equal(models.StatusPending, r.Status)
		s.Equal(s.requester.Name, r.RequesterName)
		s.Equal(id.BloodGroupOPos, r.BloodGroup)
		s.Equal(models.StatusPending, s.stored(r.ID).Status)

		created, ok := s.notifier.last().(notification.Created)
		s.Require().True(ok)
		s.Equal(r.ID, created.Request.ID)
		s.Equal([]string{string(audit.EventRequestCreated)}, s.auditActions(r.ID))
	})

	s.Run("validation errors are returned without side effects", func() {
		before := len(s.notifier.all())
		cmd := s.createCommand()
		cmd.Message = "help"

		_, err := s.service.Create(s.ctx, cmd)
		s.requireCode(err, dErrors.CodeValidation)
		s.Len(s.notifier.all(), before)
	})

	s.Run("blocked requester is forbidden", func() {
		blocked := s.addUser(usermodels.RoleDonor, id.BloodGroupOPos)
		blocked.Status = usermodels.AccountBlocked
		s.Require().NoError(s.users.Save(s.ctx, blocked))
		cmd := s.createCommand()
		cmd.RequesterID = blocked.ID

		_, err := s.service.Create(s.ctx, cmd)
		s.requireCode(err, dErrors.CodeForbidden)
	})

	s.Run("unknown requester is unauthorized", func() {
		cmd := s.createCommand()
		cmd.RequesterID = id.UserID(uuid.New())

		_, err := s.service.Create(s.ctx, cmd)
		s.requireCode(err, dErrors.CodeUnauthorized)
	})
}

// =============================================================================
// Get Tests
// =============================================================================

func (s *ServiceSuite) TestGet() {
	s.Run("pending request is visible to any user", func() {
		r := s.createRequest()
		stranger := s.addUser(usermodels.RoleDonor, id.BloodGroupABNeg)

		got, err := s.service.Get(s.ctx, stranger.ID, r.ID)
		s.Require().NoError(err)
		s.Equal(r.ID, got.ID)
	})

	s.Run("claimed request is limited to parties and staff", func() {
		r := s.inProgressRequest()
		stranger := s.addUser(usermodels.RoleDonor, id.BloodGroupABNeg)

		_, err := s.service.Get(s.ctx, stranger.ID, r.ID)
		s.requireCode(err, dErrors.CodeForbidden)

		for _, viewer := range []id.UserID{s.requester.ID, s.donor.ID, s.volunteer.ID} {
			_, err := s.service.Get(s.ctx, viewer, r.ID)
			s.NoError(err)
		}
	})

	s.Run("deleted request is hidden from non-staff", func() {
		r := s.createRequest()
		s.Require().NoError(s.service.SoftDelete(s.ctx, s.requester.ID, r.ID, "duplicate"))

		_, err := s.service.Get(s.ctx, s.requester.ID, r.ID)
		s.requireCode(err, dErrors.CodeNotFound)

		got, err := s.service.Get(s.ctx, s.volunteer.ID, r.ID)
		s.Require().NoError(err)
		s.False(got.IsActive)
	})

	s.Run("unknown request", func() {
		_, err := s.service.Get(s.ctx, s.requester.ID, id.NewDonationRequestID())
		s.requireCode(err, dErrors.CodeNotFound)
	})
}
