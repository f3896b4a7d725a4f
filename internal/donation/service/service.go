// Package service is the donation request transition engine. Every mutation
// goes through here: guards and eligibility first, then one conditional store
// write, then notifications and audit once the write has committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bloodlink/internal/donation/metrics"
	"bloodlink/internal/donation/models"
	"bloodlink/internal/donation/reconcile"
	"bloodlink/internal/notification"
	usermodels "bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/sentinel"
	"bloodlink/pkg/requestcontext"
)

const tracerName = "bloodlink/internal/donation/service"

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Store persists donation requests. Guarded writes return sentinel errors:
// ErrConflict when the guard or version check fails, ErrInvalidState when a
// suggestion targets a request that is no longer open.
type Store interface {
	Create(ctx context.Context, r *models.DonationRequest) error
	FindByID(ctx context.Context, requestID id.DonationRequestID) (*models.DonationRequest, error)
	ClaimIfPending(ctx context.Context, requestID id.DonationRequestID, claim models.Claim) (*models.DonationRequest, error)
	Update(ctx context.Context, r *models.DonationRequest, expectedVersion int64) error
	AppendSuggestion(ctx context.Context, requestID id.DonationRequestID, suggestion models.VolunteerSuggestion) error
}

// UserDirectory is the account service as seen by this module.
type UserDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
	RecordDonation(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID, date time.Time) error
}

// FreshReader is implemented by directories that cache profiles. Candidate
// donors are always read through it, so eligibility never sees a cached
// account state, availability or last-donation date.
type FreshReader interface {
	FindByIDFresh(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

// Notifier accepts a payload for asynchronous fan-out. It reports false when
// the payload was dropped.
type Notifier interface {
	Handle(ctx context.Context, p notification.Payload) bool
}

// AuditPublisher emits audit events for committed changes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ReconcileQueue receives donor-profile updates that failed after a claim.
type ReconcileQueue interface {
	Enqueue(ctx context.Context, job reconcile.Job) error
}

type Service struct {
	store          Store
	users          UserDirectory
	notifier       Notifier
	auditPublisher AuditPublisher
	reconcile      ReconcileQueue
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithReconcileQueue(q ReconcileQueue) Option {
	return func(s *Service) {
		s.reconcile = q
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, users UserDirectory, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("donation request store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory is required")
	}

	svc := &Service{
		store:  store,
		users:  users,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// startSpan opens a span for op and returns a finish func that records the
// outcome and the operation latency.
func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "donation."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
			if code, ok := dErrors.CodeOf(*errp); ok {
				span.SetAttributes(attribute.String("error.code", string(code)))
			}
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
	}
}

func requestAttr(requestID id.DonationRequestID) attribute.KeyValue {
	return attribute.String("donation_request.id", requestID.String())
}

func actorAttr(actorID id.UserID) attribute.KeyValue {
	return attribute.String("actor.id", actorID.String())
}

// loadUser fetches a user without judging their account state.
func (s *Service) loadUser(ctx context.Context, userID id.UserID, label string) (*usermodels.User, error) {
	return s.findUser(ctx, userID, label, s.users.FindByID)
}

// loadDonor fetches a donor candidate, bypassing any profile cache.
func (s *Service) loadDonor(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	find := s.users.FindByID
	if fr, ok := s.users.(FreshReader); ok {
		find = fr.FindByIDFresh
	}
	return s.findUser(ctx, userID, "donor", find)
}

func (s *Service) findUser(ctx context.Context, userID id.UserID, label string, find func(context.Context, id.UserID) (*usermodels.User, error)) (*usermodels.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, label+" id is required")
	}
	u, err := find(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, label+" not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+label)
	}
	return u, nil
}

// loadActor fetches the caller and rejects blocked accounts.
func (s *Service) loadActor(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := s.loadUser(ctx, userID, "user")
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown user")
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, dErrors.New(dErrors.CodeForbidden, "account is blocked")
	}
	return u, nil
}

func (s *Service) loadRequest(ctx context.Context, requestID id.DonationRequestID) (*models.DonationRequest, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "donation request id is required")
	}
	r, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "donation request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donation request")
	}
	return r, nil
}

// notify hands p to the notifier. Drops are logged and counted, never returned.
func (s *Service) notify(ctx context.Context, p notification.Payload) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.Handle(ctx, p) {
		s.logger.WarnContext(ctx, "notification dropped",
			"kind", string(p.Kind()),
			"donation_request_id", p.Summary().ID.String(),
		)
		s.sideEffectFailed("notification")
	}
}

func (s *Service) sideEffectFailed(effect string) {
	if s.metrics != nil {
		s.metrics.IncrementSideEffectFailure(effect)
	}
}

func (s *Service) countTransition(from, to models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(from), string(to))
	}
}

func (s *Service) countAccept(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementAcceptOutcome(outcome)
	}
}

func donorRef(u *usermodels.User) models.DonorRef {
	return models.DonorRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

func now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC()
}
