package store

import (
	"context"
	"sync"

	"bloodlink/internal/donation/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in a map behind a mutex. Every guarded write
// checks and mutates under one lock acquisition, which is the in-process
// equivalent of the conditional UPDATE in the SQL store.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[id.DonationRequestID]*models.DonationRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.DonationRequestID]*models.DonationRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, r *models.DonationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.DonationRequestID) (*models.DonationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// ClaimIfPending binds claim.Donor only if the request is active, pending,
// unclaimed and not yet due. Otherwise it returns sentinel.ErrConflict.
func (s *InMemoryStore) ClaimIfPending(_ context.Context, requestID id.DonationRequestID, claim models.Claim) (*models.DonationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !r.IsActive || r.Status != models.StatusPending || r.HasDonor() || r.IsExpired(claim.At) {
		return nil, sentinel.ErrConflict
	}
	donor := claim.Donor
	if err := r.Apply(models.Transition{
		To:      models.StatusInProgress,
		ActorID: claim.Actor(),
		At:      claim.At,
		Note:    claim.Note,
		Donor:   &donor,
	}); err != nil {
		return nil, err
	}
	r.Version++
	return r.Clone(), nil
}

// Update replaces the lifecycle fields of r if the stored version still equals
// expectedVersion. Suggestions are owned by AppendSuggestion and left alone.
func (s *InMemoryStore) Update(_ context.Context, r *models.DonationRequest, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	next := r.Clone()
	next.Suggestions = cur.Suggestions
	next.Version = expectedVersion + 1
	s.requests[r.ID] = next
	r.Version = next.Version
	return nil
}

func (s *InMemoryStore) AppendSuggestion(_ context.Context, requestID id.DonationRequestID, suggestion models.VolunteerSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !r.IsActive || r.Status != models.StatusPending {
		return sentinel.ErrInvalidState
	}
	r.Suggestions = append(r.Suggestions, suggestion)
	return nil
}
