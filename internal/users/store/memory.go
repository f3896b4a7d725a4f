package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/platform/sentinel"
)

// InMemoryStore is a map-backed user directory for tests and local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[id.UserID]*models.User)}
}

// Save inserts or replaces a user. The account service owns profiles; this
// exists to seed the directory.
func (s *InMemoryStore) Save(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *InMemoryStore) ListStaff(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.IsStaff() && u.IsActive() {
			out = append(out, cloneUser(u))
		}
	}
	sortByID(out)
	return out, nil
}

// ListMatchingDonors pages active, available donors of bloodGroup in district,
// ordered by ID and starting strictly after the given cursor.
func (s *InMemoryStore) ListMatchingDonors(_ context.Context, bloodGroup id.BloodGroup, district string, after id.UserID, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*models.User
	for _, u := range s.users {
		if u.IsDonor() && u.IsActive() && u.Available && u.BloodGroup == bloodGroup && u.District == district {
			matches = append(matches, u)
		}
	}
	sortByID(matches)

	cursor := after.String()
	out := make([]*models.User, 0, limit)
	for _, u := range matches {
		if !after.IsNil() && u.ID.String() <= cursor {
			continue
		}
		out = append(out, cloneUser(u))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) RecordDonation(_ context.Context, donorID id.UserID, requestID id.DonationRequestID, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[donorID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.ApplyDonation(requestID, date)
	return nil
}

func sortByID(users []*models.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID.String() < users[j].ID.String() })
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.LastDonationDate != nil {
		d := *u.LastDonationDate
		c.LastDonationDate = &d
	}
	if u.LastDonationRequest != nil {
		r := *u.LastDonationRequest
		c.LastDonationRequest = &r
	}
	return &c
}
