package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"bloodlink/internal/users/models"
	id "bloodlink/pkg/domain"
	"bloodlink/pkg/email"
)

// SeedFromFile loads a JSON array of users into s. It backs local runs of the
// memory directory, where no account service feeds profiles.
func SeedFromFile(ctx context.Context, s *InMemoryStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read user seed %s: %w", path, err)
	}
	var users []*models.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return 0, fmt.Errorf("decode user seed %s: %w", path, err)
	}
	for i, u := range users {
		if err := validateSeed(u); err != nil {
			return 0, fmt.Errorf("user seed entry %d: %w", i, err)
		}
	}
	for _, u := range users {
		if err := s.Save(ctx, u); err != nil {
			return 0, err
		}
	}
	return len(users), nil
}

func validateSeed(u *models.User) error {
	if u == nil || u.ID.IsNil() {
		return fmt.Errorf("id is required")
	}
	switch u.Role {
	case models.RoleDonor, models.RoleVolunteer, models.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", u.Role)
	}
	if u.Status == "" {
		u.Status = models.AccountActive
	}
	if u.Name == "" {
		u.Name = email.DisplayName(u.Email)
	}
	if u.Role == models.RoleDonor {
		g, err := id.ParseBloodGroup(string(u.BloodGroup))
		if err != nil {
			return err
		}
		u.BloodGroup = g
	}
	return nil
}
