package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/kavach/internal/domain"
)

// ProfileNamespace is the cache namespace holding profile blobs.
const ProfileNamespace = "profiles"

// ProfileStore keeps behavioral profiles as JSON blobs in a Cache under
// "profile:<userId>". Entries never expire.
type ProfileStore struct {
	cache domain.Cache
}

// NewProfileStore wraps a cache as a profile store.
func NewProfileStore(c domain.Cache) *ProfileStore {
	return &ProfileStore{cache: c}
}

// GetProfile loads a profile.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	data, err := s.cache.Get(ctx, ProfileNamespace, profileKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	if data == nil {
		return nil, domain.ErrProfileNotFound
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.Normalize()
	return &p, nil
}

// SaveProfile stores a profile.
func (s *ProfileStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return s.cache.Set(ctx, ProfileNamespace, profileKey(profile.UserID), data, 0)
}

// DeleteProfile removes a profile.
func (s *ProfileStore) DeleteProfile(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, ProfileNamespace, profileKey(userID))
}

func profileKey(userID string) string {
	return "profile:" + userID
}
