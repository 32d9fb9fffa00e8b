package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

// SaveProfile upserts a behavioral profile blob.
func (r *SQLRepository) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	if profile == nil || profile.UserID == "" {
		return fmt.Errorf("%w: profile userId is required", ErrInvalidInput)
	}

	body, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	query := `
		INSERT INTO behavioral_profiles (user_id, profile, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), profile.UserID, string(body), time.Now().UTC())
	return err
}

// GetProfile loads a behavioral profile. Unknown users yield an error
// matching both ErrNotFound and domain.ErrProfileNotFound.
func (r *SQLRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT profile FROM behavioral_profiles WHERE user_id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, domain.ErrProfileNotFound)
	}
	if err != nil {
		return nil, err
	}

	var p domain.Profile
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile for %s: %w", userID, err)
	}
	p.Normalize()
	return &p, nil
}

// DeleteProfile removes a profile. Deleting an unknown user is a no-op.
func (r *SQLRepository) DeleteProfile(ctx context.Context, userID string) error {
	query := `DELETE FROM behavioral_profiles WHERE user_id = ?`
	_, err := r.db.ExecContext(ctx, r.rebind(query), userID)
	return err
}
