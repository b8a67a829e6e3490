package repository

import (
	"context"
	"time"

	"session-control-plane/internal/session/domain"
)

// Repository defines persistence for session families. The session_families
// table is the system of record for rotation state; every write here moves a
// row monotonically forward (never revoked back to open).
type Repository interface {
	// Create persists a new family row. The family must have FamilyID set.
	Create(ctx context.Context, f *domain.Family) error
	// GetByID returns the family row for id, or nil if not found.
	GetByID(ctx context.Context, familyID string) (*domain.Family, error)
	// GetOpenByID returns the non-revoked row for id, or nil if the family
	// is missing or already revoked.
	GetOpenByID(ctx context.Context, familyID string) (*domain.Family, error)
	// Rotate advances the family's rotation anchor in a single conditional
	// update: current_jti must still equal expectedJTI (empty means unset)
	// and the row must be open. Returns false if no row matched.
	Rotate(ctx context.Context, familyID, expectedJTI, newJTI, refreshTokenHash string, now time.Time) (bool, error)
	// FindConsumedJTI returns a family whose reused_jti_of equals jti, or
	// whose current_jti equals jti outside excludeFamilyID. Nil if none.
	FindConsumedJTI(ctx context.Context, jti, excludeFamilyID string) (*domain.Family, error)
	// Revoke marks the open row terminal. reusedJTIOf, when non-empty,
	// records the replayed anchor. Returns false if no open row matched.
	Revoke(ctx context.Context, familyID string, reason domain.RevocationReason, reusedJTIOf string, now time.Time) (bool, error)
	// RevokeAllByUser revokes every open family of userID except
	// exceptFamilyID (empty revokes all). Returns the count revoked.
	RevokeAllByUser(ctx context.Context, userID, exceptFamilyID string, reason domain.RevocationReason, now time.Time) (int, error)
	// ListActiveByUser returns open, unexpired families for userID ordered
	// by last_used descending.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Family, error)
	// DeleteExpiredBefore hard-deletes rows whose expiry or revocation is
	// older than cutoff. Returns the count deleted.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}
