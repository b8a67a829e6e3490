// Package domain holds the session-family model: one row per family, mutated
// in place by rotation, transitioning once and irreversibly to revoked.
package domain

import (
	"time"

	"session-control-plane/internal/device"
)

// RevocationReason is the closed set of reasons a family can be revoked for.
type RevocationReason string

const (
	ReasonReplayAttack RevocationReason = "replay_attack"
	ReasonJTIReuse     RevocationReason = "jti_reuse"
	ReasonUserLogout   RevocationReason = "user_logout"
	ReasonUserRevoked  RevocationReason = "user_revoked"
	ReasonLogoutAll    RevocationReason = "logout_all"
)

// Valid reports whether r is a known revocation reason.
func (r RevocationReason) Valid() bool {
	switch r {
	case ReasonReplayAttack, ReasonJTIReuse, ReasonUserLogout, ReasonUserRevoked, ReasonLogoutAll:
		return true
	}
	return false
}

// Family is one session family: all refresh tokens ever issued for one
// continuous login on one device, linked by rotation. FamilyID never changes;
// only the rotation fields move.
type Family struct {
	FamilyID         string
	UserID           string
	DeviceHash       string
	LastIPCIDR       string
	UserAgent        string
	CurrentJTI       string // empty until the first rotation anoints an anchor
	RefreshTokenHash string
	RotatedFrom      string
	ReusedJTIOf      string
	RevokedAt        *time.Time // nil while the family is open
	RevocationReason RevocationReason
	AuthTime         time.Time
	CreatedAt        time.Time
	LastUsed         time.Time
	ExpiresAt        time.Time
}

// Revoked reports whether the family has reached its terminal state.
func (f *Family) Revoked() bool {
	return f.RevokedAt != nil
}

// Expired reports whether the family's lifetime has lapsed at the given time.
func (f *Family) Expired(now time.Time) bool {
	return !f.ExpiresAt.After(now)
}

// Summary is the per-session view surfaced on "manage my sessions" listings.
type Summary struct {
	FamilyID   string
	DeviceType device.Type
	Location   device.Location
	UserAgent  string
	CreatedAt  time.Time
	LastUsed   time.Time
	ExpiresAt  time.Time
}

// Summarize builds a Summary from an open family row.
func Summarize(f *Family) Summary {
	return Summary{
		FamilyID:   f.FamilyID,
		DeviceType: device.ParseType(f.UserAgent),
		Location:   device.Locate(f.LastIPCIDR),
		UserAgent:  f.UserAgent,
		CreatedAt:  f.CreatedAt,
		LastUsed:   f.LastUsed,
		ExpiresAt:  f.ExpiresAt,
	}
}
