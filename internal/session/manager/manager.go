// Package manager implements the session-family core: it is the sole
// authority for issuing, rotating, and revoking session families, and it
// enforces the anti-replay contract on refresh-token rotation.
package manager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"session-control-plane/internal/audit"
	"session-control-plane/internal/cache"
	"session-control-plane/internal/device"
	"session-control-plane/internal/lock"
	"session-control-plane/internal/session/domain"
	"session-control-plane/internal/session/repository"
)

// Sentinel errors for the session core; callers map them to transport codes.
var (
	// ErrValidation is returned for malformed input (e.g. empty user id).
	ErrValidation = errors.New("invalid input")
	// ErrBusy is returned when another rotation holds the family mutex.
	// Safely retryable by the caller; the core never retries internally.
	ErrBusy = errors.New("rotation in progress")
	// ErrNotFound is returned when the family is missing or already revoked.
	// Terminal: the client must re-authenticate.
	ErrNotFound = errors.New("session family not found or revoked")
	// ErrReplayDetected is returned when the presented anchor does not match
	// the family's current one. The family is revoked before returning.
	ErrReplayDetected = errors.New("refresh token replay detected")
	// ErrReuseDetected is returned when an already-consumed anchor is
	// presented again. The family is revoked before returning.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrStoreUnavailable is returned when the cache or database cannot be
	// reached. Reads fail safe to "revoked"; writes fail with no mutation.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Cache key prefixes shared with the deployment's other service instances.
const (
	mutexKeyPrefix   = "refresh_mutex:"
	jtiKeyPrefix     = "jti:"
	revokedKeyPrefix = "revoked:"
)

// Settings carries the TTL knobs for the manager. Zero values fall back to
// the documented defaults.
type Settings struct {
	SessionTTL    time.Duration // family lifetime; default 30d
	MutexTTL      time.Duration // refresh mutex; default 10s
	JTICacheTTL   time.Duration // jti→family lookup cache; default 1h
	RevocationTTL time.Duration // revoked-family cache; default 24h
	Retention     time.Duration // cleanup retention window; default 7d
}

func (s Settings) withDefaults() Settings {
	if s.SessionTTL <= 0 {
		s.SessionTTL = 720 * time.Hour
	}
	if s.MutexTTL <= 0 {
		s.MutexTTL = 10 * time.Second
	}
	if s.JTICacheTTL <= 0 {
		s.JTICacheTTL = time.Hour
	}
	if s.RevocationTTL <= 0 {
		s.RevocationTTL = 24 * time.Hour
	}
	if s.Retention <= 0 {
		s.Retention = 168 * time.Hour
	}
	return s
}

// Manager orchestrates session families over the relational store, the
// shared cache, and the distributed refresh mutex. Rotation for one family
// is linearized by the mutex; all other operations rely on monotonic state
// (open rows only ever move to revoked, never back).
type Manager struct {
	repo     repository.Repository
	cache    cache.Store
	locks    *lock.Coordinator
	auditLog audit.AuditLogger
	settings Settings
	nowF     func() time.Time

	tracer      trace.Tracer
	rotations   metric.Int64Counter
	revocations metric.Int64Counter
}

// New returns a Manager with the given dependencies. auditLog may be
// audit.Nop{} to disable the audit trail.
func New(repo repository.Repository, cacheStore cache.Store, locks *lock.Coordinator, auditLog audit.AuditLogger, settings Settings) *Manager {
	meter := otel.Meter("session-control-plane/session")
	rotations, err := meter.Int64Counter("session.rotations",
		metric.WithDescription("Refresh rotation attempts by outcome"))
	if err != nil {
		log.Printf("session: rotation counter init failed: %v", err)
	}
	revocations, err := meter.Int64Counter("session.revocations",
		metric.WithDescription("Family revocations by reason"))
	if err != nil {
		log.Printf("session: revocation counter init failed: %v", err)
	}
	return &Manager{
		repo:        repo,
		cache:       cacheStore,
		locks:       locks,
		auditLog:    auditLog,
		settings:    settings.withDefaults(),
		nowF:        time.Now,
		tracer:      otel.Tracer("session-control-plane/session"),
		rotations:   rotations,
		revocations: revocations,
	}
}

// SetNow overrides the time source for deterministic expiry tests.
func (m *Manager) SetNow(nowF func() time.Time) {
	m.nowF = nowF
}

// Create opens a new session family for userID with the given device info.
// The family starts with no rotation anchor (current jti unset) and expires
// after the configured session TTL. Returns the family id and a fresh
// session id for token binding.
func (m *Manager) Create(ctx context.Context, userID string, dev device.Info) (familyID, sessionID string, err error) {
	if userID == "" {
		return "", "", fmt.Errorf("%w: user id is required", ErrValidation)
	}
	familyID, err = newID()
	if err != nil {
		return "", "", err
	}
	sessionID, err = newID()
	if err != nil {
		return "", "", err
	}
	now := m.nowF().UTC()
	f := &domain.Family{
		FamilyID:   familyID,
		UserID:     userID,
		DeviceHash: device.Hash(dev),
		LastIPCIDR: device.MaskIP(dev.IPAddress),
		UserAgent:  dev.UserAgent,
		AuthTime:   now,
		CreatedAt:  now,
		LastUsed:   now,
		ExpiresAt:  now.Add(m.settings.SessionTTL),
	}
	if err := m.repo.Create(ctx, f); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.auditLog.LogEvent(ctx, userID, audit.ActionSessionCreated, audit.ResourceSession,
		f.LastIPCIDR, fmt.Sprintf(`{"family_id":%q}`, familyID))
	return familyID, sessionID, nil
}

// Rotate replaces the family's refresh anchor: the caller presents the jti
// it holds (empty on the first rotation) plus the replacement jti and token
// hash. At most one caller rotates a family at a time; a stale or consumed
// anchor revokes the whole family, since a second use of a consumed refresh
// token is the canonical signature of token theft.
func (m *Manager) Rotate(ctx context.Context, familyID, currentJTI, newJTI, refreshTokenHash string) error {
	if familyID == "" || newJTI == "" || refreshTokenHash == "" {
		return fmt.Errorf("%w: family id, new jti, and token hash are required", ErrValidation)
	}

	ctx, span := m.tracer.Start(ctx, "session.Rotate",
		trace.WithAttributes(attribute.String("session.family_id", familyID)))
	defer span.End()

	if !m.locks.Acquire(ctx, mutexKeyPrefix+familyID, m.settings.MutexTTL) {
		m.countRotation(ctx, "busy")
		return ErrBusy
	}
	defer m.locks.Release(ctx, mutexKeyPrefix+familyID)

	f, err := m.repo.GetOpenByID(ctx, familyID)
	if err != nil {
		m.countRotation(ctx, "store_error")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if f == nil {
		m.countRotation(ctx, "not_found")
		return ErrNotFound
	}

	// Substitution check: the row's anchor is set and the caller holds a
	// different one. Someone else rotated this family with a token the
	// caller never saw, or the caller replays an old token.
	if f.CurrentJTI != "" && f.CurrentJTI != currentJTI {
		if err := m.revokeForAttack(ctx, f, domain.ReasonReplayAttack, currentJTI); err != nil {
			m.countRotation(ctx, "store_error")
			return err
		}
		m.countRotation(ctx, "replay")
		return ErrReplayDetected
	}

	// Reuse check: the presented anchor was already consumed somewhere,
	// either recorded as a replayed anchor or live in a different family.
	if currentJTI != "" {
		offender, err := m.repo.FindConsumedJTI(ctx, currentJTI, familyID)
		if err != nil {
			m.countRotation(ctx, "store_error")
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if offender != nil {
			if err := m.revokeForAttack(ctx, f, domain.ReasonJTIReuse, currentJTI); err != nil {
				m.countRotation(ctx, "store_error")
				return err
			}
			m.countRotation(ctx, "reuse")
			return ErrReuseDetected
		}
	}

	now := m.nowF().UTC()
	ok, err := m.repo.Rotate(ctx, familyID, currentJTI, newJTI, refreshTokenHash, now)
	if err != nil {
		m.countRotation(ctx, "store_error")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		// The conditional update matched nothing: the anchor moved or the
		// row went terminal after our load. Only possible if the mutex TTL
		// lapsed mid-flight, so treat it like a losing concurrent rotation.
		if err := m.revokeForAttack(ctx, f, domain.ReasonReplayAttack, currentJTI); err != nil {
			m.countRotation(ctx, "store_error")
			return err
		}
		m.countRotation(ctx, "replay")
		return ErrReplayDetected
	}

	if err := m.cache.Set(ctx, jtiKeyPrefix+newJTI, familyID, m.settings.JTICacheTTL); err != nil {
		log.Printf("session: jti cache fill for family %s failed: %v", familyID, err)
	}
	m.countRotation(ctx, "ok")
	return nil
}

// CurrentAnchor returns the family's current anchor jti and the stored
// token hash, so callers holding the anchor can verify the presented
// refresh token bytes against the hash before rotating. Both are empty for
// a family that has never rotated. Returns ErrNotFound for missing or
// revoked families.
func (m *Manager) CurrentAnchor(ctx context.Context, familyID string) (jti, tokenHash string, err error) {
	if familyID == "" {
		return "", "", fmt.Errorf("%w: family id is required", ErrValidation)
	}
	f, err := m.repo.GetOpenByID(ctx, familyID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if f == nil {
		return "", "", ErrNotFound
	}
	return f.CurrentJTI, f.RefreshTokenHash, nil
}

// RevokeFamily marks the family terminal with the given reason and writes
// the revocation fast-path cache entry. Idempotent: revoking an already
// revoked (or missing) family succeeds trivially.
func (m *Manager) RevokeFamily(ctx context.Context, familyID string, reason domain.RevocationReason) error {
	if familyID == "" || !reason.Valid() {
		return fmt.Errorf("%w: family id and a known reason are required", ErrValidation)
	}
	revoked, err := m.repo.Revoke(ctx, familyID, reason, "", m.nowF().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.cacheRevocation(ctx, familyID, reason)
	if revoked {
		m.countRevocation(ctx, reason)
		m.auditLog.LogEvent(ctx, "", audit.ActionForRevocation(reason), audit.ResourceSession,
			"", fmt.Sprintf(`{"family_id":%q}`, familyID))
	}
	return nil
}

// IsFamilyRevoked reports whether the family is revoked. Fail-safe-true:
// any inability to positively prove "not revoked" (cache error, database
// error, or a missing row) counts as revoked, so a store outage can never
// be exploited to bypass revocation.
func (m *Manager) IsFamilyRevoked(ctx context.Context, familyID string) bool {
	if familyID == "" {
		return true
	}
	_, found, err := m.cache.Get(ctx, revokedKeyPrefix+familyID)
	if err != nil {
		log.Printf("session: revocation cache read for family %s failed: %v", familyID, err)
		return true
	}
	if found {
		return true
	}
	f, err := m.repo.GetByID(ctx, familyID)
	if err != nil {
		log.Printf("session: revocation lookup for family %s failed: %v", familyID, err)
		return true
	}
	if f == nil {
		return true
	}
	if f.Revoked() {
		m.cacheRevocation(ctx, familyID, f.RevocationReason)
		return true
	}
	return false
}

// IsJTIRevoked reports whether the token id belongs to a revoked family.
// Cache-first via the jti→family index, database fallback otherwise. A jti
// unknown to any family row is not revoked (access-token jtis are never
// persisted); store errors fail safe to revoked.
func (m *Manager) IsJTIRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	familyID, found, err := m.cache.Get(ctx, jtiKeyPrefix+jti)
	if err != nil {
		log.Printf("session: jti cache read failed: %v", err)
		return true
	}
	if found {
		return m.IsFamilyRevoked(ctx, familyID)
	}
	f, err := m.repo.FindConsumedJTI(ctx, jti, "")
	if err != nil {
		log.Printf("session: jti lookup failed: %v", err)
		return true
	}
	if f == nil {
		return false
	}
	if f.Revoked() {
		return true
	}
	// The jti is the live anchor of an open family; index it for next time.
	if err := m.cache.Set(ctx, jtiKeyPrefix+jti, f.FamilyID, m.settings.JTICacheTTL); err != nil {
		log.Printf("session: jti cache fill failed: %v", err)
	}
	return false
}

// ListUserSessions returns the user's open, unexpired sessions ordered by
// recency, with the parsed device type and coarse location bucket.
func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]domain.Summary, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	families, err := m.repo.ListActiveByUser(ctx, userID, m.nowF().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make([]domain.Summary, len(families))
	for i, f := range families {
		out[i] = domain.Summarize(f)
	}
	return out, nil
}

// RevokeUserSession revokes one of userID's sessions. Authorization-checked:
// returns false without mutation when the family is missing, already
// revoked, or owned by a different user.
func (m *Manager) RevokeUserSession(ctx context.Context, userID, familyID string) (bool, error) {
	if userID == "" || familyID == "" {
		return false, fmt.Errorf("%w: user id and family id are required", ErrValidation)
	}
	f, err := m.repo.GetOpenByID(ctx, familyID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if f == nil || f.UserID != userID {
		return false, nil
	}
	revoked, err := m.repo.Revoke(ctx, familyID, domain.ReasonUserRevoked, "", m.nowF().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.cacheRevocation(ctx, familyID, domain.ReasonUserRevoked)
	if revoked {
		m.countRevocation(ctx, domain.ReasonUserRevoked)
		m.auditLog.LogEvent(ctx, userID, audit.ActionRevoked, audit.ResourceSession,
			f.LastIPCIDR, fmt.Sprintf(`{"family_id":%q}`, familyID))
	}
	return revoked, nil
}

// RevokeAllUserSessions revokes every open family of userID, optionally
// sparing exceptFamilyID (the caller's own session on "log out everywhere
// else"). Returns the count actually revoked.
func (m *Manager) RevokeAllUserSessions(ctx context.Context, userID, exceptFamilyID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	// Snapshot the open families first so their revocation cache entries
	// can be written after the bulk update.
	families, err := m.repo.ListActiveByUser(ctx, userID, m.nowF().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	count, err := m.repo.RevokeAllByUser(ctx, userID, exceptFamilyID, domain.ReasonLogoutAll, m.nowF().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, f := range families {
		if f.FamilyID == exceptFamilyID {
			continue
		}
		m.cacheRevocation(ctx, f.FamilyID, domain.ReasonLogoutAll)
	}
	if count > 0 {
		m.countRevocation(ctx, domain.ReasonLogoutAll)
		m.auditLog.LogEvent(ctx, userID, audit.ActionLogoutAll, audit.ResourceSession,
			"", fmt.Sprintf(`{"revoked":%d}`, count))
	}
	return count, nil
}

// CleanupExpired hard-deletes families whose expiry or revocation fell out
// of the retention window. Housekeeping only; driven by an external
// scheduler, never by request paths.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := m.nowF().UTC().Add(-m.settings.Retention)
	count, err := m.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// revokeForAttack is the unconditional revocation paired with every replay
// or reuse detection. The presented anchor is recorded for forensics; the
// audit entry carries the family id and a jti prefix, never the full token.
func (m *Manager) revokeForAttack(ctx context.Context, f *domain.Family, reason domain.RevocationReason, presentedJTI string) error {
	if _, err := m.repo.Revoke(ctx, f.FamilyID, reason, presentedJTI, m.nowF().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.cacheRevocation(ctx, f.FamilyID, reason)
	m.countRevocation(ctx, reason)
	m.auditLog.LogEvent(ctx, f.UserID, audit.ActionForRevocation(reason), audit.ResourceSession,
		f.LastIPCIDR, fmt.Sprintf(`{"family_id":%q,"jti_prefix":%q}`, f.FamilyID, jtiPrefix(presentedJTI)))
	return nil
}

func (m *Manager) cacheRevocation(ctx context.Context, familyID string, reason domain.RevocationReason) {
	if err := m.cache.Set(ctx, revokedKeyPrefix+familyID, string(reason), m.settings.RevocationTTL); err != nil {
		log.Printf("session: revocation cache write for family %s failed: %v", familyID, err)
	}
}

func (m *Manager) countRotation(ctx context.Context, result string) {
	if m.rotations == nil {
		return
	}
	m.rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Manager) countRevocation(ctx context.Context, reason domain.RevocationReason) {
	if m.revocations == nil {
		return
	}
	m.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func jtiPrefix(jti string) string {
	if len(jti) <= 8 {
		return jti
	}
	return jti[:8]
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
