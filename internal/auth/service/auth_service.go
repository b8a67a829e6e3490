// Package service implements the auth orchestrator: credential checks and
// token issuance on top of the session-family core.
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-control-plane/internal/audit"
	"session-control-plane/internal/device"
	"session-control-plane/internal/security"
	sessiondomain "session-control-plane/internal/session/domain"
	"session-control-plane/internal/session/manager"
	userdomain "session-control-plane/internal/user/domain"
)

// Sentinel errors for the auth service; handlers map them to transport codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	// ErrSessionCompromised signals replay or reuse; the family is already
	// revoked and the client must log in again.
	ErrSessionCompromised = errors.New("session revoked after token misuse")
	// ErrRefreshInProgress means a concurrent refresh holds the family
	// mutex. Retryable after a short delay.
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

// AuthResult holds the outcome of Login or Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Role         userdomain.Role
	FamilyID     string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionCore is the slice of the session-family manager the auth service
// drives.
type SessionCore interface {
	Create(ctx context.Context, userID string, dev device.Info) (familyID, sessionID string, err error)
	Rotate(ctx context.Context, familyID, currentJTI, newJTI, refreshTokenHash string) error
	RevokeFamily(ctx context.Context, familyID string, reason sessiondomain.RevocationReason) error
	RevokeAllUserSessions(ctx context.Context, userID, exceptFamilyID string) (int, error)
	IsFamilyRevoked(ctx context.Context, familyID string) bool
	CurrentAnchor(ctx context.Context, familyID string) (jti, tokenHash string, err error)
}

// AuthService implements register, login, refresh, and logout over the
// session-family core.
type AuthService struct {
	userRepo UserRepo
	sessions SessionCore
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	auditLog audit.AuditLogger
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(userRepo UserRepo, sessions SessionCore, hasher *security.Hasher, tokens *security.TokenProvider, auditLog audit.AuditLogger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		auditLog: auditLog,
	}
}

// Register creates a user with the given email and password. New users get
// the lowest role; elevation is an admin operation, never self-service.
func (s *AuthService) Register(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validatePassword(password); err != nil {
		return "", err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashed,
		Role:         userdomain.RoleUser,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return "", err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return "", err
	}
	return user.ID, nil
}

// Login authenticates with email/password, opens a session family, and
// returns the first token pair. Credential failures are indistinguishable
// from unknown emails.
func (s *AuthService) Login(ctx context.Context, email, password string, dev device.Info) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() || user.PasswordHash == "" {
		s.auditLog.LogEvent(ctx, "", audit.ActionLoginFailure, audit.ResourceSession,
			device.MaskIP(dev.IPAddress), "")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		s.auditLog.LogEvent(ctx, user.ID, audit.ActionLoginFailure, audit.ResourceSession,
			device.MaskIP(dev.IPAddress), "")
		return nil, ErrInvalidCredentials
	}

	familyID, sessionID, err := s.sessions.Create(ctx, user.ID, dev)
	if err != nil {
		return nil, err
	}
	result, err := s.issuePair(ctx, familyID, sessionID, "", user)
	if err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, user.ID, audit.ActionLogin, audit.ResourceSession,
		device.MaskIP(dev.IPAddress), "")
	return result, nil
}

// Refresh validates the refresh token, rotates the family's anchor, and
// returns a fresh token pair. Replay and reuse surface as
// ErrSessionCompromised with the family already revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.userRepo.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active() {
		return nil, ErrInvalidRefreshToken
	}
	anchorJTI, storedHash, err := s.sessions.CurrentAnchor(ctx, claims.FamilyID)
	if err != nil {
		if errors.Is(err, manager.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	// The token carrying the live anchor must also match the stored hash;
	// a jti lifted into a differently-signed token is rejected outright.
	// Stale anchors fall through so the rotation path can classify them.
	if anchorJTI == claims.ID && storedHash != "" && !security.RefreshTokenHashEqual(refreshToken, storedHash) {
		return nil, ErrInvalidRefreshToken
	}
	result, err := s.issuePair(ctx, claims.FamilyID, claims.SessionID, claims.ID, user)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// issuePair issues a refresh token, commits its jti as the family's anchor,
// and only then issues the access token. currentJTI is empty on login.
func (s *AuthService) issuePair(ctx context.Context, familyID, sessionID, currentJTI string, user *userdomain.User) (*AuthResult, error) {
	newRefresh, newJTI, _, err := s.tokens.IssueRefresh(sessionID, familyID, user.ID)
	if err != nil {
		return nil, err
	}
	err = s.sessions.Rotate(ctx, familyID, currentJTI, newJTI, security.HashRefreshToken(newRefresh))
	switch {
	case err == nil:
	case errors.Is(err, manager.ErrReplayDetected), errors.Is(err, manager.ErrReuseDetected):
		return nil, ErrSessionCompromised
	case errors.Is(err, manager.ErrBusy):
		return nil, ErrRefreshInProgress
	case errors.Is(err, manager.ErrNotFound):
		return nil, ErrInvalidRefreshToken
	default:
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, familyID, user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		UserID:       user.ID,
		Role:         user.Role,
		FamilyID:     familyID,
	}, nil
}

// Logout revokes the family identified by the refresh token. Invalid tokens
// are a no-op so logout never fails client-side.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return s.sessions.RevokeFamily(ctx, claims.FamilyID, sessiondomain.ReasonUserLogout)
}

// LogoutAll revokes every open session of userID, optionally sparing the
// caller's own family. Returns the number of sessions revoked.
func (s *AuthService) LogoutAll(ctx context.Context, userID, exceptFamilyID string) (int, error) {
	return s.sessions.RevokeAllUserSessions(ctx, userID, exceptFamilyID)
}

// ValidateAccess parses the access token and checks its family against the
// revocation state. The revocation check fails safe: if it cannot be
// answered, the token is rejected.
func (s *AuthService) ValidateAccess(ctx context.Context, accessToken string) (*security.AccessClaims, error) {
	claims, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.FamilyID == "" || s.sessions.IsFamilyRevoked(ctx, claims.FamilyID) {
		return nil, security.ErrInvalidToken
	}
	return claims, nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber || !hasSymbol {
		return errors.New("password must mix upper, lower, number, and symbol")
	}
	return nil
}
