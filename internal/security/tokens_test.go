package security

import (
	"testing"
	"time"
)

func TestIssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	token, jti, expiresAt, err := p.IssueAccess("sess-1", "fam-1", "user-1", "a@example.com", "admin")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if jti == "" || token == "" {
		t.Fatal("empty token or jti")
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatal("access token already expired")
	}

	claims, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.FamilyID != "fam-1" {
		t.Errorf("session/family = %q/%q", claims.SessionID, claims.FamilyID)
	}
	if claims.Subject != "user-1" || claims.Email != "a@example.com" || claims.Role != "admin" {
		t.Errorf("subject claims = %q/%q/%q", claims.Subject, claims.Email, claims.Role)
	}
	if claims.ID != jti {
		t.Errorf("jti = %q, want %q", claims.ID, jti)
	}
}

func TestIssueAndValidateRefresh(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	token, jti, _, err := p.IssueRefresh("sess-1", "fam-1", "user-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := p.ValidateRefresh(token)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if claims.ID != jti || claims.FamilyID != "fam-1" || claims.SessionID != "sess-1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	for _, bad := range []string{"", "not-a-jwt", "aaa.bbb.ccc"} {
		if _, err := p.ValidateAccess(bad); err == nil {
			t.Errorf("ValidateAccess(%q) accepted garbage", bad)
		}
		if _, err := p.ValidateRefresh(bad); err == nil {
			t.Errorf("ValidateRefresh(%q) accepted garbage", bad)
		}
	}
}

func TestValidateRejectsCrossTokenUse(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	// An access token has no family binding usable for rotation; a refresh
	// token parsed as access is tolerated only if the claim shapes differ.
	access, _, _, err := p.IssueAccess("sess-1", "", "user-1", "", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateRefresh(access); err == nil {
		t.Error("access token with empty family accepted as refresh token")
	}
}

func TestValidateRejectsWrongIssuerAudience(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	other := NewTokenProvider(signer, pub, "other-issuer", "other-audience", time.Minute, time.Hour)
	token, _, _, err := other.IssueRefresh("sess-1", "fam-1", "user-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := p.ValidateRefresh(token); err == nil {
		t.Error("token with foreign issuer/audience accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	p := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -time.Minute, -time.Minute)
	token, _, _, err := p.IssueAccess("sess-1", "fam-1", "user-1", "", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestNewJTIUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		jti, err := NewJTI()
		if err != nil {
			t.Fatalf("NewJTI: %v", err)
		}
		if len(jti) != 32 {
			t.Fatalf("jti length = %d, want 32", len(jti))
		}
		if seen[jti] {
			t.Fatal("duplicate jti")
		}
		seen[jti] = true
	}
}
