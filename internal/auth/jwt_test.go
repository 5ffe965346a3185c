package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okoth/userhub/internal/auth"
	"github.com/okoth/userhub/internal/domain/user"
)

func newManager() *auth.Manager {
	return auth.NewManager("test-secret-key", 15*time.Minute, 7*24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newManager()

	raw, err := m.GenerateAccessToken("u-1", "a@x.com", user.RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if claims.UserID != "u-1" || claims.Email != "a@x.com" || claims.Role != user.RoleAdmin {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.JTI == "" {
		t.Fatal("access token must carry a jti")
	}
}

func TestExpiredTokenIsDistinct(t *testing.T) {
	m := auth.NewManager("test-secret-key", -1*time.Minute, time.Hour)

	raw, err := m.GenerateAccessToken("u-1", "a@x.com", user.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = m.VerifyAccessToken(raw)
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestTamperedAndForeignTokensRejected(t *testing.T) {
	m := newManager()

	raw, err := m.GenerateAccessToken("u-1", "a@x.com", user.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := auth.NewManager("another-secret", 15*time.Minute, time.Hour)
	if _, err := other.VerifyAccessToken(raw); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Fatalf("foreign key: want ErrTokenInvalid, got %v", err)
	}

	if _, err := m.VerifyAccessToken(raw + "x"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Fatalf("tampered: want ErrTokenInvalid, got %v", err)
	}

	if _, err := m.VerifyAccessToken("not-a-jwt"); !errors.Is(err, auth.ErrTokenInvalid) {
		t.Fatalf("garbage: want ErrTokenInvalid, got %v", err)
	}
}

func TestTokenTypeEnforced(t *testing.T) {
	m := newManager()

	refreshRaw, _, _, err := m.GenerateRefreshToken("u-1", "a@x.com", user.RoleUser)
	if err != nil {
		t.Fatalf("generate refresh: %v", err)
	}

	if _, err := m.VerifyAccessToken(refreshRaw); err == nil {
		t.Fatal("refresh token accepted as access token")
	}

	accessRaw, err := m.GenerateAccessToken("u-1", "a@x.com", user.RoleUser)
	if err != nil {
		t.Fatalf("generate access: %v", err)
	}

	if _, err := m.VerifyRefreshToken(accessRaw); err == nil {
		t.Fatal("access token accepted as refresh token")
	}
}

func TestHashRefreshTokenDeterministic(t *testing.T) {
	m := newManager()

	raw, _, _, err := m.GenerateRefreshToken("u-1", "a@x.com", user.RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if m.HashRefreshToken(raw) != m.HashRefreshToken(raw) {
		t.Fatal("hash must be deterministic")
	}
	if m.HashRefreshToken(raw) == raw {
		t.Fatal("hash must not equal the raw token")
	}
}
