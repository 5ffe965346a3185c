package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/okoth/userhub/internal/auth"
	"github.com/okoth/userhub/internal/domain/user"
	"github.com/okoth/userhub/internal/repo/postgres"
	"github.com/okoth/userhub/internal/security"
)

const refreshCookieName = "refresh_token"

// TokenManager is the slice of the JWT manager the auth handler needs.
type TokenManager interface {
	GenerateAccessToken(userID, email string, role user.Role) (string, error)
	GenerateRefreshToken(userID, email string, role user.Role) (raw string, jti string, expiresAt time.Time, err error)
	VerifyAccessToken(token string) (*auth.Claims, error)
	VerifyRefreshToken(token string) (*auth.Claims, error)
	HashRefreshToken(raw string) string
}

// RefreshTokenStore persists refresh-token state. Rotation runs inside a
// transaction with the current row locked, so concurrent refreshes of the
// same token serialize instead of double-issuing.
type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// AccessTokenRevoker denylists access-token IDs until their natural expiry.
type AccessTokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

type AuthUserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthHandler struct {
	users        AuthUserStore
	tokens       TokenManager
	refreshStore RefreshTokenStore
	revoker      AccessTokenRevoker // nil when no denylist backend is configured
	metrics      *AuthMetrics       // nil disables counters
	log          *slog.Logger
	secureCookie bool
}

// AuthMetrics decouples the handler from the concrete Prometheus wiring.
type AuthMetrics struct {
	LoginOutcome func(outcome string)
	TokenRevoked func()
}

func NewAuthHandler(users AuthUserStore, tokens TokenManager, refreshStore RefreshTokenStore, log *slog.Logger, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokens:       tokens,
		refreshStore: refreshStore,
		log:          log,
		secureCookie: secureCookie,
	}
}

func (h *AuthHandler) WithAccessTokenRevoker(r AccessTokenRevoker) *AuthHandler {
	h.revoker = r
	return h
}

func (h *AuthHandler) WithMetrics(m *AuthMetrics) *AuthHandler {
	h.metrics = m
	return h
}

func (h *AuthHandler) countLogin(outcome string) {
	if h.metrics != nil && h.metrics.LoginOutcome != nil {
		h.metrics.LoginOutcome(outcome)
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges credentials for an access token plus a refresh cookie.
// Unknown email and wrong password produce the same response so the endpoint
// does not leak which emails exist.
func (h *AuthHandler) Login(ctx *gin.Context) {
	var req loginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.GetByEmail(ctx.Request.Context(), req.Email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			h.countLogin("invalid_credentials")
			RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
			return
		}

		h.countLogin("error")
		h.log.Error("login: lookup failed", "error", err)
		RespondStorageUnavailable(ctx)
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.Password); err != nil {
		h.countLogin("invalid_credentials")
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
		return
	}

	if !u.Active {
		h.countLogin("inactive")
		RespondError(ctx, http.StatusForbidden, "account_inactive", "Account is deactivated", nil)
		return
	}

	access, err := h.tokens.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		h.countLogin("error")
		h.log.Error("login: signing access token failed", "error", err)
		RespondInternal(ctx, "Could not issue token")
		return
	}

	if err := h.issueRefreshCookie(ctx, u); err != nil {
		h.countLogin("error")
		h.log.Error("login: issuing refresh token failed", "error", err)
		RespondStorageUnavailable(ctx)
		return
	}

	h.countLogin("ok")
	ctx.JSON(http.StatusOK, gin.H{"access_token": access})
}

func (h *AuthHandler) issueRefreshCookie(ctx *gin.Context, u user.User) error {
	raw, jti, expiresAt, err := h.tokens.GenerateRefreshToken(u.ID, u.Email, u.Role)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request.Context()

	tx, err := h.refreshStore.BeginTx(reqCtx)
	if err != nil {
		return err
	}
	defer tx.Rollback(reqCtx)

	err = h.refreshStore.Create(reqCtx, tx, postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    u.ID,
		TokenHash: h.tokens.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(reqCtx); err != nil {
		return err
	}

	h.setRefreshCookie(ctx, raw, int(time.Until(expiresAt).Seconds()))

	return nil
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	// Scoped to /auth so the browser never sends it to directory endpoints.
	ctx.SetCookie(refreshCookieName, value, maxAge, "/auth", "", h.secureCookie, true)
}

// Refresh rotates the refresh token: the presented token is revoked and
// replaced in one transaction, and a fresh access token is issued from the
// user's current role and status, not the stale claims.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "token_invalid", "Missing refresh token")
		return
	}

	claims, err := h.tokens.VerifyRefreshToken(raw)

	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			RespondUnAuthorized(ctx, "token_expired", "Refresh token has expired")
			return
		}
		RespondUnAuthorized(ctx, "token_invalid", "Invalid refresh token")
		return
	}

	reqCtx := ctx.Request.Context()

	u, err := h.users.GetByID(reqCtx, claims.UserID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondUnAuthorized(ctx, "token_invalid", "Account no longer exists")
			return
		}
		RespondStorageUnavailable(ctx)
		return
	}

	if !u.Active {
		RespondError(ctx, http.StatusForbidden, "account_inactive", "Account is deactivated", nil)
		return
	}

	newRaw, newExpires, err := h.rotate(reqCtx, claims, raw, u)

	if err != nil {
		if errors.Is(err, errRefreshReuse) || errors.Is(err, postgres.ErrRefreshTokenNotFound) {
			RespondUnAuthorized(ctx, "token_invalid", "Refresh token is no longer valid")
			return
		}
		h.log.Error("refresh: rotation failed", "error", err)
		RespondStorageUnavailable(ctx)
		return
	}

	access, err := h.tokens.GenerateAccessToken(u.ID, u.Email, u.Role)

	if err != nil {
		h.log.Error("refresh: signing access token failed", "error", err)
		RespondInternal(ctx, "Could not issue token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, int(time.Until(newExpires).Seconds()))
	ctx.JSON(http.StatusOK, gin.H{"access_token": access})
}

var errRefreshReuse = errors.New("refresh token reused or revoked")

func (h *AuthHandler) rotate(ctx context.Context, claims *auth.Claims, raw string, u user.User) (string, time.Time, error) {
	tx, err := h.refreshStore.BeginTx(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	defer tx.Rollback(ctx)

	row, err := h.refreshStore.GetForUpdate(ctx, tx, claims.JTI)
	if err != nil {
		return "", time.Time{}, err
	}

	if row.RevokedAt != nil {
		// A revoked token coming back means it leaked or was replayed.
		// Kill every session for the user rather than just this one.
		_ = tx.Rollback(ctx)

		if rerr := h.refreshStore.RevokeAllForUser(ctx, u.ID); rerr != nil {
			h.log.Error("refresh: revoking all sessions after reuse failed", "error", rerr, "userId", u.ID)
		}

		return "", time.Time{}, errRefreshReuse
	}

	if row.TokenHash != h.tokens.HashRefreshToken(raw) {
		return "", time.Time{}, errRefreshReuse
	}

	if time.Now().After(row.ExpiresAt) {
		return "", time.Time{}, errRefreshReuse
	}

	newRaw, newJTI, newExpires, err := h.tokens.GenerateRefreshToken(u.ID, u.Email, u.Role)
	if err != nil {
		return "", time.Time{}, err
	}

	if err := h.refreshStore.Revoke(ctx, tx, row.ID, &newJTI); err != nil {
		return "", time.Time{}, err
	}

	err = h.refreshStore.Create(ctx, tx, postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    u.ID,
		TokenHash: h.tokens.HashRefreshToken(newRaw),
		ExpiresAt: newExpires,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", time.Time{}, err
	}

	return newRaw, newExpires, nil
}

// Logout is best effort and always succeeds: the refresh session is revoked
// if the cookie verifies, and the presented access token is denylisted for
// the remainder of its lifetime.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()

	if raw, err := ctx.Cookie(refreshCookieName); err == nil && raw != "" {
		if claims, verr := h.tokens.VerifyRefreshToken(raw); verr == nil {
			h.revokeRefreshSession(reqCtx, claims.JTI)
		}
	}

	h.denylistAccessToken(ctx)

	h.setRefreshCookie(ctx, "", -1)
	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) revokeRefreshSession(ctx context.Context, jti string) {
	tx, err := h.refreshStore.BeginTx(ctx)
	if err != nil {
		h.log.Error("logout: begin tx failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	if err := h.refreshStore.Revoke(ctx, tx, jti, nil); err != nil {
		h.log.Error("logout: revoking refresh token failed", "error", err)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.log.Error("logout: commit failed", "error", err)
	}
}

func (h *AuthHandler) denylistAccessToken(ctx *gin.Context) {
	if h.revoker == nil {
		return
	}

	header := ctx.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))

	claims, err := h.tokens.VerifyAccessToken(raw)
	if err != nil {
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)

	if err := h.revoker.Revoke(ctx.Request.Context(), claims.JTI, ttl); err != nil {
		h.log.Error("logout: denylisting access token failed", "error", err)
		return
	}

	if h.metrics != nil && h.metrics.TokenRevoked != nil {
		h.metrics.TokenRevoked()
	}
}
