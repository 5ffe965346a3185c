package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/okoth/userhub/internal/authz"
	"github.com/okoth/userhub/internal/domain/user"
	"github.com/okoth/userhub/internal/http/middlewares"
	"github.com/okoth/userhub/internal/security"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type UserStore interface {
	Create(ctx context.Context, u user.User) error
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	List(ctx context.Context, limit, offset int) ([]user.User, error)
	Update(ctx context.Context, id string, p user.Patch) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type AuditStore interface {
	Append(ctx context.Context, e user.AuditEntry) error
	ListForUser(ctx context.Context, userID string) ([]user.AuditEntry, error)
}

// SessionRevoker invalidates every refresh session for a user, used after a
// password change.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

type UsersHandler struct {
	users          UserStore
	audit          AuditStore     // nil disables the audit trail
	sessions       SessionRevoker // nil skips session invalidation
	minPasswordLen int
	log            *slog.Logger
	decisionMetric func(op, decision string) // nil disables counters
}

func NewUsersHandler(users UserStore, minPasswordLen int, log *slog.Logger) *UsersHandler {
	return &UsersHandler{
		users:          users,
		minPasswordLen: minPasswordLen,
		log:            log,
	}
}

func (h *UsersHandler) WithAudit(a AuditStore) *UsersHandler {
	h.audit = a
	return h
}

func (h *UsersHandler) WithSessionRevoker(s SessionRevoker) *UsersHandler {
	h.sessions = s
	return h
}

func (h *UsersHandler) WithDecisionMetric(fn func(op, decision string)) *UsersHandler {
	h.decisionMetric = fn
	return h
}

// actorFrom resolves the authenticated identity stashed by the auth
// middleware. A missing identity on a protected route is a wiring bug, but it
// still answers 401 rather than panicking.
func actorFrom(ctx *gin.Context) (authz.Actor, bool) {
	id, okID := middlewares.UserIDFromContext(ctx)
	role, okRole := middlewares.RoleFromContext(ctx)

	if !okID || !okRole || id == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing authenticated identity")
		return authz.Actor{}, false
	}

	return authz.Actor{ID: id, Role: role}, true
}

// authorize runs the role policy and turns a denial into a 403 with the
// decision context in the details.
func (h *UsersHandler) authorize(ctx *gin.Context, actor authz.Actor, op authz.Operation, target *authz.Target) bool {
	err := authz.Authorize(actor, op, target)

	if h.decisionMetric != nil {
		decision := "allow"
		if err != nil {
			decision = "deny"
		}
		h.decisionMetric(string(op), decision)
	}

	if err == nil {
		return true
	}

	details := gin.H{"operation": string(op)}
	message := "You are not allowed to perform this operation"

	if denied, ok := err.(*authz.DeniedError); ok {
		message = denied.Reason
		if denied.TargetID != "" {
			details["targetId"] = denied.TargetID
		}
	}

	RespondForbidden(ctx, message, details)

	return false
}

func (h *UsersHandler) respondStoreError(ctx *gin.Context, err error, notFoundMsg string) {
	switch err {
	case user.ErrNotFound:
		RespondNotFound(ctx, notFoundMsg)
	case user.ErrEmailTaken:
		RespondConflict(ctx, "email_taken", "Email address is already in use")
	default:
		h.log.Error("user store error", "error", err)
		RespondStorageUnavailable(ctx)
	}
}

func (h *UsersHandler) passwordOK(ctx *gin.Context, plain string) bool {
	if len(plain) < h.minPasswordLen {
		RespondError(ctx, http.StatusBadRequest, "weak_password",
			"Password must be at least "+strconv.Itoa(h.minPasswordLen)+" characters", nil)
		return false
	}
	return true
}

func auditChange(targetID, actorID, field, oldValue, newValue string) user.AuditEntry {
	return user.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    targetID,
		ChangedBy: actorID,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		CreatedAt: time.Now().UTC(),
	}
}

// writeAudit appends entries best effort. An audit write failing after the
// change already landed is logged, not surfaced.
func (h *UsersHandler) writeAudit(ctx context.Context, entries []user.AuditEntry) {
	if h.audit == nil {
		return
	}

	for _, e := range entries {
		if err := h.audit.Append(ctx, e); err != nil {
			h.log.Error("audit append failed", "error", err, "userId", e.UserID, "field", e.Field)
		}
	}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	PictureURL  string `json:"profilePictureUrl"`
	Role        string `json:"role"`
	Active      *bool  `json:"isActive"`
}

// Register creates a user record. The role the caller may hand out is gated
// by the role policy; omitting the role grants the least-privileged one.
func (h *UsersHandler) Register(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req registerRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !h.passwordOK(ctx, req.Password) {
		return
	}

	role := user.DefaultRole

	if req.Role != "" {
		parsed, err := user.ParseRole(req.Role)
		if err != nil {
			RespondBadRequest(ctx, "Unknown role", gin.H{"field": "role", "value": req.Role})
			return
		}
		role = parsed
	}

	if !h.authorize(ctx, actor, authz.OpCreate, &authz.Target{GrantRole: &role}) {
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		h.log.Error("register: hashing password failed", "error", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhoneNumber:  req.PhoneNumber,
		PictureURL:   req.PictureURL,
		Role:         role,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.users.Create(ctx.Request.Context(), u); err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

// List returns the directory filtered to the records the caller may see.
func (h *UsersHandler) List(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	if !h.authorize(ctx, actor, authz.OpList, nil) {
		return
	}

	limit := intQuery(ctx, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}

	offset := intQuery(ctx, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	users, err := h.users.List(ctx.Request.Context(), limit, offset)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	visible := make([]user.User, 0, len(users))

	for _, u := range users {
		if authz.CanView(actor.Role, u.Role) {
			visible = append(visible, u)
		}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items": visible,
		"count": len(visible),
	})
}

func intQuery(ctx *gin.Context, name string, fallback int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

// Get returns a single record. For actors below the administrative tier the
// policy runs before the lookup: they may only ever read themselves, so a
// foreign id answers 403 whether or not the record exists. Administrative
// actors need the target's role for the ceiling check, so their lookup comes
// first and a missing id stays 404.
func (h *UsersHandler) Get(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")
	admin := actor.Role.AtLeast(user.RoleAdmin)

	if !admin && !h.authorize(ctx, actor, authz.OpRead, &authz.Target{ID: id}) {
		return
	}

	target, err := h.users.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if admin && !h.authorize(ctx, actor, authz.OpRead, &authz.Target{ID: target.ID, Role: target.Role}) {
		return
	}

	ctx.JSON(http.StatusOK, target)
}

type updateRequest struct {
	Email       *string `json:"email"` // rejected, present only to catch it
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
	PictureURL  *string `json:"profilePictureUrl"`
	Password    *string `json:"password"`
	Role        *string `json:"role"`
	Active      *bool   `json:"isActive"`
}

// Update applies a partial update to a record. Email changes are refused
// outright, and self-service restrictions (own role, own status) apply even
// to the highest tier. As with Get, actors below the administrative tier are
// denied on a foreign id before the lookup so the response never reveals
// whether the record exists.
func (h *UsersHandler) Update(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")

	var req updateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Email != nil {
		RespondError(ctx, http.StatusBadRequest, "email_immutable",
			"Email cannot be changed once the account exists", gin.H{"field": "email"})
		return
	}

	var grantRole *user.Role

	if req.Role != nil {
		parsed, err := user.ParseRole(*req.Role)
		if err != nil {
			RespondBadRequest(ctx, "Unknown role", gin.H{"field": "role", "value": *req.Role})
			return
		}
		grantRole = &parsed
	}

	if grantRole != nil && id == actor.ID {
		RespondBadRequest(ctx, "You cannot change your own role", nil)
		return
	}

	if req.Active != nil && id == actor.ID {
		RespondBadRequest(ctx, "You cannot change the status of your own account", nil)
		return
	}

	admin := actor.Role.AtLeast(user.RoleAdmin)

	if !admin && !h.authorize(ctx, actor, authz.OpUpdate, &authz.Target{
		ID:         id,
		GrantRole:  grantRole,
		SetsActive: req.Active != nil,
	}) {
		return
	}

	target, err := h.users.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if grantRole != nil && target.Role == user.RoleSuperAdmin && *grantRole != user.RoleSuperAdmin {
		RespondBadRequest(ctx, "A super_admin account cannot be demoted", nil)
		return
	}

	if admin && !h.authorize(ctx, actor, authz.OpUpdate, &authz.Target{
		ID:         target.ID,
		Role:       target.Role,
		GrantRole:  grantRole,
		SetsActive: req.Active != nil,
	}) {
		return
	}

	patch := user.Patch{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		PictureURL:  req.PictureURL,
		Role:        grantRole,
		Active:      req.Active,
	}

	if req.Password != nil {
		if !h.passwordOK(ctx, *req.Password) {
			return
		}

		hash, err := security.HashPassword(*req.Password)
		if err != nil {
			h.log.Error("update: hashing password failed", "error", err)
			RespondInternal(ctx, "Could not update user")
			return
		}
		patch.PasswordHash = &hash
	}

	updated, err := h.users.Update(ctx.Request.Context(), id, patch)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	h.writeAudit(ctx.Request.Context(), diffAudit(target, updated, actor.ID))

	ctx.JSON(http.StatusOK, updated)
}

// diffAudit derives audit entries from the before/after records, so the
// trail reflects what actually changed rather than what the request asked.
func diffAudit(before, after user.User, actorID string) []user.AuditEntry {
	entries := make([]user.AuditEntry, 0, 6)

	add := func(field, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		entries = append(entries, auditChange(before.ID, actorID, field, oldValue, newValue))
	}

	add("first_name", before.FirstName, after.FirstName)
	add("last_name", before.LastName, after.LastName)
	add("phone_number", before.PhoneNumber, after.PhoneNumber)
	add("profile_picture_url", before.PictureURL, after.PictureURL)
	add("role", string(before.Role), string(after.Role))
	add("is_active", strconv.FormatBool(before.Active), strconv.FormatBool(after.Active))

	return entries
}

// Delete removes a record permanently. Deleting a missing id is an error,
// and nobody may delete their own account.
func (h *UsersHandler) Delete(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")

	if id == actor.ID {
		RespondBadRequest(ctx, "You cannot delete your own account", nil)
		return
	}

	if !h.authorize(ctx, actor, authz.OpDelete, &authz.Target{ID: id}) {
		return
	}

	if err := h.users.Delete(ctx.Request.Context(), id); err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Me returns the caller's own record.
func (h *UsersHandler) Me(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), actor.ID)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

type profileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
	PictureURL  *string `json:"profilePictureUrl"`
}

// UpdateMyProfile lets any authenticated user maintain their own contact
// details without touching role, status, or credentials.
func (h *UsersHandler) UpdateMyProfile(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req profileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	before, err := h.users.GetByID(ctx.Request.Context(), actor.ID)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	updated, err := h.users.Update(ctx.Request.Context(), actor.ID, user.Patch{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		PictureURL:  req.PictureURL,
	})
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	h.writeAudit(ctx.Request.Context(), diffAudit(before, updated, actor.ID))

	ctx.JSON(http.StatusOK, updated)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ChangeMyPassword verifies the current password before accepting a new one,
// then invalidates every open session for the account.
func (h *UsersHandler) ChangeMyPassword(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req changePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.GetByID(ctx.Request.Context(), actor.ID)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if err := security.CheckPassword(u.PasswordHash, req.OldPassword); err != nil {
		RespondBadRequest(ctx, "Old password is incorrect", nil)
		return
	}

	if req.NewPassword == req.OldPassword {
		RespondBadRequest(ctx, "New password must differ from the old one", nil)
		return
	}

	if !h.passwordOK(ctx, req.NewPassword) {
		return
	}

	hash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		h.log.Error("change password: hashing failed", "error", err)
		RespondInternal(ctx, "Could not change password")
		return
	}

	if _, err := h.users.Update(ctx.Request.Context(), actor.ID, user.Patch{PasswordHash: &hash}); err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if h.sessions != nil {
		if err := h.sessions.RevokeAllForUser(ctx.Request.Context(), actor.ID); err != nil {
			h.log.Error("change password: revoking sessions failed", "error", err, "userId", actor.ID)
		}
	}

	ctx.Status(http.StatusNoContent)
}

type setStatusRequest struct {
	Active *bool `json:"isActive" binding:"required"`
}

// SetStatus activates or deactivates an account. Nobody may flip their own
// flag, so there is always at least one actor who can undo a mistake.
func (h *UsersHandler) SetStatus(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")

	var req setStatusRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if id == actor.ID {
		RespondBadRequest(ctx, "You cannot change the status of your own account", nil)
		return
	}

	target, err := h.users.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if !h.authorize(ctx, actor, authz.OpSetStatus, &authz.Target{
		ID:         target.ID,
		Role:       target.Role,
		SetsActive: true,
	}) {
		return
	}

	updated, err := h.users.Update(ctx.Request.Context(), id, user.Patch{Active: req.Active})
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	h.writeAudit(ctx.Request.Context(), diffAudit(target, updated, actor.ID))

	ctx.JSON(http.StatusOK, updated)
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetRole reassigns an account's tier. Self role changes and demoting
// another super_admin are refused before the policy even runs.
func (h *UsersHandler) SetRole(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")

	var req setRoleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	newRole, err := user.ParseRole(req.Role)
	if err != nil {
		RespondBadRequest(ctx, "Unknown role", gin.H{"field": "role", "value": req.Role})
		return
	}

	if id == actor.ID {
		RespondBadRequest(ctx, "You cannot change your own role", nil)
		return
	}

	target, err := h.users.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if target.Role == user.RoleSuperAdmin && newRole != user.RoleSuperAdmin {
		RespondBadRequest(ctx, "A super_admin account cannot be demoted", nil)
		return
	}

	if !h.authorize(ctx, actor, authz.OpSetRole, &authz.Target{
		ID:        target.ID,
		Role:      target.Role,
		GrantRole: &newRole,
	}) {
		return
	}

	updated, err := h.users.Update(ctx.Request.Context(), id, user.Patch{Role: &newRole})
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	h.writeAudit(ctx.Request.Context(), diffAudit(target, updated, actor.ID))

	ctx.JSON(http.StatusOK, updated)
}

// GetAuditLog returns the change history for a record, newest first.
func (h *UsersHandler) GetAuditLog(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")

	target, err := h.users.GetByID(ctx.Request.Context(), id)
	if err != nil {
		h.respondStoreError(ctx, err, "User not found")
		return
	}

	if !h.authorize(ctx, actor, authz.OpReadAudit, &authz.Target{ID: target.ID, Role: target.Role}) {
		return
	}

	entries := make([]user.AuditEntry, 0)

	if h.audit != nil {
		entries, err = h.audit.ListForUser(ctx.Request.Context(), id)
		if err != nil {
			h.log.Error("audit list failed", "error", err, "userId", id)
			RespondStorageUnavailable(ctx)
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": entries,
		"count": len(entries),
	})
}
