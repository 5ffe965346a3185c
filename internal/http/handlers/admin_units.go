package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/okoth/userhub/internal/domain/adminunit"
)

type AdminUnitStore interface {
	Create(ctx context.Context, u adminunit.AdminUnit) error
	GetByID(ctx context.Context, id string) (adminunit.AdminUnit, error)
	List(ctx context.Context) ([]adminunit.AdminUnit, error)
	ListChildren(ctx context.Context, parentID string) ([]adminunit.AdminUnit, error)
	Update(ctx context.Context, id string, p adminunit.Patch) (adminunit.AdminUnit, error)
	Delete(ctx context.Context, id string) error
}

// AdminUnitsHandler serves the administrative hierarchy. Writes are gated to
// super_admin at the router; reads are open to any authenticated account.
type AdminUnitsHandler struct {
	units AdminUnitStore
	log   *slog.Logger
}

func NewAdminUnitsHandler(units AdminUnitStore, log *slog.Logger) *AdminUnitsHandler {
	return &AdminUnitsHandler{units: units, log: log}
}

func (h *AdminUnitsHandler) respondStoreError(ctx *gin.Context, err error) {
	switch err {
	case adminunit.ErrNotFound:
		RespondNotFound(ctx, "Administrative unit not found")
	case adminunit.ErrNameTaken:
		RespondConflict(ctx, "name_taken", "An administrative unit with that name already exists")
	case adminunit.ErrHasChildren:
		RespondError(ctx, http.StatusBadRequest, "unit_has_children",
			"Cannot delete an administrative unit that still has child units", nil)
	default:
		h.log.Error("admin unit store error", "error", err)
		RespondStorageUnavailable(ctx)
	}
}

// parentExists resolves a parent link before a write so a dangling id answers
// 400 instead of a storage error.
func (h *AdminUnitsHandler) parentExists(ctx *gin.Context, parentID string) bool {
	_, err := h.units.GetByID(ctx.Request.Context(), parentID)
	if err == nil {
		return true
	}

	if err == adminunit.ErrNotFound {
		RespondBadRequest(ctx, "Parent unit does not exist", gin.H{"field": "parentId", "value": parentID})
	} else {
		h.respondStoreError(ctx, err)
	}
	return false
}

type createUnitRequest struct {
	Name     string         `json:"name" binding:"required"`
	Type     string         `json:"type" binding:"required"`
	ParentID *string        `json:"parentId"`
	Metadata map[string]any `json:"metadata"`
}

func (h *AdminUnitsHandler) Create(ctx *gin.Context) {
	var req createUnitRequest

	if !BindJSON(ctx, &req) {
		return
	}

	unitType, err := adminunit.ParseUnitType(req.Type)
	if err != nil {
		RespondBadRequest(ctx, "Unknown administrative unit type", gin.H{"field": "type", "value": req.Type})
		return
	}

	if req.ParentID != nil && !h.parentExists(ctx, *req.ParentID) {
		return
	}

	meta := req.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	now := time.Now().UTC()

	u := adminunit.AdminUnit{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Type:      unitType,
		ParentID:  req.ParentID,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.units.Create(ctx.Request.Context(), u); err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

func (h *AdminUnitsHandler) List(ctx *gin.Context) {
	units, err := h.units.List(ctx.Request.Context())
	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items": units,
		"count": len(units),
	})
}

func (h *AdminUnitsHandler) Get(ctx *gin.Context) {
	u, err := h.units.GetByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

// updateUnitRequest keeps parentId raw so an explicit null (clear the link)
// is distinguishable from an absent key (leave it alone).
type updateUnitRequest struct {
	Name     *string         `json:"name"`
	ParentID json.RawMessage `json:"parentId"`
	Metadata map[string]any  `json:"metadata"`
}

func (h *AdminUnitsHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req updateUnitRequest

	if !BindJSON(ctx, &req) {
		return
	}

	patch := adminunit.Patch{
		Name:     req.Name,
		Metadata: req.Metadata,
	}

	if len(req.ParentID) > 0 {
		patch.SetParent = true

		if string(req.ParentID) != "null" {
			var parentID string
			if err := json.Unmarshal(req.ParentID, &parentID); err != nil {
				RespondBadRequest(ctx, "parentId must be a string or null", gin.H{"field": "parentId"})
				return
			}
			if parentID == id {
				RespondBadRequest(ctx, "A unit cannot be its own parent", gin.H{"field": "parentId"})
				return
			}
			if !h.parentExists(ctx, parentID) {
				return
			}
			patch.ParentID = &parentID
		}
	}

	updated, err := h.units.Update(ctx.Request.Context(), id, patch)
	if err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, updated)
}

func (h *AdminUnitsHandler) Delete(ctx *gin.Context) {
	if err := h.units.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		h.respondStoreError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
