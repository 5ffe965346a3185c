package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okoth/userhub/internal/domain/adminunit"
)

// AdminUnitsRepo mirrors the Postgres admin-units contract, including the
// no-delete-with-children rule the foreign key enforces in production.
type AdminUnitsRepo struct {
	mu     sync.Mutex
	byID   map[string]adminunit.AdminUnit
	byName map[string]string // lower(name) -> id
}

func NewAdminUnitsRepo() *AdminUnitsRepo {
	return &AdminUnitsRepo{
		byID:   make(map[string]adminunit.AdminUnit),
		byName: make(map[string]string),
	}
}

func (r *AdminUnitsRepo) Create(_ context.Context, u adminunit.AdminUnit) error {
	key := strings.ToLower(u.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[key]; exists {
		return adminunit.ErrNameTaken
	}

	r.byID[u.ID] = u
	r.byName[key] = u.ID

	return nil
}

func (r *AdminUnitsRepo) GetByID(_ context.Context, id string) (adminunit.AdminUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return adminunit.AdminUnit{}, adminunit.ErrNotFound
	}
	return u, nil
}

func (r *AdminUnitsRepo) List(_ context.Context) ([]adminunit.AdminUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sortedLocked(func(adminunit.AdminUnit) bool { return true }), nil
}

func (r *AdminUnitsRepo) ListChildren(_ context.Context, parentID string) ([]adminunit.AdminUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sortedLocked(func(u adminunit.AdminUnit) bool {
		return u.ParentID != nil && *u.ParentID == parentID
	}), nil
}

func (r *AdminUnitsRepo) sortedLocked(keep func(adminunit.AdminUnit) bool) []adminunit.AdminUnit {
	units := make([]adminunit.AdminUnit, 0, len(r.byID))
	for _, u := range r.byID {
		if keep(u) {
			units = append(units, u)
		}
	}

	sort.Slice(units, func(i, j int) bool {
		if units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].ID < units[j].ID
		}
		return units[i].CreatedAt.Before(units[j].CreatedAt)
	})

	return units
}

func (r *AdminUnitsRepo) Update(_ context.Context, id string, p adminunit.Patch) (adminunit.AdminUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return adminunit.AdminUnit{}, adminunit.ErrNotFound
	}

	if p.Name != nil {
		key := strings.ToLower(*p.Name)
		if owner, exists := r.byName[key]; exists && owner != id {
			return adminunit.AdminUnit{}, adminunit.ErrNameTaken
		}
		delete(r.byName, strings.ToLower(u.Name))
		u.Name = *p.Name
		r.byName[key] = id
	}
	if p.SetParent {
		u.ParentID = p.ParentID
	}
	if p.Metadata != nil {
		u.Metadata = p.Metadata
	}

	if !p.Empty() {
		u.UpdatedAt = time.Now().UTC()
	}

	r.byID[id] = u

	return u, nil
}

func (r *AdminUnitsRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return adminunit.ErrNotFound
	}

	for _, other := range r.byID {
		if other.ParentID != nil && *other.ParentID == id {
			return adminunit.ErrHasChildren
		}
	}

	delete(r.byID, id)
	delete(r.byName, strings.ToLower(u.Name))

	return nil
}
