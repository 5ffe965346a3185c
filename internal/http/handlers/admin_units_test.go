package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okoth/userhub/internal/domain/adminunit"
	"github.com/okoth/userhub/internal/domain/user"
)

func (e *testEnv) seedUnit(t *testing.T, name string, unitType adminunit.UnitType, parentID *string) adminunit.AdminUnit {
	t.Helper()

	now := time.Now().UTC()

	u := adminunit.AdminUnit{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      unitType,
		ParentID:  parentID,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.units.Create(context.Background(), u); err != nil {
		t.Fatalf("seed unit %s: %v", name, err)
	}

	return u
}

func TestAdminUnitCreate(t *testing.T) {
	env := newTestEnv(t)
	super := env.seedUser(t, "root@example.com", user.RoleSuperAdmin, true, "password123")
	token := env.tokenFor(t, super)

	t.Run("creates a root unit", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/admin-units/", token,
			`{"name":"Kenya","type":"country","metadata":{"isoCode":"KE"}}`)

		if w.Code != http.StatusCreated {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var created adminunit.AdminUnit
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if created.Type != adminunit.TypeCountry || created.ParentID != nil {
			t.Fatalf("unexpected unit: %+v", created)
		}
		if created.Metadata["isoCode"] != "KE" {
			t.Fatalf("metadata = %v", created.Metadata)
		}
	})

	t.Run("creates a child under an existing parent", func(t *testing.T) {
		parent := env.seedUnit(t, "Uganda", adminunit.TypeCountry, nil)

		w := env.do(t, http.MethodPost, "/admin-units/", token,
			`{"name":"Kampala","type":"city","parentId":"`+parent.ID+`"}`)

		if w.Code != http.StatusCreated {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var created adminunit.AdminUnit
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if created.ParentID == nil || *created.ParentID != parent.ID {
			t.Fatalf("parent = %v want %s", created.ParentID, parent.ID)
		}
	})

	t.Run("missing parent is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/admin-units/", token,
			`{"name":"Orphan","type":"state","parentId":"`+uuid.NewString()+`"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/admin-units/", token,
			`{"name":"Atlantis","type":"continent"}`)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("duplicate name is a conflict", func(t *testing.T) {
		env.seedUnit(t, "Nairobi", adminunit.TypeCity, nil)

		w := env.do(t, http.MethodPost, "/admin-units/", token,
			`{"name":"NAIROBI","type":"city"}`)

		if w.Code != http.StatusConflict {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
		if code := errorCode(t, w); code != "name_taken" {
			t.Fatalf("code = %s", code)
		}
	})
}

func TestAdminUnitWriteGate(t *testing.T) {
	env := newTestEnv(t)

	admin := env.seedUser(t, "admin@example.com", user.RoleAdmin, true, "password123")
	regular := env.seedUser(t, "user@example.com", user.RoleUser, true, "password123")
	unit := env.seedUnit(t, "Kenya", adminunit.TypeCountry, nil)

	for _, actor := range []user.User{admin, regular} {
		token := env.tokenFor(t, actor)

		if w := env.do(t, http.MethodPost, "/admin-units/", token, `{"name":"X","type":"state"}`); w.Code != http.StatusForbidden {
			t.Fatalf("%s create: got %d want 403", actor.Role, w.Code)
		}
		if w := env.do(t, http.MethodPut, "/admin-units/"+unit.ID, token, `{"name":"Y"}`); w.Code != http.StatusForbidden {
			t.Fatalf("%s update: got %d want 403", actor.Role, w.Code)
		}
		if w := env.do(t, http.MethodDelete, "/admin-units/"+unit.ID, token, ""); w.Code != http.StatusForbidden {
			t.Fatalf("%s delete: got %d want 403", actor.Role, w.Code)
		}
	}
}

func TestAdminUnitReadsOpenToAuthenticated(t *testing.T) {
	env := newTestEnv(t)

	readonly := env.seedUser(t, "ro@example.com", user.RoleGeneralReadOnly, true, "password123")
	country := env.seedUnit(t, "Kenya", adminunit.TypeCountry, nil)
	env.seedUnit(t, "Nairobi", adminunit.TypeCity, &country.ID)

	token := env.tokenFor(t, readonly)

	t.Run("list", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/admin-units/", token, "")

		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Count != 2 {
			t.Fatalf("count = %d want 2", resp.Count)
		}
	})

	t.Run("get", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/admin-units/"+country.ID, token, "")
		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("missing id is 404", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/admin-units/"+uuid.NewString(), token, "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("unauthenticated is 401", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/admin-units/", "", "")
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})
}

func TestAdminUnitUpdate(t *testing.T) {
	env := newTestEnv(t)
	super := env.seedUser(t, "root@example.com", user.RoleSuperAdmin, true, "password123")
	token := env.tokenFor(t, super)

	country := env.seedUnit(t, "Kenya", adminunit.TypeCountry, nil)
	city := env.seedUnit(t, "Nairobi", adminunit.TypeCity, &country.ID)

	t.Run("rename", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/admin-units/"+city.ID, token, `{"name":"Nairobi County"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var updated adminunit.AdminUnit
		if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if updated.Name != "Nairobi County" {
			t.Fatalf("name = %s", updated.Name)
		}
		if updated.ParentID == nil || *updated.ParentID != country.ID {
			t.Fatal("rename must not touch the parent link")
		}
	})

	t.Run("explicit null clears the parent link", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/admin-units/"+city.ID, token, `{"parentId":null}`)

		if w.Code != http.StatusOK {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}

		var updated adminunit.AdminUnit
		if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if updated.ParentID != nil {
			t.Fatalf("parent = %v want nil", *updated.ParentID)
		}
	})

	t.Run("reparenting to a missing unit is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/admin-units/"+city.ID, token, `{"parentId":"`+uuid.NewString()+`"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("a unit cannot be its own parent", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/admin-units/"+city.ID, token, `{"parentId":"`+city.ID+`"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("missing unit is 404", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/admin-units/"+uuid.NewString(), token, `{"name":"Ghost"}`)
		if w.Code != http.StatusNotFound {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})
}

func TestAdminUnitDelete(t *testing.T) {
	env := newTestEnv(t)
	super := env.seedUser(t, "root@example.com", user.RoleSuperAdmin, true, "password123")
	token := env.tokenFor(t, super)

	country := env.seedUnit(t, "Kenya", adminunit.TypeCountry, nil)
	city := env.seedUnit(t, "Nairobi", adminunit.TypeCity, &country.ID)

	t.Run("a unit with children cannot be deleted", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/admin-units/"+country.ID, token, "")

		if w.Code != http.StatusBadRequest {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
		if code := errorCode(t, w); code != "unit_has_children" {
			t.Fatalf("code = %s", code)
		}
	})

	t.Run("leaf first, then the parent", func(t *testing.T) {
		if w := env.do(t, http.MethodDelete, "/admin-units/"+city.ID, token, ""); w.Code != http.StatusNoContent {
			t.Fatalf("city: got %d body=%s", w.Code, w.Body.String())
		}
		if w := env.do(t, http.MethodDelete, "/admin-units/"+country.ID, token, ""); w.Code != http.StatusNoContent {
			t.Fatalf("country: got %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("missing id is 404", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/admin-units/"+country.ID, token, "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("got %d body=%s", w.Code, w.Body.String())
		}
	})
}
