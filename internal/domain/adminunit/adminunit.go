// Package adminunit models the administrative hierarchy: named units at a
// fixed set of levels, each optionally linked to a parent unit.
package adminunit

import (
	"errors"
	"fmt"
	"time"
)

// UnitType is the level of an administrative unit. The set is closed; the
// store does not enforce which level may nest under which.
type UnitType string

const (
	TypeCountry  UnitType = "country"
	TypeState    UnitType = "state"
	TypeDistrict UnitType = "district"
	TypeCity     UnitType = "city"
	TypeTaluka   UnitType = "taluka"
	TypeMohalla  UnitType = "mohalla"
)

var unitTypes = map[UnitType]struct{}{
	TypeCountry:  {},
	TypeState:    {},
	TypeDistrict: {},
	TypeCity:     {},
	TypeTaluka:   {},
	TypeMohalla:  {},
}

func (t UnitType) Valid() bool {
	_, ok := unitTypes[t]
	return ok
}

func ParseUnitType(s string) (UnitType, error) {
	t := UnitType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown administrative unit type %q", s)
	}
	return t, nil
}

// Sentinel errors shared by every store implementation so handlers can map
// them without knowing which backend produced them.
var (
	ErrNotFound    = errors.New("admin unit not found")
	ErrNameTaken   = errors.New("admin unit name already in use")
	ErrHasChildren = errors.New("admin unit has child units")
)

type AdminUnit struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      UnitType       `json:"type"`
	ParentID  *string        `json:"parentId,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Patch carries a partial update. Nil fields are left untouched. SetParent
// marks an intent to change the parent link, with a nil ParentID clearing it.
// Type is deliberately absent: a unit keeps its level for life.
type Patch struct {
	Name      *string
	ParentID  *string
	SetParent bool
	Metadata  map[string]any
}

func (p Patch) Empty() bool {
	return p.Name == nil && !p.SetParent && p.Metadata == nil
}
