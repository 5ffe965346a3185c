package user

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName,omitempty"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	PictureURL   string    `json:"profilePictureUrl,omitempty"`
	Role         Role      `json:"role"`
	Active       bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Patch carries a partial update. Nil fields are left untouched.
// Email is deliberately absent: login identity is immutable once created.
type Patch struct {
	FirstName    *string
	LastName     *string
	PhoneNumber  *string
	PictureURL   *string
	PasswordHash *string
	Role         *Role
	Active       *bool
}

func (p Patch) Empty() bool {
	return p.FirstName == nil &&
		p.LastName == nil &&
		p.PhoneNumber == nil &&
		p.PictureURL == nil &&
		p.PasswordHash == nil &&
		p.Role == nil &&
		p.Active == nil
}
