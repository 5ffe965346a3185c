package user

import "errors"

// Sentinel errors shared by every store implementation so handlers can map
// them without knowing which backend produced them.
var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)
