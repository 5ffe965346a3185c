package user

import "time"

// AuditEntry records one field change on a user record and who made it.
type AuditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ChangedBy string    `json:"changedByUserId"`
	Field     string    `json:"fieldName"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	CreatedAt time.Time `json:"timestamp"`
}
