// Package memory holds an in-memory users store mirroring the Postgres repo
// contract. Used by tests and local hacking; uniqueness is enforced under one
// lock the way the unique index does it in production.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okoth/userhub/internal/domain/user"
)

type UsersRepo struct {
	mu      sync.Mutex
	byID    map[string]user.User
	byEmail map[string]string // lower(email) -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byID:    make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Create(_ context.Context, u user.User) error {
	key := strings.ToLower(u.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[key]; exists {
		return user.ErrEmailTaken
	}

	r.byID[u.ID] = u
	r.byEmail[key] = u.ID

	return nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *UsersRepo) List(_ context.Context, limit, offset int) ([]user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]user.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	if offset >= len(users) {
		return []user.User{}, nil
	}
	users = users[offset:]

	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}

	return users, nil
}

func (r *UsersRepo) Update(_ context.Context, id string, p user.Patch) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.PhoneNumber != nil {
		u.PhoneNumber = *p.PhoneNumber
	}
	if p.PictureURL != nil {
		u.PictureURL = *p.PictureURL
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Active != nil {
		u.Active = *p.Active
	}

	if !p.Empty() {
		u.UpdatedAt = time.Now().UTC()
	}

	r.byID[id] = u

	return u, nil
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.byID, id)
	delete(r.byEmail, strings.ToLower(u.Email))

	return nil
}
