package postgres

import (
	"context"
	"errors"

	"github.com/okoth/userhub/internal/domain/user"
	"github.com/okoth/userhub/internal/observability"
)

// InstrumentedUsersRepo wraps UsersRepo with per-operation latency and error
// metrics. Domain outcomes (not found, email taken) are not counted as
// storage errors.
type InstrumentedUsersRepo struct {
	inner *UsersRepo
	prom  *observability.Prom
}

func NewInstrumentedUsersRepo(inner *UsersRepo, prom *observability.Prom) *InstrumentedUsersRepo {
	return &InstrumentedUsersRepo{inner: inner, prom: prom}
}

func isDomainOutcome(err error) bool {
	return errors.Is(err, user.ErrNotFound) || errors.Is(err, user.ErrEmailTaken)
}

func (r *InstrumentedUsersRepo) observe(op string, fn func() error) error {
	var opErr error

	_ = r.prom.ObserveDB(op, func() error {
		opErr = fn()
		if isDomainOutcome(opErr) {
			return nil
		}
		return opErr
	})

	return opErr
}

func (r *InstrumentedUsersRepo) Create(ctx context.Context, u user.User) error {
	return r.observe("users.create", func() error {
		return r.inner.Create(ctx, u)
	})
}

func (r *InstrumentedUsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = r.inner.GetByID(ctx, id)
		return err
	})

	return u, err
}

func (r *InstrumentedUsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		var err error
		u, err = r.inner.GetByEmail(ctx, email)
		return err
	})

	return u, err
}

func (r *InstrumentedUsersRepo) List(ctx context.Context, limit, offset int) ([]user.User, error) {
	var users []user.User

	err := r.observe("users.list", func() error {
		var err error
		users, err = r.inner.List(ctx, limit, offset)
		return err
	})

	return users, err
}

func (r *InstrumentedUsersRepo) Update(ctx context.Context, id string, p user.Patch) (user.User, error) {
	var u user.User

	err := r.observe("users.update", func() error {
		var err error
		u, err = r.inner.Update(ctx, id, p)
		return err
	})

	return u, err
}

func (r *InstrumentedUsersRepo) Delete(ctx context.Context, id string) error {
	return r.observe("users.delete", func() error {
		return r.inner.Delete(ctx, id)
	})
}
