package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okoth/userhub/internal/domain/user"
	"github.com/okoth/userhub/internal/repo/memory"
)

func newUser(email string) user.User {
	now := time.Now().UTC()
	return user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "$2a$10$fakefakefakefakefakefake",
		FirstName:    "Test",
		Role:         user.RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := memory.NewUsersRepo()
	ctx := context.Background()

	if err := repo.Create(ctx, newUser("a@x.com")); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := repo.Create(ctx, newUser("A@X.COM"))
	if !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("want ErrEmailTaken, got %v", err)
	}
}

// Two racing creates with the same email: exactly one wins.
func TestConcurrentCreateSameEmail(t *testing.T) {
	repo := memory.NewUsersRepo()
	ctx := context.Background()

	const racers = 16

	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Create(ctx, newUser("race@x.com"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, user.ErrEmailTaken):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if wins != 1 {
		t.Fatalf("want exactly 1 successful create, got %d", wins)
	}
}

func TestDeleteMissingIsError(t *testing.T) {
	repo := memory.NewUsersRepo()
	ctx := context.Background()

	u := newUser("b@x.com")
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Delete(ctx, u.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}

	// Re-deleting is an error, not a no-op.
	if err := repo.Delete(ctx, u.ID); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, uuid.NewString()); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("delete unknown id: want ErrNotFound, got %v", err)
	}
}

func TestUpdatePartialPatch(t *testing.T) {
	repo := memory.NewUsersRepo()
	ctx := context.Background()

	u := newUser("c@x.com")
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	phone := "+15550100"
	got, err := repo.Update(ctx, u.ID, user.Patch{PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if got.PhoneNumber != phone {
		t.Fatalf("phone not updated: %q", got.PhoneNumber)
	}
	if got.FirstName != u.FirstName || got.Email != u.Email || got.Role != u.Role {
		t.Fatal("untouched fields changed")
	}

	if _, err := repo.Update(ctx, uuid.NewString(), user.Patch{PhoneNumber: &phone}); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("update unknown id: want ErrNotFound, got %v", err)
	}
}

func TestEmailFreedAfterDelete(t *testing.T) {
	repo := memory.NewUsersRepo()
	ctx := context.Background()

	u := newUser("d@x.com")
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Create(ctx, newUser("d@x.com")); err != nil {
		t.Fatalf("email should be reusable after hard delete: %v", err)
	}
}
