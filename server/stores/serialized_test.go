package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// Two concurrent registrations of the same name must produce exactly one
// record: the per-user lock turns the check-then-act in the backends into a
// sequential sequence.
func TestSerialized_ConcurrentRegisterSameName(t *testing.T) {
	ctx := context.Background()
	store := NewSerialized(NewMemoryStore())

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.RegisterService(ctx, "user-1", testCredential("Google Drive", "GoogleDrive", `{}`))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrServiceExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != workers-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", workers-1, ok, conflicts)
	}

	services, err := store.ListServices(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(services) != 1 {
		t.Errorf("expected exactly one record, got %+v", services)
	}
}

func TestSerialized_IndependentUsersDoNotBlock(t *testing.T) {
	ctx := context.Background()
	store := NewSerialized(NewMemoryStore())

	var wg sync.WaitGroup
	for _, user := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if err := store.RegisterService(ctx, user, testCredential("Google Drive", "GoogleDrive", `{}`)); err != nil {
				t.Errorf("RegisterService(%s): %v", user, err)
			}
		}(user)
	}
	wg.Wait()
}
