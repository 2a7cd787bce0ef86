package stillsuit

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/seb7887/stillsuit/internal/testutils"
)

func newRedisAccountRepo(t *testing.T) *RedisConnector[testutils.Account, string] {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConnector(client, 0, accountIdentity(), nil)
}

func TestRedisConnector_AddGet(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	acc := testutils.Account{ID: "a1", Owner: "paul", Balance: 100}
	if _, err := repo.Add(ctx, &acc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := repo.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Owner != "paul" || got.Balance != 100 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := repo.Add(ctx, &acc); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisConnector_AddManyConflict(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1", Balance: 100}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	_, err := repo.AddMany(ctx, []testutils.Account{
		{ID: "a1", Balance: 999},
		{ID: "a2"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The colliding key must keep its original value.
	got, err := repo.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Balance != 100 {
		t.Errorf("existing entity was overwritten, balance = %d", got.Balance)
	}
}

func TestRedisConnector_GetWithMatchers(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1", Owner: "paul"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := repo.Get(ctx, "a1", Eq("owner", "paul")); err != nil {
		t.Errorf("Get with matching matcher failed: %v", err)
	}
	if _, err := repo.Get(ctx, "a1", Eq("owner", "leto")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for non-matching matcher, got %v", err)
	}
}

func TestRedisConnector_IDMatcherOps(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1", Owner: "paul"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := repo.GetOne(ctx, Eq("id", "a1"))
	if err != nil {
		t.Fatalf("GetOne failed: %v", err)
	}
	if got.ID != "a1" {
		t.Errorf("GetOne returned %+v", got)
	}

	none, err := repo.GetOneOrNone(ctx, Eq("id", "ghost"))
	if err != nil || none != nil {
		t.Errorf("GetOneOrNone: item=%v err=%v", none, err)
	}

	exists, err := repo.Exists(ctx, Eq("id", "a1"))
	if err != nil || !exists {
		t.Errorf("Exists: %v %v", exists, err)
	}

	// Predicates over non-id fields are beyond a key-value store.
	if _, err := repo.GetOne(ctx, Eq("owner", "paul")); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
	if _, err := repo.Exists(ctx, Eq("owner", "paul")); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestRedisConnector_GetOrCreate(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	item, created, err := repo.GetOrCreate(ctx, Eq("id", "a1"))
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created || item.ID != "a1" {
		t.Errorf("create path: created=%v item=%+v", created, item)
	}

	_, created, err = repo.GetOrCreate(ctx, Eq("id", "a1"))
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("second GetOrCreate should not create")
	}

	if _, _, err := repo.GetOrCreate(ctx, Eq("owner", "paul")); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestRedisConnector_UpdateUpsert(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.Update(ctx, &testutils.Account{ID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update of missing key: expected ErrNotFound, got %v", err)
	}

	if _, err := repo.Upsert(ctx, &testutils.Account{ID: "a1", Balance: 100}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	updated, err := repo.Update(ctx, &testutils.Account{ID: "a1", Balance: 200})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Balance != 200 {
		t.Errorf("balance = %d, want 200", updated.Balance)
	}

	_, err = repo.UpdateMany(ctx, []testutils.Account{
		{ID: "a1", Balance: 300},
		{ID: "ghost"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMany with missing key: expected ErrNotFound, got %v", err)
	}
}

func TestRedisConnector_Delete(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1", Owner: "paul"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	deleted, err := repo.Delete(ctx, "a1")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted.Owner != "paul" {
		t.Errorf("Delete should return the removed entity, got %+v", deleted)
	}
	if _, err := repo.Delete(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisConnector_DeleteMany(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.AddMany(ctx, []testutils.Account{{ID: "a1"}, {ID: "a2"}}); err != nil {
		t.Fatalf("AddMany failed: %v", err)
	}

	deleted, err := repo.DeleteMany(ctx, []string{"a1", "ghost", "a2"})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("expected 2 deleted entities, got %d", len(deleted))
	}
}

func TestRedisConnector_UnsupportedQueries(t *testing.T) {
	repo := newRedisAccountRepo(t)
	ctx := context.Background()

	if _, err := repo.Count(ctx); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("Count: expected ErrUnsupportedOperation, got %v", err)
	}
	if _, err := repo.List(ctx); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("List: expected ErrUnsupportedOperation, got %v", err)
	}
	if _, _, err := repo.ListAndCount(ctx); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("ListAndCount: expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestDefaultKeyFunc(t *testing.T) {
	kf := DefaultKeyFunc[string]("account")
	if got := kf("a1"); got != "account:a1" {
		t.Errorf("key = %q, want account:a1", got)
	}
}
