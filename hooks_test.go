package stillsuit

import (
	"context"
	"errors"
	"testing"

	"github.com/seb7887/stillsuit/internal/testutils"
)

// recordingHook tracks which callbacks fired, optionally failing the
// before phase.
type recordingHook struct {
	BaseHook[testutils.Account, string]
	calls     []string
	beforeErr error
}

func (h *recordingHook) BeforeAdd(_ context.Context, _ *testutils.Account) error {
	h.calls = append(h.calls, "before_add")
	return h.beforeErr
}

func (h *recordingHook) AfterAdd(_ context.Context, _ *testutils.Account) error {
	h.calls = append(h.calls, "after_add")
	return nil
}

func (h *recordingHook) BeforeDelete(_ context.Context, _ string) error {
	h.calls = append(h.calls, "before_delete")
	return h.beforeErr
}

func (h *recordingHook) AfterDelete(_ context.Context, _ *testutils.Account) error {
	h.calls = append(h.calls, "after_delete")
	return nil
}

func (h *recordingHook) BeforeList(_ context.Context, _ []Filter) error {
	h.calls = append(h.calls, "before_list")
	return h.beforeErr
}

func (h *recordingHook) AfterList(_ context.Context, _ []testutils.Account) error {
	h.calls = append(h.calls, "after_list")
	return nil
}

func newHookedAccountRepo(t *testing.T, hook Hook[testutils.Account, string]) *HookedRepository[testutils.Account, string] {
	t.Helper()
	registry := NewHookRegistry[testutils.Account, string]()
	registry.Add(hook)
	return NewHookedRepository[testutils.Account, string](newAccountRepo(t), registry)
}

func TestHookedRepository_FiresAroundAdd(t *testing.T) {
	hook := &recordingHook{}
	repo := newHookedAccountRepo(t, hook)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(hook.calls) != 2 || hook.calls[0] != "before_add" || hook.calls[1] != "after_add" {
		t.Errorf("unexpected hook calls: %v", hook.calls)
	}
}

func TestHookedRepository_BeforeAborts(t *testing.T) {
	boom := errors.New("denied")
	hook := &recordingHook{beforeErr: boom}
	repo := newHookedAccountRepo(t, hook)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1"}); !errors.Is(err, boom) {
		t.Fatalf("expected the before-hook error, got %v", err)
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Errorf("aborted Add must not persist, count = %d", n)
	}
	for _, call := range hook.calls {
		if call == "after_add" {
			t.Error("after-hook must not fire when the before-hook aborts")
		}
	}
}

func TestHookedRepository_DeleteHooks(t *testing.T) {
	hook := &recordingHook{}
	repo := newHookedAccountRepo(t, hook)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := repo.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	last := hook.calls[len(hook.calls)-1]
	if last != "after_delete" {
		t.Errorf("expected after_delete last, calls = %v", hook.calls)
	}
}

func TestHookedRepository_ListHooks(t *testing.T) {
	hook := &recordingHook{}
	repo := newHookedAccountRepo(t, hook)
	ctx := context.Background()

	if _, err := repo.List(ctx); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(hook.calls) != 2 || hook.calls[0] != "before_list" || hook.calls[1] != "after_list" {
		t.Errorf("unexpected hook calls: %v", hook.calls)
	}
}

func TestHookedRepository_GetOrCreateFiresAfterAddOnlyWhenCreated(t *testing.T) {
	hook := &recordingHook{}
	repo := newHookedAccountRepo(t, hook)
	ctx := context.Background()

	if _, err := repo.Add(ctx, &testutils.Account{ID: "a1", Owner: "paul"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	hook.calls = nil

	if _, created, err := repo.GetOrCreate(ctx, Eq("id", "a1")); err != nil || created {
		t.Fatalf("expected an existing entity: created=%v err=%v", created, err)
	}
	if len(hook.calls) != 0 {
		t.Errorf("get path must not fire hooks, calls = %v", hook.calls)
	}
}

func TestHookedRepository_NilRegistry(t *testing.T) {
	repo := NewHookedRepository[testutils.Account, string](newAccountRepo(t), nil)
	if _, err := repo.Add(context.Background(), &testutils.Account{ID: "a1"}); err != nil {
		t.Fatalf("Add with nil registry failed: %v", err)
	}
}
