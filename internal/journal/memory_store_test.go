package journal

import (
	"context"
	"errors"
	"testing"

	xerrors "OpenMCP-EVM/internal/errors"
)

func seed(t *testing.T, store Store, entries ...*Entry) {
	t.Helper()
	for _, entry := range entries {
		if err := store.Create(context.Background(), entry); err != nil {
			t.Fatalf("create %s: %v", entry.ID, err)
		}
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	fork := uint64(19_000_000)
	seed(t, store, &Entry{ID: "a", From: "0xAbc", To: "0xdef", AmountEth: "1", ForkBlock: &fork})

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StatePending || got.CreatedAt == 0 || *got.ForkBlock != fork {
		t.Fatalf("unexpected entry %+v", got)
	}
	*got.ForkBlock = 1
	again, _ := store.Get(ctx, "a")
	if *again.ForkBlock != fork {
		t.Fatalf("Get must return a copy")
	}

	gas := uint64(21000)
	status := true
	if err := store.Complete(ctx, "a", Outcome{State: StateConfirmed, TxHash: "0x01", GasUsed: &gas, Status: &status}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	done, _ := store.Get(ctx, "a")
	if done.State != StateConfirmed || *done.GasUsed != 21000 || !*done.Status || done.TxHash != "0x01" {
		t.Fatalf("unexpected completed entry %+v", done)
	}

	if err := store.Fail(ctx, "a", Failure{Code: "X", Message: "late"}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestMemoryStoreErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Entry{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	seed(t, store, &Entry{ID: "dup"})
	if err := store.Create(ctx, &Entry{ID: "dup"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Complete(ctx, "missing", Outcome{State: StateSimulated}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Complete(ctx, "dup", Outcome{State: StateFailed}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("failed is not a completion state, got %v", err)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seed(t, store,
		&Entry{ID: "t1", From: "0xAAA"},
		&Entry{ID: "t2", From: "0xbbb"},
		&Entry{ID: "t3", From: "0xaaa"},
	)
	if err := store.Fail(ctx, "t2", Failure{Code: "GAS_CAP_EXCEEDED", Stage: "gas_estimated", Message: "too much gas"}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := store.Complete(ctx, "t3", Outcome{State: StateSimulated}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" || all[2].ID != "t1" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	failed, _ := store.List(ctx, NewListOptions(WithStates(StateFailed)))
	if len(failed) != 1 || failed[0].Stage != "gas_estimated" || failed[0].ErrorCode != "GAS_CAP_EXCEEDED" {
		t.Fatalf("unexpected failed list %+v", failed)
	}

	bySender, _ := store.List(ctx, NewListOptions(WithSender("0xaaa"), WithSortOrder(SortByCreatedAsc)))
	if len(bySender) != 2 || bySender[0].ID != "t1" || bySender[1].ID != "t3" {
		t.Fatalf("unexpected sender list %+v", bySender)
	}

	page, _ := store.List(ctx, NewListOptions(WithLimit(1), WithOffset(1)))
	if len(page) != 1 || page[0].ID != "t2" {
		t.Fatalf("unexpected page %+v", page)
	}
	empty, _ := store.List(ctx, NewListOptions(WithOffset(10)))
	if len(empty) != 0 {
		t.Fatalf("offset past the end should be empty")
	}
}

func TestListOptionsDefaults(t *testing.T) {
	opts := NewListOptions(WithLimit(500), WithOffset(-3), WithStates("bogus", StateFailed, StateFailed), WithSender(" 0xABC "))
	if opts.Limit != 100 || opts.Offset != 0 {
		t.Fatalf("unexpected paging %+v", opts)
	}
	if len(opts.States) != 1 || opts.States[0] != StateFailed {
		t.Fatalf("unexpected states %+v", opts.States)
	}
	if opts.From != "0xabc" {
		t.Fatalf("sender should be normalized, got %q", opts.From)
	}
	if NewListOptions().Limit != 20 {
		t.Fatalf("unexpected default limit")
	}
	if s, ok := ParseState(" Confirmed "); !ok || s != StateConfirmed {
		t.Fatalf("unexpected parsed state %q", s)
	}
}
