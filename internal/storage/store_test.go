package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMarkAndCheckProcessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done, err := store.IsProcessed(ctx, "chainA_lock", 0, "Locked")
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if done {
		t.Fatal("fresh store should have no marks")
	}

	if err := store.MarkProcessed(ctx, "chainA_lock", 0, "Locked", "0xabc"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	done, err = store.IsProcessed(ctx, "chainA_lock", 0, "Locked")
	if err != nil || !done {
		t.Fatalf("mark not visible: done=%v err=%v", done, err)
	}

	// Same nonce under another stream or kind is a distinct key.
	done, _ = store.IsProcessed(ctx, "chainB_burn", 0, "Burned")
	if done {
		t.Fatal("mark leaked across streams")
	}
}

func TestMarkProcessedIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.MarkProcessed(ctx, "chainA_lock", 7, "Locked", "0x111"); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := store.MarkProcessed(ctx, "chainA_lock", 7, "Locked", "0x222"); err != nil {
		t.Fatalf("duplicate mark should succeed silently: %v", err)
	}
	n, err := store.ProcessedCount(ctx, "chainA_lock")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single mark, got %d", n)
	}
}

func TestCursorDefaultsToZero(t *testing.T) {
	store := newTestStore(t)

	block, err := store.GetCursor(context.Background(), "chainB_governance")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if block != 0 {
		t.Fatalf("fresh cursor = %d, want 0", block)
	}
}

func TestCursorMonotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetCursor(ctx, "chainA_lock", 50); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	if err := store.SetCursor(ctx, "chainA_lock", 40); err != nil {
		t.Fatalf("set lower cursor: %v", err)
	}
	block, err := store.GetCursor(ctx, "chainA_lock")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if block != 50 {
		t.Fatalf("cursor decreased to %d", block)
	}

	if err := store.SetCursor(ctx, "chainA_lock", 60); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	block, _ = store.GetCursor(ctx, "chainA_lock")
	if block != 60 {
		t.Fatalf("cursor = %d, want 60", block)
	}
}

func TestCursorsListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for stream, block := range map[string]uint64{
		"chainA_lock":       12,
		"chainB_burn":       34,
		"chainB_governance": 5,
	} {
		if err := store.SetCursor(ctx, stream, block); err != nil {
			t.Fatalf("set cursor %s: %v", stream, err)
		}
	}

	cursors, err := store.Cursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 3 {
		t.Fatalf("expected 3 cursors, got %d", len(cursors))
	}
	if cursors[0].StreamID != "chainA_lock" || cursors[0].LastBlock != 12 {
		t.Fatalf("unexpected first cursor: %+v", cursors[0])
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected ping to fail after close")
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "relayer.db")
	ctx := context.Background()

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.MarkProcessed(ctx, "chainA_lock", 3, "Locked", "0xfeed"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := store.SetCursor(ctx, "chainA_lock", 99); err != nil {
		t.Fatalf("set cursor: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	done, err := store.IsProcessed(ctx, "chainA_lock", 3, "Locked")
	if err != nil || !done {
		t.Fatalf("mark lost across reopen: done=%v err=%v", done, err)
	}
	block, err := store.GetCursor(ctx, "chainA_lock")
	if err != nil || block != 99 {
		t.Fatalf("cursor lost across reopen: block=%d err=%v", block, err)
	}
}
