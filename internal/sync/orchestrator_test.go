package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// ---------------------------------------------------------------------------
// First sync: reminder exists only in Apple → created in Notion, linked
// ---------------------------------------------------------------------------

func TestSyncAll_NewReminder_CreatedInNotion(t *testing.T) {
	now := time.Now().UTC()
	apple := newMockApple(appleItem("rem-1", "Buy milk", now))
	notion := newMockNotion()
	store := newMockStore(testMapping())

	o := NewOrchestrator(apple, notion, store, testLogger)
	stats, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Created != 1 {
		t.Errorf("Created = %d, want 1", stats.Created)
	}
	if notion.count() != 1 {
		t.Errorf("notion items = %d, want 1", notion.count())
	}
	if store.recordCount() != 1 {
		t.Errorf("records = %d, want 1", store.recordCount())
	}
}

// ---------------------------------------------------------------------------
// Idempotence: a second pass with no edits performs no mutations
// ---------------------------------------------------------------------------

func TestSyncAll_SecondPassIsNoop(t *testing.T) {
	now := time.Now().UTC()
	apple := newMockApple(appleItem("rem-1", "Buy milk", now))
	notion := newMockNotion()
	store := newMockStore(testMapping())

	o := NewOrchestrator(apple, notion, store, testLogger)
	if _, err := o.SyncAll(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	stats, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("second pass stats = %+v, want all zero", stats)
	}
	if notion.count() != 1 || store.recordCount() != 1 {
		t.Error("second pass must not create duplicates")
	}
}

// ---------------------------------------------------------------------------
// Conflict: both sides changed, Notion newer → Notion wins
// ---------------------------------------------------------------------------

func TestSyncAll_BothChanged_NotionNewerWins(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)
	rec.MappingID = "map-1"

	apple := appleItem("rem-1", "Buy whole milk", syncedAt.Add(time.Hour))
	notion := notionItem("page-1", "Buy oat milk", syncedAt.Add(2*time.Hour))

	appleMock := newMockApple(apple)
	notionMock := newMockNotion(notion)
	store := newMockStore(testMapping())
	store.seed(rec)

	o := NewOrchestrator(appleMock, notionMock, store, testLogger)
	stats, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Updated != 1 {
		t.Errorf("Updated = %d, want 1", stats.Updated)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if got := appleMock.get("rem-1"); got.Title != "Buy oat milk" {
		t.Errorf("apple title = %q, want the Notion version", got.Title)
	}
}

// ---------------------------------------------------------------------------
// Mutual deletion: both sides gone → orphaned record cleaned up
// ---------------------------------------------------------------------------

func TestSyncAll_MutualDeletion_CleansRecord(t *testing.T) {
	rec := &state.Record{MappingID: "map-1", AppleID: "rem-1", NotionID: "page-1"}

	store := newMockStore(testMapping())
	store.seed(rec)

	o := NewOrchestrator(newMockApple(), newMockNotion(), store, testLogger)
	stats, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.recordCount() != 0 {
		t.Error("orphaned record should be removed")
	}
	if stats.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", stats.Deleted)
	}
}

// ---------------------------------------------------------------------------
// Partial failure: one failing action does not stop the rest of the pass
// ---------------------------------------------------------------------------

func TestSyncAll_PartialFailure_RestOfPassContinues(t *testing.T) {
	now := time.Now().UTC()
	var items []*model.Item
	for i := 1; i <= 5; i++ {
		items = append(items, appleItem(fmt.Sprintf("rem-%d", i), fmt.Sprintf("Task %d", i), now))
	}

	apple := newMockApple(items...)
	notion := newMockNotion()
	notion.failCreate = map[string]error{"Task 3": fmt.Errorf("rate limited")}
	store := newMockStore(testMapping())

	o := NewOrchestrator(apple, notion, store, testLogger)
	stats, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("action errors must not fail the pass: %v", err)
	}

	if stats.Created != 4 {
		t.Errorf("Created = %d, want 4", stats.Created)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}

	entry := store.lastHistory()
	if entry == nil {
		t.Fatal("no history entry written")
	}
	if len(entry.Errors) != 1 {
		t.Errorf("history errors = %d, want 1", len(entry.Errors))
	}
	if entry.Created != 4 {
		t.Errorf("history created = %d, want 4", entry.Created)
	}
}

// ---------------------------------------------------------------------------
// Mapping isolation: one failing mapping does not stop the others
// ---------------------------------------------------------------------------

type failingApple struct {
	*mockApple
	failList string
}

func (f *failingApple) ListItems(ctx context.Context, listID string) ([]*model.Item, error) {
	if listID == f.failList {
		return nil, fmt.Errorf("fetch %q: %w", listID, ErrSourceNotFound)
	}
	return f.mockApple.ListItems(ctx, listID)
}

func TestSyncAll_MappingErrorIsolated(t *testing.T) {
	now := time.Now().UTC()
	broken := &state.Mapping{ID: "map-broken", AppleListID: "Gone", NotionDatabaseID: "db-x", Enabled: true}
	working := testMapping()

	apple := &failingApple{
		mockApple: newMockApple(appleItem("rem-1", "Buy milk", now)),
		failList:  "Gone",
	}
	notion := newMockNotion()
	store := newMockStore(broken, working)

	o := NewOrchestrator(apple, notion, store, testLogger)
	stats, err := o.SyncAll(context.Background())

	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("pass error should wrap the mapping failure, got %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("Created = %d, want 1 from the working mapping", stats.Created)
	}
}

// ---------------------------------------------------------------------------
// Disabled mappings are skipped entirely
// ---------------------------------------------------------------------------

func TestSyncAll_DisabledMapping_Skipped(t *testing.T) {
	now := time.Now().UTC()
	m := testMapping()
	m.Enabled = false

	apple := newMockApple(appleItem("rem-1", "Buy milk", now))
	notion := newMockNotion()
	store := newMockStore(m)

	o := NewOrchestrator(apple, notion, store, testLogger)
	stats, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (Stats{}) || notion.count() != 0 {
		t.Error("disabled mapping must not be synced")
	}
}

// ---------------------------------------------------------------------------
// Re-entrancy: a trigger during a running pass fails fast, no queueing
// ---------------------------------------------------------------------------

func TestSyncAll_AlreadySyncing(t *testing.T) {
	now := time.Now().UTC()
	apple := newMockApple(appleItem("rem-1", "Buy milk", now))
	apple.blockList = make(chan struct{})
	store := newMockStore(testMapping())

	o := NewOrchestrator(apple, newMockNotion(), store, testLogger)

	done := make(chan error, 1)
	go func() {
		_, err := o.SyncAll(context.Background())
		done <- err
	}()

	// Wait for the first pass to take the flag.
	deadline := time.After(2 * time.Second)
	for {
		if syncing, _, _ := o.Status(); syncing {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first pass never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := o.SyncAll(context.Background()); !errors.Is(err, ErrAlreadySyncing) {
		t.Errorf("overlapping trigger error = %v, want ErrAlreadySyncing", err)
	}

	close(apple.blockList)
	if err := <-done; err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	// Flag is released; a fresh pass is accepted again.
	if _, err := o.SyncAll(context.Background()); err != nil {
		t.Errorf("pass after release failed: %v", err)
	}
}

// The flag is released even when the pass fails.
func TestSyncAll_FlagReleasedAfterError(t *testing.T) {
	apple := &failingApple{mockApple: newMockApple(), failList: "Shopping"}
	store := newMockStore(testMapping())

	o := NewOrchestrator(apple, newMockNotion(), store, testLogger)

	if _, err := o.SyncAll(context.Background()); err == nil {
		t.Fatal("expected pass error")
	}

	syncing, _, lastErr := o.Status()
	if syncing {
		t.Error("flag must be released after a failed pass")
	}
	if lastErr == nil {
		t.Error("Status should report the last pass error")
	}
}
