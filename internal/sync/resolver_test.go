package sync

import (
	"testing"
	"time"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

var syncedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func pairItem(title string, priority model.Priority, completed bool, modifiedAt time.Time) *model.Item {
	return &model.Item{
		Title:      title,
		Priority:   priority,
		Completed:  completed,
		ModifiedAt: modifiedAt,
	}
}

// linkedRecord builds a record as if base had been synced at syncedAt.
func linkedRecord(base *model.Item) *state.Record {
	return &state.Record{
		ID:             "rec-1",
		MappingID:      "map-1",
		AppleID:        "rem-1",
		NotionID:       "page-1",
		LastSyncedHash: base.ContentHash(),
		AppleModified:  syncedAt,
		NotionModified: syncedAt,
		LastSyncedAt:   syncedAt,
		Status:         state.StatusSynced,
	}
}

func TestResolve_EqualContent_NoChange(t *testing.T) {
	apple := pairItem("Buy milk", model.PriorityNone, false, syncedAt.Add(2*time.Hour))
	notion := pairItem("Buy milk", model.PriorityNone, false, syncedAt.Add(3*time.Hour))
	rec := linkedRecord(apple)

	// Timestamps moved but content agrees: nothing to do.
	if got := Resolve(apple, notion, rec); got != ResolutionNoChange {
		t.Errorf("Resolve = %v, want noChange", got)
	}
}

func TestResolve_OnlyAppleChanged_AppleWins(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)

	apple := pairItem("Buy whole milk", model.PriorityNone, false, syncedAt.Add(time.Hour))
	notion := pairItem("Buy milk", model.PriorityNone, false, syncedAt)

	if got := Resolve(apple, notion, rec); got != ResolutionUseApple {
		t.Errorf("Resolve = %v, want useApple", got)
	}
}

func TestResolve_OnlyNotionChanged_NotionWins(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)

	apple := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	notion := pairItem("Buy oat milk", model.PriorityNone, false, syncedAt.Add(time.Hour))

	if got := Resolve(apple, notion, rec); got != ResolutionUseNotion {
		t.Errorf("Resolve = %v, want useNotion", got)
	}
}

// The single-change rule holds even when the unchanged side carries a newer
// timestamp. Clock skew must not override a real content edit.
func TestResolve_OnlyAppleChanged_IgnoresNotionClock(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)

	apple := pairItem("Buy whole milk", model.PriorityNone, false, syncedAt.Add(time.Minute))
	notion := pairItem("Buy milk", model.PriorityNone, false, syncedAt) // not after rec.NotionModified

	if got := Resolve(apple, notion, rec); got != ResolutionUseApple {
		t.Errorf("Resolve = %v, want useApple", got)
	}
}

func TestResolve_BothChanged_LaterModificationWins(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)

	apple := pairItem("Buy whole milk", model.PriorityNone, false, syncedAt.Add(1*time.Hour))
	notion := pairItem("Buy oat milk", model.PriorityNone, false, syncedAt.Add(2*time.Hour))

	if got := Resolve(apple, notion, rec); got != ResolutionUseNotion {
		t.Errorf("notion newer: Resolve = %v, want useNotion", got)
	}

	apple.ModifiedAt = syncedAt.Add(3 * time.Hour)
	if got := Resolve(apple, notion, rec); got != ResolutionUseApple {
		t.Errorf("apple newer: Resolve = %v, want useApple", got)
	}
}

func TestResolve_BothChanged_TieFavoursApple(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)

	at := syncedAt.Add(time.Hour)
	apple := pairItem("Buy whole milk", model.PriorityNone, false, at)
	notion := pairItem("Buy oat milk", model.PriorityNone, false, at)

	if got := Resolve(apple, notion, rec); got != ResolutionUseApple {
		t.Errorf("Resolve = %v, want useApple on tie", got)
	}
}

// Every combination of changed flags yields a defined outcome; Resolve never
// panics or returns an out-of-range value.
func TestResolve_Total(t *testing.T) {
	base := pairItem("Task", model.PriorityMedium, false, syncedAt)
	changedA := pairItem("Task A", model.PriorityMedium, false, syncedAt.Add(time.Hour))
	changedN := pairItem("Task N", model.PriorityMedium, false, syncedAt.Add(time.Hour))
	rec := linkedRecord(base)

	for _, apple := range []*model.Item{base, changedA} {
		for _, notion := range []*model.Item{base, changedN} {
			got := Resolve(apple, notion, rec)
			if got != ResolutionNoChange && got != ResolutionUseApple && got != ResolutionUseNotion {
				t.Errorf("Resolve(%q, %q) = %v, out of range", apple.Title, notion.Title, got)
			}
		}
	}
}

func TestIsConflict(t *testing.T) {
	base := pairItem("Buy milk", model.PriorityNone, false, syncedAt)
	rec := linkedRecord(base)

	oneSide := pairItem("Buy whole milk", model.PriorityNone, false, syncedAt.Add(time.Hour))
	if isConflict(oneSide, base, rec) {
		t.Error("single-side change reported as conflict")
	}

	both := pairItem("Buy oat milk", model.PriorityNone, false, syncedAt.Add(time.Hour))
	if !isConflict(oneSide, both, rec) {
		t.Error("both-side change not reported as conflict")
	}
}
