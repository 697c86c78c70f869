package model

import (
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// NormalizePriority
// ---------------------------------------------------------------------------

func TestNormalizePriority(t *testing.T) {
	tests := []struct {
		raw  int
		want Priority
	}{
		{0, PriorityNone},
		{1, PriorityHigh},
		{2, PriorityHigh},
		{3, PriorityHigh},
		{4, PriorityHigh},
		{5, PriorityMedium},
		{6, PriorityLow},
		{7, PriorityLow},
		{8, PriorityLow},
		{9, PriorityLow},
		{-1, PriorityNone},
		{10, PriorityNone},
		{100, PriorityNone},
	}
	for _, tt := range tests {
		if got := NormalizePriority(tt.raw); got != tt.want {
			t.Errorf("NormalizePriority(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Priority.String / ParsePriority
// ---------------------------------------------------------------------------

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityNone, "None"},
		{PriorityHigh, "High"},
		{PriorityMedium, "Medium"},
		{PriorityLow, "Low"},
		{Priority(42), "None"}, // unknown value
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		label string
		want  Priority
	}{
		{"High", PriorityHigh},
		{"high", PriorityHigh},
		{" Medium ", PriorityMedium},
		{"LOW", PriorityLow},
		{"", PriorityNone},
		{"Urgent", PriorityNone},
	}
	for _, tt := range tests {
		if got := ParsePriority(tt.label); got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestPriorityLabelRoundTrip(t *testing.T) {
	for _, p := range []Priority{PriorityNone, PriorityHigh, PriorityMedium, PriorityLow} {
		if got := ParsePriority(p.String()); got != p {
			t.Errorf("round-trip: ParsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}
}

// ---------------------------------------------------------------------------
// ContentHash
// ---------------------------------------------------------------------------

func TestContentHash_Deterministic(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &Item{
		Title:      "Buy milk",
		Notes:      "Whole milk preferred",
		DueDate:    &due,
		HasDueTime: true,
		Priority:   PriorityHigh,
		Completed:  false,
	}
	h1 := item.ContentHash()
	h2 := item.ContentHash()
	if h1 != h2 {
		t.Error("ContentHash not deterministic")
	}
}

func TestContentHash_DiffersOnTitleChange(t *testing.T) {
	item := &Item{Title: "Buy milk", Priority: PriorityNone}
	h1 := item.ContentHash()
	item.Title = "Buy bread"
	h2 := item.ContentHash()
	if h1 == h2 {
		t.Error("ContentHash should differ when title changes")
	}
}

func TestContentHash_DiffersOnDueDateChange(t *testing.T) {
	due := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &Item{Title: "Task", DueDate: &due}
	h1 := item.ContentHash()
	later := due.Add(24 * time.Hour)
	item.DueDate = &later
	h2 := item.ContentHash()
	if h1 == h2 {
		t.Error("ContentHash should differ when due date changes")
	}
}

func TestContentHash_DiffersOnHasDueTimeChange(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	item := &Item{Title: "Task", DueDate: &due, HasDueTime: false}
	h1 := item.ContentHash()
	item.HasDueTime = true
	h2 := item.ContentHash()
	if h1 == h2 {
		t.Error("ContentHash should differ between all-day and timed due dates")
	}
}

func TestContentHash_DiffersOnPriorityChange(t *testing.T) {
	item := &Item{Title: "Task", Priority: PriorityHigh}
	h1 := item.ContentHash()
	item.Priority = PriorityLow
	h2 := item.ContentHash()
	if h1 == h2 {
		t.Error("ContentHash should differ when priority changes")
	}
}

func TestContentHash_DiffersOnCompletedChange(t *testing.T) {
	item := &Item{Title: "Task", Completed: false}
	h1 := item.ContentHash()
	item.Completed = true
	h2 := item.ContentHash()
	if h1 == h2 {
		t.Error("ContentHash should differ when completed changes")
	}
}

func TestContentHash_IgnoresModifiedAt(t *testing.T) {
	item := &Item{Title: "Task", ModifiedAt: time.Now()}
	h1 := item.ContentHash()
	item.ModifiedAt = item.ModifiedAt.Add(time.Hour)
	h2 := item.ContentHash()
	if h1 != h2 {
		t.Error("ContentHash should not change when only ModifiedAt changes")
	}
}

// Notes carry the Notion backreference on the Apple side; including them in
// the hash would make every backreference write look like a content edit.
func TestContentHash_IgnoresNotes(t *testing.T) {
	item := &Item{Title: "Task", Notes: "original"}
	h1 := item.ContentHash()
	item.Notes = AppendBackref(item.Notes, BackrefToken("59833787-e2fa-42cf-9146-8c86ba32e0fa"))
	h2 := item.ContentHash()
	if h1 != h2 {
		t.Error("ContentHash should not change when only notes change")
	}
}

func TestContentHash_NilDueDate(t *testing.T) {
	item := &Item{Title: "No due", DueDate: nil}
	h := item.ContentHash()
	if h == "" {
		t.Error("ContentHash should be non-empty even with nil DueDate")
	}
}

// ---------------------------------------------------------------------------
// Backreference tokens
// ---------------------------------------------------------------------------

func TestBackrefToken_StripsDashes(t *testing.T) {
	got := BackrefToken("59833787-e2fa-42cf-9146-8c86ba32e0fa")
	want := "↗ notion.so/59833787e2fa42cf91468c86ba32e0fa"
	if got != want {
		t.Errorf("BackrefToken = %q, want %q", got, want)
	}
}

func TestAppendBackref(t *testing.T) {
	token := BackrefToken("59833787-e2fa-42cf-9146-8c86ba32e0fa")

	if got := AppendBackref("", token); got != token {
		t.Errorf("empty notes: got %q, want just the token", got)
	}

	notes := AppendBackref("Whole milk preferred", token)
	if !strings.HasPrefix(notes, "Whole milk preferred\n") {
		t.Errorf("existing notes must be preserved, got %q", notes)
	}
	if !HasBackref(notes, token) {
		t.Error("HasBackref should find the appended token")
	}
}

func TestHasBackref(t *testing.T) {
	token := BackrefToken("abc-def")
	if HasBackref("plain notes", token) {
		t.Error("HasBackref on unrelated notes should be false")
	}
	if !HasBackref("before\n"+token+"\nafter", token) {
		t.Error("HasBackref should find the token mid-notes")
	}
}
