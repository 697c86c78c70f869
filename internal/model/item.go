// Package model defines shared types used across the sync engine and adapters.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Priority represents the priority level of a task.
type Priority int

const (
	// PriorityNone indicates no priority is set.
	PriorityNone Priority = 0
	// PriorityHigh indicates high priority (EventKit 1–4).
	PriorityHigh Priority = 1
	// PriorityMedium indicates medium priority (EventKit 5).
	PriorityMedium Priority = 5
	// PriorityLow indicates low priority (EventKit 6–9).
	PriorityLow Priority = 9
)

// String returns the human-readable label for the priority. The labels
// double as the Notion select option names for priority bindings.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return "None"
	}
}

// NormalizePriority maps any EventKit priority integer (0–9) to one of the
// four canonical levels. Values outside 0–9 are treated as None.
func NormalizePriority(raw int) Priority {
	switch {
	case raw >= 1 && raw <= 4:
		return PriorityHigh
	case raw == 5:
		return PriorityMedium
	case raw >= 6 && raw <= 9:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// ParsePriority maps a Notion select option name back to a Priority.
// Unknown labels are treated as None.
func ParsePriority(label string) Priority {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	case "low":
		return PriorityLow
	default:
		return PriorityNone
	}
}

// Item is the normalised representation of a task shared between the
// Reminders adapter, Notion adapter, and sync engine. Once an item has been
// synced, at least one of AppleID/NotionID is set.
type Item struct {
	// AppleID is the EventKit calendarItemIdentifier, empty for items that
	// exist only in Notion.
	AppleID string

	// NotionID is the Notion page ID, empty for items that exist only in
	// Reminders.
	NotionID string

	// Title is the task's display title.
	Title string

	// Notes is the task's body text (Reminders "notes"). On the Apple side
	// it may contain an appended backreference to the Notion page; Notes is
	// therefore excluded from the content hash.
	Notes string

	// DueDate is when the task is due. Nil means no due date.
	DueDate *time.Time

	// HasDueTime distinguishes date+time due dates from all-day ones.
	// Affects the Notion date encoding (date-only vs RFC 3339).
	HasDueTime bool

	// Priority is the normalised priority level.
	Priority Priority

	// Completed is true when the task has been marked as done.
	Completed bool

	// ModifiedAt is the last modification time reported by the source
	// adapter. Used for last-write-wins conflict resolution.
	ModifiedAt time.Time

	// ListID is the Apple Reminders list (or Notion database, for remote
	// items) this item was fetched from.
	ListID string
}

// ContentHash returns a deterministic SHA-256 hex digest of the fields that
// matter for change detection: title, due date, the date-only/date-time flag,
// priority, and completed status. ModifiedAt is excluded because it changes
// on every save; Notes is excluded because it carries the backreference.
// Two items with equal hash are content-identical regardless of ModifiedAt.
func (i *Item) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(i.Title))
	h.Write([]byte("|"))
	if i.DueDate != nil {
		h.Write([]byte(i.DueDate.UTC().Format(time.RFC3339)))
	}
	h.Write([]byte("|"))
	_, _ = fmt.Fprintf(h, "%t", i.HasDueTime)
	h.Write([]byte("|"))
	_, _ = fmt.Fprintf(h, "%d", i.Priority)
	h.Write([]byte("|"))
	_, _ = fmt.Fprintf(h, "%t", i.Completed)
	return hex.EncodeToString(h.Sum(nil))
}

// --- Backreference tokens ----------------------------------------------------

// backrefPrefix marks the deep link appended to a reminder's notes.
const backrefPrefix = "↗ notion.so/"

// BackrefToken builds the short deep-link token for a Notion page, e.g.
// "↗ notion.so/59833787e2fa42cf91468c86ba32e0fa". Notion page URLs use the
// page ID with the dashes stripped.
func BackrefToken(notionID string) string {
	return backrefPrefix + strings.ReplaceAll(notionID, "-", "")
}

// HasBackref reports whether notes already contain the given token.
// Used to keep the notes append idempotent across passes.
func HasBackref(notes, token string) bool {
	return strings.Contains(notes, token)
}

// AppendBackref appends the token to notes on its own line. Callers must
// check [HasBackref] first.
func AppendBackref(notes, token string) string {
	if notes == "" {
		return token
	}
	return notes + "\n" + token
}
