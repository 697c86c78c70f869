package sync

import (
	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// Resolution is the outcome of conflict resolution for one linked pair.
type Resolution int

const (
	// ResolutionNoChange means the sides already agree; no I/O is needed.
	ResolutionNoChange Resolution = iota
	// ResolutionUseApple means the Apple side's version wins.
	ResolutionUseApple
	// ResolutionUseNotion means the Notion side's version wins.
	ResolutionUseNotion
)

func (r Resolution) String() string {
	switch r {
	case ResolutionUseApple:
		return "useApple"
	case ResolutionUseNotion:
		return "useNotion"
	default:
		return "noChange"
	}
}

// Resolve decides which side's version wins for one pair of items linked by
// a sync record. It is pure: no I/O, total over non-nil inputs.
//
// Change detection is deliberately asymmetric: the Apple side is compared by
// content hash against the record's last synced hash, the Notion side by its
// last-edited timestamp against the record's stored one. When exactly one
// side changed it wins unconditionally — no timestamp comparison, so clock
// skew on the unchanged side cannot manufacture a conflict. Only when both
// sides changed does last-writer-wins apply, with ties favouring Apple.
func Resolve(apple, notion *model.Item, rec *state.Record) Resolution {
	appleHash := apple.ContentHash()
	notionHash := notion.ContentHash()

	// Sides already agree, regardless of what the timestamps claim.
	if appleHash == notionHash {
		return ResolutionNoChange
	}

	appleChanged := appleHash != rec.LastSyncedHash
	notionChanged := notion.ModifiedAt.After(rec.NotionModified)

	switch {
	case appleChanged && !notionChanged:
		return ResolutionUseApple
	case !appleChanged && notionChanged:
		return ResolutionUseNotion
	case !appleChanged && !notionChanged:
		// Hashes differ but neither side registers as changed. Leave the
		// pair alone rather than guess; the next genuine edit resolves it.
		return ResolutionNoChange
	}

	// True conflict: both changed. Later modification wins, Apple on ties.
	if !apple.ModifiedAt.Before(notion.ModifiedAt) {
		return ResolutionUseApple
	}
	return ResolutionUseNotion
}

// isConflict reports whether both sides changed since the last sync — the
// case Resolve settles by timestamp. Used for the pass statistics.
func isConflict(apple, notion *model.Item, rec *state.Record) bool {
	appleHash := apple.ContentHash()
	notionHash := notion.ContentHash()
	if appleHash == notionHash {
		return false
	}
	return appleHash != rec.LastSyncedHash && notion.ModifiedAt.After(rec.NotionModified)
}
