package sync

import (
	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// actionKind describes a single mutation the planner wants to perform.
type actionKind int

const (
	actionSkip             actionKind = iota
	actionCreateInNotion              // item exists in Reminders only → push to Notion
	actionCreateInApple               // item exists in Notion only → push to Reminders
	actionUpdateNotion                // Apple is the winner → push to Notion
	actionUpdateApple                 // Notion is the winner → push to Reminders
	actionDeleteFromApple             // page gone from Notion → delete the reminder
	actionDeleteFromNotion            // reminder gone → archive the page
	actionCleanupRecord               // both sides gone → drop the orphaned record
)

func (k actionKind) String() string {
	switch k {
	case actionCreateInNotion:
		return "createInNotion"
	case actionCreateInApple:
		return "createInApple"
	case actionUpdateNotion:
		return "updateNotion"
	case actionUpdateApple:
		return "updateApple"
	case actionDeleteFromApple:
		return "deleteFromApple"
	case actionDeleteFromNotion:
		return "deleteFromNotion"
	case actionCleanupRecord:
		return "cleanupRecord"
	default:
		return "skip"
	}
}

// plannedAction is one entry of a mapping's reconciliation plan. apple and
// notion are the live items on each side (either may be nil); record is the
// prior sync record, nil for first-sync items the planner matched by title.
type plannedAction struct {
	kind     actionKind
	apple    *model.Item
	notion   *model.Item
	record   *state.Record
	conflict bool // both sides changed; Resolve settled it by timestamp
}

// title returns a display title for logs and error strings.
func (a plannedAction) title() string {
	switch {
	case a.apple != nil:
		return a.apple.Title
	case a.notion != nil:
		return a.notion.Title
	case a.record != nil:
		return a.record.ID
	default:
		return ""
	}
}

// buildPlan joins the Apple items, Notion items, and prior sync records of
// one mapping into the full ordered action list for a pass. Every input item
// is covered by exactly one action. The plan itself performs no I/O.
func buildPlan(appleItems, notionItems []*model.Item, records []*state.Record) []plannedAction {
	// Lookup maps by id. Items without an id cannot be linked to a record
	// and fall through to the first-sync steps below.
	appleByID := make(map[string]*model.Item, len(appleItems))
	for _, it := range appleItems {
		if it.AppleID != "" {
			appleByID[it.AppleID] = it
		}
	}
	notionByID := make(map[string]*model.Item, len(notionItems))
	for _, it := range notionItems {
		if it.NotionID != "" {
			notionByID[it.NotionID] = it
		}
	}

	processedApple := make(map[string]bool, len(records))
	processedNotion := make(map[string]bool, len(records))

	var plan []plannedAction

	// 1. Known pairs: every prior record, regardless of what remains alive.
	for _, rec := range records {
		apple := appleByID[rec.AppleID]
		notion := notionByID[rec.NotionID]

		if rec.AppleID != "" {
			processedApple[rec.AppleID] = true
		}
		if rec.NotionID != "" {
			processedNotion[rec.NotionID] = true
		}

		switch {
		case apple != nil && notion != nil:
			var kind actionKind
			switch Resolve(apple, notion, rec) {
			case ResolutionUseApple:
				kind = actionUpdateNotion
			case ResolutionUseNotion:
				kind = actionUpdateApple
			default:
				kind = actionSkip
			}
			plan = append(plan, plannedAction{
				kind:     kind,
				apple:    apple,
				notion:   notion,
				record:   rec,
				conflict: kind != actionSkip && isConflict(apple, notion, rec),
			})

		case apple != nil:
			// Page deleted in Notion → propagate to Reminders.
			plan = append(plan, plannedAction{kind: actionDeleteFromApple, apple: apple, record: rec})

		case notion != nil:
			// Reminder deleted → propagate to Notion.
			plan = append(plan, plannedAction{kind: actionDeleteFromNotion, notion: notion, record: rec})

		default:
			plan = append(plan, plannedAction{kind: actionCleanupRecord, record: rec})
		}
	}

	// 2. First-sync Apple items: try an exact-title match against a Notion
	// item that is not yet paired — a heuristic for the bulk-import case
	// where both sides already hold the same tasks. With duplicate titles
	// the first unprocessed match wins; iteration order keeps that
	// deterministic.
	for _, apple := range appleItems {
		if processedApple[apple.AppleID] {
			continue
		}
		processedApple[apple.AppleID] = true

		var match *model.Item
		for _, notion := range notionItems {
			if processedNotion[notion.NotionID] {
				continue
			}
			if notion.Title == apple.Title {
				match = notion
				break
			}
		}

		if match == nil {
			plan = append(plan, plannedAction{kind: actionCreateInNotion, apple: apple})
			continue
		}

		processedNotion[match.NotionID] = true

		// Unlinked pair: the later modification is authoritative; the
		// executor creates the sync record as part of the update.
		kind := actionUpdateNotion
		if apple.ModifiedAt.Before(match.ModifiedAt) {
			kind = actionUpdateApple
		}
		plan = append(plan, plannedAction{kind: kind, apple: apple, notion: match})
	}

	// 3. Remaining Notion items are new to us.
	for _, notion := range notionItems {
		if processedNotion[notion.NotionID] {
			continue
		}
		plan = append(plan, plannedAction{kind: actionCreateInApple, notion: notion})
	}

	return plan
}
