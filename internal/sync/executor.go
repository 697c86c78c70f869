package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// statsDelta is one action's contribution to the pass statistics.
type statsDelta struct {
	created   int
	updated   int
	deleted   int
	conflicts int
}

// Executor applies planned actions against the two adapters and maintains
// the sync records. Exactly one action is applied per call; failures leave
// the prior record untouched so the next pass retries.
type Executor struct {
	apple  TaskSource
	notion RecordSource
	store  StateStore
	log    *slog.Logger
}

// NewExecutor creates an Executor wired to the given adapters and store.
func NewExecutor(apple TaskSource, notion RecordSource, store StateStore, logger *slog.Logger) *Executor {
	return &Executor{apple: apple, notion: notion, store: store, log: logger}
}

// execute applies a single planned action for the given mapping and returns
// the stats delta. Action errors are returned for the caller to record; they
// never abort the rest of the pass.
func (e *Executor) execute(ctx context.Context, act plannedAction, m *state.Mapping) (statsDelta, error) {
	now := time.Now().UTC()

	switch act.kind {
	case actionSkip:
		return statsDelta{}, nil

	case actionCreateInNotion:
		return e.createInNotion(ctx, act.apple, m, now)

	case actionCreateInApple:
		return e.createInApple(ctx, act.notion, m, now)

	case actionUpdateNotion:
		notionID, err := effectiveNotionID(act.notion, act.record, act.title())
		if err != nil {
			return statsDelta{}, err
		}
		if err := e.notion.UpdateRecord(ctx, m, notionID, act.apple); err != nil {
			return statsDelta{}, fmt.Errorf("updating %q in Notion: %w", act.apple.Title, err)
		}

		rec := act.record
		if rec == nil {
			// Unlinked first-sync match: the update doubles as the link.
			rec = &state.Record{MappingID: m.ID, AppleID: act.apple.AppleID, NotionID: notionID}
		}
		rec.LastSyncedHash = act.apple.ContentHash()
		rec.AppleModified = act.apple.ModifiedAt
		rec.NotionModified = now
		rec.LastSyncedAt = now
		rec.Status = state.StatusSynced
		if err := e.store.UpsertRecord(ctx, rec); err != nil {
			return statsDelta{}, err
		}
		return statsDelta{updated: 1, conflicts: boolToInt(act.conflict)}, nil

	case actionUpdateApple:
		appleID, err := effectiveAppleID(act.apple, act.record, act.title())
		if err != nil {
			return statsDelta{}, err
		}
		if err := e.apple.Update(ctx, appleID, act.notion); err != nil {
			return statsDelta{}, fmt.Errorf("updating %q in Reminders: %w", act.notion.Title, err)
		}

		rec := act.record
		if rec == nil {
			rec = &state.Record{MappingID: m.ID, AppleID: appleID, NotionID: act.notion.NotionID}
		}
		rec.LastSyncedHash = act.notion.ContentHash()
		rec.NotionModified = act.notion.ModifiedAt
		rec.AppleModified = now
		rec.LastSyncedAt = now
		rec.Status = state.StatusSynced
		if err := e.store.UpsertRecord(ctx, rec); err != nil {
			return statsDelta{}, err
		}
		return statsDelta{updated: 1, conflicts: boolToInt(act.conflict)}, nil

	case actionDeleteFromApple:
		appleID, err := effectiveAppleID(act.apple, act.record, act.title())
		if err != nil {
			return statsDelta{}, err
		}
		if err := e.apple.Delete(ctx, appleID); err != nil {
			return statsDelta{}, fmt.Errorf("deleting %q from Reminders: %w", act.title(), err)
		}
		if err := e.store.DeleteRecord(ctx, act.record.ID); err != nil {
			return statsDelta{}, err
		}
		return statsDelta{deleted: 1}, nil

	case actionDeleteFromNotion:
		notionID, err := effectiveNotionID(act.notion, act.record, act.title())
		if err != nil {
			return statsDelta{}, err
		}
		if err := e.notion.ArchiveRecord(ctx, notionID); err != nil {
			return statsDelta{}, fmt.Errorf("archiving %q in Notion: %w", act.title(), err)
		}
		if err := e.store.DeleteRecord(ctx, act.record.ID); err != nil {
			return statsDelta{}, err
		}
		return statsDelta{deleted: 1}, nil

	case actionCleanupRecord:
		if err := e.store.DeleteRecord(ctx, act.record.ID); err != nil {
			return statsDelta{}, err
		}
		e.log.Debug("cleaned up orphaned record", "record", act.record.ID)
		return statsDelta{deleted: 1}, nil
	}

	return statsDelta{}, nil
}

// createInNotion pushes a new reminder to Notion, persists the link, and
// appends the backreference into the reminder's notes.
func (e *Executor) createInNotion(ctx context.Context, item *model.Item, m *state.Mapping, now time.Time) (statsDelta, error) {
	notionID, err := e.notion.CreateRecord(ctx, m, item)
	if err != nil {
		return statsDelta{}, fmt.Errorf("creating %q in Notion: %w", item.Title, err)
	}

	rec := &state.Record{
		MappingID:      m.ID,
		AppleID:        item.AppleID,
		NotionID:       notionID,
		LastSyncedHash: item.ContentHash(),
		AppleModified:  item.ModifiedAt,
		NotionModified: now,
		LastSyncedAt:   now,
		Status:         state.StatusSynced,
	}
	if err := e.store.UpsertRecord(ctx, rec); err != nil {
		return statsDelta{}, err
	}

	e.appendBackref(ctx, item.AppleID, notionID)
	return statsDelta{created: 1}, nil
}

// createInApple pushes a new Notion page to Reminders, persists the link,
// and appends the backreference into the new reminder's notes.
func (e *Executor) createInApple(ctx context.Context, item *model.Item, m *state.Mapping, now time.Time) (statsDelta, error) {
	// Items fetched from Notion carry the database id in ListID; the target
	// reminders list comes from the mapping instead.
	target := *item
	target.ListID = m.AppleListID
	appleID, err := e.apple.Create(ctx, &target)
	if err != nil {
		return statsDelta{}, fmt.Errorf("creating %q in Reminders: %w", item.Title, err)
	}

	rec := &state.Record{
		MappingID:      m.ID,
		AppleID:        appleID,
		NotionID:       item.NotionID,
		LastSyncedHash: item.ContentHash(),
		NotionModified: item.ModifiedAt,
		AppleModified:  now,
		LastSyncedAt:   now,
		Status:         state.StatusSynced,
	}
	if err := e.store.UpsertRecord(ctx, rec); err != nil {
		return statsDelta{}, err
	}

	e.appendBackref(ctx, appleID, item.NotionID)
	return statsDelta{created: 1}, nil
}

// appendBackref writes the Notion deep link into the reminder's notes. The
// adapter skips the write when the token is already present. Failures are
// logged, not propagated: the link is already persisted in the record.
func (e *Executor) appendBackref(ctx context.Context, appleID, notionID string) {
	if appleID == "" || notionID == "" {
		return
	}
	token := model.BackrefToken(notionID)
	updated, err := e.apple.AppendBackreference(ctx, appleID, token)
	if err != nil {
		e.log.Warn("appending backreference failed", "apple_id", appleID, "error", err)
		return
	}
	if updated {
		e.log.Debug("backreference appended", "apple_id", appleID)
	}
}

// effectiveNotionID resolves the Notion page id an action targets: the live
// item's id when present, else the record's stored id. Replaces the scattered
// "item.id ?? record?.id" fallbacks with one helper every branch calls.
func effectiveNotionID(item *model.Item, rec *state.Record, title string) (string, error) {
	if item != nil && item.NotionID != "" {
		return item.NotionID, nil
	}
	if rec != nil && rec.NotionID != "" {
		return rec.NotionID, nil
	}
	return "", &MissingLinkageError{Side: "notion", Title: title}
}

// effectiveAppleID is the Apple-side counterpart of effectiveNotionID.
func effectiveAppleID(item *model.Item, rec *state.Record, title string) (string, error) {
	if item != nil && item.AppleID != "" {
		return item.AppleID, nil
	}
	if rec != nil && rec.AppleID != "" {
		return rec.AppleID, nil
	}
	return "", &MissingLinkageError{Side: "apple", Title: title}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
