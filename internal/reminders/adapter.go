// Package reminders wraps the go-eventkit reminders library and converts
// between native EventKit types and the shared [model.Item] representation.
//
// The adapter exposes only the operations needed by the sync engine. It
// accepts context.Context on every method for API consistency with the
// architectural invariants, even though the underlying cgo calls are
// non-cancellable (sub-200ms latency).
package reminders

import (
	"context"
	"fmt"
	"log/slog"

	ekreminders "github.com/BRO3886/go-eventkit/reminders"

	"notionrelay/internal/model"
	"notionrelay/internal/sync"
)

// EventKitClient is the subset of [ekreminders.Client] methods used by the
// adapter. Defining it as an interface allows mock injection in tests.
type EventKitClient interface {
	Lists() ([]ekreminders.List, error)
	Reminders(opts ...ekreminders.ListOption) ([]ekreminders.Reminder, error)
	CreateReminder(input ekreminders.CreateReminderInput) (*ekreminders.Reminder, error)
	UpdateReminder(id string, input ekreminders.UpdateReminderInput) (*ekreminders.Reminder, error)
	DeleteReminder(id string) error
	CompleteReminder(id string) (*ekreminders.Reminder, error)
	UncompleteReminder(id string) (*ekreminders.Reminder, error)
}

// Adapter provides sync-engine–oriented operations on Apple Reminders via
// EventKit. Create one with [NewAdapter] or [NewAdapterWithClient].
type Adapter struct {
	client EventKitClient
	log    *slog.Logger
}

// NewAdapter creates an Adapter backed by a real EventKit client.
// This triggers the macOS TCC permissions prompt on first use.
func NewAdapter(logger *slog.Logger) (*Adapter, error) {
	c, err := ekreminders.New()
	if err != nil {
		return nil, fmt.Errorf("initialising reminders client: %w", err)
	}
	return &Adapter{client: c, log: logger}, nil
}

// NewAdapterWithClient creates an Adapter with a caller-supplied client.
// Intended for testing with a mock [EventKitClient].
func NewAdapterWithClient(client EventKitClient, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, log: logger}
}

// ListItems returns all reminders (completed and incomplete) of the given
// list, converted to [model.Item]. A list that no longer exists surfaces as
// [sync.ErrSourceNotFound] so the orchestrator skips just this mapping.
func (a *Adapter) ListItems(ctx context.Context, listID string) ([]*model.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch reminders: %w", err)
	}

	lists, err := a.client.Lists()
	if err != nil {
		return nil, fmt.Errorf("fetching reminder lists: %w", err)
	}
	found := false
	for _, l := range lists {
		if l.Title == listID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: reminders list %q", sync.ErrSourceNotFound, listID)
	}

	rems, err := a.client.Reminders(ekreminders.WithList(listID))
	if err != nil {
		return nil, fmt.Errorf("fetching reminders for list %q: %w", listID, err)
	}

	items := make([]*model.Item, 0, len(rems))
	for i := range rems {
		items = append(items, reminderToItem(&rems[i], listID))
	}
	a.log.Debug("fetched reminders", "list", listID, "count", len(items))
	return items, nil
}

// Create creates a new reminder from a [model.Item] and returns the
// identifier assigned by EventKit. The item's ListID names the target list.
func (a *Adapter) Create(ctx context.Context, item *model.Item) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("create reminder: %w", err)
	}

	input := itemToCreateInput(item)
	a.log.Debug("creating reminder", "title", item.Title, "list", item.ListID)

	rem, err := a.client.CreateReminder(input)
	if err != nil {
		return "", fmt.Errorf("creating reminder %q in list %q: %w", item.Title, item.ListID, err)
	}

	// CreateReminder always creates an incomplete reminder; completion is a
	// separate call so EventKit sets the completion date.
	if item.Completed {
		if _, err := a.client.CompleteReminder(rem.ID); err != nil {
			return rem.ID, fmt.Errorf("marking new reminder %q as completed: %w", rem.ID, err)
		}
	}

	return rem.ID, nil
}

// Update applies the fields from a [model.Item] to an existing reminder.
func (a *Adapter) Update(ctx context.Context, appleID string, item *model.Item) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}

	a.log.Debug("updating reminder", "apple_id", appleID, "title", item.Title)

	input := itemToUpdateInput(item)
	updated, err := a.client.UpdateReminder(appleID, input)
	if err != nil {
		return fmt.Errorf("updating reminder %q: %w", appleID, err)
	}

	// Completion status changes go through the dedicated API so that the
	// completion date is set/cleared properly.
	if item.Completed && !updated.Completed {
		if _, err := a.client.CompleteReminder(appleID); err != nil {
			return fmt.Errorf("completing reminder %q: %w", appleID, err)
		}
	} else if !item.Completed && updated.Completed {
		if _, err := a.client.UncompleteReminder(appleID); err != nil {
			return fmt.Errorf("uncompleting reminder %q: %w", appleID, err)
		}
	}

	return nil
}

// Delete permanently removes a reminder.
func (a *Adapter) Delete(ctx context.Context, appleID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}

	a.log.Debug("deleting reminder", "apple_id", appleID)
	if err := a.client.DeleteReminder(appleID); err != nil {
		return fmt.Errorf("deleting reminder %q: %w", appleID, err)
	}
	return nil
}

// AppendBackreference adds the Notion deep link to the reminder's notes.
// Returns false without writing when the token is already present, so
// repeated passes never stack duplicate links. EventKit has no lookup by
// identifier, so the reminder is located by scanning all lists.
func (a *Adapter) AppendBackreference(ctx context.Context, appleID, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("append backreference: %w", err)
	}

	rems, err := a.client.Reminders()
	if err != nil {
		return false, fmt.Errorf("fetching reminders: %w", err)
	}

	var target *ekreminders.Reminder
	for i := range rems {
		if rems[i].ID == appleID {
			target = &rems[i]
			break
		}
	}
	if target == nil {
		return false, fmt.Errorf("reminder %q not found", appleID)
	}

	if model.HasBackref(target.Notes, token) {
		return false, nil
	}

	notes := model.AppendBackref(target.Notes, token)
	if _, err := a.client.UpdateReminder(appleID, ekreminders.UpdateReminderInput{Notes: &notes}); err != nil {
		return false, fmt.Errorf("writing backreference to %q: %w", appleID, err)
	}
	return true, nil
}
