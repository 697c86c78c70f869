package reminders

import (
	ekreminders "github.com/BRO3886/go-eventkit/reminders"

	"notionrelay/internal/model"
)

// reminderToItem converts an EventKit Reminder to a normalised model.Item.
// listID is passed explicitly because the go-eventkit Reminder.List field
// contains the list name as reported by EventKit, which may differ from the
// config mapping key in edge cases (e.g. leading/trailing whitespace).
func reminderToItem(r *ekreminders.Reminder, listID string) *model.Item {
	item := &model.Item{
		AppleID:   r.ID,
		Title:     r.Title,
		Notes:     r.Notes,
		Priority:  model.NormalizePriority(int(r.Priority)),
		Completed: r.Completed,
		ListID:    listID,
	}

	if r.DueDate != nil {
		t := *r.DueDate
		item.DueDate = &t
		// EventKit does not expose the all-day flag; a due date at exactly
		// midnight is treated as date-only, matching how all-day reminders
		// come back from the API.
		item.HasDueTime = t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0
	}

	if r.ModifiedAt != nil {
		item.ModifiedAt = *r.ModifiedAt
	}

	return item
}

// itemToCreateInput builds an EventKit CreateReminderInput from a model.Item.
func itemToCreateInput(item *model.Item) ekreminders.CreateReminderInput {
	input := ekreminders.CreateReminderInput{
		Title:    item.Title,
		Notes:    item.Notes,
		ListName: item.ListID,
		Priority: priorityToEventKit(item.Priority),
	}

	if item.DueDate != nil {
		t := *item.DueDate
		input.DueDate = &t
	}

	return input
}

// itemToUpdateInput builds an EventKit UpdateReminderInput from a model.Item.
// Notes are deliberately left out: the reminder's notes field carries the
// Notion backreference and is never part of the synced content, so an update
// from the remote side must not clobber it.
func itemToUpdateInput(item *model.Item) ekreminders.UpdateReminderInput {
	title := item.Title
	prio := priorityToEventKit(item.Priority)

	input := ekreminders.UpdateReminderInput{
		Title:    &title,
		Priority: &prio,
	}

	if item.DueDate != nil {
		t := *item.DueDate
		input.DueDate = &t
	} else {
		input.ClearDueDate = true
	}

	// Completed is handled separately in Adapter.Update via the dedicated
	// CompleteReminder / UncompleteReminder APIs, so we intentionally leave
	// input.Completed as nil here.

	return input
}

// priorityToEventKit maps a model.Priority back to the EventKit constant.
// The mapping is lossless because model.Priority values are a subset of
// EventKit priorities (0, 1, 5, 9).
func priorityToEventKit(p model.Priority) ekreminders.Priority {
	switch p {
	case model.PriorityHigh:
		return ekreminders.PriorityHigh
	case model.PriorityMedium:
		return ekreminders.PriorityMedium
	case model.PriorityLow:
		return ekreminders.PriorityLow
	default:
		return ekreminders.PriorityNone
	}
}

// DiscoverLists returns the titles of all reminder lists on this machine.
// Used by the setup wizard to offer a selection.
func (a *Adapter) DiscoverLists() ([]string, error) {
	lists, err := a.client.Lists()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lists))
	for _, l := range lists {
		names = append(names, l.Title)
	}
	return names, nil
}
