package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// statusNotStarted is the option written back for uncompleted items when the
// mapping uses a status property. It is Notion's default initial option;
// databases with renamed groups need the wizard re-run to pick bindings up.
const statusNotStarted = "Not started"

// encodeProperties builds the page property payload for a create or update.
// The title is always written; due date, priority, and completion are written
// only when the mapping configures the corresponding property. Encode emits
// exactly one shape per binding — decode below accepts more.
func encodeProperties(m *state.Mapping, item *model.Item) notionapi.Properties {
	props := notionapi.Properties{}

	titleName := m.Title.Name
	if titleName == "" {
		titleName = "Name"
	}
	props[titleName] = &notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: richText(item.Title),
	}

	if m.Due.Configured() {
		props[m.Due.Name] = &notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: encodeDue(item.DueDate, item.HasDueTime),
		}
	}

	if m.Priority.Configured() && item.Priority != model.PriorityNone {
		props[m.Priority.Name] = &notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: item.Priority.String()},
		}
	}

	if m.Status.Configured() {
		if m.StatusIsCheckbox {
			props[m.Status.Name] = &notionapi.CheckboxProperty{
				Type:     notionapi.PropertyTypeCheckbox,
				Checkbox: item.Completed,
			}
		} else {
			props[m.Status.Name] = &notionapi.StatusProperty{
				Type:   notionapi.PropertyTypeStatus,
				Status: notionapi.Option{Name: statusLabel(m, item.Completed)},
			}
		}
	}

	return props
}

// pageToItem converts a Notion page to a [model.Item] using the mapping's
// property bindings.
func pageToItem(page *notionapi.Page, m *state.Mapping) *model.Item {
	item := &model.Item{
		NotionID:   string(page.ID),
		ModifiedAt: page.LastEditedTime,
		ListID:     m.NotionDatabaseID,
	}

	if p := findProperty(page.Properties, m.Title); p != nil {
		item.Title = decodeText(p)
	}
	if p := findProperty(page.Properties, m.Due); p != nil {
		item.DueDate, item.HasDueTime = decodeDue(p)
	}
	if p := findProperty(page.Properties, m.Priority); p != nil {
		item.Priority = model.ParsePriority(decodeOptionName(p))
	}
	if p := findProperty(page.Properties, m.Status); p != nil {
		item.Completed = decodeCompleted(p, m)
	}

	return item
}

// findProperty looks a property up by the binding's name, falling back to a
// scan by property ID — names can be renamed in Notion without the binding
// noticing, IDs cannot.
func findProperty(props notionapi.Properties, b state.PropertyBinding) notionapi.Property {
	if !b.Configured() && b.Name == "" {
		return nil
	}
	if p, ok := props[b.Name]; ok {
		return p
	}
	for _, p := range props {
		if tp, ok := p.(interface{ GetID() string }); ok && b.ID != "" && tp.GetID() == b.ID {
			return p
		}
	}
	return nil
}

// decodeText extracts plain text from title or rich_text property shapes.
func decodeText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return flattenRichText(v.Title)
	case *notionapi.RichTextProperty:
		return flattenRichText(v.RichText)
	default:
		return ""
	}
}

// decodeDue reads a date property. The has-time flag is inferred: Notion
// date-only values parse to midnight UTC, so a non-midnight instant means
// the page carries an explicit time.
func decodeDue(p notionapi.Property) (*time.Time, bool) {
	dp, ok := p.(*notionapi.DateProperty)
	if !ok || dp.Date == nil || dp.Date.Start == nil {
		return nil, false
	}
	t := time.Time(*dp.Date.Start)
	hasTime := t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
	return &t, hasTime
}

// decodeOptionName reads the selected option's name from select or status
// property shapes.
func decodeOptionName(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	default:
		return ""
	}
}

// decodeCompleted reads completion from whichever representation the mapping
// uses. For status properties any configured completed label matches,
// case-insensitively; select properties are accepted as a looser shape of
// the same idea.
func decodeCompleted(p notionapi.Property, m *state.Mapping) bool {
	if cb, ok := p.(*notionapi.CheckboxProperty); ok {
		return cb.Checkbox
	}
	name := decodeOptionName(p)
	if name == "" {
		return false
	}
	for _, v := range m.StatusCompletedValues {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

// statusLabel picks the status option name to write for the given completion
// state.
func statusLabel(m *state.Mapping, completed bool) string {
	if completed {
		if len(m.StatusCompletedValues) > 0 {
			return m.StatusCompletedValues[0]
		}
		return "Done"
	}
	return statusNotStarted
}

// encodeDue builds the date payload. For all-day items the time portion is
// truncated; the API client serializes midnight instants as date-only
// strings, which keeps Notion rendering them without a time.
func encodeDue(due *time.Time, hasTime bool) *notionapi.DateObject {
	if due == nil {
		return nil
	}
	t := *due
	if !hasTime {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	d := notionapi.Date(t)
	return &notionapi.DateObject{Start: &d}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

func flattenRichText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}
