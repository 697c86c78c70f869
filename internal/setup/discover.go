package setup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ekreminders "github.com/BRO3886/go-eventkit/reminders"
	"github.com/jomei/notionapi"
)

// NotionDatabase represents a discovered Notion database.
type NotionDatabase struct {
	ID    string
	Title string
}

// String returns a human-readable representation for selection prompts.
func (d NotionDatabase) String() string {
	if d.Title != "" {
		return fmt.Sprintf("%s (%s)", d.Title, d.ID)
	}
	return d.ID
}

// PropRef names one database property, paired with its stable property id.
type PropRef struct {
	Name string
	ID   string
}

// StatusPropRef describes a property usable for completion tracking: either a
// status property with its completed option names, or a plain checkbox.
type StatusPropRef struct {
	PropRef
	IsCheckbox bool

	// CompletedValues holds the option names of the status property's
	// "Complete" group. Empty for checkboxes.
	CompletedValues []string
}

// DatabaseSchema is the sync-relevant slice of a database's property
// configuration, grouped by the bindings the engine supports.
type DatabaseSchema struct {
	Title       PropRef
	DateProps   []PropRef
	SelectProps []PropRef
	StatusProps []StatusPropRef
}

// RemindersList represents a discovered Apple Reminders list.
type RemindersList struct {
	Title string
	Count int
}

// ValidateToken checks that the integration token is accepted by the Notion
// API. A minimal search request is the cheapest authenticated call.
func ValidateToken(ctx context.Context, client *notionapi.Client) error {
	_, err := client.Search.Do(ctx, &notionapi.SearchRequest{
		PageSize: 1,
	})
	if err != nil {
		return fmt.Errorf("notion API rejected the token: %w", err)
	}
	return nil
}

// DiscoverDatabases returns all databases shared with the integration,
// via the search API (Notion has no dedicated list-databases endpoint).
func DiscoverDatabases(ctx context.Context, client *notionapi.Client) ([]NotionDatabase, error) {
	var dbs []NotionDatabase
	var cursor notionapi.Cursor

	for {
		resp, err := client.Search.Do(ctx, &notionapi.SearchRequest{
			Filter: notionapi.SearchFilter{
				Value:    "database",
				Property: "object",
			},
			StartCursor: cursor,
			PageSize:    100,
		})
		if err != nil {
			return nil, fmt.Errorf("searching for databases: %w", err)
		}

		for _, obj := range resp.Results {
			db, ok := obj.(*notionapi.Database)
			if !ok {
				continue
			}
			dbs = append(dbs, NotionDatabase{
				ID:    string(db.ID),
				Title: flattenTitle(db.Title),
			})
		}

		if !resp.HasMore {
			return dbs, nil
		}
		cursor = resp.NextCursor
	}
}

// InspectDatabase fetches a database's schema and extracts the properties the
// sync engine can bind to.
func InspectDatabase(ctx context.Context, client *notionapi.Client, databaseID string) (*DatabaseSchema, error) {
	db, err := client.Database.Get(ctx, notionapi.DatabaseID(databaseID))
	if err != nil {
		return nil, fmt.Errorf("fetching database %q: %w", databaseID, err)
	}

	schema := &DatabaseSchema{}
	for name, cfg := range db.Properties {
		switch c := cfg.(type) {
		case *notionapi.TitlePropertyConfig:
			schema.Title = PropRef{Name: name, ID: string(c.ID)}
		case *notionapi.DatePropertyConfig:
			schema.DateProps = append(schema.DateProps, PropRef{Name: name, ID: string(c.ID)})
		case *notionapi.SelectPropertyConfig:
			schema.SelectProps = append(schema.SelectProps, PropRef{Name: name, ID: string(c.ID)})
		case *notionapi.StatusPropertyConfig:
			schema.StatusProps = append(schema.StatusProps, StatusPropRef{
				PropRef:         PropRef{Name: name, ID: string(c.ID)},
				CompletedValues: completedOptionNames(c),
			})
		case *notionapi.CheckboxPropertyConfig:
			schema.StatusProps = append(schema.StatusProps, StatusPropRef{
				PropRef:    PropRef{Name: name, ID: string(c.ID)},
				IsCheckbox: true,
			})
		}
	}

	if schema.Title.Name == "" {
		return nil, fmt.Errorf("database %q has no title property", databaseID)
	}
	return schema, nil
}

// completedOptionNames resolves the option names in the status property's
// "Complete" group. Notion always creates this group; its options are what
// the database UI treats as done.
func completedOptionNames(c *notionapi.StatusPropertyConfig) []string {
	optionName := make(map[string]string, len(c.Status.Options))
	for _, opt := range c.Status.Options {
		optionName[string(opt.ID)] = opt.Name
	}

	var names []string
	for _, group := range c.Status.Groups {
		if !strings.EqualFold(group.Name, "Complete") {
			continue
		}
		for _, id := range group.OptionIDs {
			if n, ok := optionName[string(id)]; ok {
				names = append(names, n)
			}
		}
	}
	return names
}

// DiscoverRemindersLists returns all Apple Reminders lists available on this
// Mac. This triggers the macOS TCC permissions prompt on first use.
func DiscoverRemindersLists(logger *slog.Logger) ([]RemindersList, error) {
	client, err := ekreminders.New()
	if err != nil {
		return nil, fmt.Errorf("initialising Reminders client: %w", err)
	}

	lists, err := client.Lists()
	if err != nil {
		return nil, fmt.Errorf("fetching Reminders lists: %w", err)
	}

	logger.Debug("discovered Reminders lists", "count", len(lists))

	var result []RemindersList
	for _, l := range lists {
		result = append(result, RemindersList{
			Title: l.Title,
			Count: l.Count,
		})
	}
	return result, nil
}

// flattenTitle joins a rich text title into plain text.
func flattenTitle(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return strings.TrimSpace(b.String())
}
