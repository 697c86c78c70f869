package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"notionrelay/internal/state"
)

// ResolveBindings fills in the stable property ids for the mapping's
// configured property names by inspecting the live database schema, and
// verifies each bound property has the expected type. Called once at startup
// so later passes can match properties even after a rename in Notion.
func (a *Adapter) ResolveBindings(ctx context.Context, m *state.Mapping) error {
	db, err := a.dbs.Get(ctx, notionapi.DatabaseID(m.NotionDatabaseID))
	if err != nil {
		return fmt.Errorf("fetching schema of database %s: %w", m.NotionDatabaseID, classify(err))
	}

	if err := bindProperty(db, &m.Title, "title", notionapi.PropertyConfigTypeTitle); err != nil {
		return err
	}
	if err := bindProperty(db, &m.Due, "due date", notionapi.PropertyConfigTypeDate); err != nil {
		return err
	}
	if err := bindProperty(db, &m.Priority, "priority", notionapi.PropertyConfigTypeSelect); err != nil {
		return err
	}

	statusType := notionapi.PropertyConfigStatus
	if m.StatusIsCheckbox {
		statusType = notionapi.PropertyConfigTypeCheckbox
	}
	if err := bindProperty(db, &m.Status, "status", statusType); err != nil {
		return err
	}

	return nil
}

// bindProperty looks up the binding's property by name and stores its id.
// Unconfigured bindings (empty name) are left alone.
func bindProperty(db *notionapi.Database, b *state.PropertyBinding, field string, want notionapi.PropertyConfigType) error {
	if b.Name == "" {
		return nil
	}

	cfg, ok := db.Properties[b.Name]
	if !ok {
		return fmt.Errorf("database has no property %q for %s", b.Name, field)
	}
	if cfg.GetType() != want {
		return fmt.Errorf("property %q bound to %s has type %q, want %q", b.Name, field, cfg.GetType(), want)
	}

	b.ID = string(cfg.GetID())
	return nil
}
