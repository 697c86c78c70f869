// Package sync implements the bidirectional reconciliation engine for
// NotionRelay. It compares Apple Reminders items and Notion database pages
// against the persisted sync records, detects creates, updates, deletes,
// and conflicts, and dispatches mutations to the appropriate adapter.
//
// The package contains four components:
//
//   - Resolve decides which side wins for one already-linked pair.
//   - buildPlan computes the full ordered action list for one mapping.
//   - [Executor] applies a single planned action and maintains the record.
//   - [Orchestrator] loops over all enabled mappings, serializes passes,
//     aggregates statistics, and writes history.
package sync

import (
	"context"
	"time"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// TaskSource provides read/write access to Apple Reminders items.
// Implemented by [reminders.Adapter].
type TaskSource interface {
	ListItems(ctx context.Context, listID string) ([]*model.Item, error)
	Create(ctx context.Context, item *model.Item) (appleID string, err error)
	Update(ctx context.Context, appleID string, item *model.Item) error
	Delete(ctx context.Context, appleID string) error
	// AppendBackreference adds the deep-link token to the reminder's notes.
	// Returns false without writing when the token is already present.
	AppendBackreference(ctx context.Context, appleID, token string) (bool, error)
}

// RecordSource provides read/write access to Notion database pages.
// Implemented by [notion.Adapter]. The mapping supplies the property
// bindings used to encode and decode item fields.
type RecordSource interface {
	ListRecords(ctx context.Context, m *state.Mapping) ([]*model.Item, error)
	CreateRecord(ctx context.Context, m *state.Mapping, item *model.Item) (notionID string, err error)
	UpdateRecord(ctx context.Context, m *state.Mapping, notionID string, item *model.Item) error
	ArchiveRecord(ctx context.Context, notionID string) error
}

// StateStore provides access to the sync state database.
// Implemented by [state.Store].
type StateStore interface {
	ListMappings(ctx context.Context) ([]*state.Mapping, error)
	TouchMapping(ctx context.Context, id string, at time.Time) error

	RecordsForMapping(ctx context.Context, mappingID string) ([]*state.Record, error)
	GetRecordByAppleID(ctx context.Context, mappingID, appleID string) (*state.Record, error)
	GetRecordByNotionID(ctx context.Context, mappingID, notionID string) (*state.Record, error)
	UpsertRecord(ctx context.Context, r *state.Record) error
	DeleteRecord(ctx context.Context, id string) error

	AppendHistory(ctx context.Context, e *state.HistoryEntry) error
}
