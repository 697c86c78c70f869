package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jomei/notionapi"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
	"notionrelay/internal/sync"
)

// PageAPI is the subset of [notionapi.PageService] used by the adapter.
// Defining it as an interface allows mock injection in tests.
type PageAPI interface {
	Create(ctx context.Context, request *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, request *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// DatabaseAPI is the subset of [notionapi.DatabaseService] used by the
// adapter.
type DatabaseAPI interface {
	Query(ctx context.Context, id notionapi.DatabaseID, request *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	Get(ctx context.Context, id notionapi.DatabaseID) (*notionapi.Database, error)
}

// Adapter provides sync-engine–oriented operations on Notion databases via
// the official REST API. Create one with [NewAdapter] or
// [NewAdapterWithClient].
type Adapter struct {
	pages PageAPI
	dbs   DatabaseAPI
	log   *slog.Logger
}

// NewAdapter creates an Adapter backed by a real Notion API client
// authenticated with the given integration token.
func NewAdapter(token string, logger *slog.Logger) *Adapter {
	client := notionapi.NewClient(notionapi.Token(token))
	return &Adapter{pages: client.Page, dbs: client.Database, log: logger}
}

// NewAdapterWithClient creates an Adapter with caller-supplied API services.
// Intended for testing with mocks.
func NewAdapterWithClient(pages PageAPI, dbs DatabaseAPI, logger *slog.Logger) *Adapter {
	return &Adapter{pages: pages, dbs: dbs, log: logger}
}

// queryPageSize is the Notion API maximum per query request.
const queryPageSize = 100

// Ping verifies the token and database access by retrieving the database
// metadata for the given mapping.
func (a *Adapter) Ping(ctx context.Context, databaseID string) error {
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := a.dbs.Get(ctx, notionapi.DatabaseID(databaseID))
		return callErr
	})
	if err != nil {
		return fmt.Errorf("pinging database %s: %w", databaseID, classify(err))
	}
	return nil
}

// ListRecords fetches all pages of the mapping's database, following
// pagination, converted to [model.Item]. Archived pages are not returned by
// database queries, so deletion on the Notion side shows up as absence here.
func (a *Adapter) ListRecords(ctx context.Context, m *state.Mapping) ([]*model.Item, error) {
	var items []*model.Item
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			StartCursor: cursor,
			PageSize:    queryPageSize,
		}

		var resp *notionapi.DatabaseQueryResponse
		err := Retry(ctx, defaultMaxAttempts, func() error {
			var callErr error
			resp, callErr = a.dbs.Query(ctx, notionapi.DatabaseID(m.NotionDatabaseID), req)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("querying database %s: %w", m.NotionDatabaseID, classify(err))
		}

		for i := range resp.Results {
			items = append(items, pageToItem(&resp.Results[i], m))
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	a.log.Debug("fetched Notion pages", "database", m.NotionDatabaseID, "count", len(items))
	return items, nil
}

// CreateRecord creates a new page in the mapping's database from the item
// and returns the new page ID.
func (a *Adapter) CreateRecord(ctx context.Context, m *state.Mapping, item *model.Item) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(m.NotionDatabaseID),
		},
		Properties: encodeProperties(m, item),
	}

	var page *notionapi.Page
	err := Retry(ctx, defaultMaxAttempts, func() error {
		var callErr error
		page, callErr = a.pages.Create(ctx, req)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("creating page %q: %w", item.Title, classify(err))
	}
	return string(page.ID), nil
}

// UpdateRecord overwrites the syncable properties of an existing page with
// the item's current field values.
func (a *Adapter) UpdateRecord(ctx context.Context, m *state.Mapping, notionID string, item *model.Item) error {
	req := &notionapi.PageUpdateRequest{Properties: encodeProperties(m, item)}
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := a.pages.Update(ctx, notionapi.PageID(notionID), req)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("updating page %s: %w", notionID, classify(err))
	}
	return nil
}

// ArchiveRecord archives a page. Notion has no hard delete over the API;
// archived pages disappear from database queries, which is all the engine
// needs.
func (a *Adapter) ArchiveRecord(ctx context.Context, notionID string) error {
	req := &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	}
	err := Retry(ctx, defaultMaxAttempts, func() error {
		_, callErr := a.pages.Update(ctx, notionapi.PageID(notionID), req)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("archiving page %s: %w", notionID, classify(err))
	}
	return nil
}

// classify maps Notion API errors onto the engine's taxonomy. A vanished
// database or page becomes [sync.ErrSourceNotFound]; everything else
// (rate limits included) passes through as a plain action error — the next
// scheduled pass is the retry policy.
func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == "object_not_found" {
		return fmt.Errorf("%w: %s", sync.ErrSourceNotFound, apiErr.Message)
	}
	return err
}
