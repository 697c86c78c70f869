package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"notionrelay/internal/model"
	"notionrelay/internal/state"
)

// --- Mock Reminders Source ---------------------------------------------------

type mockApple struct {
	mu     stdsync.Mutex
	items  []*model.Item
	nextID int

	failCreate map[string]error // title → error
	failUpdate map[string]error // appleID → error

	// blockList makes ListItems wait until the channel is closed. Used to
	// hold a pass open while re-entrancy is probed.
	blockList chan struct{}
}

func newMockApple(items ...*model.Item) *mockApple {
	m := &mockApple{nextID: len(items)}
	m.items = append(m.items, items...)
	return m
}

func (m *mockApple) ListItems(_ context.Context, listID string) ([]*model.Item, error) {
	if m.blockList != nil {
		<-m.blockList
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*model.Item
	for _, item := range m.items {
		if item.ListID == listID {
			cp := *item
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockApple) Create(_ context.Context, item *model.Item) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failCreate[item.Title]; err != nil {
		return "", err
	}

	m.nextID++
	id := fmt.Sprintf("rem-%d", m.nextID)
	cp := *item
	cp.AppleID = id
	m.items = append(m.items, &cp)
	return id, nil
}

func (m *mockApple) Update(_ context.Context, appleID string, item *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failUpdate[appleID]; err != nil {
		return err
	}

	existing := m.find(appleID)
	if existing == nil {
		return fmt.Errorf("reminder %q not found", appleID)
	}
	existing.Title = item.Title
	existing.DueDate = item.DueDate
	existing.HasDueTime = item.HasDueTime
	existing.Priority = item.Priority
	existing.Completed = item.Completed
	existing.ModifiedAt = item.ModifiedAt
	return nil
}

func (m *mockApple) Delete(_ context.Context, appleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, item := range m.items {
		if item.AppleID == appleID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("reminder %q not found", appleID)
}

func (m *mockApple) AppendBackreference(_ context.Context, appleID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.find(appleID)
	if existing == nil {
		return false, fmt.Errorf("reminder %q not found", appleID)
	}
	if model.HasBackref(existing.Notes, token) {
		return false, nil
	}
	existing.Notes = model.AppendBackref(existing.Notes, token)
	return true, nil
}

// find returns the live item, not a copy. Caller holds the lock.
func (m *mockApple) find(appleID string) *model.Item {
	for _, item := range m.items {
		if item.AppleID == appleID {
			return item
		}
	}
	return nil
}

func (m *mockApple) get(appleID string) *model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item := m.find(appleID); item != nil {
		cp := *item
		return &cp
	}
	return nil
}

func (m *mockApple) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// --- Mock Notion Source ------------------------------------------------------

type mockNotion struct {
	mu     stdsync.Mutex
	items  []*model.Item
	nextID int

	failCreate map[string]error // title → error
	failUpdate map[string]error // notionID → error
}

func newMockNotion(items ...*model.Item) *mockNotion {
	m := &mockNotion{nextID: 100}
	m.items = append(m.items, items...)
	return m
}

func (m *mockNotion) ListRecords(_ context.Context, _ *state.Mapping) ([]*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*model.Item, 0, len(m.items))
	for _, item := range m.items {
		cp := *item
		result = append(result, &cp)
	}
	return result, nil
}

func (m *mockNotion) CreateRecord(_ context.Context, _ *state.Mapping, item *model.Item) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failCreate[item.Title]; err != nil {
		return "", err
	}

	m.nextID++
	id := fmt.Sprintf("page-%d", m.nextID)
	cp := *item
	cp.NotionID = id
	m.items = append(m.items, &cp)
	return id, nil
}

func (m *mockNotion) UpdateRecord(_ context.Context, _ *state.Mapping, notionID string, item *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failUpdate[notionID]; err != nil {
		return err
	}

	for _, existing := range m.items {
		if existing.NotionID == notionID {
			existing.Title = item.Title
			existing.DueDate = item.DueDate
			existing.HasDueTime = item.HasDueTime
			existing.Priority = item.Priority
			existing.Completed = item.Completed
			return nil
		}
	}
	return fmt.Errorf("page %q not found", notionID)
}

func (m *mockNotion) ArchiveRecord(_ context.Context, notionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, item := range m.items {
		if item.NotionID == notionID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("page %q not found", notionID)
}

func (m *mockNotion) get(notionID string) *model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.NotionID == notionID {
			cp := *item
			return &cp
		}
	}
	return nil
}

func (m *mockNotion) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// --- Mock State Store --------------------------------------------------------

type mockStore struct {
	mu       stdsync.Mutex
	mappings []*state.Mapping
	records  map[string]*state.Record
	history  []*state.HistoryEntry
	nextID   int
}

func newMockStore(mappings ...*state.Mapping) *mockStore {
	return &mockStore{mappings: mappings, records: make(map[string]*state.Record)}
}

func (m *mockStore) seed(records ...*state.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			m.nextID++
			r.ID = fmt.Sprintf("rec-%d", m.nextID)
		}
		m.records[r.ID] = r
	}
}

func (m *mockStore) ListMappings(_ context.Context) ([]*state.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*state.Mapping, len(m.mappings))
	copy(result, m.mappings)
	return result, nil
}

func (m *mockStore) TouchMapping(_ context.Context, _ string, _ time.Time) error { return nil }

func (m *mockStore) RecordsForMapping(_ context.Context, mappingID string) ([]*state.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*state.Record
	for _, r := range m.records {
		if r.MappingID == mappingID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockStore) GetRecordByAppleID(_ context.Context, mappingID, appleID string) (*state.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.MappingID == mappingID && r.AppleID == appleID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) GetRecordByNotionID(_ context.Context, mappingID, notionID string) (*state.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.MappingID == mappingID && r.NotionID == notionID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) UpsertRecord(_ context.Context, r *state.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		// Mirror the partial unique indexes: match an existing record by
		// either side's id before inserting.
		for _, existing := range m.records {
			if existing.MappingID != r.MappingID {
				continue
			}
			if (r.AppleID != "" && existing.AppleID == r.AppleID) ||
				(r.NotionID != "" && existing.NotionID == r.NotionID) {
				r.ID = existing.ID
				break
			}
		}
	}
	if r.ID == "" {
		m.nextID++
		r.ID = fmt.Sprintf("rec-%d", m.nextID)
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockStore) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *mockStore) AppendHistory(_ context.Context, e *state.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.history = append(m.history, &cp)
	return nil
}

func (m *mockStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockStore) allRecords() []*state.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*state.Record
	for _, r := range m.records {
		cp := *r
		result = append(result, &cp)
	}
	return result
}

func (m *mockStore) lastHistory() *state.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return nil
	}
	return m.history[len(m.history)-1]
}
