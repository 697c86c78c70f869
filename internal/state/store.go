// Package state manages the SQLite database that tracks sync metadata between
// Apple Reminders and Notion: the configured list↔database mappings, the
// per-item sync records linking both sides, and the bounded per-mapping sync
// history.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_mappings (
    id                      TEXT    PRIMARY KEY,
    apple_list_id           TEXT    NOT NULL,
    notion_database_id      TEXT    NOT NULL,
    enabled                 INTEGER NOT NULL DEFAULT 1,
    title_prop_name         TEXT    NOT NULL DEFAULT '',
    title_prop_id           TEXT    NOT NULL DEFAULT '',
    due_prop_name           TEXT    NOT NULL DEFAULT '',
    due_prop_id             TEXT    NOT NULL DEFAULT '',
    priority_prop_name      TEXT    NOT NULL DEFAULT '',
    priority_prop_id        TEXT    NOT NULL DEFAULT '',
    status_prop_name        TEXT    NOT NULL DEFAULT '',
    status_prop_id          TEXT    NOT NULL DEFAULT '',
    status_is_checkbox      INTEGER NOT NULL DEFAULT 0,
    status_completed_values TEXT    NOT NULL DEFAULT '[]',
    last_sync_date          TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mapping_pair
    ON sync_mappings (apple_list_id, notion_database_id);

CREATE TABLE IF NOT EXISTS sync_records (
    id               TEXT PRIMARY KEY,
    mapping_id       TEXT NOT NULL,
    apple_id         TEXT NOT NULL DEFAULT '',
    notion_id        TEXT NOT NULL DEFAULT '',
    last_synced_hash TEXT NOT NULL DEFAULT '',
    apple_modified   TEXT NOT NULL DEFAULT '',
    notion_modified  TEXT NOT NULL DEFAULT '',
    last_synced_at   TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'synced'
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_record_apple
    ON sync_records (mapping_id, apple_id)  WHERE apple_id  != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_record_notion
    ON sync_records (mapping_id, notion_id) WHERE notion_id != '';
CREATE INDEX        IF NOT EXISTS idx_record_mapping
    ON sync_records (mapping_id);

CREATE TABLE IF NOT EXISTS sync_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    mapping_id TEXT    NOT NULL,
    operation  TEXT    NOT NULL,
    created    INTEGER NOT NULL DEFAULT 0,
    updated    INTEGER NOT NULL DEFAULT 0,
    deleted    INTEGER NOT NULL DEFAULT 0,
    conflicts  INTEGER NOT NULL DEFAULT 0,
    errors     TEXT    NOT NULL DEFAULT '[]',
    timestamp  TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_mapping ON sync_history (mapping_id);
`

// historyWindow is the number of history entries retained per mapping.
// Older entries are trimmed FIFO on append.
const historyWindow = 100

// RecordStatus is the lifecycle state of a sync record.
type RecordStatus string

const (
	StatusSynced          RecordStatus = "synced"
	StatusPendingToRemote RecordStatus = "pendingToRemote"
	StatusPendingToApple  RecordStatus = "pendingToApple"
	StatusConflict        RecordStatus = "conflict"
	StatusDeleted         RecordStatus = "deleted"
	StatusError           RecordStatus = "error"
)

// PropertyBinding names one Notion property a mapping writes to. A binding
// with an empty ID is unconfigured and the field is not synced to Notion.
type PropertyBinding struct {
	Name string
	ID   string
}

// Configured reports whether the binding targets a Notion property.
func (b PropertyBinding) Configured() bool { return b.ID != "" }

// Mapping is a durable pairing of one Apple Reminders list with one Notion
// database, including the property bindings used to encode item fields.
type Mapping struct {
	ID               string // UUID
	AppleListID      string
	NotionDatabaseID string
	Enabled          bool

	Title    PropertyBinding
	Due      PropertyBinding
	Priority PropertyBinding
	Status   PropertyBinding

	// StatusIsCheckbox selects the checkbox encoding for completion instead
	// of a status property with named options.
	StatusIsCheckbox bool

	// StatusCompletedValues are the status option names that count as
	// "done" when reading from Notion. The first entry is written back for
	// completed items.
	StatusCompletedValues []string

	LastSyncDate time.Time
}

// Record is the durable link between one Apple reminder and one Notion page,
// scoped to a mapping, with the content fingerprint from the last successful
// sync.
type Record struct {
	ID             string // UUID
	MappingID      string
	AppleID        string
	NotionID       string
	LastSyncedHash string
	AppleModified  time.Time
	NotionModified time.Time
	LastSyncedAt   time.Time
	Status         RecordStatus
}

// HistoryEntry is one append-only audit row per sync pass per mapping.
type HistoryEntry struct {
	ID        int64
	MappingID string
	Operation string
	Created   int
	Updated   int
	Deleted   int
	Conflicts int
	Errors    []string
	Timestamp time.Time
}

// Store is the SQLite-backed state repository.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the state database:
// ~/.local/share/notionrelay/state.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "notionrelay", "state.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- Mappings ----------------------------------------------------------------

const mappingColumns = `
	id, apple_list_id, notion_database_id, enabled,
	title_prop_name, title_prop_id, due_prop_name, due_prop_id,
	priority_prop_name, priority_prop_id, status_prop_name, status_prop_id,
	status_is_checkbox, status_completed_values, last_sync_date`

// UpsertMapping inserts or updates a mapping keyed by its
// (apple_list_id, notion_database_id) pair. A missing ID is assigned a fresh
// UUID; on conflict the existing row's ID and last_sync_date are preserved
// and the mapping's ID field is updated to match.
func (s *Store) UpsertMapping(ctx context.Context, m *Mapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	completedVals, err := json.Marshal(m.StatusCompletedValues)
	if err != nil {
		return fmt.Errorf("encoding completed values: %w", err)
	}

	const q = `
		INSERT INTO sync_mappings (` + mappingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(apple_list_id, notion_database_id) DO UPDATE SET
		    enabled                 = excluded.enabled,
		    title_prop_name         = excluded.title_prop_name,
		    title_prop_id           = excluded.title_prop_id,
		    due_prop_name           = excluded.due_prop_name,
		    due_prop_id             = excluded.due_prop_id,
		    priority_prop_name      = excluded.priority_prop_name,
		    priority_prop_id        = excluded.priority_prop_id,
		    status_prop_name        = excluded.status_prop_name,
		    status_prop_id          = excluded.status_prop_id,
		    status_is_checkbox      = excluded.status_is_checkbox,
		    status_completed_values = excluded.status_completed_values`

	if _, err := s.db.ExecContext(ctx, q,
		m.ID, m.AppleListID, m.NotionDatabaseID, m.Enabled,
		m.Title.Name, m.Title.ID, m.Due.Name, m.Due.ID,
		m.Priority.Name, m.Priority.ID, m.Status.Name, m.Status.ID,
		m.StatusIsCheckbox, string(completedVals), formatTime(m.LastSyncDate),
	); err != nil {
		return fmt.Errorf("upserting mapping %q↔%q: %w", m.AppleListID, m.NotionDatabaseID, err)
	}

	// Re-read to pick up the surviving row ID and last sync date.
	existing, err := s.getMappingByPair(ctx, m.AppleListID, m.NotionDatabaseID)
	if err != nil {
		return err
	}
	if existing != nil {
		m.ID = existing.ID
		m.LastSyncDate = existing.LastSyncDate
	}
	return nil
}

// GetMapping returns the mapping with the given ID, or (nil, nil) if no such
// mapping exists.
func (s *Store) GetMapping(ctx context.Context, id string) (*Mapping, error) {
	const q = `SELECT ` + mappingColumns + ` FROM sync_mappings WHERE id = ?`
	return scanMapping(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) getMappingByPair(ctx context.Context, listID, dbID string) (*Mapping, error) {
	const q = `SELECT ` + mappingColumns + `
		FROM sync_mappings WHERE apple_list_id = ? AND notion_database_id = ?`
	return scanMapping(s.db.QueryRowContext(ctx, q, listID, dbID))
}

// ListMappings returns all mappings, enabled or not, ordered by list ID.
func (s *Store) ListMappings(ctx context.Context) ([]*Mapping, error) {
	const q = `SELECT ` + mappingColumns + ` FROM sync_mappings ORDER BY apple_list_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// TouchMapping stamps the mapping's last sync date.
func (s *Store) TouchMapping(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sync_mappings SET last_sync_date = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, formatTime(at), id); err != nil {
		return fmt.Errorf("stamping mapping %s: %w", id, err)
	}
	return nil
}

// SetMappingEnabled flips a mapping's enabled flag. Disabled mappings keep
// their sync records and history so re-enabling resumes cleanly.
func (s *Store) SetMappingEnabled(ctx context.Context, id string, enabled bool) error {
	const q = `UPDATE sync_mappings SET enabled = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, enabled, id); err != nil {
		return fmt.Errorf("toggling mapping %s: %w", id, err)
	}
	return nil
}

// --- Records -----------------------------------------------------------------

const recordColumns = `
	id, mapping_id, apple_id, notion_id, last_synced_hash,
	apple_modified, notion_modified, last_synced_at, status`

// GetRecordByAppleID returns the record linking the given reminder within a
// mapping, or (nil, nil) if no such record exists.
func (s *Store) GetRecordByAppleID(ctx context.Context, mappingID, appleID string) (*Record, error) {
	const q = `SELECT ` + recordColumns + `
		FROM sync_records WHERE mapping_id = ? AND apple_id = ?`
	return scanRecord(s.db.QueryRowContext(ctx, q, mappingID, appleID))
}

// GetRecordByNotionID returns the record linking the given Notion page within
// a mapping, or (nil, nil) if no such record exists.
func (s *Store) GetRecordByNotionID(ctx context.Context, mappingID, notionID string) (*Record, error) {
	const q = `SELECT ` + recordColumns + `
		FROM sync_records WHERE mapping_id = ? AND notion_id = ?`
	return scanRecord(s.db.QueryRowContext(ctx, q, mappingID, notionID))
}

// RecordsForMapping returns all sync records tracked for the given mapping.
func (s *Store) RecordsForMapping(ctx context.Context, mappingID string) ([]*Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM sync_records WHERE mapping_id = ?`
	rows, err := s.db.QueryContext(ctx, q, mappingID)
	if err != nil {
		return nil, fmt.Errorf("querying records for mapping %s: %w", mappingID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertRecord inserts or replaces a record by ID. A missing ID is assigned a
// fresh UUID. The partial unique indexes on (mapping_id, apple_id) and
// (mapping_id, notion_id) enforce that no second record can link the same
// item on either side.
func (s *Store) UpsertRecord(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = StatusSynced
	}

	const q = `
		INSERT INTO sync_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    apple_id         = excluded.apple_id,
		    notion_id        = excluded.notion_id,
		    last_synced_hash = excluded.last_synced_hash,
		    apple_modified   = excluded.apple_modified,
		    notion_modified  = excluded.notion_modified,
		    last_synced_at   = excluded.last_synced_at,
		    status           = excluded.status`

	if _, err := s.db.ExecContext(ctx, q,
		r.ID, r.MappingID, r.AppleID, r.NotionID, r.LastSyncedHash,
		formatTime(r.AppleModified), formatTime(r.NotionModified),
		formatTime(r.LastSyncedAt), string(r.Status),
	); err != nil {
		return fmt.Errorf("upserting record %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRecord removes the record with the given ID.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	const q = `DELETE FROM sync_records WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

// --- History -----------------------------------------------------------------

// AppendHistory writes one audit entry and trims the mapping's history to the
// retained window.
func (s *Store) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	errs, err := json.Marshal(e.Errors)
	if err != nil {
		return fmt.Errorf("encoding history errors: %w", err)
	}

	const q = `
		INSERT INTO sync_history
		    (mapping_id, operation, created, updated, deleted, conflicts, errors, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		e.MappingID, e.Operation, e.Created, e.Updated, e.Deleted, e.Conflicts,
		string(errs), formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("appending history for mapping %s: %w", e.MappingID, err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		e.ID = id
	}

	const trim = `
		DELETE FROM sync_history
		WHERE mapping_id = ? AND id NOT IN (
		    SELECT id FROM sync_history WHERE mapping_id = ?
		    ORDER BY id DESC LIMIT ?
		)`
	if _, err := s.db.ExecContext(ctx, trim, e.MappingID, e.MappingID, historyWindow); err != nil {
		return fmt.Errorf("trimming history for mapping %s: %w", e.MappingID, err)
	}
	return nil
}

// RecentHistory returns the newest n history entries for a mapping, newest
// first.
func (s *Store) RecentHistory(ctx context.Context, mappingID string, n int) ([]*HistoryEntry, error) {
	const q = `
		SELECT id, mapping_id, operation, created, updated, deleted, conflicts, errors, timestamp
		FROM sync_history WHERE mapping_id = ?
		ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, mappingID, n)
	if err != nil {
		return nil, fmt.Errorf("querying history for mapping %s: %w", mappingID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var errsJSON, ts string
		if err := rows.Scan(
			&e.ID, &e.MappingID, &e.Operation,
			&e.Created, &e.Updated, &e.Deleted, &e.Conflicts,
			&errsJSON, &ts,
		); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal([]byte(errsJSON), &e.Errors); err != nil {
			return nil, fmt.Errorf("decoding history errors: %w", err)
		}
		e.Timestamp, _ = parseTime(ts)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so the scan helpers can be
// reused.
type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(sc scanner) (*Mapping, error) {
	var m Mapping
	var completedVals, lastSync string

	err := sc.Scan(
		&m.ID, &m.AppleListID, &m.NotionDatabaseID, &m.Enabled,
		&m.Title.Name, &m.Title.ID, &m.Due.Name, &m.Due.ID,
		&m.Priority.Name, &m.Priority.ID, &m.Status.Name, &m.Status.ID,
		&m.StatusIsCheckbox, &completedVals, &lastSync,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning mapping row: %w", err)
	}

	if err := json.Unmarshal([]byte(completedVals), &m.StatusCompletedValues); err != nil {
		return nil, fmt.Errorf("decoding completed values: %w", err)
	}
	m.LastSyncDate, _ = parseTime(lastSync)

	return &m, nil
}

func scanRecord(sc scanner) (*Record, error) {
	var r Record
	var appleMod, notionMod, syncedAt, status string

	err := sc.Scan(
		&r.ID, &r.MappingID, &r.AppleID, &r.NotionID, &r.LastSyncedHash,
		&appleMod, &notionMod, &syncedAt, &status,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record row: %w", err)
	}

	r.AppleModified, _ = parseTime(appleMod)
	r.NotionModified, _ = parseTime(notionMod)
	r.LastSyncedAt, _ = parseTime(syncedAt)
	r.Status = RecordStatus(status)

	return &r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
