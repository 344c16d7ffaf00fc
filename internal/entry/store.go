package entry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"orbridge/internal/services"
)

const defaultEntryTitle = "OpenRouter"

// ErrDuplicateTitle is returned when a subentry title is already used by
// another subentry of the same type.
var ErrDuplicateTitle = errors.New("subentry title already in use")

// Store persists config entries and subentries in SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the entry database.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// foreign_keys is per connection; keep a single one so cascades always apply.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// AddEntry creates a config entry for an API key.
func (s *Store) AddEntry(ctx context.Context, title, apiKey string) (*Entry, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrValidation, "entry", "add", "api key is required", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultEntryTitle
	}
	now := s.now()
	entry := &Entry{ID: uuid.NewString(), Title: title, APIKey: apiKey, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_entries (id, title, api_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Title, entry.APIKey, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

// UpdateAPIKey replaces the key of an existing entry.
func (s *Store) UpdateAPIKey(ctx context.Context, id, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return services.Wrap(services.ErrValidation, "entry", "update key", "api key is required", nil)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE config_entries SET api_key = ?, updated_at = ? WHERE id = ?`,
		apiKey, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update entry key: %w", err)
	}
	return expectOneRow(res, "entry", id)
}

// GetEntry fetches one entry with its subentries.
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, api_key, created_at, updated_at FROM config_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	subs, err := s.listSubentries(ctx, `WHERE entry_id = ?`, id)
	if err != nil {
		return nil, err
	}
	entry.Subentries = subs
	return entry, nil
}

// FindEntry resolves a user supplied reference: a full id, a unique id
// prefix, or a case-insensitive title.
func (s *Store) FindEntry(ctx context.Context, ref string) (*Entry, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrValidation, "entry", "find", "entry reference is required", nil)
	}
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	var matches []Entry
	for _, entry := range entries {
		if entry.ID == ref {
			return &entry, nil
		}
		if strings.HasPrefix(entry.ID, ref) || strings.EqualFold(entry.Title, ref) {
			matches = append(matches, entry)
		}
	}
	switch len(matches) {
	case 0:
		return nil, notFound("entry", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, services.Wrap(services.ErrValidation, "entry", "find",
			fmt.Sprintf("reference %q matches %d entries; use the full id", ref, len(matches)), nil)
	}
}

// ListEntries returns every entry, oldest first, with subentries attached.
func (s *Store) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, api_key, created_at, updated_at FROM config_entries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	index := map[string]int{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		index[entry.ID] = len(entries)
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	rows.Close()

	subs, err := s.listSubentries(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if idx, ok := index[sub.EntryID]; ok {
			entries[idx].Subentries = append(entries[idx].Subentries, sub)
		}
	}
	return entries, nil
}

// RemoveEntry deletes an entry and all of its subentries.
func (s *Store) RemoveEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return expectOneRow(res, "entry", id)
}

// AddSubentry attaches a new AI task or conversation subentry to an entry.
// An empty title falls back to DefaultTitle(model).
func (s *Store) AddSubentry(ctx context.Context, entryID string, sub Subentry) (*Subentry, error) {
	subType, err := ParseSubentryType(string(sub.Type))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "entry", "add subentry", err.Error(), nil)
	}
	sub.Type = subType
	sub.Model = strings.TrimSpace(sub.Model)
	if sub.Model == "" {
		return nil, services.Wrap(services.ErrValidation, "entry", "add subentry", "model is required", nil)
	}
	sub.Title = strings.TrimSpace(sub.Title)
	if sub.Title == "" {
		sub.Title = DefaultTitle(sub.Model)
	}
	sub.Prompt = strings.TrimSpace(sub.Prompt)
	sub.ID = uuid.NewString()
	sub.EntryID = entryID
	sub.CreatedAt = s.now()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM config_entries WHERE id = ?`, entryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check entry: %w", err)
	}
	if exists == 0 {
		return nil, notFound("entry", entryID)
	}
	var taken int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM subentries WHERE subentry_type = ? AND title = ?`, sub.Type, sub.Title,
	).Scan(&taken); err != nil {
		return nil, fmt.Errorf("check subentry title: %w", err)
	}
	if taken > 0 {
		return nil, fmt.Errorf("%w: %s %q", ErrDuplicateTitle, sub.Type, sub.Title)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subentries (id, entry_id, subentry_type, title, model, prompt, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.EntryID, string(sub.Type), sub.Title, sub.Model, nullableString(sub.Prompt), formatTime(sub.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert subentry: %w", err)
	}
	return &sub, nil
}

// RemoveSubentry deletes one subentry.
func (s *Store) RemoveSubentry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subentries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subentry: %w", err)
	}
	return expectOneRow(res, "subentry", id)
}

func (s *Store) listSubentries(ctx context.Context, where string, args ...any) ([]Subentry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, subentry_type, title, model, prompt, created_at FROM subentries `+where+` ORDER BY created_at, id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list subentries: %w", err)
	}
	defer rows.Close()

	var subs []Subentry
	for rows.Next() {
		var (
			sub        Subentry
			subType    string
			prompt     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&sub.ID, &sub.EntryID, &subType, &sub.Title, &sub.Model, &prompt, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan subentry: %w", err)
		}
		sub.Type = SubentryType(subType)
		sub.Prompt = prompt.String
		sub.CreatedAt = parseTime(createdRaw)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subentries: %w", err)
	}
	return subs, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry      Entry
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&entry.ID, &entry.Title, &entry.APIKey, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	entry.CreatedAt = parseTime(createdRaw)
	entry.UpdatedAt = parseTime(updatedRaw)
	return &entry, nil
}

func expectOneRow(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound(kind, id)
	}
	return nil
}

func notFound(kind, id string) error {
	return services.Wrap(services.ErrNotFound, "entry", "lookup", fmt.Sprintf("%s %q", kind, id), nil)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
