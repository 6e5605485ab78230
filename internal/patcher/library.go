package patcher

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrFixtureNotFound is returned when a fixture-type lookup misses.
type ErrFixtureNotFound struct{ ID uuid.UUID }

func (e *ErrFixtureNotFound) Error() string {
	return fmt.Sprintf("patcher: fixture type %s not found", e.ID)
}

// ErrFixtureInUse is returned by re-import when an instance references a
// channel the new definition removes.
type ErrFixtureInUse struct {
	ID      uuid.UUID
	Channel string
}

func (e *ErrFixtureInUse) Error() string {
	return fmt.Sprintf("patcher: fixture type %s cannot drop channel %q: an instance's personality references it", e.ID, e.Channel)
}

// Library is the in-memory fixture-type store — the source of truth — with
// a SQLite-backed cache mirrored alongside it for indexed manufacturer/
// family lookups. This is adapted from the teacher's event store
// (internal/adapter/store/store.go): same database/sql + go-sqlite3
// substrate, repurposed from an append-only event log to a queryable
// fixture-library mirror (spec.md is silent on persistence of the library
// itself; this is a supplemented feature grounded on
// original_source/simplydmx_backend/src/plugins/patcher/fixture_types.rs
// implying a durable library independent of process memory).
type Library struct {
	mu    sync.RWMutex
	types map[uuid.UUID]*FixtureInfo

	db *sql.DB // nil when running without a cache (e.g. in tests)
}

// NewLibrary constructs a fixture library. dbPath may be "" or ":memory:"
// to run without a durable cache; a caller embedding this in a show
// directory typically passes a file path alongside the show file.
func NewLibrary(dbPath string) (*Library, error) {
	l := &Library{types: make(map[uuid.UUID]*FixtureInfo)}
	if dbPath == "" {
		return l, nil
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("patcher: unable to open fixture library cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("patcher: unable to ping fixture library cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS fixture_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		manufacturer TEXT NOT NULL,
		family TEXT NOT NULL,
		output_driver TEXT NOT NULL,
		data TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("patcher: unable to create fixture_types table: %w", err)
	}
	l.db = db
	return l, nil
}

// Close releases the underlying cache connection, if any.
func (l *Library) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Library) mirror(fi *FixtureInfo) {
	if l.db == nil {
		return
	}
	data, err := json.Marshal(fi)
	if err != nil {
		return
	}
	_, _ = l.db.Exec(
		`INSERT INTO fixture_types (id, name, manufacturer, family, output_driver, data) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, manufacturer=excluded.manufacturer,
		   family=excluded.family, output_driver=excluded.output_driver, data=excluded.data`,
		fi.ID.String(), fi.Name, fi.Manufacturer, fi.Family, fi.OutputDriver, string(data),
	)
}

// Import adds a new fixture type. Per spec §3, fixture types are never
// mutated once created — this is the only insertion path.
func (l *Library) Import(fi *FixtureInfo) error {
	if err := fi.ValidatePersonalities(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types[fi.ID] = fi
	l.mirror(fi)
	return nil
}

// Reimport replaces an existing fixture type at the same id, rejecting the
// replacement if any currently-patched instance (checked by the caller via
// channelStillReferenced) references a channel the new definition removes.
func (l *Library) Reimport(fi *FixtureInfo, channelStillReferenced func(channel string) bool) error {
	if err := fi.ValidatePersonalities(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.types[fi.ID]
	if !ok {
		return &ErrFixtureNotFound{ID: fi.ID}
	}
	for name := range existing.Channels {
		if _, stillPresent := fi.Channels[name]; !stillPresent && channelStillReferenced(name) {
			return &ErrFixtureInUse{ID: fi.ID, Channel: name}
		}
	}
	l.types[fi.ID] = fi
	l.mirror(fi)
	return nil
}

// Get returns the fixture type for id.
func (l *Library) Get(id uuid.UUID) (*FixtureInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fi, ok := l.types[id]
	if !ok {
		return nil, &ErrFixtureNotFound{ID: id}
	}
	return fi, nil
}

// List returns every fixture type in memory, the source of truth; the
// SQLite mirror exists only to serve indexed lookups (Manufacturers,
// Families) without a linear scan as the library grows.
func (l *Library) List() []*FixtureInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*FixtureInfo, 0, len(l.types))
	for _, fi := range l.types {
		out = append(out, fi)
	}
	return out
}

// Manufacturers returns the distinct set of manufacturer names, queried
// from the SQLite cache when present (falls back to an in-memory scan
// otherwise so Library remains fully usable without a cache file).
func (l *Library) Manufacturers() ([]string, error) {
	if l.db == nil {
		return l.scanDistinct(func(fi *FixtureInfo) string { return fi.Manufacturer }), nil
	}
	rows, err := l.db.Query(`SELECT DISTINCT manufacturer FROM fixture_types ORDER BY manufacturer`)
	if err != nil {
		return nil, fmt.Errorf("patcher: querying manufacturers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("patcher: scanning manufacturer row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Families returns the distinct set of family names, same cache/scan
// fallback as Manufacturers.
func (l *Library) Families() ([]string, error) {
	if l.db == nil {
		return l.scanDistinct(func(fi *FixtureInfo) string { return fi.Family }), nil
	}
	rows, err := l.db.Query(`SELECT DISTINCT family FROM fixture_types ORDER BY family`)
	if err != nil {
		return nil, fmt.Errorf("patcher: querying families: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("patcher: scanning family row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (l *Library) scanDistinct(field func(*FixtureInfo) string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, fi := range l.types {
		v := field(fi)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
