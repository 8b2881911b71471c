// Package manifest keeps an index of cached artifacts in SQLite: which
// file belongs to which content id, how large it is, and which build used
// it last. The cache itself stays authoritative; the manifest only drives
// statistics and pruning.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite
//   - CGO (-tags cgo_sqlite): mattn/go-sqlite3
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrManifest wraps every database failure.
var ErrManifest = errors.New("manifest error")

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	image      TEXT PRIMARY KEY,
	hash       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	bytes      INTEGER NOT NULL,
	first_seen INTEGER NOT NULL,
	last_used  INTEGER NOT NULL,
	build_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS artifacts_build ON artifacts(build_id);
`

// DriverType returns "cgo" for mattn/go-sqlite3, "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// Record is one indexed artifact file.
type Record struct {
	Image     string // file name in the cache directory
	Hash      string
	Kind      string // file extension without the dot
	Bytes     int64
	FirstSeen time.Time
	LastUsed  time.Time
	BuildID   string
}

// Stats summarizes the manifest.
type Stats struct {
	Artifacts int
	Bytes     int64
	Builds    int
	LastBuild string
}

// Manifest is an open artifact index.
type Manifest struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the manifest database at path.
func Open(ctx context.Context, path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrManifest, path, err)
	}
	// SQLite serializes writers anyway; one connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", ErrManifest, err)
	}
	return &Manifest{db: db, now: time.Now}, nil
}

// SetClock replaces the time source.
func (m *Manifest) SetClock(now func() time.Time) {
	m.now = now
}

// Close releases the database.
func (m *Manifest) Close() error {
	if err := m.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrManifest, err)
	}
	return nil
}

// Record inserts r or, when the image is known, refreshes its size, last
// use and build. FirstSeen and LastUsed default to now.
func (m *Manifest) Record(ctx context.Context, r Record) error {
	now := m.now()
	if r.FirstSeen.IsZero() {
		r.FirstSeen = now
	}
	if r.LastUsed.IsZero() {
		r.LastUsed = now
	}
	_, err := m.db.ExecContext(ctx, `
INSERT INTO artifacts (image, hash, kind, bytes, first_seen, last_used, build_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(image) DO UPDATE SET
	bytes = excluded.bytes,
	last_used = excluded.last_used,
	build_id = excluded.build_id`,
		r.Image, r.Hash, r.Kind, r.Bytes,
		r.FirstSeen.UnixNano(), r.LastUsed.UnixNano(), r.BuildID,
	)
	if err != nil {
		return fmt.Errorf("%w: recording %s: %v", ErrManifest, r.Image, err)
	}
	return nil
}

// Touch marks a known image as used by buildID. Unknown images are ignored.
func (m *Manifest) Touch(ctx context.Context, image, buildID string) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE artifacts SET last_used = ?, build_id = ? WHERE image = ?`,
		m.now().UnixNano(), buildID, image)
	if err != nil {
		return fmt.Errorf("%w: touching %s: %v", ErrManifest, image, err)
	}
	return nil
}

// Get returns the record for image.
func (m *Manifest) Get(ctx context.Context, image string) (Record, bool, error) {
	rows, err := m.query(ctx, `WHERE image = ?`, image)
	if err != nil {
		return Record{}, false, err
	}
	if len(rows) == 0 {
		return Record{}, false, nil
	}
	return rows[0], true, nil
}

// LastBuild returns the build id of the most recently used artifact, or
// "" for an empty manifest.
func (m *Manifest) LastBuild(ctx context.Context) (string, error) {
	var id string
	err := m.db.QueryRowContext(ctx,
		`SELECT build_id FROM artifacts ORDER BY last_used DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrManifest, err)
	}
	return id, nil
}

// Stale lists artifacts not used by buildID, oldest first.
func (m *Manifest) Stale(ctx context.Context, buildID string) ([]Record, error) {
	return m.query(ctx, `WHERE build_id <> ? ORDER BY last_used, image`, buildID)
}

// All lists every artifact by image name.
func (m *Manifest) All(ctx context.Context) ([]Record, error) {
	return m.query(ctx, `ORDER BY image`)
}

// Delete removes the record of image.
func (m *Manifest) Delete(ctx context.Context, image string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM artifacts WHERE image = ?`, image); err != nil {
		return fmt.Errorf("%w: deleting %s: %v", ErrManifest, image, err)
	}
	return nil
}

// Stats summarizes the manifest.
func (m *Manifest) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(bytes), 0), COUNT(DISTINCT build_id) FROM artifacts`,
	).Scan(&s.Artifacts, &s.Bytes, &s.Builds)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if s.LastBuild, err = m.LastBuild(ctx); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (m *Manifest) query(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT image, hash, kind, bytes, first_seen, last_used, build_id FROM artifacts `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r           Record
			first, last int64
		)
		if err := rows.Scan(&r.Image, &r.Hash, &r.Kind, &r.Bytes, &first, &last, &r.BuildID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifest, err)
		}
		r.FirstSeen = time.Unix(0, first)
		r.LastUsed = time.Unix(0, last)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	return out, nil
}
