// Package history keeps a ledger of screenshot comparisons in a SQLite
// database, optionally encrypted with SQLCipher.
package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

const (
	// SQLite is single-writer; a small pool is enough for a CLI.
	maxOpenConns = 2
	maxIdleConns = 1
)

// Entry is one recorded comparison attempt.
type Entry struct {
	ID               string
	RunID            string
	Reference        string
	Attempt          int
	Matched          bool
	Cropped          bool
	CursorSuppressed bool
	FailedBlocks     int
	Regions          []screenshot.ErrorRegion
	ScreenshotHash   string
	CreatedAt        time.Time
}

// EntryFromVerdict fills the comparison fields of an entry from v.
func EntryFromVerdict(runID, reference string, attempt int, hash string, v screenshot.Verdict) Entry {
	return Entry{
		RunID:            runID,
		Reference:        reference,
		Attempt:          attempt,
		Matched:          v.Matched,
		Cropped:          v.Cropped,
		CursorSuppressed: v.CursorSuppressed,
		FailedBlocks:     v.FailedBlocks,
		Regions:          v.Regions,
		ScreenshotHash:   hash,
	}
}

// Stats summarizes the recorded attempts of one reference.
type Stats struct {
	Attempts     int   `json:"attempts"`
	Mismatches   int   `json:"mismatches"`
	DiffPixels   int64 `json:"diff_pixels"` // summed area of all recorded regions
	DistinctRuns int   `json:"distinct_runs"`
}

// Ledger records comparisons.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewRunID returns a fresh identifier grouping the attempts of one verification.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates the ledger at path. A non-empty key must be 64 hex
// characters and encrypts the database with SQLCipher.
func Open(path, key string) (*Ledger, error) {
	if path == "" {
		return nil, errs.New(errs.InvalidArgument, "history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := path
	if key != "" {
		raw, err := hex.DecodeString(key)
		if err != nil || len(raw) != 32 {
			return nil, errs.New(errs.InvalidArgument, "history key must be 64 hex characters (32 bytes)")
		}
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(raw))
	}
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// A wrong encryption key fails here.
	var sqliteVersion string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.FailedPrecondition, "could not read history database (wrong key?)", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.FailedPrecondition, "could not initialize history schema (wrong key?)", err)
	}

	obs.Pkg("history").Debug("opened history database", "path", path, "encrypted", key != "", "sqlite_version", sqliteVersion)
	return &Ledger{db: db, now: time.Now}, nil
}

// Record stores e. Missing ID and CreatedAt are filled in.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.Reference == "" || e.RunID == "" {
		return errs.New(errs.InvalidArgument, "history entry needs a reference and run id")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	var regions []byte
	if len(e.Regions) > 0 {
		var err error
		regions, err = json.Marshal(e.Regions)
		if err != nil {
			return fmt.Errorf("encode regions: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO comparisons (
    id, run_id, reference, attempt, matched, cropped, cursor_suppressed,
    failed_blocks, regions, screenshot_hash, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Reference, e.Attempt, e.Matched, e.Cropped, e.CursorSuppressed,
		e.FailedBlocks, nullableText(regions), e.ScreenshotHash, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert comparison: %w", err)
	}
	obs.From(ctx).Debug("recorded comparison", "reference", e.Reference, "attempt", e.Attempt, "matched", e.Matched)
	return nil
}

// Recent returns up to limit entries for reference, newest first.
func (l *Ledger) Recent(ctx context.Context, reference string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, run_id, reference, attempt, matched, cropped, cursor_suppressed,
       failed_blocks, regions, screenshot_hash, created_at
FROM comparisons
WHERE reference = ?
ORDER BY created_at DESC, attempt DESC
LIMIT ?`, reference, limit)
	if err != nil {
		return nil, fmt.Errorf("query comparisons: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			regions sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Reference, &e.Attempt, &e.Matched, &e.Cropped,
			&e.CursorSuppressed, &e.FailedBlocks, &regions, &e.ScreenshotHash, &created); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		if regions.Valid && regions.String != "" {
			if err := json.Unmarshal([]byte(regions.String), &e.Regions); err != nil {
				return nil, fmt.Errorf("decode regions: %w", err)
			}
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comparisons: %w", err)
	}
	return entries, nil
}

// Stats returns aggregate numbers for reference.
func (l *Ledger) Stats(ctx context.Context, reference string) (Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN matched = 0 THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(regions_area(regions)), 0),
       COUNT(DISTINCT run_id)
FROM comparisons
WHERE reference = ?`, reference).Scan(&s.Attempts, &s.Mismatches, &s.DiffPixels, &s.DistinctRuns)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func sqliteCommonParams() string {
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
