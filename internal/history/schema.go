package history

// Schema creates the comparison ledger. One row is written per comparison
// attempt; attempts of one verification share a run_id.
const Schema = `
CREATE TABLE IF NOT EXISTS comparisons (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    reference TEXT NOT NULL,
    attempt INTEGER NOT NULL,
    matched INTEGER NOT NULL,
    cropped INTEGER NOT NULL DEFAULT 0,
    cursor_suppressed INTEGER NOT NULL DEFAULT 0,
    failed_blocks INTEGER NOT NULL DEFAULT 0,
    regions TEXT,
    screenshot_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comparisons_reference ON comparisons(reference, created_at);
CREATE INDEX IF NOT EXISTS idx_comparisons_run_id ON comparisons(run_id);
`
