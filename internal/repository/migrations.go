package repository

// schema is idempotent DDL shared by the sqlite and postgres backends.
const schema = `
CREATE TABLE IF NOT EXISTS invoice_file (
	id             TEXT PRIMARY KEY,
	filename       TEXT NOT NULL,
	mime_type      TEXT NOT NULL,
	source_path    TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'UNPROCESSED',
	parsed_details TEXT,
	needs_review   INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT '',
	uploaded_at    TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoice_file_status ON invoice_file(status);

CREATE TABLE IF NOT EXISTS model_usage (
	model_name      TEXT PRIMARY KEY,
	day_key         TEXT NOT NULL DEFAULT '',
	minute_start_ms INTEGER NOT NULL DEFAULT 0,
	requests_minute INTEGER NOT NULL DEFAULT 0,
	requests_today  INTEGER NOT NULL DEFAULT 0
);
`
