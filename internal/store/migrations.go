package store

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	host         TEXT NOT NULL,
	port         INTEGER NOT NULL DEFAULT 993,
	ssl          BOOLEAN NOT NULL DEFAULT true,
	password     TEXT NOT NULL,
	last_uid     INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'connected',
	status_error TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rules (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL DEFAULT 'exclude',
	condition_type  TEXT NOT NULL,
	condition_value TEXT NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT true,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS invoices (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	filename    TEXT NOT NULL,
	stored_path TEXT NOT NULL,
	size        INTEGER NOT NULL DEFAULT 0,
	subject     TEXT NOT NULL DEFAULT '',
	from_addr   TEXT NOT NULL DEFAULT '',
	date        DATETIME,
	message_id  TEXT NOT NULL DEFAULT '',
	vendor      TEXT NOT NULL DEFAULT '',
	amount      TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '',
	source_type TEXT NOT NULL DEFAULT 'attachment',
	created_at  DATETIME NOT NULL,
	UNIQUE(account_id, message_id, filename)
);

CREATE TABLE IF NOT EXISTS pending_links (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	url        TEXT NOT NULL,
	amount     TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	from_addr  TEXT NOT NULL DEFAULT '',
	date       DATETIME,
	message_id TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	UNIQUE(account_id, url)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id                    TEXT PRIMARY KEY,
	status                TEXT NOT NULL DEFAULT 'running',
	started_at            DATETIME NOT NULL,
	completed_at          DATETIME,
	total_accounts        INTEGER NOT NULL DEFAULT 0,
	processed_accounts    INTEGER NOT NULL DEFAULT 0,
	total_invoices        INTEGER NOT NULL DEFAULT 0,
	total_emails          INTEGER NOT NULL DEFAULT 0,
	emails_processed      INTEGER NOT NULL DEFAULT 0,
	current_account_email TEXT NOT NULL DEFAULT '',
	message               TEXT NOT NULL DEFAULT '',
	error_message         TEXT NOT NULL DEFAULT '',
	date_from             DATETIME,
	date_to               DATETIME
);

CREATE INDEX IF NOT EXISTS idx_invoices_account ON invoices(account_id);
CREATE INDEX IF NOT EXISTS idx_pending_links_account ON pending_links(account_id);
CREATE INDEX IF NOT EXISTS idx_sync_runs_status ON sync_runs(status);
`
