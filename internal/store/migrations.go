package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
// The SQL is kept to the subset shared by SQLite and PostgreSQL.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS email_accounts (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	email               TEXT NOT NULL,
	provider            TEXT NOT NULL DEFAULT 'imap',
	imap_host           TEXT NOT NULL DEFAULT '',
	imap_port           INTEGER NOT NULL DEFAULT 0,
	imap_username       TEXT NOT NULL DEFAULT '',
	imap_password       TEXT NOT NULL DEFAULT '',
	imap_tls            BOOLEAN NOT NULL DEFAULT TRUE,
	sync_window_days    INTEGER NOT NULL DEFAULT 30,
	sync_folders        TEXT NOT NULL DEFAULT '[]',
	supports_condstore  BOOLEAN NOT NULL DEFAULT FALSE,
	supports_qresync    BOOLEAN NOT NULL DEFAULT FALSE,
	folders_discovered  BOOLEAN NOT NULL DEFAULT FALSE,
	sync_status         TEXT NOT NULL DEFAULT 'idle',
	last_sync_at        TIMESTAMP,
	last_error          TEXT NOT NULL DEFAULT '',
	total_emails_synced BIGINT NOT NULL DEFAULT 0,
	active              BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL,
	UNIQUE (user_id, email)
);

CREATE TABLE IF NOT EXISTS folder_sync_states (
	account_id      TEXT NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
	folder_path     TEXT NOT NULL,
	uid_validity    BIGINT,
	last_synced_uid BIGINT,
	highest_mod_seq BIGINT,
	last_sync_at    TIMESTAMP,
	email_count     BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (account_id, folder_path)
);

CREATE TABLE IF NOT EXISTS sync_history (
	id               TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
	status           TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')),
	force_full_sync  BOOLEAN NOT NULL DEFAULT FALSE,
	emails_processed INTEGER NOT NULL DEFAULT 0,
	emails_added     INTEGER NOT NULL DEFAULT 0,
	emails_updated   INTEGER NOT NULL DEFAULT 0,
	flags_updated    INTEGER NOT NULL DEFAULT 0,
	folders_synced   INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMP NOT NULL,
	completed_at     TIMESTAMP,
	last_updated     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
	message_id      TEXT NOT NULL,
	folder_path     TEXT NOT NULL,
	imap_uid        BIGINT,
	uid_validity    BIGINT,
	is_read         BOOLEAN NOT NULL DEFAULT FALSE,
	is_flagged      BOOLEAN NOT NULL DEFAULT FALSE,
	is_answered     BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted      BOOLEAN NOT NULL DEFAULT FALSE,
	is_draft        BOOLEAN NOT NULL DEFAULT FALSE,
	subject         TEXT NOT NULL DEFAULT '',
	from_addr       TEXT NOT NULL DEFAULT '',
	from_name       TEXT NOT NULL DEFAULT '',
	to_addrs        TEXT NOT NULL DEFAULT '',
	cc_addrs        TEXT NOT NULL DEFAULT '',
	in_reply_to     TEXT NOT NULL DEFAULT '',
	sent_at         TIMESTAMP NOT NULL,
	internal_date   TIMESTAMP NOT NULL,
	body_text       TEXT NOT NULL DEFAULT '',
	body_html       TEXT NOT NULL DEFAULT '',
	snippet         TEXT NOT NULL DEFAULT '',
	size            BIGINT NOT NULL DEFAULT 0,
	has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	UNIQUE (account_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_sync_history_account_started
	ON sync_history(account_id, started_at);
CREATE INDEX IF NOT EXISTS idx_sync_history_account_status
	ON sync_history(account_id, status);
CREATE INDEX IF NOT EXISTS idx_emails_folder_uid
	ON emails(account_id, folder_path, imap_uid);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS account_folders (
	account_id TEXT NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	delimiter  TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '[]',
	selectable BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (account_id, name)
);

CREATE TABLE IF NOT EXISTS folder_retry_uids (
	account_id   TEXT NOT NULL REFERENCES email_accounts(id) ON DELETE CASCADE,
	folder_path  TEXT NOT NULL,
	uid          BIGINT NOT NULL,
	uid_validity BIGINT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 1,
	last_error   TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (account_id, folder_path, uid)
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS embedding_jobs (
	user_id      TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'pending',
	requested_at TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
	{
		version: 4,
		sql: `
ALTER TABLE email_accounts ADD COLUMN sync_generation BIGINT NOT NULL DEFAULT 0;

INSERT INTO schema_version (version) VALUES (4);
`,
	},
}
