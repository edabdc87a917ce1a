package store

// migration is one versioned schema change. Applied in order; the
// highest applied version is tracked in schema_version.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS third_party_items (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	user_id TEXT NOT NULL,
	integration_connection_id TEXT NOT NULL,
	data TEXT NOT NULL,
	source_item_id TEXT REFERENCES third_party_items(id),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (source_id, kind, integration_connection_id)
);

CREATE INDEX IF NOT EXISTS idx_items_connection_kind
	ON third_party_items (integration_connection_id, kind);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	source_item_id TEXT NOT NULL UNIQUE
		REFERENCES third_party_items(id),
	kind TEXT NOT NULL,
	task_id TEXT,
	snoozed_until TIMESTAMP,
	last_read_at TIMESTAMP,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_status
	ON notifications (user_id, status);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	completed_at TIMESTAMP,
	source_item_id TEXT NOT NULL UNIQUE
		REFERENCES third_party_items(id),
	sink_item_id TEXT UNIQUE
		REFERENCES third_party_items(id),
	priority INTEGER NOT NULL DEFAULT 4,
	due_at TIMESTAMP,
	project TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_status
	ON tasks (user_id, status);

CREATE TABLE IF NOT EXISTS integration_connections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	status TEXT NOT NULL,
	registered_scopes TEXT NOT NULL DEFAULT '[]',
	notif_failure_count INTEGER NOT NULL DEFAULT 0,
	notif_first_failed_at TIMESTAMP,
	notif_failure_message TEXT NOT NULL DEFAULT '',
	notif_cursor TEXT NOT NULL DEFAULT '',
	notif_last_scheduled_at TIMESTAMP,
	notif_last_started_at TIMESTAMP,
	notif_last_completed_at TIMESTAMP,
	task_failure_count INTEGER NOT NULL DEFAULT 0,
	task_first_failed_at TIMESTAMP,
	task_failure_message TEXT NOT NULL DEFAULT '',
	task_cursor TEXT NOT NULL DEFAULT '',
	task_last_scheduled_at TIMESTAMP,
	task_last_started_at TIMESTAMP,
	task_last_completed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
