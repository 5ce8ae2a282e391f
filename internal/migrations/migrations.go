package migrations

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// The schema is compiled into the binary so a fresh database can be
// initialized without shipping SQL files alongside the executable. The
// service applies pending versions on start; cmd/migrate does the same
// offline, plus reports what a database has applied.

const initialSchema = `
CREATE TABLE IF NOT EXISTS pipelines (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    is_default INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pipeline_stages (
    id TEXT PRIMARY KEY,
    pipeline_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (pipeline_id) REFERENCES pipelines(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_pipeline_stages_pipeline
    ON pipeline_stages(pipeline_id, position);

CREATE TABLE IF NOT EXISTS leads (
    id TEXT PRIMARY KEY,
    phone TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    source TEXT NOT NULL,
    stage_id TEXT,
    kanban_order INTEGER NOT NULL DEFAULT 0,
    last_contacted_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (stage_id) REFERENCES pipeline_stages(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_stage ON leads(stage_id, kanban_order);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    channel TEXT NOT NULL,
    number_id TEXT NOT NULL,
    connection_type TEXT NOT NULL,
    contact_phone TEXT NOT NULL DEFAULT '',
    contact_name TEXT NOT NULL DEFAULT '',
    external_chat_id TEXT NOT NULL DEFAULT '',
    lead_id TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    unread_count INTEGER NOT NULL DEFAULT 0,
    last_message_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (lead_id) REFERENCES leads(id) ON DELETE SET NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_api_key
    ON conversations(channel, number_id, contact_phone)
    WHERE connection_type = 'api';

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_bridge_key
    ON conversations(channel, number_id, connection_type, external_chat_id)
    WHERE connection_type != 'api';

CREATE INDEX IF NOT EXISTS idx_conversations_last_message
    ON conversations(last_message_at);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    provider_message_id TEXT NOT NULL,
    connection_kind TEXT NOT NULL,
    direction TEXT NOT NULL,
    message_type TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    media_url TEXT,
    media_mime_type TEXT,
    latitude REAL,
    longitude REAL,
    status TEXT NOT NULL DEFAULT 'pending',
    sent_at DATETIME,
    delivered_at DATETIME,
    read_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(provider_message_id, connection_kind),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages(conversation_id, created_at);

CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);

CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    messages_sent INTEGER NOT NULL DEFAULT 0,
    messages_delivered INTEGER NOT NULL DEFAULT 0,
    messages_read INTEGER NOT NULL DEFAULT 0,
    messages_failed INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS campaign_recipients (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL,
    phone TEXT NOT NULL,
    whatsapp_message_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_campaign_recipients_message
    ON campaign_recipients(whatsapp_message_id);

CREATE INDEX IF NOT EXISTS idx_campaign_recipients_campaign
    ON campaign_recipients(campaign_id);

CREATE TABLE IF NOT EXISTS contacts (
    phone TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    push_name TEXT NOT NULL DEFAULT '',
    number_id TEXT NOT NULL DEFAULT '',
    cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DefaultPipelineName is the pipeline seeded on first migration so
// auto-created leads always have a stage to land in.
const DefaultPipelineName = "Sales Pipeline"

// DefaultStageNames are the seeded stages of the default pipeline, in
// kanban order.
var DefaultStageNames = []string{"New", "Contacted", "Qualified", "Won", "Lost"}

// schemaVersions lists every migration in order. New migrations are
// appended here with the next version number; released versions are
// never edited.
var schemaVersions = []struct {
	version int
	apply   func(*sql.DB) error
}{
	{1, applyInitialSchema},
	{2, seedDefaultPipeline},
}

// LatestVersion returns the newest schema version this build knows.
func LatestVersion() int {
	return schemaVersions[len(schemaVersions)-1].version
}

// RunMigrations applies all pending schema versions and records them in
// schema_migrations. It is safe to call on every start.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, sv := range schemaVersions {
		if err := applyVersion(db, sv.version, sv.apply); err != nil {
			return err
		}
	}
	return nil
}

// AppliedVersions returns the schema versions recorded in the database,
// ascending. A database that predates the migrations table reads as
// having none applied.
func AppliedVersions(db *sql.DB) ([]int, error) {
	var exists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func applyVersion(db *sql.DB, version int, apply func(*sql.DB) error) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
		return fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	if count > 0 {
		return nil
	}

	if err := apply(db); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", version, err)
	}

	if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", version, err)
	}
	return nil
}

func applyInitialSchema(db *sql.DB) error {
	_, err := db.Exec(initialSchema)
	return err
}

func seedDefaultPipeline(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM pipelines WHERE is_default = 1").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	pipelineID := uuid.New().String()
	if _, err := db.Exec("INSERT INTO pipelines (id, name, is_default) VALUES (?, ?, 1)", pipelineID, DefaultPipelineName); err != nil {
		return err
	}
	for i, name := range DefaultStageNames {
		if _, err := db.Exec("INSERT INTO pipeline_stages (id, pipeline_id, name, position) VALUES (?, ?, ?, ?)",
			uuid.New().String(), pipelineID, name, i); err != nil {
			return err
		}
	}
	return nil
}
