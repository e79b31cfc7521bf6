package sqlite

// Schema contains the SQL statements to create the SQLite schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every open.
const Schema = `
-- Records table: versioned memory records
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    memory_type TEXT NOT NULL,
    summary TEXT NOT NULL,
    category TEXT,

    importance TEXT NOT NULL DEFAULT 'medium',
    importance_score REAL NOT NULL DEFAULT 0.5,

    sentiment_average REAL NOT NULL DEFAULT 0,
    sentiment_history TEXT,

    mention_count INTEGER NOT NULL DEFAULT 1,

    status TEXT NOT NULL DEFAULT 'active',
    version INTEGER NOT NULL DEFAULT 1,

    supersedes_id TEXT,
    superseded_by TEXT,
    is_historical INTEGER NOT NULL DEFAULT 0,

    effective_from TIMESTAMP,
    expires_at TIMESTAMP,

    sensitivity_level TEXT NOT NULL DEFAULT 'normal',
    confidence REAL NOT NULL DEFAULT 0.5,

    -- Embedding serialized as little-endian float32 BLOB
    embedding BLOB,

    -- Type-specific payload (JSON), keyed by memory_type
    payload TEXT,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_owner_status ON records(owner_id, status);
CREATE INDEX IF NOT EXISTS idx_records_owner_name ON records(owner_id, name);
CREATE INDEX IF NOT EXISTS idx_records_owner_category ON records(owner_id, category);
CREATE INDEX IF NOT EXISTS idx_records_supersedes ON records(supersedes_id);

-- Facts table: subject-predicate-object triples
CREATE TABLE IF NOT EXISTS facts (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object TEXT,
    object_id TEXT,
    confidence REAL NOT NULL DEFAULT 0.5,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(owner_id, subject_id);

-- Entity links table: graph edges between records
CREATE TABLE IF NOT EXISTS entity_links (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    relationship_type TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 0.5,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(owner_id, from_id, to_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_links_from ON entity_links(owner_id, from_id);
CREATE INDEX IF NOT EXISTS idx_links_to ON entity_links(owner_id, to_id);

-- Category summaries: one rewritten-wholesale row per (owner, category)
CREATE TABLE IF NOT EXISTS category_summaries (
    owner_id TEXT NOT NULL,
    category TEXT NOT NULL,
    summary TEXT NOT NULL,
    entity_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (owner_id, category)
);

-- Audit log: append-only operation history
CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    op TEXT NOT NULL,
    record_id TEXT,
    related_id TEXT,
    before_content TEXT,
    after_content TEXT,
    reasoning TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_record ON audit_entries(owner_id, record_id);
`
