package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "content_units and actors",
		SQL: `
CREATE TABLE actors (
    id          TEXT PRIMARY KEY,
    reputation  REAL NOT NULL DEFAULT 1.0 CHECK (reputation >= 0 AND reputation <= 2),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE TABLE content_units (
    id                    TEXT PRIMARY KEY,
    author_id             TEXT NOT NULL,
    body                  TEXT NOT NULL DEFAULT '',
    media_ref             TEXT NOT NULL DEFAULT '',
    state                 TEXT NOT NULL DEFAULT 'planted' CHECK (state IN ('planted', 'sprouting', 'blooming', 'wilting', 'composted')),
    privacy               TEXT NOT NULL DEFAULT 'public' CHECK (privacy IN ('public', 'connections', 'inner_circle', 'community', 'private')),

    -- Lifecycle clock (unix millis)
    created_at            INTEGER NOT NULL,
    wilts_at              INTEGER,
    composted_at          INTEGER,
    archived_at           INTEGER,

    -- Engagement
    view_count            INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0),
    net_vote_score        INTEGER NOT NULL DEFAULT 0,
    share_hours           REAL NOT NULL DEFAULT 0 CHECK (share_hours >= 0),
    reputation_multiplier REAL NOT NULL DEFAULT 1.0,

    -- Guards state and wilts_at against lost updates
    version               INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX idx_units_state_wilts   ON content_units(state, wilts_at);
CREATE INDEX idx_units_state_privacy ON content_units(state, privacy);
CREATE INDEX idx_units_author        ON content_units(author_id, created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "comments and votes",
		SQL: `
CREATE TABLE comments (
    id              TEXT PRIMARY KEY,
    unit_id         TEXT NOT NULL,
    author_id       TEXT NOT NULL,
    body            TEXT NOT NULL,
    positive_count  INTEGER NOT NULL DEFAULT 0 CHECK (positive_count >= 0),
    negative_count  INTEGER NOT NULL DEFAULT 0 CHECK (negative_count >= 0),
    retired_at      INTEGER,
    created_at      INTEGER NOT NULL,

    FOREIGN KEY (unit_id) REFERENCES content_units(id)
);

CREATE INDEX idx_comments_unit ON comments(unit_id, created_at);

CREATE TABLE votes (
    comment_id  TEXT NOT NULL,
    voter_id    TEXT NOT NULL,
    polarity    TEXT NOT NULL CHECK (polarity IN ('positive', 'negative')),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,

    PRIMARY KEY (comment_id, voter_id),
    FOREIGN KEY (comment_id) REFERENCES comments(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "discovery_markers and circles",
		SQL: `
CREATE TABLE discovery_markers (
    id          INTEGER PRIMARY KEY,
    unit_id     TEXT NOT NULL,
    viewer_id   TEXT NOT NULL,
    pathway     TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_markers_viewer  ON discovery_markers(viewer_id, created_at);
CREATE INDEX idx_markers_created ON discovery_markers(created_at);

CREATE TABLE circles (
    owner_id    TEXT NOT NULL,
    member_id   TEXT NOT NULL,
    scope       TEXT NOT NULL CHECK (scope IN ('connections', 'inner_circle', 'community')),
    created_at  INTEGER NOT NULL,

    PRIMARY KEY (owner_id, member_id, scope)
);

CREATE INDEX idx_circles_member ON circles(member_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
