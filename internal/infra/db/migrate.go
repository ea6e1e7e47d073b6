package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`
CREATE TABLE IF NOT EXISTS sources (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id      UUID NOT NULL,
    url          TEXT NOT NULL,
    title        TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    icon         TEXT NOT NULL DEFAULT '📰',
    category     TEXT NOT NULL DEFAULT '未分类',
    unread_count INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_fetched TIMESTAMPTZ,
    UNIQUE (user_id, url)
)`,
	`
CREATE TABLE IF NOT EXISTS articles (
    id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    source_id               UUID NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    guid                    TEXT NOT NULL UNIQUE,
    title                   TEXT NOT NULL,
    link                    TEXT NOT NULL DEFAULT '',
    description             TEXT NOT NULL DEFAULT '',
    content                 TEXT NOT NULL DEFAULT '',
    cover_image             TEXT,
    pub_date                TIMESTAMPTZ,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
    is_read                 BOOLEAN NOT NULL DEFAULT FALSE,
    is_favorite             BOOLEAN NOT NULL DEFAULT FALSE,
    is_trashed              BOOLEAN NOT NULL DEFAULT FALSE,
    trashed_at              TIMESTAMPTZ,
    ai_labels               JSONB,
    ai_label_status         TEXT NOT NULL DEFAULT 'pending'
        CHECK (ai_label_status IN ('pending', 'processing', 'done', 'error')),
    ai_label_error          TEXT,
    ai_summary              TEXT,
    ai_summary_status       TEXT NOT NULL DEFAULT 'pending'
        CHECK (ai_summary_status IN ('pending', 'processing', 'success', 'error', 'ignored')),
    ai_summary_error        TEXT,
    ai_summary_generated_at TIMESTAMPTZ
)`,
	// ラベル/要約キューの走査用
	`CREATE INDEX IF NOT EXISTS idx_articles_label_status ON articles(ai_label_status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_summary_status ON articles(ai_summary_status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_source_id ON articles(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sources_last_fetched ON sources(last_fetched NULLS FIRST)`,
}

// MigrateUp creates the schema. Every statement is idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("MigrateUp: statement %d: %w", i, err)
		}
	}
	return nil
}

// MigrateDown drops every table. All data is lost.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS articles CASCADE`,
		`DROP TABLE IF EXISTS sources CASCADE`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("MigrateDown: %w", err)
		}
	}
	return nil
}
