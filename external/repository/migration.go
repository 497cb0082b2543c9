package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE visit_status AS ENUM ('recording', 'completed', 'discarded'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS visits (
		id UUID PRIMARY KEY,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status visit_status NOT NULL DEFAULT 'recording',
		health_record TEXT NOT NULL DEFAULT '',
		export_json JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_recording ON visits (guild_id, channel_id) WHERE status = 'recording'`,
	`CREATE TABLE IF NOT EXISTS visit_segments (
		visit_id UUID NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		speaker TEXT NOT NULL,
		modality TEXT NOT NULL,
		t_start BIGINT NOT NULL,
		t_end BIGINT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		glosses TEXT[] NOT NULL DEFAULT '{}',
		confidence DOUBLE PRECISION NOT NULL,
		provenance JSONB,
		PRIMARY KEY (visit_id, id),
		CHECK (t_end >= t_start)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visit_segments_order ON visit_segments (visit_id, t_start)`,
	`CREATE TABLE IF NOT EXISTS visit_entities (
		visit_id UUID NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		source_segment_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (visit_id, id),
		FOREIGN KEY (visit_id, source_segment_id) REFERENCES visit_segments(visit_id, id)
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
