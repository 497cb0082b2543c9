package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/signscribe/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateVisit(ctx context.Context, input repository.CreateVisitInput) (*repository.Visit, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO visits (id, guild_id, channel_id, started_at, status)
		 VALUES ($1, $2, $3, $4, 'recording')
		 RETURNING id, guild_id, channel_id, started_at, ended_at, status, health_record, created_at, updated_at`,
		input.VisitID, input.GuildID, input.ChannelID, input.StartedAt)
	return scanVisit(row)
}

func (r *PostgresRepository) CompleteVisit(ctx context.Context, input repository.CompleteVisitInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE visits SET status = 'completed', ended_at = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'recording'`,
		input.VisitID, input.EndedAt)
	return err
}

func (r *PostgresRepository) DiscardVisit(ctx context.Context, visitID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE visits SET status = 'discarded', ended_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'recording'`,
		visitID)
	return err
}

func (r *PostgresRepository) GetRecordingVisitByChannel(ctx context.Context, guildID, channelID string) (*repository.Visit, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, guild_id, channel_id, started_at, ended_at, status, health_record, created_at, updated_at
		 FROM visits WHERE guild_id = $1 AND channel_id = $2 AND status = 'recording'
		 ORDER BY started_at DESC LIMIT 1`,
		guildID, channelID)
	v, err := scanVisit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func scanVisit(row pgx.Row) (*repository.Visit, error) {
	var v repository.Visit
	var endedAt *time.Time
	err := row.Scan(&v.ID, &v.GuildID, &v.ChannelID, &v.StartedAt, &endedAt, &v.Status, &v.HealthRecord, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.EndedAt = endedAt
	return &v, nil
}

// ArchiveVisit writes segments, entities and the record text in one transaction.
func (r *PostgresRepository) ArchiveVisit(ctx context.Context, input repository.ArchiveVisitInput) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	batch.Queue(
		`UPDATE visits SET health_record = $2, export_json = $3, updated_at = NOW() WHERE id = $1`,
		input.VisitID, input.HealthRecord, nullableJSON(input.ExportJSON))
	for _, s := range input.Segments {
		provenance, err := marshalProvenance(s.Provenance)
		if err != nil {
			return fmt.Errorf("segment %s: %w", s.ID, err)
		}
		batch.Queue(
			`INSERT INTO visit_segments (visit_id, id, speaker, modality, t_start, t_end, text, glosses, confidence, provenance)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (visit_id, id) DO NOTHING`,
			input.VisitID, s.ID, string(s.Speaker), string(s.Modality), s.TStart, s.TEnd, s.Text, glossesOrEmpty(s.Glosses), s.Confidence, provenance)
	}
	for i, e := range input.Entities {
		batch.Queue(
			`INSERT INTO visit_entities (visit_id, id, type, text, code, source_segment_id, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (visit_id, id) DO NOTHING`,
			input.VisitID, e.ID, string(e.Type), e.Text, e.Code, e.SourceSegmentID, i)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("archive visit %s: %w", input.VisitID, err)
	}
	return tx.Commit(ctx)
}

func marshalProvenance(p map[string]any) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return json.Marshal(p)
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func glossesOrEmpty(g []string) []string {
	if g == nil {
		return []string{}
	}
	return g
}
