package repository

import (
	"context"
	"time"

	"github.com/foxseedlab/signscribe/internal/segment"
)

type CreateVisitInput struct {
	VisitID   string
	GuildID   string
	ChannelID string
	StartedAt time.Time
}

type CompleteVisitInput struct {
	VisitID string
	EndedAt time.Time
}

// ArchiveVisitInput is the full record of a visit. Archiving the same visit twice
// keeps the first copy of every segment and entity and overwrites the record text.
type ArchiveVisitInput struct {
	VisitID      string
	HealthRecord string
	Segments     []segment.Segment
	Entities     []segment.Entity
	ExportJSON   []byte
}

type VisitRepository interface {
	CreateVisit(ctx context.Context, input CreateVisitInput) (*Visit, error)
	CompleteVisit(ctx context.Context, input CompleteVisitInput) error
	DiscardVisit(ctx context.Context, visitID string) error
	GetRecordingVisitByChannel(ctx context.Context, guildID, channelID string) (*Visit, error)
}

type ArchiveRepository interface {
	ArchiveVisit(ctx context.Context, input ArchiveVisitInput) error
}

type Repository interface {
	VisitRepository
	ArchiveRepository
}
