package webhook

import (
	"context"

	"github.com/foxseedlab/signscribe/internal/segment"
)

const ExportSchemaVersion = "2026-03-01"

type ExportApp struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ExportTurn struct {
	ID           int             `json:"id"`
	Speaker      segment.Speaker `json:"speaker,omitempty"`
	TStart       int64           `json:"tStart"`
	TEnd         int64           `json:"tEnd"`
	SegmentCount int             `json:"segmentCount"`
}

// ExportPayload is the downloadable record of a visit.
type ExportPayload struct {
	SchemaVersion  string            `json:"schemaVersion"`
	VisitID        string            `json:"visitId"`
	HealthRecord   string            `json:"healthRecord"`
	Segments       []segment.Segment `json:"segments"`
	Entities       []segment.Entity  `json:"entities"`
	Turns          []ExportTurn      `json:"turns"`
	VisitStartedAt *string           `json:"visitStartedAt"`
	GeneratedAt    string            `json:"generatedAt"`
	App            ExportApp         `json:"app"`
}

type Sender interface {
	SendExport(ctx context.Context, payload ExportPayload) error
}
