package visit

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/foxseedlab/signscribe/internal/segment"
	"github.com/foxseedlab/signscribe/internal/store"
	"github.com/foxseedlab/signscribe/internal/webhook"
)

const AppName = "signscribe"

// AppVersion is overridden at build time with -ldflags "-X".
var AppVersion = "dev"

// kept separate from time.DateTime so the export layout can change on its own
const exportTimeLayout = "2006-01-02 15:04:05"

func buildExportPayload(visitID string, snap store.Snapshot, generatedAt time.Time, turnGap time.Duration) webhook.ExportPayload {
	segments := segment.SortByStart(snap.Segments)
	entities := snap.Entities
	if entities == nil {
		entities = []segment.Entity{}
	}

	var startedAt *string
	if !snap.Visit.StartedAt.IsZero() {
		s := snap.Visit.StartedAt.UTC().Format(time.RFC3339Nano)
		startedAt = &s
	}

	return webhook.ExportPayload{
		SchemaVersion:  webhook.ExportSchemaVersion,
		VisitID:        visitID,
		HealthRecord:   snap.HealthRecord,
		Segments:       segments,
		Entities:       entities,
		Turns:          buildExportTurns(segments, turnGap),
		VisitStartedAt: startedAt,
		GeneratedAt:    generatedAt.UTC().Format(time.RFC3339Nano),
		App:            webhook.ExportApp{Name: AppName, Version: AppVersion},
	}
}

func buildExportTurns(segments []segment.Segment, gap time.Duration) []webhook.ExportTurn {
	turns := segment.LabelTurns(segments, gap)
	out := make([]webhook.ExportTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, webhook.ExportTurn{
			ID:           t.ID,
			Speaker:      t.Speaker,
			TStart:       t.TStart,
			TEnd:         t.TEnd,
			SegmentCount: len(t.Segments),
		})
	}
	return out
}

func marshalExport(payload webhook.ExportPayload) ([]byte, error) {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return body, nil
}

// buildExportText renders the human readable companion of the export: a header, the
// conversation grouped into turns and the health record.
func buildExportText(payload webhook.ExportPayload, startedAt, generatedAt time.Time, timezone string, loc *time.Location, turnGap time.Duration) []byte {
	loc = safeLocation(loc)
	lines := []string{
		fmt.Sprintf("Visit: %s", payload.VisitID),
		fmt.Sprintf("Started: %s (%s)", startedAt.In(loc).Format(exportTimeLayout), timezone),
		fmt.Sprintf("Exported: %s (%s)", generatedAt.In(loc).Format(exportTimeLayout), timezone),
		fmt.Sprintf("Segments: %d  Entities: %d", len(payload.Segments), len(payload.Entities)),
		"",
	}
	for _, turn := range segment.LabelTurns(payload.Segments, turnGap) {
		lines = append(lines, fmt.Sprintf("[%s] %s", segment.FormatClock(turn.TStart), speakerLabel(turn.Speaker)))
		for _, seg := range turn.Segments {
			lines = append(lines, fmt.Sprintf("  %s %s (%s)", segment.FormatClockMillis(seg.TStart), seg.DisplayText(), seg.Modality))
		}
	}
	if record := strings.TrimSpace(payload.HealthRecord); record != "" {
		lines = append(lines, "", "Health record:", record)
	}
	return []byte(strings.Join(lines, "\n"))
}

func speakerLabel(s segment.Speaker) string {
	if s == "" {
		return "mixed"
	}
	return string(s)
}

// formatCaption renders a coalesced run as one caption line.
func formatCaption(run segment.Segment) string {
	return fmt.Sprintf("**%s** [%s–%s] %s (%s)",
		run.Speaker,
		segment.FormatClockMillis(run.TStart),
		segment.FormatClockMillis(run.TEnd),
		run.DisplayText(),
		formatPercent(run.Confidence),
	)
}

func formatPercent(confidence float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(confidence*100)))
}

// captionRun finds the coalesced run that contains seg.
func captionRun(segments []segment.Segment, seg segment.Segment, window time.Duration) segment.Segment {
	for _, run := range segment.Coalesce(segments, window) {
		if run.Speaker != seg.Speaker || run.Modality != seg.Modality {
			continue
		}
		if run.TStart <= seg.TStart && seg.TEnd <= run.TEnd {
			return run
		}
	}
	return seg
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
