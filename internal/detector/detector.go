package detector

import (
	"time"

	"github.com/foxseedlab/signscribe/internal/segment"
	"github.com/google/uuid"
)

// UnscoredConfidence is attached to emissions from producers that report no native score.
// It is a placeholder, not a calibrated value.
const UnscoredConfidence = 0.99

// Phrase is what a confirmed gesture means: display text, gloss tokens and the derived fact.
type Phrase struct {
	Text       string
	Glosses    []string
	EntityType segment.EntityType
	Code       string
}

// Emission is a confirmed event: one segment and the single entity derived from it.
type Emission struct {
	Segment segment.Segment
	Entity  segment.Entity
}

// IDFunc generates segment and entity ids.
type IDFunc func() string

func newUUID() string {
	return uuid.NewString()
}

// Cooldown is the emission clock shared by every detector of a visit.
type Cooldown struct {
	period time.Duration
	last   time.Time
	marked bool
}

func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period}
}

func (c *Cooldown) Ready(now time.Time) bool {
	return !c.marked || now.Sub(c.last) >= c.period
}

func (c *Cooldown) Mark(now time.Time) {
	c.last = now
	c.marked = true
}

func (c *Cooldown) Clear() {
	c.last = time.Time{}
	c.marked = false
}

// anchor tracks whether frames should be processed and the visit start they are relative to.
type anchor struct {
	active    bool
	startedAt time.Time
}

func (a *anchor) rel(now time.Time) int64 {
	return segment.RelativeMillis(a.startedAt, now)
}

func buildEmission(newID IDFunc, at int64, phrase Phrase, confidence float64, provenance map[string]any) Emission {
	seg := segment.Segment{
		ID:         newID(),
		Speaker:    segment.SpeakerPatient,
		Modality:   segment.ModalitySigned,
		TStart:     at,
		TEnd:       at,
		Text:       phrase.Text,
		Glosses:    append([]string(nil), phrase.Glosses...),
		Confidence: confidence,
		Provenance: provenance,
	}
	return Emission{
		Segment: seg,
		Entity: segment.Entity{
			ID:              newID(),
			Type:            phrase.EntityType,
			Text:            phrase.Text,
			Code:            phrase.Code,
			SourceSegmentID: seg.ID,
		},
	}
}
