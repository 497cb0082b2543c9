package detector

import (
	"log/slog"
	"math"
	"time"

	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/foxseedlab/signscribe/internal/segment"
)

const (
	DefaultMaxProximity = 0.12
	DefaultMinAlignment = 0.6
	DefaultHoldFor      = 300 * time.Millisecond
)

type SpatialConfig struct {
	Target recognizer.FaceKeypoint
	// MaxProximity is the fingertip to keypoint distance limit as a fraction of face width.
	MaxProximity float64
	// MinAlignment is the cosine the pointing direction must exceed.
	MinAlignment float64
	HoldFor      time.Duration
	// RequireIndexFingertip rejects frames where another landmark is closest to the target.
	// Pointing with other fingers is dropped while this is set.
	RequireIndexFingertip bool
	Phrase                Phrase
	Confidence            float64
}

func DefaultSpatialConfig() SpatialConfig {
	return SpatialConfig{
		Target:                recognizer.FaceRightEarTragion,
		MaxProximity:          DefaultMaxProximity,
		MinAlignment:          DefaultMinAlignment,
		HoldFor:               DefaultHoldFor,
		RequireIndexFingertip: true,
		Phrase:                Phrase{Text: "ear pain", Glosses: []string{"ear", "pain"}, EntityType: segment.EntityTypeSymptom},
		Confidence:            UnscoredConfidence,
	}
}

// PointingMeasure is the geometry of one hand relative to the target keypoint.
type PointingMeasure struct {
	NearestLandmark int
	Proximity       float64
	Alignment       float64
}

// SpatialDetector recognizes a fingertip held near and pointing at a facial keypoint.
type SpatialDetector struct {
	cfg      SpatialConfig
	cooldown *Cooldown
	newID    IDFunc
	anchor   anchor

	holding bool
	hold    time.Duration
	lastAt  time.Time
}

func NewSpatialDetector(cfg SpatialConfig, cooldown *Cooldown, newID IDFunc) *SpatialDetector {
	if newID == nil {
		newID = newUUID
	}
	return &SpatialDetector{cfg: cfg, cooldown: cooldown, newID: newID}
}

func (d *SpatialDetector) Resume(startedAt time.Time) {
	d.resetHold()
	d.anchor = anchor{active: true, startedAt: startedAt}
}

func (d *SpatialDetector) Suspend() {
	d.resetHold()
	d.anchor.active = false
}

func (d *SpatialDetector) Active() bool {
	return d.anchor.active
}

func (d *SpatialDetector) Held() time.Duration {
	return d.hold
}

func (d *SpatialDetector) resetHold() {
	d.holding = false
	d.hold = 0
	d.lastAt = time.Time{}
}

// Observe feeds one pose frame observed at now.
func (d *SpatialDetector) Observe(frame recognizer.PoseFrame, now time.Time) (Emission, bool) {
	if !d.anchor.active {
		return Emission{}, false
	}
	m, ok := d.bestQualifying(frame)
	if !ok {
		d.resetHold()
		return Emission{}, false
	}
	if d.holding {
		d.hold += now.Sub(d.lastAt)
	}
	d.holding = true
	d.lastAt = now

	if d.hold <= d.cfg.HoldFor || !d.cooldown.Ready(now) {
		return Emission{}, false
	}

	em := buildEmission(d.newID, d.anchor.rel(now), d.cfg.Phrase, d.cfg.Confidence, map[string]any{
		"detector":  "spatial",
		"landmark":  m.NearestLandmark,
		"proximity": m.Proximity,
		"alignment": m.Alignment,
		"hold_ms":   d.hold.Milliseconds(),
	})
	slog.Debug("pointing gesture confirmed", "proximity", m.Proximity, "alignment", m.Alignment, "hold_ms", d.hold.Milliseconds(), "segment_id", em.Segment.ID)
	d.hold = 0
	d.cooldown.Mark(now)
	return em, true
}

func (d *SpatialDetector) bestQualifying(frame recognizer.PoseFrame) (PointingMeasure, bool) {
	if frame.Face == nil || frame.Face.Box.Width <= 0 {
		return PointingMeasure{}, false
	}
	target, ok := frame.Face.Keypoint(d.cfg.Target)
	if !ok {
		return PointingMeasure{}, false
	}
	for _, hand := range frame.Hands {
		m, ok := MeasurePointing(hand, target, frame.Face.Box.Width)
		if ok && d.qualifies(m) {
			return m, true
		}
	}
	return PointingMeasure{}, false
}

func (d *SpatialDetector) qualifies(m PointingMeasure) bool {
	if d.cfg.RequireIndexFingertip && m.NearestLandmark != recognizer.HandIndexFingerTip {
		return false
	}
	return m.Proximity < d.cfg.MaxProximity && m.Alignment > d.cfg.MinAlignment
}

// MeasurePointing finds the hand landmark nearest to target and how well the index finger points at it.
func MeasurePointing(hand []recognizer.Point, target recognizer.Point, faceWidth float64) (PointingMeasure, bool) {
	if len(hand) <= recognizer.HandIndexFingerTip || faceWidth <= 0 {
		return PointingMeasure{}, false
	}
	nearest := 0
	nearestDist := math.Inf(1)
	for i, p := range hand {
		if d := distance(p, target); d < nearestDist {
			nearest = i
			nearestDist = d
		}
	}
	tip := hand[recognizer.HandIndexFingerTip]
	dip := hand[recognizer.HandIndexFingerDIP]
	return PointingMeasure{
		NearestLandmark: nearest,
		Proximity:       nearestDist / faceWidth,
		Alignment:       cosine(tip.X-dip.X, tip.Y-dip.Y, target.X-tip.X, target.Y-tip.Y),
	}, true
}

func distance(a, b recognizer.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// cosine of the angle between two 2D vectors; zero when either is degenerate.
func cosine(ax, ay, bx, by float64) float64 {
	na := math.Hypot(ax, ay)
	nb := math.Hypot(bx, by)
	if na == 0 || nb == 0 {
		return 0
	}
	return (ax*bx + ay*by) / (na * nb)
}
