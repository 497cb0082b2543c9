package detector

import (
	"log/slog"
	"math"
	"time"

	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/foxseedlab/signscribe/internal/segment"
)

const (
	DefaultScoreMin       = 0.80
	DefaultRequiredStreak = 6
	DefaultStableFor      = 600 * time.Millisecond
	DefaultCooldown       = 1500 * time.Millisecond
)

// DefaultGesturePhrases maps recognizer gesture names to the phrases they stand for.
func DefaultGesturePhrases() map[string]Phrase {
	return map[string]Phrase{
		"Thumb_Down":  {Text: "chest pain", Glosses: []string{"chest", "pain"}, EntityType: segment.EntityTypeSymptom},
		"Open_Palm":   {Text: "left side", Glosses: []string{"left", "side"}, EntityType: segment.EntityTypeBodySite},
		"Pointing_Up": {Text: "two days", Glosses: []string{"two", "days"}, EntityType: segment.EntityTypeDuration},
		"Thumb_Up":    {Text: "severe", Glosses: []string{"severe"}, EntityType: segment.EntityTypeSeverity},
	}
}

type GestureConfig struct {
	ScoreMin       float64
	RequiredStreak int
	StableFor      time.Duration
	Phrases        map[string]Phrase
}

func DefaultGestureConfig() GestureConfig {
	return GestureConfig{
		ScoreMin:       DefaultScoreMin,
		RequiredStreak: DefaultRequiredStreak,
		StableFor:      DefaultStableFor,
		Phrases:        DefaultGesturePhrases(),
	}
}

// GestureDetector turns per-frame gesture scores into debounced confirmed events.
// A gesture confirms once it has been the confident top gesture for RequiredStreak consecutive
// frames and for at least StableFor, and the shared cooldown has elapsed.
type GestureDetector struct {
	cfg      GestureConfig
	cooldown *Cooldown
	newID    IDFunc
	anchor   anchor

	streakName  string
	streakCount int
	stableSince time.Time
}

func NewGestureDetector(cfg GestureConfig, cooldown *Cooldown, newID IDFunc) *GestureDetector {
	if newID == nil {
		newID = newUUID
	}
	return &GestureDetector{cfg: cfg, cooldown: cooldown, newID: newID}
}

// Resume starts processing frames relative to startedAt with a fresh streak.
func (d *GestureDetector) Resume(startedAt time.Time) {
	d.resetStreak()
	d.anchor = anchor{active: true, startedAt: startedAt}
}

// Suspend drops any in-flight streak; frames are ignored until Resume.
func (d *GestureDetector) Suspend() {
	d.resetStreak()
	d.anchor.active = false
}

func (d *GestureDetector) Active() bool {
	return d.anchor.active
}

func (d *GestureDetector) Streak() (string, int) {
	return d.streakName, d.streakCount
}

func (d *GestureDetector) resetStreak() {
	d.streakName = ""
	d.streakCount = 0
	d.stableSince = time.Time{}
}

// Observe feeds one frame observed at now and returns the emission if the frame confirmed a gesture.
// validScore reports whether score is a usable classifier confidence. Anything else is treated
// like a frame without a gesture.
func validScore(score float64) bool {
	return !math.IsNaN(score) && score >= 0 && score <= 1
}

func (d *GestureDetector) Observe(frame recognizer.GestureFrame, now time.Time) (Emission, bool) {
	if !d.anchor.active {
		return Emission{}, false
	}
	top, ok := frame.Top()
	if !ok || !validScore(top.Score) || top.Score < d.cfg.ScoreMin {
		d.resetStreak()
		return Emission{}, false
	}
	phrase, mapped := d.cfg.Phrases[top.Name]
	if !mapped {
		d.resetStreak()
		return Emission{}, false
	}

	if top.Name == d.streakName {
		d.streakCount++
	} else {
		d.streakName = top.Name
		d.streakCount = 1
		d.stableSince = now
	}

	stable := now.Sub(d.stableSince)
	if d.streakCount < d.cfg.RequiredStreak || stable < d.cfg.StableFor || !d.cooldown.Ready(now) {
		return Emission{}, false
	}

	em := buildEmission(d.newID, d.anchor.rel(now), phrase, top.Score, map[string]any{
		"detector":  "gesture",
		"gesture":   top.Name,
		"score":     top.Score,
		"streak":    d.streakCount,
		"stable_ms": stable.Milliseconds(),
	})
	slog.Debug("gesture confirmed", "gesture", top.Name, "score", top.Score, "streak", d.streakCount, "stable_ms", stable.Milliseconds(), "segment_id", em.Segment.ID)
	d.resetStreak()
	d.cooldown.Mark(now)
	return em, true
}
