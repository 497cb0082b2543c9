package transcript

import (
	"strings"
	"time"

	"github.com/foxseedlab/signscribe/internal/segment"
	"github.com/foxseedlab/signscribe/internal/transcriber"
	"github.com/google/uuid"
)

// DefaultFallbackConfidence is used when the recognizer reported no confidence for any final result of a chunk.
const DefaultFallbackConfidence = 0.85

// Assembler collects the final results of one utterance chunk into a single clinician segment.
type Assembler struct {
	fallback float64
	newID    func() string

	open        bool
	chunkStart  time.Time
	texts       []string
	confidences []float64
}

func NewAssembler(fallback float64, newID func() string) *Assembler {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Assembler{fallback: fallback, newID: newID}
}

// Begin opens a new chunk at now, dropping anything not yet completed.
func (a *Assembler) Begin(now time.Time) {
	a.Discard()
	a.open = true
	a.chunkStart = now
}

func (a *Assembler) Discard() {
	a.open = false
	a.chunkStart = time.Time{}
	a.texts = nil
	a.confidences = nil
}

func (a *Assembler) Open() bool {
	return a.open
}

// Add records a result. Interim results and results outside an open chunk are ignored.
func (a *Assembler) Add(r transcriber.Result) {
	if !a.open || !r.IsFinal {
		return
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return
	}
	a.texts = append(a.texts, text)
	if r.HasConfidence {
		a.confidences = append(a.confidences, r.Confidence)
	}
}

// Pending returns the final text collected so far.
func (a *Assembler) Pending() string {
	return strings.Join(a.texts, " ")
}

// Complete closes the chunk at now and returns its segment, timed relative to visitStart.
// A chunk without final text yields no segment.
func (a *Assembler) Complete(now, visitStart time.Time) (segment.Segment, bool) {
	if !a.open {
		return segment.Segment{}, false
	}
	defer a.Discard()

	text := a.Pending()
	if text == "" {
		return segment.Segment{}, false
	}
	tStart := segment.RelativeMillis(visitStart, a.chunkStart)
	tEnd := segment.RelativeMillis(visitStart, now)
	if tEnd < tStart {
		tEnd = tStart
	}
	return segment.Segment{
		ID:         a.newID(),
		Speaker:    segment.SpeakerClinician,
		Modality:   segment.ModalitySpoken,
		TStart:     tStart,
		TEnd:       tEnd,
		Text:       text,
		Confidence: a.confidence(),
		Provenance: map[string]any{
			"producer": "transcriber",
			"results":  len(a.texts),
		},
	}, true
}

func (a *Assembler) confidence() float64 {
	if len(a.confidences) == 0 {
		return a.fallback
	}
	var sum float64
	for _, c := range a.confidences {
		sum += c
	}
	mean := sum / float64(len(a.confidences))
	return min(max(mean, 0), 1)
}
