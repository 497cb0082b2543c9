package transcript

import (
	"math"
	"testing"
	"time"

	"github.com/foxseedlab/signscribe/internal/segment"
	"github.com/foxseedlab/signscribe/internal/transcriber"
)

var visitStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedID() string { return "asr-1" }

func final(text string, conf float64) transcriber.Result {
	return transcriber.Result{Text: text, IsFinal: true, Confidence: conf, HasConfidence: true}
}

func TestAssembler_JoinsFinalsAndAveragesConfidence(t *testing.T) {
	a := NewAssembler(DefaultFallbackConfidence, fixedID)
	a.Begin(visitStart.Add(2 * time.Second))

	a.Add(transcriber.Result{Text: "where does", IsFinal: false})
	a.Add(final(" where does it hurt ", 0.9))
	a.Add(final("show me", 0.7))

	seg, ok := a.Complete(visitStart.Add(5*time.Second), visitStart)
	if !ok {
		t.Fatal("expected a segment")
	}
	if seg.Text != "where does it hurt show me" {
		t.Fatalf("unexpected text: %q", seg.Text)
	}
	if math.Abs(seg.Confidence-0.8) > 1e-9 {
		t.Fatalf("confidence = %f, want 0.8", seg.Confidence)
	}
	if seg.TStart != 2000 || seg.TEnd != 5000 {
		t.Fatalf("unexpected timing [%d,%d]", seg.TStart, seg.TEnd)
	}
	if seg.Speaker != segment.SpeakerClinician || seg.Modality != segment.ModalitySpoken || seg.ID != "asr-1" {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if err := seg.Validate(); err != nil {
		t.Fatalf("assembled segment is invalid: %v", err)
	}
	if a.Open() {
		t.Fatal("expected chunk closed after complete")
	}
}

func TestAssembler_FallbackConfidence(t *testing.T) {
	a := NewAssembler(DefaultFallbackConfidence, fixedID)
	a.Begin(visitStart)
	a.Add(transcriber.Result{Text: "any allergies", IsFinal: true})

	seg, ok := a.Complete(visitStart.Add(time.Second), visitStart)

	if !ok || seg.Confidence != DefaultFallbackConfidence {
		t.Fatalf("expected fallback confidence, got %+v ok=%v", seg, ok)
	}
}

func TestAssembler_NoFinalTextYieldsNothing(t *testing.T) {
	a := NewAssembler(DefaultFallbackConfidence, fixedID)
	a.Begin(visitStart)
	a.Add(transcriber.Result{Text: "partial", IsFinal: false})
	a.Add(final("   ", 0.9))

	if _, ok := a.Complete(visitStart.Add(time.Second), visitStart); ok {
		t.Fatal("expected no segment without final text")
	}
}

func TestAssembler_IgnoresResultsOutsideChunk(t *testing.T) {
	a := NewAssembler(DefaultFallbackConfidence, fixedID)
	a.Add(final("stray", 0.9))

	if a.Pending() != "" {
		t.Fatalf("expected nothing pending, got %q", a.Pending())
	}
	if _, ok := a.Complete(visitStart, visitStart); ok {
		t.Fatal("expected no segment without an open chunk")
	}
}

func TestAssembler_BeginDropsUncompletedChunk(t *testing.T) {
	a := NewAssembler(DefaultFallbackConfidence, fixedID)
	a.Begin(visitStart)
	a.Add(final("old", 0.5))
	a.Begin(visitStart.Add(time.Second))
	a.Add(final("new", 0.9))

	seg, ok := a.Complete(visitStart.Add(2*time.Second), visitStart)

	if !ok || seg.Text != "new" || seg.TStart != 1000 {
		t.Fatalf("unexpected segment: %+v", seg)
	}
}
