package detector

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/foxseedlab/signscribe/internal/segment"
)

var visitStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sequentialIDs() IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func gestureFrame(name string, score float64) recognizer.GestureFrame {
	return recognizer.GestureFrame{Gestures: [][]recognizer.GestureCandidate{{{Name: name, Score: score}}}}
}

func testGestureConfig() GestureConfig {
	cfg := DefaultGestureConfig()
	cfg.ScoreMin = 0.8
	cfg.RequiredStreak = 6
	cfg.StableFor = 500 * time.Millisecond
	return cfg
}

func newTestGestureDetector() (*GestureDetector, *Cooldown) {
	cooldown := NewCooldown(1500 * time.Millisecond)
	d := NewGestureDetector(testGestureConfig(), cooldown, sequentialIDs())
	d.Resume(visitStart)
	return d, cooldown
}

type gestureStep struct {
	name  string
	score float64
}

// feed sends steps spaced by interval starting at from and returns the emissions with the frame index they occurred on.
func feed(d *GestureDetector, from time.Time, interval time.Duration, steps []gestureStep) ([]Emission, []int) {
	var (
		out     []Emission
		indexes []int
	)
	for i, s := range steps {
		if em, ok := d.Observe(gestureFrame(s.name, s.score), from.Add(time.Duration(i)*interval)); ok {
			out = append(out, em)
			indexes = append(indexes, i)
		}
	}
	return out, indexes
}

func repeat(name string, score float64, n int) []gestureStep {
	steps := make([]gestureStep, n)
	for i := range steps {
		steps[i] = gestureStep{name: name, score: score}
	}
	return steps
}

// Ten frames 33ms apart span 297ms, short of the 500ms dwell, so the commonly quoted
// "exactly one emission" for this stream cannot hold. The next test covers the single emission.
func TestGestureDetector_TenFastFramesDoNotSatisfyDwell(t *testing.T) {
	d, _ := newTestGestureDetector()

	got, _ := feed(d, visitStart.Add(5*time.Second), 33*time.Millisecond, repeat("Thumb_Down", 0.95, 10))

	if len(got) != 0 {
		t.Fatalf("297ms of frames must not satisfy a 500ms dwell, got %d emissions", len(got))
	}
}

func TestGestureDetector_EmitsOnceOnFirstFrameMeetingBothGates(t *testing.T) {
	d, _ := newTestGestureDetector()
	start := visitStart.Add(5 * time.Second)

	got, idx := feed(d, start, 33*time.Millisecond, repeat("Thumb_Down", 0.95, 30))

	if len(got) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(got))
	}
	// frame 16 is the first at or past 500ms (528ms); the streak is long since past 6 frames
	if idx[0] != 16 {
		t.Fatalf("expected emission on frame 16, got %d", idx[0])
	}
	em := got[0]
	wantAt := int64(5000 + 16*33)
	if em.Segment.TStart != wantAt || em.Segment.TEnd != wantAt {
		t.Fatalf("expected instantaneous segment at %d, got [%d,%d]", wantAt, em.Segment.TStart, em.Segment.TEnd)
	}
	if em.Segment.Speaker != segment.SpeakerPatient || em.Segment.Modality != segment.ModalitySigned {
		t.Fatalf("unexpected speaker/modality: %+v", em.Segment)
	}
	if em.Segment.Text != "chest pain" || em.Segment.Confidence != 0.95 {
		t.Fatalf("unexpected segment payload: %+v", em.Segment)
	}
	if em.Entity.SourceSegmentID != em.Segment.ID || em.Entity.Type != segment.EntityTypeSymptom {
		t.Fatalf("entity not correlated with segment: %+v", em.Entity)
	}
	if em.Segment.Provenance["gesture"] != "Thumb_Down" {
		t.Fatalf("unexpected provenance: %+v", em.Segment.Provenance)
	}
}

func TestGestureDetector_OutOfRangeScoreNeverConfirms(t *testing.T) {
	for _, score := range []float64{1.5, math.NaN(), math.Inf(1), -0.2} {
		t.Run(fmt.Sprint(score), func(t *testing.T) {
			d, cooldown := newTestGestureDetector()
			start := visitStart.Add(5 * time.Second)

			bad, _ := feed(d, start, 50*time.Millisecond, repeat("Thumb_Down", score, 20))
			if len(bad) != 0 {
				t.Fatalf("score %v must not confirm, got %d emissions", score, len(bad))
			}
			after := start.Add(time.Second)
			if !cooldown.Ready(after) {
				t.Fatal("rejected frames must not use up the shared cooldown")
			}

			good, _ := feed(d, after, 50*time.Millisecond, repeat("Open_Palm", 0.9, 25))
			if len(good) != 1 {
				t.Fatalf("expected the following valid gesture to emit once, got %d", len(good))
			}
			if good[0].Segment.Confidence != 0.9 {
				t.Fatalf("unexpected confidence %v", good[0].Segment.Confidence)
			}
		})
	}
}

func TestGestureDetector_StreakCountGateWithSlowFrames(t *testing.T) {
	d, _ := newTestGestureDetector()

	// at 200ms spacing the dwell passes on frame 3 but the count gate holds until frame 5
	_, idx := feed(d, visitStart, 200*time.Millisecond, repeat("Open_Palm", 0.9, 8))

	if len(idx) != 1 || idx[0] != 5 {
		t.Fatalf("expected a single emission on frame 5, got %v", idx)
	}
}

func TestGestureDetector_DipResetsStreak(t *testing.T) {
	d, _ := newTestGestureDetector()
	steps := append(repeat("Thumb_Down", 0.95, 5), gestureStep{name: "Thumb_Down", score: 0.50})
	steps = append(steps, repeat("Thumb_Down", 0.95, 6)...)

	got, idx := feed(d, visitStart, 100*time.Millisecond, steps)

	if len(got) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(got))
	}
	if idx[0] != 11 {
		t.Fatalf("expected the second streak to emit on its sixth frame (11), got %d", idx[0])
	}
	if got[0].Segment.Provenance["streak"] != 6 {
		t.Fatalf("expected streak of 6 in provenance, got %v", got[0].Segment.Provenance["streak"])
	}
}

func TestGestureDetector_CooldownSuppressesRefire(t *testing.T) {
	d, _ := newTestGestureDetector()

	// first confirmation at 500ms; a fresh streak would be confirmable again at 1100ms
	got, _ := feed(d, visitStart, 100*time.Millisecond, repeat("Thumb_Down", 0.95, 15))

	if len(got) != 1 {
		t.Fatalf("expected one emission inside the cooldown, got %d", len(got))
	}
}

func TestGestureDetector_HeldGestureRefiresAfterCooldown(t *testing.T) {
	d, _ := newTestGestureDetector()

	_, idx := feed(d, visitStart, 100*time.Millisecond, repeat("Thumb_Down", 0.95, 21))

	if len(idx) != 2 || idx[0] != 5 || idx[1] != 20 {
		t.Fatalf("expected emissions on frames 5 and 20, got %v", idx)
	}
}

func TestGestureDetector_CooldownIsGlobalAcrossGestures(t *testing.T) {
	d, _ := newTestGestureDetector()
	steps := append(repeat("Thumb_Down", 0.95, 6), repeat("Open_Palm", 0.95, 7)...)

	got, _ := feed(d, visitStart, 100*time.Millisecond, steps)

	if len(got) != 1 || got[0].Segment.Text != "chest pain" {
		t.Fatalf("expected only the first gesture to emit, got %+v", got)
	}
}

func TestGestureDetector_CooldownSharedWithOtherDetectors(t *testing.T) {
	d, cooldown := newTestGestureDetector()
	cooldown.Mark(visitStart)

	got, _ := feed(d, visitStart, 100*time.Millisecond, repeat("Thumb_Down", 0.95, 10))

	if len(got) != 0 {
		t.Fatalf("expected the shared cooldown to suppress emission, got %d", len(got))
	}
}

func TestGestureDetector_UnmappedGestureBreaksStreak(t *testing.T) {
	d, _ := newTestGestureDetector()
	steps := append(repeat("Thumb_Down", 0.95, 4), gestureStep{name: "None", score: 0.99})
	steps = append(steps, repeat("Thumb_Down", 0.95, 4)...)

	got, _ := feed(d, visitStart, 150*time.Millisecond, steps)

	if len(got) != 0 {
		t.Fatalf("expected no emission, got %d", len(got))
	}
	if name, count := d.Streak(); name != "Thumb_Down" || count != 4 {
		t.Fatalf("unexpected streak: %s x%d", name, count)
	}
}

func TestGestureDetector_SuspendClearsStreakAndIgnoresFrames(t *testing.T) {
	d, _ := newTestGestureDetector()
	feed(d, visitStart, 100*time.Millisecond, repeat("Thumb_Down", 0.95, 5))

	d.Suspend()
	if name, count := d.Streak(); name != "" || count != 0 {
		t.Fatalf("expected streak cleared on suspend, got %s x%d", name, count)
	}
	if _, ok := d.Observe(gestureFrame("Thumb_Down", 0.95), visitStart.Add(time.Second)); ok {
		t.Fatal("expected suspended detector to ignore frames")
	}
	if _, count := d.Streak(); count != 0 {
		t.Fatal("suspended detector must not accumulate")
	}

	d.Resume(visitStart.Add(time.Minute))
	_, idx := feed(d, visitStart.Add(time.Minute), 100*time.Millisecond, repeat("Thumb_Down", 0.95, 6))
	if len(idx) != 1 || idx[0] != 5 {
		t.Fatalf("expected a full fresh streak after resume, got %v", idx)
	}
}

func TestGestureDetector_EmptyFrameResetsStreak(t *testing.T) {
	d, _ := newTestGestureDetector()
	feed(d, visitStart, 100*time.Millisecond, repeat("Thumb_Down", 0.95, 3))

	if _, ok := d.Observe(recognizer.GestureFrame{}, visitStart.Add(time.Second)); ok {
		t.Fatal("empty frame must not emit")
	}
	if _, count := d.Streak(); count != 0 {
		t.Fatalf("expected empty frame to reset streak, got %d", count)
	}
}

func TestGestureFrameTopAcrossHands(t *testing.T) {
	frame := recognizer.GestureFrame{Gestures: [][]recognizer.GestureCandidate{
		{{Name: "Open_Palm", Score: 0.7}},
		{},
		{{Name: "Thumb_Down", Score: 0.9}, {Name: "Open_Palm", Score: 0.05}},
	}}

	top, ok := frame.Top()

	if !ok || top.Name != "Thumb_Down" || top.Score != 0.9 {
		t.Fatalf("unexpected top gesture: %+v ok=%v", top, ok)
	}
}
