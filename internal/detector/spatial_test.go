package detector

import (
	"math"
	"testing"
	"time"

	"github.com/foxseedlab/signscribe/internal/recognizer"
	"github.com/foxseedlab/signscribe/internal/segment"
)

var earTarget = recognizer.Point{X: 0.30, Y: 0.40}

func testFace() *recognizer.Face {
	keypoints := make([]recognizer.Point, 6)
	keypoints[recognizer.FaceRightEye] = recognizer.Point{X: 0.40, Y: 0.30}
	keypoints[recognizer.FaceLeftEye] = recognizer.Point{X: 0.50, Y: 0.30}
	keypoints[recognizer.FaceNose] = recognizer.Point{X: 0.45, Y: 0.38}
	keypoints[recognizer.FaceMouth] = recognizer.Point{X: 0.45, Y: 0.45}
	keypoints[recognizer.FaceRightEarTragion] = earTarget
	keypoints[recognizer.FaceLeftEarTragion] = recognizer.Point{X: 0.60, Y: 0.40}
	return &recognizer.Face{
		Box:       recognizer.BoundingBox{X: 0.30, Y: 0.25, Width: 0.20, Height: 0.30},
		Keypoints: keypoints,
	}
}

// hand builds a skeleton parked away from the face with the index finger placed explicitly.
func hand(dip, tip recognizer.Point) []recognizer.Point {
	points := make([]recognizer.Point, recognizer.HandLandmarkCount)
	for i := range points {
		points[i] = recognizer.Point{X: 0.80, Y: 0.90}
	}
	points[recognizer.HandIndexFingerDIP] = dip
	points[recognizer.HandIndexFingerTip] = tip
	return points
}

// pointingHand has its index fingertip 0.014 from the tragion and pointing straight at it.
func pointingHand() []recognizer.Point {
	return hand(recognizer.Point{X: 0.26, Y: 0.44}, recognizer.Point{X: 0.29, Y: 0.41})
}

func restingHand() []recognizer.Point {
	return hand(recognizer.Point{X: 0.70, Y: 0.85}, recognizer.Point{X: 0.72, Y: 0.83})
}

func poseFrame(hands ...[]recognizer.Point) recognizer.PoseFrame {
	return recognizer.PoseFrame{Hands: hands, Face: testFace()}
}

func newTestSpatialDetector() (*SpatialDetector, *Cooldown) {
	cooldown := NewCooldown(1500 * time.Millisecond)
	d := NewSpatialDetector(DefaultSpatialConfig(), cooldown, sequentialIDs())
	d.Resume(visitStart)
	return d, cooldown
}

func feedPose(d *SpatialDetector, from time.Time, interval time.Duration, frames []recognizer.PoseFrame) ([]Emission, []int) {
	var (
		out     []Emission
		indexes []int
	)
	for i, f := range frames {
		if em, ok := d.Observe(f, from.Add(time.Duration(i)*interval)); ok {
			out = append(out, em)
			indexes = append(indexes, i)
		}
	}
	return out, indexes
}

func repeatPose(f recognizer.PoseFrame, n int) []recognizer.PoseFrame {
	frames := make([]recognizer.PoseFrame, n)
	for i := range frames {
		frames[i] = f
	}
	return frames
}

func TestMeasurePointing(t *testing.T) {
	m, ok := MeasurePointing(pointingHand(), earTarget, 0.20)
	if !ok {
		t.Fatal("expected a measurement")
	}
	if m.NearestLandmark != recognizer.HandIndexFingerTip {
		t.Fatalf("expected index fingertip nearest, got %d", m.NearestLandmark)
	}
	wantProximity := math.Hypot(0.01, 0.01) / 0.20
	if math.Abs(m.Proximity-wantProximity) > 1e-9 {
		t.Fatalf("proximity = %f, want %f", m.Proximity, wantProximity)
	}
	if math.Abs(m.Alignment-1) > 1e-9 {
		t.Fatalf("alignment = %f, want 1", m.Alignment)
	}
}

func TestMeasurePointing_PointingAway(t *testing.T) {
	// fingertip near the ear but the finger points away from it
	away := hand(recognizer.Point{X: 0.32, Y: 0.38}, recognizer.Point{X: 0.29, Y: 0.41})

	m, ok := MeasurePointing(away, earTarget, 0.20)

	if !ok {
		t.Fatal("expected a measurement")
	}
	if m.Alignment >= 0 {
		t.Fatalf("expected negative alignment, got %f", m.Alignment)
	}
}

func TestMeasurePointing_RejectsShortSkeletonAndZeroWidth(t *testing.T) {
	if _, ok := MeasurePointing(make([]recognizer.Point, 5), earTarget, 0.2); ok {
		t.Fatal("expected short skeleton to be rejected")
	}
	if _, ok := MeasurePointing(pointingHand(), earTarget, 0); ok {
		t.Fatal("expected zero face width to be rejected")
	}
}

func TestSpatialDetector_EmitsAfterHold(t *testing.T) {
	d, _ := newTestSpatialDetector()

	got, idx := feedPose(d, visitStart.Add(2*time.Second), 100*time.Millisecond, repeatPose(poseFrame(pointingHand()), 6))

	if len(got) != 1 {
		t.Fatalf("expected exactly one emission, got %d", len(got))
	}
	// the hold must exceed 300ms, so the fifth frame (400ms) is the first to qualify
	if idx[0] != 4 {
		t.Fatalf("expected emission on frame 4, got %d", idx[0])
	}
	em := got[0]
	if em.Segment.Text != "ear pain" || em.Segment.Confidence != UnscoredConfidence {
		t.Fatalf("unexpected segment: %+v", em.Segment)
	}
	if em.Segment.TStart != 2400 || em.Segment.TEnd != 2400 {
		t.Fatalf("expected instantaneous segment at 2400, got [%d,%d]", em.Segment.TStart, em.Segment.TEnd)
	}
	if em.Entity.Type != segment.EntityTypeSymptom || em.Entity.SourceSegmentID != em.Segment.ID {
		t.Fatalf("unexpected entity: %+v", em.Entity)
	}
}

func TestSpatialDetector_HoldExactlyAtThresholdDoesNotEmit(t *testing.T) {
	d, _ := newTestSpatialDetector()

	got, _ := feedPose(d, visitStart, 100*time.Millisecond, repeatPose(poseFrame(pointingHand()), 4))

	if len(got) != 0 {
		t.Fatalf("a 300ms hold must not emit, got %d", len(got))
	}
	if d.Held() != 300*time.Millisecond {
		t.Fatalf("held = %s, want 300ms", d.Held())
	}
}

func TestSpatialDetector_DisqualifyingFrameResetsHold(t *testing.T) {
	d, _ := newTestSpatialDetector()
	frames := repeatPose(poseFrame(pointingHand()), 3)
	frames = append(frames, poseFrame(restingHand()))
	frames = append(frames, repeatPose(poseFrame(pointingHand()), 4)...)

	got, _ := feedPose(d, visitStart, 100*time.Millisecond, frames)

	if len(got) != 0 {
		t.Fatalf("expected the interruption to restart the hold, got %d emissions", len(got))
	}
	if d.Held() != 300*time.Millisecond {
		t.Fatalf("held = %s, want 300ms", d.Held())
	}
}

func TestSpatialDetector_MissingFaceResetsHold(t *testing.T) {
	d, _ := newTestSpatialDetector()
	feedPose(d, visitStart, 100*time.Millisecond, repeatPose(poseFrame(pointingHand()), 3))

	d.Observe(recognizer.PoseFrame{Hands: [][]recognizer.Point{pointingHand()}}, visitStart.Add(300*time.Millisecond))

	if d.Held() != 0 {
		t.Fatalf("expected hold reset without a face, got %s", d.Held())
	}
}

func TestSpatialDetector_AnyHandQualifies(t *testing.T) {
	d, _ := newTestSpatialDetector()

	got, _ := feedPose(d, visitStart, 100*time.Millisecond, repeatPose(poseFrame(restingHand(), pointingHand()), 5))

	if len(got) != 1 {
		t.Fatalf("expected the second hand to qualify, got %d emissions", len(got))
	}
}

func TestSpatialDetector_RequireIndexFingertip(t *testing.T) {
	// middle knuckle is nearer the ear than the fingertip
	knuckle := pointingHand()
	knuckle[recognizer.HandIndexFingerTip+1] = recognizer.Point{X: 0.295, Y: 0.405}

	strict, _ := newTestSpatialDetector()
	got, _ := feedPose(strict, visitStart, 100*time.Millisecond, repeatPose(poseFrame(knuckle), 6))
	if len(got) != 0 {
		t.Fatalf("expected strict detector to reject, got %d", len(got))
	}

	cfg := DefaultSpatialConfig()
	cfg.RequireIndexFingertip = false
	loose := NewSpatialDetector(cfg, NewCooldown(1500*time.Millisecond), sequentialIDs())
	loose.Resume(visitStart)
	got, _ = feedPose(loose, visitStart, 100*time.Millisecond, repeatPose(poseFrame(knuckle), 6))
	if len(got) != 1 {
		t.Fatalf("expected relaxed detector to emit once, got %d", len(got))
	}
}

func TestSpatialDetector_SharesCooldownWithGestures(t *testing.T) {
	cooldown := NewCooldown(1500 * time.Millisecond)
	gestures := NewGestureDetector(testGestureConfig(), cooldown, sequentialIDs())
	spatial := NewSpatialDetector(DefaultSpatialConfig(), cooldown, sequentialIDs())
	gestures.Resume(visitStart)
	spatial.Resume(visitStart)

	if _, idx := feed(gestures, visitStart, 100*time.Millisecond, repeat("Thumb_Down", 0.95, 6)); len(idx) != 1 {
		t.Fatalf("expected gesture emission, got %v", idx)
	}

	// gesture fired at 500ms; pointing is held from 600ms to 1900ms
	got, _ := feedPose(spatial, visitStart.Add(600*time.Millisecond), 100*time.Millisecond, repeatPose(poseFrame(pointingHand()), 14))
	if len(got) != 0 {
		t.Fatalf("expected cooldown to suppress pointing, got %d", len(got))
	}

	em, ok := spatial.Observe(poseFrame(pointingHand()), visitStart.Add(2000*time.Millisecond))
	if !ok {
		t.Fatal("expected pointing to emit once the cooldown elapsed")
	}
	if em.Segment.TStart != 2000 {
		t.Fatalf("unexpected emission time %d", em.Segment.TStart)
	}
}

func TestSpatialDetector_SuspendedIgnoresFrames(t *testing.T) {
	d, _ := newTestSpatialDetector()
	d.Suspend()

	got, _ := feedPose(d, visitStart, 100*time.Millisecond, repeatPose(poseFrame(pointingHand()), 10))

	if len(got) != 0 || d.Held() != 0 {
		t.Fatalf("expected no activity while suspended, got %d emissions held=%s", len(got), d.Held())
	}
	if d.Active() {
		t.Fatal("expected detector to be inactive")
	}
}

func TestCooldown(t *testing.T) {
	c := NewCooldown(time.Second)
	if !c.Ready(visitStart) {
		t.Fatal("unmarked cooldown must be ready")
	}
	c.Mark(visitStart)
	if c.Ready(visitStart.Add(999 * time.Millisecond)) {
		t.Fatal("expected cooldown to block inside its period")
	}
	if !c.Ready(visitStart.Add(time.Second)) {
		t.Fatal("expected cooldown to be ready at its period")
	}
	c.Clear()
	if !c.Ready(visitStart) {
		t.Fatal("cleared cooldown must be ready")
	}
}
