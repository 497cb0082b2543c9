package recognizer

import "context"

// Point is a normalized image coordinate as reported by the landmark models.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Hand skeleton indices used by the detectors.
const (
	HandWrist          = 0
	HandIndexFingerDIP = 7
	HandIndexFingerTip = 8
	HandLandmarkCount  = 21
)

// FaceKeypoint indexes the fixed keypoint order of the face model.
type FaceKeypoint int

const (
	FaceRightEye FaceKeypoint = iota
	FaceLeftEye
	FaceNose
	FaceMouth
	FaceRightEarTragion
	FaceLeftEarTragion
)

var faceKeypointNames = map[string]FaceKeypoint{
	"right_eye":         FaceRightEye,
	"left_eye":          FaceLeftEye,
	"nose":              FaceNose,
	"mouth":             FaceMouth,
	"right_ear_tragion": FaceRightEarTragion,
	"left_ear_tragion":  FaceLeftEarTragion,
}

func ParseFaceKeypoint(name string) (FaceKeypoint, bool) {
	k, ok := faceKeypointNames[name]
	return k, ok
}

type GestureCandidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// GestureFrame is one video frame of the gesture recognizer: candidates per detected hand.
type GestureFrame struct {
	Gestures  [][]GestureCandidate `json:"gestures"`
	Landmarks [][]Point            `json:"landmarks"`
}

// Top returns the highest scoring named gesture across all hands.
func (f GestureFrame) Top() (GestureCandidate, bool) {
	var (
		best  GestureCandidate
		found bool
	)
	for _, hand := range f.Gestures {
		for _, c := range hand {
			if c.Name == "" {
				continue
			}
			if !found || c.Score > best.Score {
				best = c
				found = true
			}
		}
	}
	return best, found
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Face struct {
	Box       BoundingBox `json:"box"`
	Keypoints []Point     `json:"keypoints"`
}

func (f Face) Keypoint(k FaceKeypoint) (Point, bool) {
	if int(k) < 0 || int(k) >= len(f.Keypoints) {
		return Point{}, false
	}
	return f.Keypoints[k], true
}

// PoseFrame pairs the hand skeletons and the face seen on the same video frame.
type PoseFrame struct {
	Hands [][]Point `json:"hands"`
	Face  *Face     `json:"face,omitempty"`
}

type FrameHandler interface {
	OnGestureFrame(frame GestureFrame)
	OnPoseFrame(frame PoseFrame)
}

// FrameSource delivers recognizer output until ctx is done or Close is called.
type FrameSource interface {
	Subscribe(ctx context.Context, handler FrameHandler) error
	Close() error
}
