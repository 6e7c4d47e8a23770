package domain

// Hand landmark indices, MediaPipe hand model numbering.
const (
	HandWrist           = 0
	HandIndexFingerTip  = 8
	HandMiddleFingerTip = 12
	HandRingFingerTip   = 16
	HandPinkyTip        = 20
)

// Face landmark indices used for head pose, MediaPipe face mesh numbering.
const (
	FaceLeftEyeOuter  = 33
	FaceRightEyeOuter = 263
	FaceNoseTip       = 1
	FaceMouthLeft     = 61
	FaceMouthRight    = 291
	FaceChin          = 199
)

// PoseLandmarks lists the six face keypoints the pose estimate is built from,
// in the order they are fed to the solver.
var PoseLandmarks = [6]int{
	FaceLeftEyeOuter,
	FaceRightEyeOuter,
	FaceNoseTip,
	FaceMouthLeft,
	FaceMouthRight,
	FaceChin,
}

// Point is a landmark position. X and Y are pixel-scaled image coordinates,
// Z is the detector's relative depth.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet maps a canonical landmark index to its position for one
// detected hand or face.
type LandmarkSet map[int]Point

// Lookup returns the point for idx and whether it was present.
func (s LandmarkSet) Lookup(idx int) (Point, bool) {
	if s == nil {
		return Point{}, false
	}
	p, ok := s[idx]
	return p, ok
}

// Scale converts normalized detector output (0..1) to pixel coordinates,
// truncating x and y to whole pixels. Z is kept as-is.
func (s LandmarkSet) Scale(width, height int) LandmarkSet {
	out := make(LandmarkSet, len(s))
	for idx, p := range s {
		out[idx] = Point{
			X: float64(int(p.X * float64(width))),
			Y: float64(int(p.Y * float64(height))),
			Z: p.Z,
		}
	}
	return out
}
