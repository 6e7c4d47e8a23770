package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveauth/internal/domain"
)

func rotX(a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return Mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func rotY(a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return Mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func rotZ(a float64) Mat3 {
	c, s := math.Cos(a), math.Sin(a)
	return Mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func deg(d float64) float64 { return d * math.Pi / 180 }

func assertMatInDelta(t *testing.T, want, got Mat3, delta float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], got[i][j], delta, "element (%d,%d)", i, j)
		}
	}
}

// frontalFace is a symmetric face in a 640x480 frame with no depth.
func frontalFace() domain.LandmarkSet {
	return domain.LandmarkSet{
		domain.FaceLeftEyeOuter:  {X: 250, Y: 180},
		domain.FaceRightEyeOuter: {X: 390, Y: 180},
		domain.FaceNoseTip:       {X: 320, Y: 250},
		domain.FaceMouthLeft:     {X: 270, Y: 320},
		domain.FaceMouthRight:    {X: 370, Y: 320},
		domain.FaceChin:          {X: 320, Y: 400},
	}
}

func TestEstimateOrientation_FrontalFaceIsLevel(t *testing.T) {
	got, err := EstimateOrientation(frontalFace(), 640, 480)
	require.NoError(t, err)

	assert.InDelta(t, 0, got.Pitch, 1e-3)
	assert.InDelta(t, 0, got.Yaw, 1e-3)
	assert.InDelta(t, 0, got.Roll, 1e-3)
}

func TestEstimateOrientation_DepthKeepsAnglesInRange(t *testing.T) {
	faces := []domain.LandmarkSet{
		{
			domain.FaceLeftEyeOuter:  {X: 250, Y: 180, Z: 0.04},
			domain.FaceRightEyeOuter: {X: 390, Y: 182, Z: 0.02},
			domain.FaceNoseTip:       {X: 318, Y: 250, Z: -0.06},
			domain.FaceMouthLeft:     {X: 271, Y: 322, Z: 0.01},
			domain.FaceMouthRight:    {X: 369, Y: 319, Z: 0.015},
			domain.FaceChin:          {X: 321, Y: 401, Z: 0.03},
		},
		{
			domain.FaceLeftEyeOuter:  {X: 200, Y: 150, Z: -0.02},
			domain.FaceRightEyeOuter: {X: 330, Y: 160, Z: 0.05},
			domain.FaceNoseTip:       {X: 250, Y: 230, Z: -0.08},
			domain.FaceMouthLeft:     {X: 215, Y: 300, Z: -0.01},
			domain.FaceMouthRight:    {X: 305, Y: 305, Z: 0.03},
			domain.FaceChin:          {X: 262, Y: 380, Z: 0.02},
		},
	}

	for i, face := range faces {
		got, err := EstimateOrientation(face, 640, 480)
		require.NoError(t, err, "face %d", i)
		for _, a := range []float64{got.Pitch, got.Yaw, got.Roll} {
			assert.Greater(t, a, -90.0, "face %d", i)
			assert.Less(t, a, 90.0, "face %d", i)
		}
	}
}

func TestEstimateOrientation_Validation(t *testing.T) {
	missing := frontalFace()
	delete(missing, domain.FaceChin)
	_, err := EstimateOrientation(missing, 640, 480)
	assert.ErrorIs(t, err, ErrMissingLandmark)

	outside := frontalFace()
	outside[domain.FaceNoseTip] = domain.Point{X: 640, Y: 250}
	_, err = EstimateOrientation(outside, 640, 480)
	assert.ErrorIs(t, err, ErrOutOfFrame)

	nan := frontalFace()
	nan[domain.FaceMouthLeft] = domain.Point{X: 270, Y: 320, Z: math.NaN()}
	_, err = EstimateOrientation(nan, 640, 480)
	assert.ErrorIs(t, err, ErrOutOfFrame)

	_, err = EstimateOrientation(nil, 640, 480)
	assert.ErrorIs(t, err, ErrMissingLandmark)
}

func TestEstimateOrientation_DegenerateGeometry(t *testing.T) {
	coincident := domain.LandmarkSet{}
	for _, idx := range domain.PoseLandmarks {
		coincident[idx] = domain.Point{X: 100, Y: 100}
	}
	_, err := EstimateOrientation(coincident, 640, 480)
	assert.ErrorIs(t, err, ErrDegenerate)

	collinear := domain.LandmarkSet{}
	for i, idx := range domain.PoseLandmarks {
		collinear[idx] = domain.Point{X: float64(100 + 20*i), Y: 200}
	}
	_, err = EstimateOrientation(collinear, 640, 480)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestCameraFor_KeepsSwappedPrincipalPoint(t *testing.T) {
	k := CameraFor(640, 480)
	assert.Equal(t, 640.0, k.Fx)
	assert.Equal(t, 640.0, k.Fy)
	assert.Equal(t, 240.0, k.Cx)
	assert.Equal(t, 320.0, k.Cy)
}

func TestSolvePnP_RecoversKnownPose(t *testing.T) {
	k := CameraFor(640, 480)

	tests := []struct {
		name  string
		model []Vec3
	}{
		{
			name: "non-planar face model",
			model: []Vec3{
				{0, 0, 0},
				{0, -330, -65},
				{-225, 170, -135},
				{225, 170, -135},
				{-150, -150, -125},
				{150, -150, -125},
			},
		},
		{
			name: "planar model",
			model: []Vec3{
				{-200, -150, 0},
				{200, -150, 0},
				{0, 0, 0},
				{-120, 160, 0},
				{120, 160, 0},
				{0, 260, 0},
			},
		},
	}

	wantR := rotZ(deg(5)).Mul(rotY(deg(15))).Mul(rotX(deg(-10)))
	wantT := Vec3{15, -25, 1200}
	truth := Pose{RVec: RotationVector(wantR), TVec: wantT}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			image := make([][2]float64, len(tc.model))
			for i, p := range tc.model {
				u, v := k.Project(truth, p)
				image[i] = [2]float64{u, v}
			}

			got, err := SolvePnP(tc.model, image, k)
			require.NoError(t, err)
			assertMatInDelta(t, wantR, got.Rotation(), 1e-6)
			for i := range wantT {
				assert.InDelta(t, wantT[i], got.TVec[i], 1e-3)
			}
		})
	}
}

func TestSolvePnP_RejectsBadInput(t *testing.T) {
	k := CameraFor(640, 480)
	_, err := SolvePnP([]Vec3{{0, 0, 0}}, [][2]float64{{1, 1}}, k)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = SolvePnP(make([]Vec3, 6), make([][2]float64, 5), k)
	assert.ErrorIs(t, err, ErrDegenerate)
}
