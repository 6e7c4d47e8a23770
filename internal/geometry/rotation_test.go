package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRodrigues_RoundTrip(t *testing.T) {
	vectors := []Vec3{
		{0, 0, 0},
		{0.1, -0.2, 0.3},
		{1.2, 0.4, -0.7},
		{0, 0, 3.1},
	}
	for _, rv := range vectors {
		r := Rodrigues(rv)
		assert.InDelta(t, 1, r.Det(), 1e-9)
		assertMatInDelta(t, Identity3(), r.Mul(r.T()), 1e-9)

		back := RotationVector(r)
		assertMatInDelta(t, r, Rodrigues(back), 1e-9)
	}
}

func TestDecomposeRQ_RecoversEulerAngles(t *testing.T) {
	tests := []struct {
		name    string
		x, y, z float64 // degrees
	}{
		{"identity", 0, 0, 0},
		{"pitch only", 20, 0, 0},
		{"yaw only", 0, -35, 0},
		{"roll only", 0, 0, 12},
		{"combined", -10, 15, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := rotZ(deg(tc.z)).Mul(rotY(deg(tc.y))).Mul(rotX(deg(tc.x)))
			got := DecomposeRQ(m)

			assert.InDelta(t, tc.x, got.X*360, 1e-6)
			assert.InDelta(t, tc.y, got.Y*360, 1e-6)
			assert.InDelta(t, tc.z, got.Z*360, 1e-6)
		})
	}
}
