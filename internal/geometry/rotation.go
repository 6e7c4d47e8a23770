package geometry

import (
	"math"
)

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Mul returns m*n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

// Apply returns m*v.
func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// T returns the transpose of m.
func (m Mat3) T() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Vec3 is a 3-vector.
type Vec3 [3]float64

func (v Vec3) add(w Vec3) Vec3 { return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]} }
func (v Vec3) sub(w Vec3) Vec3 { return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]} }
func (v Vec3) scale(s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }
func (v Vec3) dot(w Vec3) float64 { return v[0]*w[0] + v[1]*w[1] + v[2]*w[2] }
func (v Vec3) norm() float64 { return math.Sqrt(v.dot(v)) }
func (v Vec3) cross(w Vec3) Vec3 {
	return Vec3{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

func (v Vec3) finite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Rodrigues converts a rotation vector (axis * angle in radians) into a
// rotation matrix.
func Rodrigues(rvec Vec3) Mat3 {
	theta := rvec.norm()
	if theta < 1e-12 {
		return Mat3{
			{1, -rvec[2], rvec[1]},
			{rvec[2], 1, -rvec[0]},
			{-rvec[1], rvec[0], 1},
		}
	}
	k := rvec.scale(1 / theta)
	c, s := math.Cos(theta), math.Sin(theta)
	cc := 1 - c
	return Mat3{
		{c + k[0]*k[0]*cc, k[0]*k[1]*cc - k[2]*s, k[0]*k[2]*cc + k[1]*s},
		{k[1]*k[0]*cc + k[2]*s, c + k[1]*k[1]*cc, k[1]*k[2]*cc - k[0]*s},
		{k[2]*k[0]*cc - k[1]*s, k[2]*k[1]*cc + k[0]*s, c + k[2]*k[2]*cc},
	}
}

// RotationVector is the inverse of Rodrigues.
func RotationVector(r Mat3) Vec3 {
	cosTheta := (r[0][0] + r[1][1] + r[2][2] - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)
	axis := Vec3{r[2][1] - r[1][2], r[0][2] - r[2][0], r[1][0] - r[0][1]}

	switch {
	case theta < 1e-9:
		return axis.scale(0.5)
	case math.Pi-theta < 1e-6:
		// sin(theta) ~ 0, recover the axis from the symmetric part.
		k := Vec3{
			math.Sqrt(math.Max(0, (r[0][0]+1)/2)),
			math.Sqrt(math.Max(0, (r[1][1]+1)/2)),
			math.Sqrt(math.Max(0, (r[2][2]+1)/2)),
		}
		if r[0][1]+r[1][0] < 0 {
			k[1] = -k[1]
		}
		if r[0][2]+r[2][0] < 0 {
			k[2] = -k[2]
		}
		return k.scale(theta / k.norm())
	default:
		return axis.scale(theta / (2 * math.Sin(theta)))
	}
}

// EulerTurns holds the three angles of an RQ decomposition, each expressed as
// a fraction of a full turn. Multiplying by 360 yields degrees.
type EulerTurns struct {
	X, Y, Z float64
}

// DecomposeRQ splits m into an upper-triangular matrix and three Givens
// rotations about the x, y and z axes, returning the rotation angles.
// For m = Rz(c) * Ry(b) * Rx(a) it returns (a, b, c).
func DecomposeRQ(m Mat3) EulerTurns {
	const eps = 2.220446049250313e-16

	s, c := m[2][1], m[2][2]
	z := 1 / math.Sqrt(c*c+s*s+eps)
	c, s = c*z, s*z
	qx := Mat3{{1, 0, 0}, {0, c, s}, {0, -s, c}}
	r := m.Mul(qx)
	r[2][1] = 0

	s, c = -r[2][0], r[2][2]
	z = 1 / math.Sqrt(c*c+s*s+eps)
	c, s = c*z, s*z
	qy := Mat3{{c, 0, -s}, {0, 1, 0}, {s, 0, c}}
	r = r.Mul(qy)
	r[2][0] = 0

	s, c = r[1][0], r[1][1]
	z = 1 / math.Sqrt(c*c+s*s+eps)
	c, s = c*z, s*z
	qz := Mat3{{c, s, 0}, {-s, c, 0}, {0, 0, 1}}
	r = r.Mul(qz)
	r[1][0] = 0

	// Keep the first two diagonal entries of the triangular factor positive
	// by moving a 180 degree turn into one of the rotations.
	switch {
	case r[0][0] < 0 && r[1][1] < 0:
		qz[0][0], qz[0][1], qz[1][0], qz[1][1] = -qz[0][0], -qz[0][1], -qz[1][0], -qz[1][1]
	case r[0][0] < 0:
		qy[0][0], qy[0][2], qy[2][0], qy[2][2] = -qy[0][0], -qy[0][2], -qy[2][0], -qy[2][2]
	case r[1][1] < 0:
		qx[1][1], qx[1][2], qx[2][1], qx[2][2] = -qx[1][1], -qx[1][2], -qx[2][1], -qx[2][2]
	}

	return EulerTurns{
		X: signedAcos(qx[1][1], qx[1][2]) / (2 * math.Pi),
		Y: signedAcos(qy[0][0], qy[2][0]) / (2 * math.Pi),
		Z: signedAcos(qz[0][0], qz[0][1]) / (2 * math.Pi),
	}
}

func signedAcos(c, sign float64) float64 {
	a := math.Acos(math.Max(-1, math.Min(1, c)))
	if sign < 0 {
		return -a
	}
	return a
}
