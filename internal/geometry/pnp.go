package geometry

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when the correspondences do not determine a pose:
// coincident or collinear points, a singular linear system, or a solution
// that is not finite.
var ErrDegenerate = errors.New("degenerate pose geometry")

// Intrinsics is a pinhole camera model without distortion.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Matrix returns the 3x3 camera matrix.
func (k Intrinsics) Matrix() Mat3 {
	return Mat3{
		{k.Fx, 0, k.Cx},
		{0, k.Fy, k.Cy},
		{0, 0, 1},
	}
}

// Pose is a rigid transform from model space into camera space.
type Pose struct {
	RVec Vec3
	TVec Vec3
}

// Rotation returns the pose rotation matrix.
func (p Pose) Rotation() Mat3 {
	return Rodrigues(p.RVec)
}

// Project maps a model point to pixel coordinates.
func (k Intrinsics) Project(p Pose, x Vec3) (u, v float64) {
	c := p.Rotation().Apply(x).add(p.TVec)
	return k.Fx*c[0]/c[2] + k.Cx, k.Fy*c[1]/c[2] + k.Cy
}

const (
	// planarRatio is the ratio between the two smallest spreads of the model
	// points below which they are treated as lying on a plane.
	planarRatio  = 1e-3
	lmIterations = 50
)

// SolvePnP recovers the pose that maps the model points onto the image
// points under camera k. It takes a linear initial estimate (homography for
// planar models, DLT otherwise) and refines it with Levenberg-Marquardt on
// the reprojection error.
func SolvePnP(model []Vec3, image [][2]float64, k Intrinsics) (Pose, error) {
	n := len(model)
	if n < 4 || n != len(image) {
		return Pose{}, ErrDegenerate
	}
	if k.Fx == 0 || k.Fy == 0 {
		return Pose{}, ErrDegenerate
	}

	norm := make([][2]float64, n)
	for i, p := range image {
		norm[i] = [2]float64{(p[0] - k.Cx) / k.Fx, (p[1] - k.Cy) / k.Fy}
	}

	var centroid Vec3
	for _, p := range model {
		centroid = centroid.add(p)
	}
	centroid = centroid.scale(1 / float64(n))

	centered := make([]Vec3, n)
	var spread float64
	for i, p := range model {
		centered[i] = p.sub(centroid)
		spread += centered[i].dot(centered[i])
	}
	spread = math.Sqrt(spread / float64(n))
	if spread < 1e-12 {
		return Pose{}, ErrDegenerate
	}

	cov := mat.NewDense(3, 3, nil)
	for _, p := range centered {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov.Set(i, j, cov.At(i, j)+p[i]*p[j])
			}
		}
	}
	var svd mat.SVD
	if !svd.Factorize(cov, mat.SVDFull) {
		return Pose{}, ErrDegenerate
	}
	sv := svd.Values(nil)
	if sv[1] < sv[0]*1e-12 {
		return Pose{}, ErrDegenerate
	}
	var basis mat.Dense
	svd.VTo(&basis)

	var (
		pose Pose
		err  error
	)
	if sv[2] < sv[1]*planarRatio {
		pose, err = planarInit(centered, norm, &basis, 1/spread)
	} else {
		pose, err = dltInit(centered, norm, 1/spread)
	}
	if err != nil {
		return Pose{}, err
	}

	// Shift the translation from the centered frame back to model space.
	r := pose.Rotation()
	pose.TVec = pose.TVec.sub(r.Apply(centroid))

	pose = refine(model, norm, pose)
	if !pose.RVec.finite() || !pose.TVec.finite() {
		return Pose{}, ErrDegenerate
	}
	r = pose.Rotation()
	for _, p := range model {
		if r.Apply(p).add(pose.TVec)[2] <= 0 {
			return Pose{}, ErrDegenerate
		}
	}
	return pose, nil
}

// planarInit estimates the pose of points lying on a plane from the
// homography between plane coordinates and normalized image coordinates.
func planarInit(centered []Vec3, norm [][2]float64, basis *mat.Dense, s float64) (Pose, error) {
	e0 := Vec3{basis.At(0, 0), basis.At(1, 0), basis.At(2, 0)}
	e1 := Vec3{basis.At(0, 1), basis.At(1, 1), basis.At(2, 1)}
	e2 := e0.cross(e1)

	n := len(centered)
	a := mat.NewDense(2*n, 9, nil)
	for i, p := range centered {
		u, v := e0.dot(p)*s, e1.dot(p)*s
		x, y := norm[i][0], norm[i][1]
		a.SetRow(2*i, []float64{u, v, 1, 0, 0, 0, -x * u, -x * v, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, u, v, 1, -y * u, -y * v, -y})
	}
	h, err := nullVector(a)
	if err != nil {
		return Pose{}, err
	}

	// Undo the conditioning scale on the first two columns.
	h1 := Vec3{h[0] * s, h[3] * s, h[6] * s}
	h2 := Vec3{h[1] * s, h[4] * s, h[7] * s}
	h3 := Vec3{h[2], h[5], h[8]}

	denom := h1.norm() + h2.norm()
	if denom < 1e-12 {
		return Pose{}, ErrDegenerate
	}
	lambda := 2 / denom
	if h3[2]*lambda < 0 {
		lambda = -lambda
	}
	r1 := h1.scale(lambda)
	r2 := h2.scale(lambda)
	r3 := r1.cross(r2)
	rp, err := nearestRotation(Mat3{
		{r1[0], r2[0], r3[0]},
		{r1[1], r2[1], r3[1]},
		{r1[2], r2[2], r3[2]},
	})
	if err != nil {
		return Pose{}, err
	}

	// Model -> plane coordinates, then plane -> camera.
	toPlane := Mat3{e0, e1, e2}
	return Pose{
		RVec: RotationVector(rp.Mul(toPlane)),
		TVec: h3.scale(lambda),
	}, nil
}

// dltInit estimates the pose of a non-planar point cloud with the direct
// linear transform on normalized image coordinates.
func dltInit(centered []Vec3, norm [][2]float64, s float64) (Pose, error) {
	n := len(centered)
	if n < 6 {
		return Pose{}, ErrDegenerate
	}
	a := mat.NewDense(2*n, 12, nil)
	for i, p := range centered {
		X, Y, Z := p[0]*s, p[1]*s, p[2]*s
		x, y := norm[i][0], norm[i][1]
		a.SetRow(2*i, []float64{X, Y, Z, 1, 0, 0, 0, 0, -x * X, -x * Y, -x * Z, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, X, Y, Z, 1, -y * X, -y * Y, -y * Z, -y})
	}
	p, err := nullVector(a)
	if err != nil {
		return Pose{}, err
	}

	m := Mat3{
		{p[0] * s, p[1] * s, p[2] * s},
		{p[4] * s, p[5] * s, p[6] * s},
		{p[8] * s, p[9] * s, p[10] * s},
	}
	t := Vec3{p[3], p[7], p[11]}

	// The null vector is defined up to sign; pick the one that puts the
	// centroid in front of the camera.
	if t[2] < 0 {
		for i := range m {
			for j := range m[i] {
				m[i][j] = -m[i][j]
			}
		}
		t = t.scale(-1)
	}

	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, flatten(m)), mat.SVDNone) {
		return Pose{}, ErrDegenerate
	}
	sv := svd.Values(nil)
	scale := (sv[0] + sv[1] + sv[2]) / 3
	if scale < 1e-12 {
		return Pose{}, ErrDegenerate
	}
	r, err := nearestRotation(m)
	if err != nil {
		return Pose{}, err
	}
	return Pose{RVec: RotationVector(r), TVec: t.scale(1 / scale)}, nil
}

// nullVector returns the right singular vector of a for its smallest
// singular value.
func nullVector(a *mat.Dense) ([]float64, error) {
	_, c := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)
	out := make([]float64, c)
	for i := 0; i < c; i++ {
		out[i] = v.At(i, c-1)
	}
	return out, nil
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m Mat3) (Mat3, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, flatten(m)), mat.SVDFull) {
		return Mat3{}, ErrDegenerate
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	out := fromDense(&r)
	if out.Det() < 0 {
		d := mat.NewDiagDense(3, []float64{1, 1, -1})
		var ud mat.Dense
		ud.Mul(&u, d)
		r.Mul(&ud, v.T())
		out = fromDense(&r)
	}
	return out, nil
}

// refine runs Levenberg-Marquardt over (rvec, tvec) minimizing the squared
// reprojection error in normalized image coordinates.
func refine(model []Vec3, norm [][2]float64, pose Pose) Pose {
	params := []float64{
		pose.RVec[0], pose.RVec[1], pose.RVec[2],
		pose.TVec[0], pose.TVec[1], pose.TVec[2],
	}
	rows := 2 * len(model)

	residuals := func(p []float64) []float64 {
		r := Rodrigues(Vec3{p[0], p[1], p[2]})
		t := Vec3{p[3], p[4], p[5]}
		out := make([]float64, rows)
		for i, x := range model {
			c := r.Apply(x).add(t)
			if c[2] <= 1e-12 {
				out[2*i], out[2*i+1] = 1e6, 1e6
				continue
			}
			out[2*i] = c[0]/c[2] - norm[i][0]
			out[2*i+1] = c[1]/c[2] - norm[i][1]
		}
		return out
	}
	cost := func(res []float64) float64 {
		var sum float64
		for _, v := range res {
			sum += v * v
		}
		return sum
	}

	res := residuals(params)
	current := cost(res)
	damping := 1e-3

	for iter := 0; iter < lmIterations && current > 1e-24; iter++ {
		jac := mat.NewDense(rows, 6, nil)
		for j := 0; j < 6; j++ {
			step := 1e-7 * math.Max(1, math.Abs(params[j]))
			shifted := append([]float64(nil), params...)
			shifted[j] += step
			r2 := residuals(shifted)
			for i := 0; i < rows; i++ {
				jac.Set(i, j, (r2[i]-res[i])/step)
			}
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), mat.NewVecDense(rows, res))

		improved := false
		for attempt := 0; attempt < 10; attempt++ {
			lhs := mat.DenseCopyOf(&jtj)
			for d := 0; d < 6; d++ {
				lhs.Set(d, d, jtj.At(d, d)*(1+damping)+1e-12)
			}
			var delta mat.VecDense
			if err := delta.SolveVec(lhs, &jtr); err != nil {
				damping *= 10
				continue
			}
			candidate := make([]float64, 6)
			for j := range candidate {
				candidate[j] = params[j] - delta.AtVec(j)
			}
			candRes := residuals(candidate)
			if c := cost(candRes); c < current {
				params, res, current = candidate, candRes, c
				damping = math.Max(damping/10, 1e-12)
				improved = true
				break
			}
			damping *= 10
		}
		if !improved {
			break
		}
	}

	return Pose{
		RVec: Vec3{params[0], params[1], params[2]},
		TVec: Vec3{params[3], params[4], params[5]},
	}
}

func flatten(m Mat3) []float64 {
	return []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	}
}

func fromDense(d *mat.Dense) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}
