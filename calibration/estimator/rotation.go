package estimator

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/spacecalibrator/core/spatialmath"
)

// solveRotation runs Kabsch's algorithm on the paired, gated rotation axes
// in deltas and returns the reference-to-target rotation.
func solveRotation(deltas []deltaSample) (*spatialmath.RotationMatrix, error) {
	k := len(deltas)

	var refCentroid, targetCentroid [3]float64
	for _, d := range deltas {
		refCentroid[0] += d.refAxis.X
		refCentroid[1] += d.refAxis.Y
		refCentroid[2] += d.refAxis.Z
		targetCentroid[0] += d.targetAxis.X
		targetCentroid[1] += d.targetAxis.Y
		targetCentroid[2] += d.targetAxis.Z
	}
	for i := range refCentroid {
		refCentroid[i] /= float64(k)
		targetCentroid[i] /= float64(k)
	}

	a := mat.NewDense(k, 3, nil)
	b := mat.NewDense(k, 3, nil)
	for i, d := range deltas {
		a.Set(i, 0, d.refAxis.X-refCentroid[0])
		a.Set(i, 1, d.refAxis.Y-refCentroid[1])
		a.Set(i, 2, d.refAxis.Z-refCentroid[2])
		b.Set(i, 0, d.targetAxis.X-targetCentroid[0])
		b.Set(i, 1, d.targetAxis.Y-targetCentroid[1])
		b.Set(i, 2, d.targetAxis.Z-targetCentroid[2])
	}

	var h mat.Dense
	h.Mul(a.T(), b)

	var svd mat.SVD
	if ok := svd.Factorize(&h, mat.SVDThin); !ok {
		return nil, errors.Wrap(ErrSingularSystem, "rotation cross-covariance SVD")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.0
	if mat.Det(&vut) < 0 {
		d = -1.0
	}

	dMat := mat.NewDiagDense(3, []float64{1, 1, d})
	var vd mat.Dense
	vd.Mul(&v, dMat)
	var r mat.Dense
	r.Mul(&vd, u.T())

	// R minimizes sum|R*refAxis - targetAxis|^2, i.e. it already maps
	// reference onto target directly.
	return spatialmath.NewRotationMatrixFromDense(&r), nil
}
