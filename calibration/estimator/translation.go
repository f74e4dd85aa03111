package estimator

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/spacecalibrator/core/spatialmath"
)

// minTranslationRows guards against solving on too little data; each pair
// contributes two 3-equation blocks so this is a low bar in practice.
const minTranslationRows = 1

// translationBlock is one 3-equation block of the stacked linear system
// ΔQ * t = C, contributed either by the reference or target rotations of
// one sample pair.
type translationBlock struct {
	deltaQ *spatialmath.RotationMatrix // 3x3
	c      r3.Vector
}

// solveTranslation stacks the per-pair linear equations from every sample
// pair in window and solves for the reference-to-target translation by
// SVD-based least squares, converting to centimeters happens at the call
// site. Returns the translation in meters and an RMS residual.
func solveTranslation(window []Sample, ignoreOutliers bool) (r3.Vector, float64, error) {
	blocks := buildTranslationBlocks(window)
	if len(blocks) < minTranslationRows {
		return r3.Vector{}, 0, ErrTooFewDeltas
	}

	t, residual, err := solveBlocks(blocks)
	if err != nil {
		return r3.Vector{}, 0, err
	}

	if ignoreOutliers {
		if refined, refinedResidual, ok := rejectOutlierBlocks(blocks, t); ok {
			t, residual = refined, refinedResidual
		}
	}

	return t, residual, nil
}

func buildTranslationBlocks(window []Sample) []translationBlock {
	var blocks []translationBlock
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			blocks = append(blocks, translationBlockFor(window[i], window[j], true))
			blocks = append(blocks, translationBlockFor(window[i], window[j], false))
		}
	}
	return blocks
}

// translationBlockFor builds one 3-equation block for the pair (i, j),
// using either the reference or target rotations depending on
// useReference.
func translationBlockFor(si, sj Sample, useReference bool) translationBlock {
	var qi, qj *spatialmath.RotationMatrix
	if useReference {
		qi = spatialmath.RotationMatrixOf(si.Reference).Transpose()
		qj = spatialmath.RotationMatrixOf(sj.Reference).Transpose()
	} else {
		qi = spatialmath.RotationMatrixOf(si.Target).Transpose()
		qj = spatialmath.RotationMatrixOf(sj.Target).Transpose()
	}

	// target - reference, so the solved t lands on the target's offset from
	// the reference directly rather than the correction back onto it.
	di := si.Target.Point().Sub(si.Reference.Point())
	dj := sj.Target.Point().Sub(sj.Reference.Point())

	c := applyMatrix(qj, dj).Sub(applyMatrix(qi, di))
	return translationBlock{deltaQ: subtractMatrices(qj, qi), c: c}
}

func applyMatrix(rm *spatialmath.RotationMatrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.At(0, 0)*v.X + rm.At(0, 1)*v.Y + rm.At(0, 2)*v.Z,
		Y: rm.At(1, 0)*v.X + rm.At(1, 1)*v.Y + rm.At(1, 2)*v.Z,
		Z: rm.At(2, 0)*v.X + rm.At(2, 1)*v.Y + rm.At(2, 2)*v.Z,
	}
}

func subtractMatrices(a, b *spatialmath.RotationMatrix) *spatialmath.RotationMatrix {
	data := make([]float64, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			data[r*3+c] = a.At(r, c) - b.At(r, c)
		}
	}
	m, _ := spatialmath.NewRotationMatrix(data) // NewRotationMatrix only validates length, never fails here
	return m
}

// solveBlocks stacks blocks into a dense linear system and solves it by
// SVD-based least squares (pseudoinverse), returning the RMS residual.
func solveBlocks(blocks []translationBlock) (r3.Vector, float64, error) {
	rows := len(blocks) * 3
	a := mat.NewDense(rows, 3, nil)
	b := mat.NewDense(rows, 1, nil)
	for i, blk := range blocks {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				a.Set(i*3+r, c, blk.deltaQ.At(r, c))
			}
		}
		b.Set(i*3+0, 0, blk.c.X)
		b.Set(i*3+1, 0, blk.c.Y)
		b.Set(i*3+2, 0, blk.c.Z)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return r3.Vector{}, 0, errors.Wrap(ErrSingularSystem, "translation SVD")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var utb mat.Dense
	utb.Mul(u.T(), b)

	const singularEpsilon = 1e-9
	scaled := mat.NewDense(len(values), 1, nil)
	for i, sv := range values {
		if sv < singularEpsilon {
			scaled.Set(i, 0, 0)
			continue
		}
		scaled.Set(i, 0, utb.At(i, 0)/sv)
	}

	var tMat mat.Dense
	tMat.Mul(&v, scaled)
	t := r3.Vector{X: tMat.At(0, 0), Y: tMat.At(1, 0), Z: tMat.At(2, 0)}

	var fit mat.Dense
	fit.Mul(a, &tMat)
	var resid mat.Dense
	resid.Sub(&fit, b)
	residual := mat.Norm(&resid, 2) / math.Sqrt(float64(rows))

	return t, residual, nil
}
