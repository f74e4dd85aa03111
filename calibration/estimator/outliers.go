package estimator

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// medianAbsoluteDeviation returns the median absolute deviation of xs. xs
// is not mutated.
func medianAbsoluteDeviation(xs []float64) (median, mad float64) {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	median = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	absDev := make([]float64, len(xs))
	for i, x := range xs {
		absDev[i] = math.Abs(x - median)
	}
	sort.Float64s(absDev)
	mad = stat.Quantile(0.5, stat.Empirical, absDev, nil)
	return median, mad
}

// rejectOutlierBlocks computes each block's residual against t, drops
// blocks whose residual exceeds 3x the median absolute deviation, and
// re-solves once on the survivors. Returns ok=false, so the caller keeps its
// original solve, if the MAD is zero, if too few blocks survive, if no block
// was dropped, or if the re-solve fails.
func rejectOutlierBlocks(blocks []translationBlock, t r3.Vector) (r3.Vector, float64, bool) {
	resid := make([]float64, len(blocks))
	for i, blk := range blocks {
		fit := applyMatrix(blk.deltaQ, t)
		resid[i] = fit.Sub(blk.c).Norm()
	}

	_, mad := medianAbsoluteDeviation(resid)
	if mad <= 0 {
		return r3.Vector{}, 0, false
	}

	var kept []translationBlock
	for i, blk := range blocks {
		if resid[i] <= 3*mad {
			kept = append(kept, blk)
		}
	}
	if len(kept) < minTranslationRows || len(kept) == len(blocks) {
		return r3.Vector{}, 0, false
	}

	newT, newResidual, err := solveBlocks(kept)
	if err != nil {
		return r3.Vector{}, 0, false
	}
	return newT, newResidual, true
}
