package vision

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ResidualStats summarizes the absolute per-pixel residual between a frame
// and the background model. The numbers feed diagnostic logging and help
// tune the changed-pixel threshold against sensor noise.
type ResidualStats struct {
	Mean   float64
	StdDev float64
	Max    float64
}

// ComputeResidualStats computes residual statistics for a frame against the
// background model. Frame and model dimensions must already match.
func ComputeResidualStats(f Frame, bg *BackgroundModel) ResidualStats {
	if len(f.Pix) == 0 || bg.Width() != f.Width || bg.Height() != f.Height {
		return ResidualStats{}
	}

	resid := make([]float64, len(f.Pix))
	maxResid := 0.0
	for i, p := range f.Pix {
		r := math.Abs(bg.At(i) - float64(p))
		resid[i] = r
		if r > maxResid {
			maxResid = r
		}
	}

	return ResidualStats{
		Mean:   stat.Mean(resid, nil),
		StdDev: stat.StdDev(resid, nil),
		Max:    maxResid,
	}
}
