package vision

import (
	"testing"
)

func TestComputeResidualStats(t *testing.T) {
	bg := NewBackgroundModel()
	for i := 0; i < FrameInitCount; i++ {
		bg.Update(uniformFrame(4, 4, 100))
	}

	// Half the pixels at +20, half unchanged.
	f := uniformFrame(4, 4, 100)
	for i := 0; i < 8; i++ {
		f.Pix[i] = 120
	}

	st := ComputeResidualStats(f, bg)
	if st.Mean < 9.9 || st.Mean > 10.1 {
		t.Errorf("Mean = %v, want approx 10", st.Mean)
	}
	if st.Max < 19.9 || st.Max > 20.1 {
		t.Errorf("Max = %v, want approx 20", st.Max)
	}
	if st.StdDev <= 0 {
		t.Errorf("StdDev = %v, want > 0", st.StdDev)
	}
}

func TestComputeResidualStatsDimensionMismatch(t *testing.T) {
	bg := NewBackgroundModel()
	bg.Update(uniformFrame(4, 4, 100))

	st := ComputeResidualStats(uniformFrame(8, 8, 100), bg)
	if st != (ResidualStats{}) {
		t.Errorf("expected zero stats on dimension mismatch, got %+v", st)
	}
}
