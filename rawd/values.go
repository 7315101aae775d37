package rawd

import (
	"github.com/jddeal/go-sigmet/sigmet"
)

// SweepBinCounts returns the per-ray float32 counts the Data bulk
// stream carries for one sweep and type slot: present rays contribute
// their bin count, absent rays zero-fill to the volume width.
func SweepBinCounts(v *sigmet.Volume, sweep, slot int) []int {
	counts := make([]int, v.NumRaysPerSweep)
	for ray := range counts {
		if r := &v.Rays[sweep][ray][slot]; !r.Absent() {
			counts[ray] = r.NumBins
		} else {
			counts[ray] = v.NumBinsOut
		}
	}
	return counts
}

// SweepValues converts one sweep of one type slot to physical values,
// rays concatenated in SweepBinCounts order. Absent rays come back
// zero-filled; corrected runs the per-type correction pass.
func SweepValues(v *sigmet.Volume, sweep, slot int, corrected bool) []float32 {
	typ := v.Types[slot]
	counts := SweepBinCounts(v, sweep, slot)
	total := 0
	for _, n := range counts {
		total += n
	}
	values := make([]float32, total)
	pos := 0
	for ray := 0; ray < v.NumRaysPerSweep; ray++ {
		out := values[pos : pos+counts[ray]]
		pos += counts[ray]
		if v.Rays[sweep][ray][slot].Absent() {
			continue // already zero
		}
		typ.StorageToValue(out, v.RayData(sweep, ray, slot), v)
		if corrected {
			typ.Correct(out, v)
		}
	}
	return values
}
