package drift

// gapFactor is how many average deltas a delta must exceed to count as a gap.
const gapFactor = 2

// Deltas returns the consecutive differences of ts. Deltas()[i-1] belongs to
// index i of ts.
func Deltas(ts []float64) []float64 {
	if len(ts) < 2 {
		return nil
	}
	d := make([]float64, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		d[i-1] = ts[i] - ts[i-1]
	}
	return d
}

// AverageDelta returns the mean consecutive difference of ts, or 0 when ts
// has fewer than two elements.
func AverageDelta(ts []float64) float64 {
	d := Deltas(ts)
	if len(d) == 0 {
		return 0
	}
	var sum float64
	for _, v := range d {
		sum += v
	}
	return sum / float64(len(d))
}

// NonMonotonic returns the indices of ts whose timestamp is lower than the
// one before it.
func NonMonotonic(ts []float64) []int {
	var out []int
	for i, d := range Deltas(ts) {
		if d < 0 {
			out = append(out, i+1)
		}
	}
	return out
}

// Gaps returns the indices of ts that follow a delta larger than twice the
// average delta: likely skipped or dropped frames.
func Gaps(ts []float64) []int {
	d := Deltas(ts)
	if len(d) == 0 {
		return nil
	}
	threshold := AverageDelta(ts) * gapFactor
	var out []int
	for i, v := range d {
		if v > threshold {
			out = append(out, i+1)
		}
	}
	return out
}
