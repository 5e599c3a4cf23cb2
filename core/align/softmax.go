// core/align/softmax.go
package align

import (
	"math"
	"sort"
)

// softmax returns the softmax of z, shifted by the max for stability.
func softmax(z []float64) []float64 {
	if len(z) == 0 {
		return nil
	}
	maxz := z[0]
	for _, v := range z[1:] {
		if v > maxz {
			maxz = v
		}
	}
	out := make([]float64, len(z))
	sum := 0.0
	for i, v := range z {
		out[i] = math.Exp(v - maxz)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// entmax15 computes the exact 1.5-entmax transform of z: a sparse
// normalized distribution where low-scoring entries are exactly zero.
// Following Peters & Martins, solutions have the form p_i = [z_i/2 - tau]+^2
// with tau chosen so the support sums to one.
func entmax15(z []float64) []float64 {
	n := len(z)
	if n == 0 {
		return nil
	}
	maxz := z[0]
	for _, v := range z[1:] {
		if v > maxz {
			maxz = v
		}
	}
	half := make([]float64, n)
	for i, v := range z {
		half[i] = (v - maxz) / 2
	}

	sorted := append([]float64(nil), half...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	// For each candidate support size k, tau_k = mean_k - sqrt(delta_k) with
	// delta_k = (1 - ss_k)/k; the valid tau is the last one not exceeding the
	// k-th largest score.
	var cum, cumsq float64
	tau := sorted[0] - 1
	for k := 1; k <= n; k++ {
		v := sorted[k-1]
		cum += v
		cumsq += v * v
		mean := cum / float64(k)
		ss := cumsq - cum*cum/float64(k)
		delta := (1 - ss) / float64(k)
		if delta < 0 {
			delta = 0
		}
		if t := mean - math.Sqrt(delta); t <= v {
			tau = t
		}
	}

	out := make([]float64, n)
	for i, v := range half {
		if d := v - tau; d > 0 {
			out[i] = d * d
		}
	}
	return out
}
