package experiments

import "math"

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance returns the unbiased sample variance.
func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// oneSidedPValue is the probability of seeing a gap at least this large
// between the two samples if variant a were not actually better than b.
// Welch's statistic with a normal approximation; sample sizes here are
// large enough that the t correction is noise.
func oneSidedPValue(a, b []float64) float64 {
	na, nb := len(a), len(b)
	if na == 0 || nb == 0 {
		return 1
	}
	ma, mb := mean(a), mean(b)
	se := math.Sqrt(sampleVariance(a)/float64(na) + sampleVariance(b)/float64(nb))
	if se == 0 {
		if ma > mb {
			return 0
		}
		return 1
	}
	z := (ma - mb) / se
	return 1 - normalCDF(z)
}

// beatsAtConfidence reports whether sample a outperforms sample b with the
// given confidence level.
func beatsAtConfidence(a, b []float64, confidence float64) bool {
	alpha := 1 - confidence
	return oneSidedPValue(a, b) <= alpha
}
