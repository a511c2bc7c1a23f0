package experiments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndVariance(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.InDelta(t, 2.0, mean([]float64{1, 2, 3}), 1e-12)

	assert.Equal(t, 0.0, sampleVariance([]float64{5}))
	assert.InDelta(t, 1.0, sampleVariance([]float64{1, 2, 3}), 1e-12)
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, normalCDF(0), 1e-12)
	assert.InDelta(t, 0.9772, normalCDF(2), 1e-4)
	assert.InDelta(t, 0.0228, normalCDF(-2), 1e-4)
}

func TestOneSidedPValue(t *testing.T) {
	wide := []float64{0.1, 0.9, 0.2, 0.8, 0.5}

	// Identical samples carry no evidence either way.
	assert.InDelta(t, 0.5, oneSidedPValue(wide, wide), 1e-12)

	// A clearly better sample yields a tiny p-value.
	better := []float64{0.90, 0.91, 0.92, 0.89, 0.93, 0.90, 0.91, 0.92}
	worse := []float64{0.10, 0.11, 0.12, 0.09, 0.13, 0.10, 0.11, 0.12}
	require.Less(t, oneSidedPValue(better, worse), 0.001)
	require.Greater(t, oneSidedPValue(worse, better), 0.999)

	// Empty samples are never significant.
	assert.Equal(t, 1.0, oneSidedPValue(nil, worse))
}

func TestOneSidedPValueZeroVariance(t *testing.T) {
	high := []float64{0.8, 0.8, 0.8}
	low := []float64{0.2, 0.2, 0.2}

	assert.Equal(t, 0.0, oneSidedPValue(high, low))
	assert.Equal(t, 1.0, oneSidedPValue(low, high))
}

func TestBeatsAtConfidence(t *testing.T) {
	better := []float64{0.90, 0.91, 0.92, 0.89, 0.93, 0.90, 0.91, 0.92}
	worse := []float64{0.10, 0.11, 0.12, 0.09, 0.13, 0.10, 0.11, 0.12}

	assert.True(t, beatsAtConfidence(better, worse, 0.95))
	assert.False(t, beatsAtConfidence(worse, better, 0.95))
	assert.False(t, beatsAtConfidence(better, better, 0.95))
}
