package forecast

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// TargetEncoder replaces a categorical value with a smoothed mean of the
// target conditioned on that category. It must be fit on the training slice
// only; fitting on the full dataset leaks test-set targets into training.
type TargetEncoder struct {
	GlobalMean float64            `json:"global_mean"`
	Means      map[string]float64 `json:"category_means"`
	Smoothing  float64            `json:"smoothing"`
}

// NewTargetEncoder creates an encoder with the given additive smoothing
// weight. Smoothing pulls rare categories toward the global mean.
func NewTargetEncoder(smoothing float64) *TargetEncoder {
	if smoothing <= 0 {
		smoothing = 1
	}
	return &TargetEncoder{Smoothing: smoothing}
}

// Fit learns per-category smoothed target means.
func (e *TargetEncoder) Fit(categories []string, y []float64) error {
	if len(categories) != len(y) {
		return eris.Errorf("forecast: encoder fit: %d categories vs %d targets", len(categories), len(y))
	}
	if len(y) == 0 {
		return eris.New("forecast: encoder fit: empty input")
	}

	e.GlobalMean = stat.Mean(y, nil)

	sums := make(map[string]float64)
	counts := make(map[string]float64)
	for i, c := range categories {
		sums[c] += y[i]
		counts[c]++
	}

	e.Means = make(map[string]float64, len(sums))
	for c, sum := range sums {
		e.Means[c] = (sum + e.Smoothing*e.GlobalMean) / (counts[c] + e.Smoothing)
	}
	return nil
}

// Transform encodes each category. Unseen categories fall back to the
// global mean.
func (e *TargetEncoder) Transform(categories []string) []float64 {
	out := make([]float64, len(categories))
	for i, c := range categories {
		if v, ok := e.Means[c]; ok {
			out[i] = v
		} else {
			out[i] = e.GlobalMean
		}
	}
	return out
}
