package forecast

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers and scales each numeric column to zero mean and
// unit variance. Like the encoder it is fit on the training rows only.
type StandardScaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// Fit computes per-column mean and standard deviation over the given
// row-major matrix, restricted to the column indices in cols.
func (s *StandardScaler) Fit(x [][]float64, cols []int) error {
	if len(x) == 0 {
		return eris.New("forecast: scaler fit: empty input")
	}
	width := len(x[0])
	s.Means = make([]float64, width)
	s.Stds = make([]float64, width)
	for i := range s.Stds {
		s.Stds[i] = 1
	}

	buf := make([]float64, len(x))
	for _, j := range cols {
		if j < 0 || j >= width {
			return eris.Errorf("forecast: scaler fit: column %d out of range", j)
		}
		for i, row := range x {
			buf[i] = row[j]
		}
		mean, std := stat.MeanStdDev(buf, nil)
		if math.IsNaN(std) || std == 0 {
			std = 1
		}
		s.Means[j] = mean
		s.Stds[j] = std
	}
	return nil
}

// Transform scales x in place and returns it.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	for _, row := range x {
		for j := range row {
			if j < len(s.Means) && s.Stds[j] != 0 {
				row[j] = (row[j] - s.Means[j]) / s.Stds[j]
			}
		}
	}
	return x
}
