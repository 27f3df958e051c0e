package forecast

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/parismobility/velocast/internal/model"
)

// Evaluate computes held-out regression metrics for predictions against
// actuals.
func Evaluate(actual, predicted []float64) (*model.Metrics, error) {
	if len(actual) != len(predicted) {
		return nil, eris.Errorf("forecast: evaluate: %d actuals vs %d predictions", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return nil, eris.New("forecast: evaluate: empty input")
	}

	n := float64(len(actual))
	var absSum, sqSum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}

	meanActual := stat.Mean(actual, nil)
	var totSS float64
	for _, v := range actual {
		d := v - meanActual
		totSS += d * d
	}

	// Zero-variance actuals leave R2 undefined; report 0 so the metrics stay
	// JSON-encodable.
	r2 := 0.0
	if totSS > 0 {
		r2 = 1 - sqSum/totSS
	}

	return &model.Metrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		R2:   r2,
		Rows: len(actual),
	}, nil
}
