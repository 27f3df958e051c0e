package forecast

import (
	"math/rand"

	"github.com/rotisserie/eris"
)

// GBTParams configure the gradient booster.
type GBTParams struct {
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	MinLeaf         int     `json:"min_leaf"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Seed            int64   `json:"seed"`
}

// DefaultGBTParams mirror the trainer's configuration defaults.
func DefaultGBTParams() GBTParams {
	return GBTParams{
		NEstimators:     300,
		LearningRate:    0.05,
		MaxDepth:        6,
		MinLeaf:         20,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Seed:            42,
	}
}

func (p GBTParams) validate() error {
	switch {
	case p.NEstimators < 1:
		return eris.New("forecast: n_estimators must be >= 1")
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return eris.New("forecast: learning_rate must be in (0, 1]")
	case p.MaxDepth < 1:
		return eris.New("forecast: max_depth must be >= 1")
	case p.MinLeaf < 1:
		return eris.New("forecast: min_leaf must be >= 1")
	case p.Subsample <= 0 || p.Subsample > 1:
		return eris.New("forecast: subsample must be in (0, 1]")
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return eris.New("forecast: colsample_bytree must be in (0, 1]")
	}
	return nil
}

// GradientBooster is a least-squares gradient-boosted ensemble of
// regression trees. Each stage fits a tree to the residuals of the model
// so far and adds it scaled by the learning rate.
type GradientBooster struct {
	Params   GBTParams         `json:"params"`
	BasePred float64           `json:"base_prediction"`
	Trees    []*regressionTree `json:"trees"`
}

// FitGBT trains a booster on row-major features x with targets y.
func FitGBT(x [][]float64, y []float64, p GBTParams) (*GradientBooster, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 || len(x) != len(y) {
		return nil, eris.Errorf("forecast: gbt fit: %d rows vs %d targets", len(x), len(y))
	}

	n := len(x)
	width := len(x[0])
	rng := rand.New(rand.NewSource(p.Seed))

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	residual := make([]float64, n)

	model := &GradientBooster{
		Params:   p,
		BasePred: base,
		Trees:    make([]*regressionTree, 0, p.NEstimators),
	}

	for t := 0; t < p.NEstimators; t++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		rows := sampleRows(n, p.Subsample, rng)
		features := sampleFeatures(width, p.ColsampleByTree, rng)

		tree := fitTree(x, residual, rows, treeParams{
			maxDepth: p.MaxDepth,
			minLeaf:  p.MinLeaf,
			features: features,
		})
		model.Trees = append(model.Trees, tree)

		for i := range pred {
			pred[i] += p.LearningRate * tree.predict(x[i])
		}
	}
	return model, nil
}

// Predict scores a single row.
func (m *GradientBooster) Predict(row []float64) float64 {
	out := m.BasePred
	for _, tree := range m.Trees {
		out += m.Params.LearningRate * tree.predict(row)
	}
	return out
}

// PredictBatch scores every row of x.
func (m *GradientBooster) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.Predict(row)
	}
	return out
}

func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	k := int(float64(n) * frac)
	if k < 1 {
		k = 1
	}
	if k >= n {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	perm := rng.Perm(n)[:k]
	return perm
}

func sampleFeatures(width int, frac float64, rng *rand.Rand) []int {
	k := int(float64(width) * frac)
	if k < 1 {
		k = 1
	}
	if k >= width {
		features := make([]int, width)
		for i := range features {
			features[i] = i
		}
		return features
	}
	return rng.Perm(width)[:k]
}
