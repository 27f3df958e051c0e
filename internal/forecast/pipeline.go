package forecast

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/features"
	"github.com/parismobility/velocast/internal/model"
)

// Pipeline bundles the fitted preprocessing stages and the booster into a
// single scoring unit. FeatureNames records the exact column layout the
// model was trained with so a mismatched input can be rejected instead of
// silently mis-scored.
type Pipeline struct {
	FeatureNames []string         `json:"feature_names"`
	Encoder      *TargetEncoder   `json:"encoder"`
	Scaler       *StandardScaler  `json:"scaler"`
	Booster      *GradientBooster `json:"booster"`
}

// Train fits the full pipeline on a preprocessed table. Rows are split
// chronologically, and the encoder, scaler, and booster are all fit on
// the training slice only; the returned metrics are computed on the
// held-out tail.
func Train(t *features.Table, params GBTParams, testRatio float64) (*Pipeline, *model.Metrics, error) {
	names := t.FeatureNames()
	splitIdx, err := ChronologicalSplit(t.Len(), testRatio)
	if err != nil {
		return nil, nil, err
	}

	p := &Pipeline{
		FeatureNames: names,
		Encoder:      NewTargetEncoder(10),
		Scaler:       &StandardScaler{},
	}

	trainSites := t.Sites[:splitIdx]
	trainY := t.Target[:splitIdx]
	if err := p.Encoder.Fit(trainSites, trainY); err != nil {
		return nil, nil, err
	}

	x, err := p.assemble(t)
	if err != nil {
		return nil, nil, err
	}

	numeric := make([]int, 0, len(names)-1)
	for j := 1; j < len(names); j++ {
		numeric = append(numeric, j)
	}
	if err := p.Scaler.Fit(x[:splitIdx], numeric); err != nil {
		return nil, nil, err
	}
	x = p.Scaler.Transform(x)

	zap.L().Info("fitting booster",
		zap.Int("train_rows", splitIdx),
		zap.Int("test_rows", t.Len()-splitIdx),
		zap.Int("features", len(names)),
		zap.Int("n_estimators", params.NEstimators))

	booster, err := FitGBT(x[:splitIdx], trainY, params)
	if err != nil {
		return nil, nil, err
	}
	p.Booster = booster

	testPred := booster.PredictBatch(x[splitIdx:])
	metrics, err := Evaluate(t.Target[splitIdx:], testPred)
	if err != nil {
		return nil, nil, err
	}
	return p, metrics, nil
}

// Predict scores every row of a preprocessed table. The table's feature
// layout must match the layout the pipeline was trained with.
func (p *Pipeline) Predict(t *features.Table) ([]float64, error) {
	if err := p.checkFeatures(t.FeatureNames()); err != nil {
		return nil, err
	}
	x, err := p.assemble(t)
	if err != nil {
		return nil, err
	}
	x = p.Scaler.Transform(x)
	return p.Booster.PredictBatch(x), nil
}

func (p *Pipeline) checkFeatures(names []string) error {
	if len(names) != len(p.FeatureNames) {
		return eris.Errorf("forecast: feature mismatch: model expects %d features, input has %d",
			len(p.FeatureNames), len(names))
	}
	for i, n := range names {
		if n != p.FeatureNames[i] {
			return eris.Errorf("forecast: feature mismatch at position %d: model expects %q, input has %q",
				i, p.FeatureNames[i], n)
		}
	}
	return nil
}

// assemble builds the row-major design matrix: the target-encoded site
// column first, then the numeric columns in their recorded order.
func (p *Pipeline) assemble(t *features.Table) ([][]float64, error) {
	encoded := p.Encoder.Transform(t.Sites)

	names := p.FeatureNames
	cols := make([][]float64, len(names))
	cols[0] = encoded
	for j := 1; j < len(names); j++ {
		col := t.Column(names[j])
		if col == nil {
			return nil, eris.Errorf("forecast: missing feature column %q", names[j])
		}
		cols[j] = col
	}

	x := make([][]float64, t.Len())
	for i := range x {
		row := make([]float64, len(cols))
		for j, col := range cols {
			row[j] = col[i]
		}
		x[i] = row
	}
	return x, nil
}
