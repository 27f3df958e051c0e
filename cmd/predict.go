package main

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/features"
	"github.com/parismobility/velocast/internal/forecast"
	"github.com/parismobility/velocast/internal/model"
)

var (
	predictData  string
	predictModel string
	predictOut   string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score a counter CSV export with a trained model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pipeline, err := forecast.LoadArtifact(predictModel)
		if err != nil {
			return err
		}

		records, err := loadRecords(ctx, predictData)
		if err != nil {
			return err
		}

		opts, err := featureOptions()
		if err != nil {
			return err
		}
		pre := features.NewPreprocessor(newWeatherClient(), opts)
		table, _, err := pre.Preprocess(ctx, records)
		if err != nil {
			return eris.Wrap(err, "preprocess")
		}

		predicted, err := pipeline.Predict(table)
		if err != nil {
			return err
		}

		preds := buildPredictions(table, predicted)

		if err := writePredictionsCSV(predictOut, preds); err != nil {
			return err
		}

		if err := storePredictions(ctx, preds); err != nil {
			zap.L().Warn("predictions not persisted", zap.Error(err))
		}

		zap.L().Info("predict complete",
			zap.Int("rows", len(preds)),
			zap.String("out", predictOut),
		)
		return nil
	},
}

// buildPredictions pairs each scored row with its ground truth when the
// input carried actual counts.
func buildPredictions(t *features.Table, predicted []float64) []model.Prediction {
	preds := make([]model.Prediction, len(predicted))
	for i := range predicted {
		p := model.Prediction{
			Timestamp: t.Timestamps[i],
			SiteID:    t.Sites[i],
			Predicted: predicted[i],
		}
		if actual := t.Target[i]; !math.IsNaN(actual) {
			absErr := math.Abs(actual - predicted[i])
			p.Actual = &actual
			p.AbsError = &absErr
		}
		preds[i] = p
	}
	return preds
}

func writePredictionsCSV(path string, preds []model.Prediction) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create output file %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "site_id", "predicted", "actual", "abs_error"}); err != nil {
		return eris.Wrap(err, "write predictions header")
	}

	for _, p := range preds {
		actual, absErr := "", ""
		if p.Actual != nil {
			actual = strconv.FormatFloat(*p.Actual, 'f', -1, 64)
		}
		if p.AbsError != nil {
			absErr = strconv.FormatFloat(*p.AbsError, 'f', 4, 64)
		}
		row := []string{
			p.Timestamp.Format(time.RFC3339),
			p.SiteID,
			strconv.FormatFloat(p.Predicted, 'f', 4, 64),
			actual,
			absErr,
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "write prediction row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "flush predictions")
}

// storePredictions attaches the batch to the latest completed run.
func storePredictions(ctx context.Context, preds []model.Prediction) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	run, err := st.LatestRun(ctx)
	if err != nil {
		return err
	}
	if run == nil {
		return eris.New("no completed run to attach predictions to")
	}

	n, err := st.InsertPredictions(ctx, run.ID, preds)
	if err != nil {
		return err
	}
	zap.L().Info("predictions stored", zap.String("run_id", run.ID), zap.Int("rows", n))
	return nil
}

func init() {
	predictCmd.Flags().StringVar(&predictData, "data", "", "counter CSV export (required)")
	predictCmd.Flags().StringVar(&predictModel, "model", "model.json", "model artifact path")
	predictCmd.Flags().StringVar(&predictOut, "out", "predictions.csv", "output CSV path")
	_ = predictCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(predictCmd)
}
