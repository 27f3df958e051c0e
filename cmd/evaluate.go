package main

import (
	"encoding/json"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/features"
	"github.com/parismobility/velocast/internal/forecast"
)

var (
	evalData  string
	evalModel string
	evalOut   string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a labeled counter CSV export and report error metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pipeline, err := forecast.LoadArtifact(evalModel)
		if err != nil {
			return err
		}

		records, err := loadRecords(ctx, evalData)
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

		var actuals, preds []float64
		for i, actual := range table.Target {
			if math.IsNaN(actual) {
				continue
			}
			actuals = append(actuals, actual)
			preds = append(preds, predicted[i])
		}
		if len(actuals) == 0 {
			return eris.Errorf("evaluate: no ground truth in %s: every hourly count is missing", evalData)
		}

		metrics, err := forecast.Evaluate(actuals, preds)
		if err != nil {
			return err
		}

		if evalOut != "" {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal metrics")
			}
			if err := os.WriteFile(evalOut, data, 0o644); err != nil {
				return eris.Wrapf(err, "write metrics file %s", evalOut)
			}
		}

		zap.L().Info("evaluation complete",
			zap.Float64("mae", metrics.MAE),
			zap.Float64("rmse", metrics.RMSE),
			zap.Float64("r2", metrics.R2),
			zap.Int("rows", metrics.Rows),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalData, "data", "", "labeled counter CSV export (required)")
	evaluateCmd.Flags().StringVar(&evalModel, "model", "model.json", "model artifact path")
	evaluateCmd.Flags().StringVar(&evalOut, "out", "", "optional metrics JSON output path")
	_ = evaluateCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(evaluateCmd)
}
