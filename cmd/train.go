package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/features"
	"github.com/parismobility/velocast/internal/forecast"
	"github.com/parismobility/velocast/internal/model"
	"github.com/parismobility/velocast/internal/store"
)

var (
	trainData      string
	trainModelOut  string
	trainMetrics   string
	trainTestRatio float64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a forecasting model on a counter CSV export",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run, err := st.CreateRun(ctx, trainData, trainModelOut)
		if err != nil {
			return err
		}

		metrics, names, err := runTraining(ctx, st, run)
		if err != nil {
			if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
				zap.L().Error("record run failure", zap.Error(failErr))
			}
			return err
		}

		if err := st.CompleteRun(ctx, run.ID, metrics, names); err != nil {
			return err
		}

		zap.L().Info("training complete",
			zap.String("run_id", run.ID),
			zap.Float64("mae", metrics.MAE),
			zap.Float64("rmse", metrics.RMSE),
			zap.Float64("r2", metrics.R2),
			zap.Int("test_rows", metrics.Rows),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	},
}

func runTraining(ctx context.Context, st store.Store, run *model.Run) (*model.Metrics, []string, error) {
	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusPreprocessing); err != nil {
		return nil, nil, err
	}

	records, err := loadRecords(ctx, run.DataPath)
	if err != nil {
		return nil, nil, err
	}

	opts, err := featureOptions()
	if err != nil {
		return nil, nil, err
	}
	pre := features.NewPreprocessor(newWeatherClient(), opts)
	table, names, err := pre.Preprocess(ctx, records)
	if err != nil {
		return nil, nil, eris.Wrap(err, "preprocess")
	}

	if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusTraining); err != nil {
		return nil, nil, err
	}

	params := gbtParams()
	ratio := trainTestRatio
	if ratio <= 0 {
		ratio = cfg.Train.TestRatio
	}

	pipeline, metrics, err := forecast.Train(table, params, ratio)
	if err != nil {
		return nil, nil, eris.Wrap(err, "train")
	}

	if err := forecast.SaveArtifact(run.ModelPath, pipeline); err != nil {
		return nil, nil, err
	}

	if trainMetrics != "" {
		data, err := json.MarshalIndent(metrics, "", "  ")
		if err != nil {
			return nil, nil, eris.Wrap(err, "marshal metrics")
		}
		if err := os.WriteFile(trainMetrics, data, 0o644); err != nil {
			return nil, nil, eris.Wrapf(err, "write metrics file %s", trainMetrics)
		}
	}

	return metrics, names, nil
}

func gbtParams() forecast.GBTParams {
	return forecast.GBTParams{
		NEstimators:     cfg.Train.NEstimators,
		LearningRate:    cfg.Train.LearningRate,
		MaxDepth:        cfg.Train.MaxDepth,
		MinLeaf:         cfg.Train.MinLeaf,
		Subsample:       cfg.Train.Subsample,
		ColsampleByTree: cfg.Train.ColsampleTree,
		Seed:            cfg.Train.Seed,
	}
}

func init() {
	trainCmd.Flags().StringVar(&trainData, "data", "", "counter CSV export (required)")
	trainCmd.Flags().StringVar(&trainModelOut, "model-out", "model.json", "model artifact output path")
	trainCmd.Flags().StringVar(&trainMetrics, "metrics-out", "", "optional metrics JSON output path")
	trainCmd.Flags().Float64Var(&trainTestRatio, "test-ratio", 0, "held-out fraction (default from config)")
	_ = trainCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(trainCmd)
}
