package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/fetcher"
	"github.com/parismobility/velocast/internal/ingest"
)

var (
	ingestStart   string
	ingestEnd     string
	ingestOut     string
	ingestPersist bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch counter records from opendata.paris.fr into a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		start, err := time.Parse("2006-01-02", ingestStart)
		if err != nil {
			return eris.Wrapf(err, "parse --start %q", ingestStart)
		}
		end, err := time.Parse("2006-01-02", ingestEnd)
		if err != nil {
			return eris.Wrapf(err, "parse --end %q", ingestEnd)
		}
		if end.Before(start) {
			return eris.New("--end must not be before --start")
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout: time.Duration(cfg.OpenData.TimeoutSecs) * time.Second,
		})
		client := ingest.NewOpenDataClient(f, cfg.OpenData.BaseURL, cfg.OpenData.Dataset, cfg.OpenData.PageSize)

		records, err := client.FetchRange(ctx, start, end)
		if err != nil {
			return eris.Wrap(err, "fetch counter records")
		}
		if len(records) == 0 {
			zap.L().Warn("no records in range",
				zap.String("start", ingestStart),
				zap.String("end", ingestEnd),
			)
		}

		out, err := os.Create(ingestOut)
		if err != nil {
			return eris.Wrapf(err, "create output file %s", ingestOut)
		}
		defer out.Close()

		if err := ingest.WriteCSV(out, records); err != nil {
			return err
		}

		if ingestPersist {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			n, err := st.SaveObservations(ctx, records)
			if err != nil {
				return err
			}
			zap.L().Info("observations persisted", zap.Int64("rows", n))
		}

		zap.L().Info("ingest complete",
			zap.Int("records", len(records)),
			zap.String("out", ingestOut),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestStart, "start", "", "range start, YYYY-MM-DD (required)")
	ingestCmd.Flags().StringVar(&ingestEnd, "end", "", "range end, YYYY-MM-DD, inclusive (required)")
	ingestCmd.Flags().StringVar(&ingestOut, "out", "counters.csv", "output CSV path")
	ingestCmd.Flags().BoolVar(&ingestPersist, "persist", false, "also upsert the records into the configured store")
	_ = ingestCmd.MarkFlagRequired("start")
	_ = ingestCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(ingestCmd)
}
