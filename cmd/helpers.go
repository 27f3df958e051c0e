package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/features"
	"github.com/parismobility/velocast/internal/ingest"
	"github.com/parismobility/velocast/internal/model"
	"github.com/parismobility/velocast/internal/store"
	"github.com/parismobility/velocast/pkg/openmeteo"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "velocast.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// featureOptions builds the preprocessing options from config.
func featureOptions() (features.Options, error) {
	opts := features.DefaultOptions()

	var err error
	if opts.Season, err = features.ParseSeasonPolicy(cfg.Features.SeasonPolicy); err != nil {
		return opts, err
	}
	if opts.RushHour, err = features.ParseRushHourPolicy(cfg.Features.RushHourPolicy); err != nil {
		return opts, err
	}
	if opts.Night, err = features.ParseNightPolicy(cfg.Features.NightPolicy); err != nil {
		return opts, err
	}
	if opts.Missing, err = features.ParseMissingPolicy(cfg.Features.MissingPolicy); err != nil {
		return opts, err
	}

	if cfg.Features.HolidaysFile != "" {
		cal, err := features.LoadHolidayCalendar(cfg.Features.HolidaysFile)
		if err != nil {
			return opts, err
		}
		opts.Holidays = cal
	}
	return opts, nil
}

func newWeatherClient() openmeteo.Client {
	return openmeteo.NewClient(
		openmeteo.WithBaseURL(cfg.Weather.BaseURL),
		openmeteo.WithTimeout(time.Duration(cfg.Weather.TimeoutSecs)*time.Second),
	)
}

// loadRecords reads and validates a counter CSV export from disk.
func loadRecords(ctx context.Context, path string) ([]model.CounterRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Errorf("no data file at %s: run `velocast ingest` first", path)
		}
		return nil, eris.Wrapf(err, "open data file %s", path)
	}
	defer f.Close()

	records, err := ingest.LoadCSV(ctx, f)
	if err != nil {
		return nil, err
	}
	zap.L().Info("data loaded", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}
