package features

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/model"
	"github.com/parismobility/velocast/internal/resilience"
	"github.com/parismobility/velocast/pkg/openmeteo"
)

// Options selects the policy variants of the preprocessing pipeline. The
// zero value is NOT usable; build via DefaultOptions.
type Options struct {
	Season   SeasonPolicy
	RushHour RushHourPolicy
	Night    NightPolicy
	Missing  MissingPolicy
	Holidays *HolidayCalendar
	Retry    resilience.RetryConfig
}

// DefaultOptions returns the strict pipeline configuration: solstice
// seasons, exclusive rush-hour bands, seasonal night windows, and dropping
// of undefined lag rows.
func DefaultOptions() Options {
	return Options{
		Season:   SeasonSolstice,
		RushHour: RushHourExclusive,
		Night:    NightSeasonal,
		Missing:  MissingDrop,
		Holidays: DefaultHolidayCalendar(),
		Retry:    resilience.DefaultRetryConfig(),
	}
}

// Preprocessor composes the enrichment steps into one deterministic
// transform from raw counter records to a model-ready feature table.
type Preprocessor struct {
	opts    Options
	weather *WeatherJoiner
}

// NewPreprocessor creates a Preprocessor. The weather client may be nil, in
// which case the weather columns degrade to median constants.
func NewPreprocessor(weather openmeteo.Client, opts Options) *Preprocessor {
	if opts.Holidays == nil {
		opts.Holidays = DefaultHolidayCalendar()
	}
	return &Preprocessor{
		opts:    opts,
		weather: NewWeatherJoiner(weather, opts.Retry),
	}
}

// Preprocess turns raw records into a feature table and its feature-name
// list. Step order matters: each step's preconditions depend on the prior
// step's output. On return the table has no missing values in any feature
// column, is sorted chronologically ascending, and every lag/rolling value
// was computed without seeing same-row or future targets.
func (p *Preprocessor) Preprocess(ctx context.Context, records []model.CounterRecord) (*Table, []string, error) {
	// Step 1: drop rows whose timestamp or count failed to parse upstream.
	// NaN counts must go before the site aggregates and lag windows see them.
	valid := records[:0:0]
	for _, r := range records {
		if !r.Timestamp.IsZero() && !math.IsNaN(r.HourlyCount) {
			valid = append(valid, r)
		}
	}
	if dropped := len(records) - len(valid); dropped > 0 {
		zap.L().Warn("dropped rows with unparseable timestamps or counts", zap.Int("rows", dropped))
	}

	t := NewTable(len(valid))
	for _, r := range valid {
		t.Timestamps = append(t.Timestamps, r.Timestamp)
		t.Sites = append(t.Sites, r.SiteID)
		t.Target = append(t.Target, r.HourlyCount)
	}

	// Step 2: calendar/temporal enrichment.
	if err := p.addTemporalColumns(t); err != nil {
		return nil, nil, err
	}

	// Steps 3-4: representative coordinate, then the weather join keyed off
	// the full timestamp span. Decoded lat/lon stay transient; they never
	// become features.
	point := RepresentativePoint(valid)
	if err := p.weather.Join(ctx, t, point); err != nil {
		return nil, nil, err
	}

	// Step 5 happens by construction: identifier/media columns from the raw
	// schema (counter ids, names, install date, photo URLs, raw coordinate)
	// are never added to the table.

	// Step 6: per-site aggregates and lag/rolling features over the
	// (site, time)-sorted table.
	t.SortBySiteTime()
	if _, err := ComputeSiteStats(t); err != nil {
		return nil, nil, err
	}
	if err := AddLagFeatures(t, p.opts.Missing); err != nil {
		return nil, nil, err
	}

	// Step 7: remove rows still carrying missing fields (start-of-series
	// lags under MissingDrop, plus anything else that slipped through).
	if dropped := t.DropMissing(); dropped > 0 {
		zap.L().Info("dropped rows with undefined features", zap.Int("rows", dropped))
	}

	// Step 8: cyclic encoding replaces the raw periodic columns.
	if err := CyclicEncode(t); err != nil {
		return nil, nil, err
	}

	// Steps 9-10: chronological order and the final feature-name list.
	t.SortChronological()
	names := t.FeatureNames()

	zap.L().Info("preprocessing complete",
		zap.Int("rows", t.Len()),
		zap.Int("features", len(names)),
	)
	return t, names, nil
}

// addTemporalColumns derives every calendar feature from the timestamps.
func (p *Preprocessor) addTemporalColumns(t *Table) error {
	n := t.Len()
	hour := make([]float64, n)
	dayOfMonth := make([]float64, n)
	month := make([]float64, n)
	weekday := make([]float64, n)
	year := make([]float64, n)
	season := make([]float64, n)
	rush := make([]float64, n)
	night := make([]float64, n)
	weekend := make([]float64, n)
	holiday := make([]float64, n)

	for i, ts := range t.Timestamps {
		h := ts.Hour()
		s := p.opts.Season.SeasonOf(ts)
		// Monday=0 .. Sunday=6, matching the original weekday convention.
		wd := (int(ts.Weekday()) + 6) % 7

		hour[i] = float64(h)
		dayOfMonth[i] = float64(ts.Day())
		month[i] = float64(ts.Month())
		weekday[i] = float64(wd)
		year[i] = float64(ts.Year())
		season[i] = float64(s)
		rush[i] = boolFeature(p.opts.RushHour.IsRushHour(h))
		night[i] = boolFeature(p.opts.Night.IsNight(ts, s))
		weekend[i] = boolFeature(wd >= 5)
		holiday[i] = boolFeature(p.opts.Holidays.IsHoliday(ts))
	}

	cols := []struct {
		name string
		vals []float64
	}{
		{"hour", hour},
		{"day", dayOfMonth},
		{"month", month},
		{"weekday", weekday},
		{"year", year},
		{"season", season},
		{"is_rush_hour", rush},
		{"is_night", night},
		{"is_weekend", weekend},
		{"is_holiday", holiday},
	}
	for _, c := range cols {
		if err := t.AddColumn(c.name, c.vals); err != nil {
			return err
		}
	}
	return nil
}
