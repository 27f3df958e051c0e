package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parismobility/velocast/internal/model"
)

// syntheticRecords builds records for nSites sites over nHours consecutive
// hours with count = siteIndex*10 + hour-of-day.
func syntheticRecords(nSites, nHours int) []model.CounterRecord {
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	records := make([]model.CounterRecord, 0, nSites*nHours)
	for s := 0; s < nSites; s++ {
		for h := 0; h < nHours; h++ {
			ts := base.Add(time.Duration(h) * time.Hour)
			records = append(records, model.CounterRecord{
				SiteID:        string(rune('A' + s)),
				Timestamp:     ts,
				HourlyCount:   float64(s*10 + ts.Hour()),
				RawCoordinate: "48.8566,2.3522",
			})
		}
	}
	return records
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = fastRetry()
	return opts
}

func TestPreprocess_FailingWeatherStillComplete(t *testing.T) {
	client := &fakeWeather{err: eris.New("weather source down")}
	pre := NewPreprocessor(client, testOptions())

	tbl, names, err := pre.Preprocess(context.Background(), syntheticRecords(2, 30))
	require.NoError(t, err)

	// 30 hours per site, first 24 dropped for undefined lags.
	assert.Equal(t, 2*(30-24), tbl.Len())

	for _, name := range tbl.Columns() {
		for i, v := range tbl.Column(name) {
			assert.False(t, math.IsNaN(v), "column %s row %d is missing", name, i)
		}
	}
	assert.Equal(t, "site_id", names[0])
}

func TestPreprocess_DropsUnparseableTimestamps(t *testing.T) {
	records := syntheticRecords(1, 30)
	records = append(records, model.CounterRecord{SiteID: "A", HourlyCount: 7}) // zero timestamp

	client := &fakeWeather{err: eris.New("down")}
	pre := NewPreprocessor(client, testOptions())

	tbl, _, err := pre.Preprocess(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 30-24, tbl.Len())
}

func TestPreprocess_DropsMissingCounts(t *testing.T) {
	records := syntheticRecords(1, 30)
	records = append(records, model.CounterRecord{
		SiteID:      "A",
		Timestamp:   time.Date(2025, time.March, 2, 6, 0, 0, 0, time.UTC),
		HourlyCount: math.NaN(),
	})

	client := &fakeWeather{err: eris.New("down")}
	pre := NewPreprocessor(client, testOptions())

	tbl, _, err := pre.Preprocess(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 30-24, tbl.Len())

	// The NaN row must not reach the site aggregates: the mean over the 30
	// valid counts (hours 0-23 then 0-5) is 291/30.
	mean := tbl.Column("site_mean_usage")
	require.NotEmpty(t, mean)
	assert.InDelta(t, 9.7, mean[0], 1e-9)

	for _, v := range tbl.Target {
		assert.False(t, math.IsNaN(v))
	}
}

func TestPreprocess_FeatureSet(t *testing.T) {
	client := &fakeWeather{err: eris.New("down")}
	pre := NewPreprocessor(client, testOptions())

	tbl, names, err := pre.Preprocess(context.Background(), syntheticRecords(1, 30))
	require.NoError(t, err)

	for _, want := range []string{
		"day", "year",
		"is_rush_hour", "is_night", "is_weekend", "is_holiday",
		"rain", "snowfall", "apparent_temperature", "wind_speed_10m",
		"is_raining", "is_snowing", "is_windy",
		"site_mean_usage", "site_usage_variability", "site_max_usage", "site_min_usage",
		"lag_1", "lag_24", "rolling_mean_24",
		"hour_sin", "hour_cos", "month_sin", "month_cos",
		"weekday_sin", "weekday_cos", "season_sin", "season_cos",
	} {
		assert.True(t, tbl.HasColumn(want), "missing column %s", want)
	}

	// Raw periodic columns are gone after the cyclic encoding.
	for _, gone := range []string{"hour", "month", "weekday", "season"} {
		assert.False(t, tbl.HasColumn(gone), "raw column %s should be dropped", gone)
	}

	assert.Equal(t, tbl.Len(), len(tbl.Column("hour_sin")))
	assert.Equal(t, len(tbl.Columns())+1, len(names))
}

func TestPreprocess_ChronologicalOutput(t *testing.T) {
	client := &fakeWeather{err: eris.New("down")}
	pre := NewPreprocessor(client, testOptions())

	tbl, _, err := pre.Preprocess(context.Background(), syntheticRecords(3, 30))
	require.NoError(t, err)

	for i := 1; i < tbl.Len(); i++ {
		assert.False(t, tbl.Timestamps[i].Before(tbl.Timestamps[i-1]),
			"row %d out of order", i)
	}
}

func TestPreprocess_WeekdayConvention(t *testing.T) {
	// 2025-03-01 is a Saturday; Monday=0 makes it weekday 5, a weekend day.
	// The first surviving row is hour 24, still on the weekend (Sunday).
	client := &fakeWeather{err: eris.New("down")}
	pre := NewPreprocessor(client, testOptions())

	tbl, _, err := pre.Preprocess(context.Background(), syntheticRecords(1, 30))
	require.NoError(t, err)
	require.NotZero(t, tbl.Len())

	assert.Equal(t, time.Sunday, tbl.Timestamps[0].Weekday())
	assert.Equal(t, 1.0, tbl.Column("is_weekend")[0])
}
