package features

import (
	"context"
	"math"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/resilience"
	"github.com/parismobility/velocast/pkg/openmeteo"
)

// weatherColumns are the joined weather features, in table-insertion order.
var weatherColumns = []string{"rain", "snowfall", "apparent_temperature", "wind_speed_10m"}

// windyThresholdKmh is the wind speed above which a row is flagged windy.
const windyThresholdKmh = 30

// WeatherJoiner left-joins an hourly weather series onto the table by exact
// timestamp match and fills gaps with per-column global medians.
type WeatherJoiner struct {
	client openmeteo.Client
	retry  resilience.RetryConfig
}

// NewWeatherJoiner creates a joiner over the given weather client.
func NewWeatherJoiner(client openmeteo.Client, retry resilience.RetryConfig) *WeatherJoiner {
	return &WeatherJoiner{client: client, retry: retry}
}

// Join fetches one weather series for the representative point over the
// table's full timestamp span and joins it on. A failing weather source is
// not fatal: the weather columns degrade to all-missing and the median fill
// turns them into global constants. The join is always by exact timestamp
// equality, never interpolated.
func (w *WeatherJoiner) Join(ctx context.Context, t *Table, point *geom.Point) error {
	series := w.fetchSeries(ctx, t, point)

	byTime := make(map[time.Time]int)
	if series != nil {
		for i, ts := range series.Times {
			byTime[ts] = i
		}
	}

	n := t.Len()
	cols := map[string][]float64{}
	for _, name := range weatherColumns {
		cols[name] = make([]float64, n)
	}
	for i := range n {
		j, ok := byTime[t.Timestamps[i]]
		if !ok {
			for _, name := range weatherColumns {
				cols[name][i] = math.NaN()
			}
			continue
		}
		cols["rain"][i] = series.Rain[j]
		cols["snowfall"][i] = series.Snowfall[j]
		cols["apparent_temperature"][i] = series.Temperature[j]
		cols["wind_speed_10m"][i] = series.WindSpeed[j]
	}

	for _, name := range weatherColumns {
		if err := t.AddColumn(name, cols[name]); err != nil {
			return err
		}
		// Global scalar substitution per column, computed over the
		// already-joined table. With no series at all the median is
		// undefined and the column degrades to zero.
		t.FillMissingWithMedian(name)
		zeroFill(t.Column(name))
	}

	return addWeatherFlags(t)
}

// fetchSeries retrieves the hourly series, retrying transient failures a
// bounded number of times. Returns nil when the source is unusable.
func (w *WeatherJoiner) fetchSeries(ctx context.Context, t *Table, point *geom.Point) *openmeteo.HourlySeries {
	if w.client == nil || point == nil || t.Len() == 0 {
		if point == nil {
			zap.L().Warn("weather join skipped: no usable coordinate")
		}
		return nil
	}

	start, end := t.Timestamps[0], t.Timestamps[0]
	for _, ts := range t.Timestamps {
		if ts.Before(start) {
			start = ts
		}
		if ts.After(end) {
			end = ts
		}
	}

	series, err := resilience.DoVal(ctx, w.retry, func(ctx context.Context) (*openmeteo.HourlySeries, error) {
		return w.client.HourlyArchive(ctx, point.Y(), point.X(), start, end)
	})
	if err != nil {
		zap.L().Warn("weather source unavailable, degrading to median fill",
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
		return nil
	}

	zap.L().Info("weather series joined",
		zap.Int("observations", series.Len()),
		zap.Float64("latitude", point.Y()),
		zap.Float64("longitude", point.X()),
	)
	return series
}

// addWeatherFlags derives boolean weather columns from the joined series.
func addWeatherFlags(t *Table) error {
	rain := t.Column("rain")
	snow := t.Column("snowfall")
	wind := t.Column("wind_speed_10m")

	n := t.Len()
	raining := make([]float64, n)
	snowing := make([]float64, n)
	windy := make([]float64, n)
	for i := range n {
		raining[i] = boolFeature(rain[i] > 0)
		snowing[i] = boolFeature(snow[i] > 0)
		windy[i] = boolFeature(wind[i] > windyThresholdKmh)
	}

	if err := t.AddColumn("is_raining", raining); err != nil {
		return err
	}
	if err := t.AddColumn("is_snowing", snowing); err != nil {
		return err
	}
	return t.AddColumn("is_windy", windy)
}

func zeroFill(col []float64) {
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = 0
		}
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
