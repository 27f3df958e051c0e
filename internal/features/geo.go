package features

import (
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/parismobility/velocast/internal/model"
)

// ParseCoordinate parses a combined "<lat>,<lon>" string. The string is
// split once on the first comma; an unparseable half becomes NaN rather than
// an error, since rows with bad coordinates are still usable for everything
// except the weather query.
func ParseCoordinate(raw string) (lat, lon float64) {
	lat, lon = math.NaN(), math.NaN()
	before, after, found := strings.Cut(raw, ",")
	if !found {
		return lat, lon
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(before), 64); err == nil {
		lat = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(after), 64); err == nil {
		lon = v
	}
	return lat, lon
}

// RepresentativePoint returns the first fully-parseable coordinate among the
// records as an (x=lon, y=lat) point. All Paris counters sit close enough
// together that one location serves the whole dataset's weather query; this
// is deliberate, not an approximation to fix. Returns nil when no record has
// a usable coordinate.
func RepresentativePoint(records []model.CounterRecord) *geom.Point {
	for _, r := range records {
		lat, lon := ParseCoordinate(r.RawCoordinate)
		if !math.IsNaN(lat) && !math.IsNaN(lon) {
			return geom.NewPointFlat(geom.XY, []float64{lon, lat})
		}
	}
	return nil
}
