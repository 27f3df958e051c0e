package features

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Season indexes the four seasons. The numeric order is the one used by the
// cyclic encoding (period 4).
type Season int

const (
	Winter Season = iota
	Spring
	Summer
	Autumn
)

func (s Season) String() string {
	switch s {
	case Winter:
		return "winter"
	case Spring:
		return "spring"
	case Summer:
		return "summer"
	case Autumn:
		return "autumn"
	default:
		return "unknown"
	}
}

// SeasonPolicy selects how a timestamp maps to a season. The two variants
// disagree near boundary dates, so the choice is made explicitly at pipeline
// construction.
type SeasonPolicy int

const (
	// SeasonCalendarMonth groups whole months: Dec-Feb winter, Mar-May
	// spring, Jun-Aug summer, Sep-Nov autumn.
	SeasonCalendarMonth SeasonPolicy = iota
	// SeasonSolstice uses astronomical boundaries: Mar 20, Jun 21, Sep 22,
	// Dec 21.
	SeasonSolstice
)

// SeasonOf returns the season of ts under the policy.
func (p SeasonPolicy) SeasonOf(ts time.Time) Season {
	switch p {
	case SeasonSolstice:
		return solsticeSeason(ts)
	default:
		// month%12/3: Dec,Jan,Feb -> 0, Mar,Apr,May -> 1, ...
		return Season(int(ts.Month()) % 12 / 3)
	}
}

func solsticeSeason(ts time.Time) Season {
	y := ts.Year()
	spring := time.Date(y, time.March, 20, 0, 0, 0, 0, ts.Location())
	summer := time.Date(y, time.June, 21, 0, 0, 0, 0, ts.Location())
	autumn := time.Date(y, time.September, 22, 0, 0, 0, 0, ts.Location())
	winter := time.Date(y, time.December, 21, 0, 0, 0, 0, ts.Location())

	switch {
	case !ts.Before(spring) && ts.Before(summer):
		return Spring
	case !ts.Before(summer) && ts.Before(autumn):
		return Summer
	case !ts.Before(autumn) && ts.Before(winter):
		return Autumn
	default:
		return Winter
	}
}

// RushHourPolicy selects which rush-hour definition applies.
type RushHourPolicy int

const (
	// RushHourInclusive marks hours in [7,9] and [16,19].
	RushHourInclusive RushHourPolicy = iota
	// RushHourExclusive marks hours in [7,10) and [17,20).
	RushHourExclusive
)

// IsRushHour reports whether the hour falls in a rush band under the policy.
func (p RushHourPolicy) IsRushHour(hour int) bool {
	switch p {
	case RushHourExclusive:
		return (hour >= 7 && hour < 10) || (hour >= 17 && hour < 20)
	default:
		return (hour >= 7 && hour <= 9) || (hour >= 16 && hour <= 19)
	}
}

// NightPolicy selects the nocturnal-window definition.
type NightPolicy int

const (
	// NightFixed uses a season-independent window: hour <= 5 or hour >= 22.
	NightFixed NightPolicy = iota
	// NightSeasonal uses per-season windows that wrap midnight.
	NightSeasonal
)

// seasonalNightWindows maps season to [start, end) fractional hours. Every
// window wraps midnight, so the check is hour >= start || hour < end.
var seasonalNightWindows = map[Season][2]float64{
	Winter: {17, 8},
	Spring: {20.5, 6},
	Summer: {22, 5},
	Autumn: {19, 7},
}

// IsNight reports whether ts falls in the nocturnal window under the policy.
func (p NightPolicy) IsNight(ts time.Time, season Season) bool {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	switch p {
	case NightSeasonal:
		w, ok := seasonalNightWindows[season]
		if !ok {
			return false
		}
		return hour >= w[0] || hour < w[1]
	default:
		return hour <= 5 || hour >= 22
	}
}

// DateInterval is a [Start, End) date range, start inclusive, end exclusive.
type DateInterval struct {
	Name  string    `yaml:"name"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// Contains reports whether ts falls inside the interval.
func (iv DateInterval) Contains(ts time.Time) bool {
	return !ts.Before(iv.Start) && ts.Before(iv.End)
}

// HolidayCalendar is a list of school-holiday intervals. It is configuration
// data for one academic year, not a general holiday algorithm, and should be
// refreshed per year.
type HolidayCalendar struct {
	Intervals []DateInterval `yaml:"intervals"`
}

// IsHoliday reports whether ts falls in any interval.
func (c *HolidayCalendar) IsHoliday(ts time.Time) bool {
	for _, iv := range c.Intervals {
		if iv.Contains(ts) {
			return true
		}
	}
	return false
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultHolidayCalendar returns the Paris académie school holidays for the
// 2024-2025 academic year.
func DefaultHolidayCalendar() *HolidayCalendar {
	return &HolidayCalendar{Intervals: []DateInterval{
		{Name: "toussaint", Start: day(2024, time.October, 19), End: day(2024, time.November, 5)},
		{Name: "noel", Start: day(2024, time.December, 21), End: day(2025, time.January, 7)},
		{Name: "hiver", Start: day(2025, time.February, 15), End: day(2025, time.March, 4)},
		{Name: "printemps", Start: day(2025, time.April, 12), End: day(2025, time.April, 29)},
		{Name: "ascension", Start: day(2025, time.May, 29), End: day(2025, time.June, 1)},
		{Name: "ete", Start: day(2025, time.July, 5), End: day(2025, time.September, 2)},
	}}
}

// LoadHolidayCalendar reads a holiday calendar from a YAML file.
func LoadHolidayCalendar(path string) (*HolidayCalendar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "features: read holiday calendar %s", path)
	}
	var cal HolidayCalendar
	if err := yaml.Unmarshal(raw, &cal); err != nil {
		return nil, eris.Wrapf(err, "features: parse holiday calendar %s", path)
	}
	for _, iv := range cal.Intervals {
		if !iv.End.After(iv.Start) {
			return nil, eris.Errorf("features: holiday interval %q ends before it starts", iv.Name)
		}
	}
	return &cal, nil
}
