package features

import "github.com/rotisserie/eris"

// ParseSeasonPolicy maps a config string to a SeasonPolicy.
func ParseSeasonPolicy(s string) (SeasonPolicy, error) {
	switch s {
	case "calendar_month":
		return SeasonCalendarMonth, nil
	case "solstice", "":
		return SeasonSolstice, nil
	default:
		return 0, eris.Errorf("features: unknown season policy %q", s)
	}
}

// ParseRushHourPolicy maps a config string to a RushHourPolicy.
func ParseRushHourPolicy(s string) (RushHourPolicy, error) {
	switch s {
	case "inclusive":
		return RushHourInclusive, nil
	case "exclusive", "":
		return RushHourExclusive, nil
	default:
		return 0, eris.Errorf("features: unknown rush hour policy %q", s)
	}
}

// ParseNightPolicy maps a config string to a NightPolicy.
func ParseNightPolicy(s string) (NightPolicy, error) {
	switch s {
	case "fixed":
		return NightFixed, nil
	case "seasonal", "":
		return NightSeasonal, nil
	default:
		return 0, eris.Errorf("features: unknown night policy %q", s)
	}
}

// ParseMissingPolicy maps a config string to a MissingPolicy.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "median_fill":
		return MissingMedianFill, nil
	case "drop", "":
		return MissingDrop, nil
	default:
		return 0, eris.Errorf("features: unknown missing policy %q", s)
	}
}
