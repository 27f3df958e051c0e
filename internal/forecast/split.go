// Package forecast trains and evaluates the hourly-count regressor on
// preprocessed feature tables.
package forecast

import "github.com/rotisserie/eris"

// ChronologicalSplit returns the index separating train from test: the first
// (1-testRatio) fraction of rows is train, the remainder test. Rows are
// never shuffled; the lag features are autocorrelated, so a random split
// would leak future information into training.
func ChronologicalSplit(n int, testRatio float64) (int, error) {
	if testRatio <= 0 || testRatio >= 1 {
		return 0, eris.Errorf("forecast: test ratio %v outside (0,1)", testRatio)
	}
	if n < 2 {
		return 0, eris.Errorf("forecast: need at least 2 rows to split, got %d", n)
	}
	splitIdx := int(float64(n) * (1 - testRatio))
	if splitIdx <= 0 || splitIdx >= n {
		return 0, eris.Errorf("forecast: split ratio %v leaves an empty slice for %d rows", testRatio, n)
	}
	return splitIdx, nil
}
