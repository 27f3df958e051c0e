// Package features turns raw counter records into a leakage-free,
// chronologically ordered feature table.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// SiteColumn is the name of the categorical site-identifier feature.
const SiteColumn = "site_id"

// Table is a columnar feature table. Timestamps and Target are carried
// alongside the feature columns but are never part of the feature set.
// All columns have equal length. Missing values are NaN.
type Table struct {
	Timestamps []time.Time
	Sites      []string
	Target     []float64

	cols []string
	data map[string][]float64
}

// NewTable creates an empty table for n rows.
func NewTable(n int) *Table {
	return &Table{
		Timestamps: make([]time.Time, 0, n),
		Sites:      make([]string, 0, n),
		Target:     make([]float64, 0, n),
		data:       make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Timestamps)
}

// Columns returns the ordered numeric column names.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// Column returns the values of a column, or nil if absent.
func (t *Table) Column(name string) []float64 {
	return t.data[name]
}

// HasColumn reports whether the column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.data[name]
	return ok
}

// AddColumn appends a new column. The column order is the insertion order,
// which fixes the feature-name order downstream.
func (t *Table) AddColumn(name string, values []float64) error {
	if _, ok := t.data[name]; ok {
		return eris.Errorf("table: duplicate column %q", name)
	}
	if len(values) != t.Len() {
		return eris.Errorf("table: column %q has %d values, table has %d rows", name, len(values), t.Len())
	}
	t.cols = append(t.cols, name)
	t.data[name] = values
	return nil
}

// DropColumn removes a column if present.
func (t *Table) DropColumn(name string) {
	if _, ok := t.data[name]; !ok {
		return
	}
	delete(t.data, name)
	for i, c := range t.cols {
		if c == name {
			t.cols = append(t.cols[:i], t.cols[i+1:]...)
			break
		}
	}
}

// FeatureNames returns the model input columns: the site identifier followed
// by every numeric column, in insertion order. Target and timestamp are
// excluded. The order is explicit and stable for a given pipeline build.
func (t *Table) FeatureNames() []string {
	names := make([]string, 0, len(t.cols)+1)
	names = append(names, SiteColumn)
	names = append(names, t.cols...)
	return names
}

// apply reorders every column by the given permutation: row i of the result
// is row perm[i] of the input.
func (t *Table) apply(perm []int) {
	ts := make([]time.Time, len(perm))
	sites := make([]string, len(perm))
	target := make([]float64, len(perm))
	for i, p := range perm {
		ts[i] = t.Timestamps[p]
		sites[i] = t.Sites[p]
		target[i] = t.Target[p]
	}
	t.Timestamps, t.Sites, t.Target = ts, sites, target

	for _, name := range t.cols {
		col := t.data[name]
		next := make([]float64, len(perm))
		for i, p := range perm {
			next[i] = col[p]
		}
		t.data[name] = next
	}
}

// SortBySiteTime sorts rows by site identifier ascending, then timestamp
// ascending. This ordering is the precondition for every lag and rolling
// computation.
func (t *Table) SortBySiteTime() {
	perm := t.identity()
	sort.SliceStable(perm, func(a, b int) bool {
		i, j := perm[a], perm[b]
		if t.Sites[i] != t.Sites[j] {
			return t.Sites[i] < t.Sites[j]
		}
		return t.Timestamps[i].Before(t.Timestamps[j])
	})
	t.apply(perm)
}

// SortChronological sorts rows by timestamp ascending.
func (t *Table) SortChronological() {
	perm := t.identity()
	sort.SliceStable(perm, func(a, b int) bool {
		return t.Timestamps[perm[a]].Before(t.Timestamps[perm[b]])
	})
	t.apply(perm)
}

func (t *Table) identity() []int {
	perm := make([]int, t.Len())
	for i := range perm {
		perm[i] = i
	}
	return perm
}

// Filter keeps only the rows where keep[i] is true and returns the number of
// dropped rows.
func (t *Table) Filter(keep []bool) int {
	perm := make([]int, 0, t.Len())
	for i, k := range keep {
		if k {
			perm = append(perm, i)
		}
	}
	dropped := t.Len() - len(perm)
	t.apply(perm)
	return dropped
}

// DropMissing removes every row that has NaN in any column or target and
// returns the number of dropped rows.
func (t *Table) DropMissing() int {
	keep := make([]bool, t.Len())
	for i := range keep {
		keep[i] = !math.IsNaN(t.Target[i])
	}
	for _, name := range t.cols {
		col := t.data[name]
		for i, v := range col {
			if math.IsNaN(v) {
				keep[i] = false
			}
		}
	}
	return t.Filter(keep)
}

// FillMissingWithMedian replaces NaN in the named column with the column's
// global median over the non-missing values. No-op when the column is all-NaN
// or absent.
func (t *Table) FillMissingWithMedian(name string) {
	col, ok := t.data[name]
	if !ok {
		return
	}
	med, ok := median(col)
	if !ok {
		return
	}
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = med
		}
	}
}

// median computes the median of the non-NaN values. The second return is
// false when no finite values exist.
func median(values []float64) (float64, bool) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, false
	}
	sort.Float64s(finite)
	return stat.Quantile(0.5, stat.LinInterp, finite, nil), true
}
