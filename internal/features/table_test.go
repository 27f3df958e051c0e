package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourAt(h int) time.Time {
	return time.Date(2025, time.June, 1, h, 0, 0, 0, time.UTC)
}

func newTestTable(t *testing.T, sites []string, hours []int, target []float64) *Table {
	t.Helper()
	require.Equal(t, len(sites), len(hours))
	require.Equal(t, len(sites), len(target))

	tbl := NewTable(len(sites))
	for i := range sites {
		tbl.Timestamps = append(tbl.Timestamps, hourAt(hours[i]))
		tbl.Sites = append(tbl.Sites, sites[i])
		tbl.Target = append(tbl.Target, target[i])
	}
	return tbl
}

func TestTable_AddColumn(t *testing.T) {
	tbl := newTestTable(t, []string{"a", "b"}, []int{0, 1}, []float64{1, 2})

	require.NoError(t, tbl.AddColumn("x", []float64{10, 20}))
	assert.Equal(t, []float64{10, 20}, tbl.Column("x"))

	err := tbl.AddColumn("x", []float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = tbl.AddColumn("y", []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 rows")
}

func TestTable_FeatureNames_Order(t *testing.T) {
	tbl := newTestTable(t, []string{"a"}, []int{0}, []float64{1})
	require.NoError(t, tbl.AddColumn("hour", []float64{0}))
	require.NoError(t, tbl.AddColumn("rain", []float64{0}))
	require.NoError(t, tbl.AddColumn("lag_1", []float64{0}))

	// Site identifier first, then numeric columns in insertion order.
	assert.Equal(t, []string{"site_id", "hour", "rain", "lag_1"}, tbl.FeatureNames())

	tbl.DropColumn("rain")
	assert.Equal(t, []string{"site_id", "hour", "lag_1"}, tbl.FeatureNames())
}

func TestTable_SortBySiteTime(t *testing.T) {
	tbl := newTestTable(t,
		[]string{"b", "a", "a", "b"},
		[]int{1, 3, 1, 0},
		[]float64{10, 20, 30, 40},
	)
	require.NoError(t, tbl.AddColumn("x", []float64{1, 2, 3, 4}))

	tbl.SortBySiteTime()

	assert.Equal(t, []string{"a", "a", "b", "b"}, tbl.Sites)
	assert.Equal(t, []float64{30, 20, 40, 10}, tbl.Target)
	assert.Equal(t, []float64{3, 2, 4, 1}, tbl.Column("x"))
}

func TestTable_SortChronological(t *testing.T) {
	tbl := newTestTable(t,
		[]string{"a", "b", "a"},
		[]int{5, 1, 3},
		[]float64{1, 2, 3},
	)
	tbl.SortChronological()

	assert.Equal(t, []time.Time{hourAt(1), hourAt(3), hourAt(5)}, tbl.Timestamps)
	assert.Equal(t, []float64{2, 3, 1}, tbl.Target)
}

func TestTable_DropMissing(t *testing.T) {
	tbl := newTestTable(t,
		[]string{"a", "a", "a", "a"},
		[]int{0, 1, 2, 3},
		[]float64{1, math.NaN(), 3, 4},
	)
	require.NoError(t, tbl.AddColumn("x", []float64{1, 2, math.NaN(), 4}))

	dropped := tbl.DropMissing()

	assert.Equal(t, 2, dropped)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []float64{1, 4}, tbl.Target)
	assert.Equal(t, []float64{1, 4}, tbl.Column("x"))
}

func TestTable_FillMissingWithMedian(t *testing.T) {
	tbl := newTestTable(t,
		[]string{"a", "a", "a", "a", "a"},
		[]int{0, 1, 2, 3, 4},
		[]float64{1, 1, 1, 1, 1},
	)
	require.NoError(t, tbl.AddColumn("x", []float64{1, math.NaN(), 3, math.NaN(), 5}))

	tbl.FillMissingWithMedian("x")

	assert.Equal(t, []float64{1, 3, 3, 3, 5}, tbl.Column("x"))
}

func TestTable_FillMissingWithMedian_AllMissing(t *testing.T) {
	tbl := newTestTable(t, []string{"a", "a"}, []int{0, 1}, []float64{1, 1})
	require.NoError(t, tbl.AddColumn("x", []float64{math.NaN(), math.NaN()}))

	tbl.FillMissingWithMedian("x")

	assert.True(t, math.IsNaN(tbl.Column("x")[0]))
}
