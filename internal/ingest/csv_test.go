package ingest

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parismobility/velocast/internal/model"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "rfc3339 with offset converted to utc",
			raw:  "2025-03-01T14:00:00+01:00",
			want: time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "no offset treated as utc",
			raw:  "2025-03-01T14:30:15",
			want: time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "no seconds",
			raw:  "2025-03-01T14:30",
			want: time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "space separator",
			raw:  "2025-03-01 14:30:15",
			want: time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "garbage yields zero time",
			raw:  "not-a-date",
			want: time.Time{},
		},
		{
			name: "empty yields zero time",
			raw:  "",
			want: time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTimestamp(tt.raw))
		})
	}
}

func csvHeader() string {
	return strings.Join(RequiredColumns, ";")
}

func csvRow(siteID, count, ts, coord string) string {
	row := make([]string, len(RequiredColumns))
	for i, col := range RequiredColumns {
		switch col {
		case ColSiteID:
			row[i] = siteID
		case ColCount:
			row[i] = count
		case ColTimestamp:
			row[i] = ts
		case ColCoordinates:
			row[i] = coord
		case ColCounterID:
			row[i] = siteID + "-c1"
		}
	}
	return strings.Join(row, ";")
}

func TestLoadCSV(t *testing.T) {
	input := strings.Join([]string{
		csvHeader(),
		csvRow("100", "12", "2025-03-01T01:00:00+01:00", "48.85,2.35"),
		csvRow("100", "7", "2025-03-01T02:00:00+01:00", "48.85,2.35"),
	}, "\n")

	records, err := LoadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "100", records[0].SiteID)
	assert.Equal(t, 12.0, records[0].HourlyCount)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), records[0].Timestamp)
	assert.Equal(t, "48.85,2.35", records[0].RawCoordinate)
	assert.Equal(t, "100-c1", records[0].CounterID)
}

func TestLoadCSV_BadRowsKept(t *testing.T) {
	input := strings.Join([]string{
		csvHeader(),
		csvRow("100", "not-a-number", "garbage", "48.85,2.35"),
	}, "\n")

	records, err := LoadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	// Unparseable values become zero/NaN markers; the preprocessor drops them.
	assert.True(t, records[0].Timestamp.IsZero())
	assert.True(t, math.IsNaN(records[0].HourlyCount))
}

func TestLoadCSV_MissingCountIsNaN(t *testing.T) {
	input := strings.Join([]string{
		csvHeader(),
		csvRow("100", "", "2025-03-01T01:00:00+01:00", "48.85,2.35"),
	}, "\n")

	records, err := LoadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)

	// An empty count with a valid timestamp must not survive as a real zero
	// observation.
	assert.False(t, records[0].Timestamp.IsZero())
	assert.True(t, math.IsNaN(records[0].HourlyCount))
}

func TestLoadCSV_HeaderOnly(t *testing.T) {
	records, err := LoadCSV(context.Background(), strings.NewReader(csvHeader()))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadCSV_Empty(t *testing.T) {
	_, err := LoadCSV(context.Background(), strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}

func TestLoadCSV_MissingColumn(t *testing.T) {
	header := strings.Join(RequiredColumns[:len(RequiredColumns)-1], ";")
	input := header + "\n" + strings.Repeat("x;", len(RequiredColumns)-2) + "x"

	_, err := LoadCSV(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ColMonthYear)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	in := []model.CounterRecord{
		{
			SiteID:        "100003096",
			Timestamp:     time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
			HourlyCount:   42,
			RawCoordinate: "48.8566,2.3522",
			CounterID:     "100003096-353242251",
			CounterName:   "97 avenue Denfert Rochereau SO-NE",
			SiteName:      "97 avenue Denfert Rochereau",
			TechnicalID:   "Y2H19070373",
			InstallDate:   "2012-02-22",
			MonthYear:     "2025-03",
			PhotoURL:      "https://example.org/photo.jpg",
			PhotoID:       "1",
		},
		{
			SiteID:      "100003097",
			Timestamp:   time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC),
			HourlyCount: 0,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	out, err := LoadCSV(context.Background(), &buf)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[1].SiteID, out[1].SiteID)
	assert.Equal(t, in[1].Timestamp, out[1].Timestamp)
}
