package ingest

import (
	"context"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/fetcher"
	"github.com/parismobility/velocast/internal/model"
)

// timestampLayouts are tried in order when parsing the counter timestamp.
// The feed publishes ISO timestamps with a zone offset; re-exports sometimes
// drop the offset or the seconds.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a raw counter timestamp and normalizes it to naive
// hourly resolution: converted to UTC, zone stripped, truncated to the hour.
// The zero time signals an unparseable value; callers drop such rows rather
// than failing.
func ParseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// LoadCSV reads a raw counter CSV export (';'-delimited, as published) into
// records. The header is validated against the required schema before any
// row is parsed; a missing column is fatal. Individual rows with unparseable
// timestamps or counts are kept with zero/NaN markers and filtered by the
// preprocessor.
func LoadCSV(ctx context.Context, r io.Reader) ([]model.CounterRecord, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var index map[string]int
	var records []model.CounterRecord
	badTimestamps := 0

	for row := range rowCh {
		if index == nil {
			header, ok := <-headerCh
			if !ok {
				return nil, eris.Wrap(ErrSchema, "ingest: empty input")
			}
			idx, err := ValidateSchema(header)
			if err != nil {
				return nil, err
			}
			index = idx
		}

		rec, ok := rowToRecord(row, index)
		if !ok {
			badTimestamps++
		}
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "ingest: read csv")
	}

	// Header-only files still need schema validation.
	if index == nil {
		select {
		case header, ok := <-headerCh:
			if !ok {
				return nil, eris.Wrap(ErrSchema, "ingest: empty input")
			}
			if _, err := ValidateSchema(header); err != nil {
				return nil, err
			}
		default:
			return nil, eris.Wrap(ErrSchema, "ingest: empty input")
		}
	}

	if badTimestamps > 0 {
		zap.L().Warn("rows with unparseable timestamps will be dropped",
			zap.Int("rows", badTimestamps),
		)
	}
	zap.L().Info("csv loaded", zap.Int("rows", len(records)))
	return records, nil
}

func rowToRecord(row []string, index map[string]int) (model.CounterRecord, bool) {
	field := func(col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	// A missing count must never read as a real zero observation; NaN marks
	// it for the preprocessor to drop.
	count, err := strconv.ParseFloat(field(ColCount), 64)
	if err != nil {
		count = math.NaN()
	}

	ts := ParseTimestamp(field(ColTimestamp))

	return model.CounterRecord{
		SiteID:        field(ColSiteID),
		Timestamp:     ts,
		HourlyCount:   count,
		RawCoordinate: field(ColCoordinates),
		CounterID:     field(ColCounterID),
		CounterName:   field(ColCounterName),
		SiteName:      field(ColSiteName),
		TechnicalID:   field(ColTechnicalID),
		InstallDate:   field(ColInstallDate),
		MonthYear:     field(ColMonthYear),
		PhotoURL:      field(ColPhotoURL),
		PhotoID:       field(ColPhotoID),
	}, !ts.IsZero()
}
