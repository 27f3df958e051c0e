package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parismobility/velocast/internal/model"
)

// WriteCSV writes records in the canonical feed layout, ';'-delimited with
// the full French header, so an ingested range round-trips through LoadCSV.
func WriteCSV(w io.Writer, records []model.CounterRecord) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(RequiredColumns); err != nil {
		return eris.Wrap(err, "ingest: write header")
	}

	row := make([]string, len(RequiredColumns))
	for _, rec := range records {
		ts := ""
		if !rec.Timestamp.IsZero() {
			ts = rec.Timestamp.Format(time.RFC3339)
		}
		for i, col := range RequiredColumns {
			switch col {
			case ColCounterID:
				row[i] = rec.CounterID
			case ColCounterName:
				row[i] = rec.CounterName
			case ColSiteID:
				row[i] = rec.SiteID
			case ColSiteName:
				row[i] = rec.SiteName
			case ColCount:
				row[i] = strconv.FormatFloat(rec.HourlyCount, 'f', -1, 64)
			case ColTimestamp:
				row[i] = ts
			case ColInstallDate:
				row[i] = rec.InstallDate
			case ColPhotoURL:
				row[i] = rec.PhotoURL
			case ColCoordinates:
				row[i] = rec.RawCoordinate
			case ColTechnicalID:
				row[i] = rec.TechnicalID
			case ColPhotoID:
				row[i] = rec.PhotoID
			case ColMonthYear:
				row[i] = rec.MonthYear
			default:
				row[i] = ""
			}
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "ingest: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "ingest: flush csv")
}
