package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parismobility/velocast/internal/fetcher"
	"github.com/parismobility/velocast/internal/model"
)

// OpenDataClient pages through the opendata.paris.fr explore API for the
// bike-counter dataset.
type OpenDataClient struct {
	fetcher  *fetcher.HTTPFetcher
	baseURL  string
	dataset  string
	pageSize int
}

// NewOpenDataClient creates a client over the given fetcher. pageSize is
// capped at 100, the API maximum.
func NewOpenDataClient(f *fetcher.HTTPFetcher, baseURL, dataset string, pageSize int) *OpenDataClient {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &OpenDataClient{
		fetcher:  f,
		baseURL:  baseURL,
		dataset:  dataset,
		pageSize: pageSize,
	}
}

// recordsResponse is one page of results.
type recordsResponse struct {
	TotalCount int         `json:"total_count"`
	Results    []apiRecord `json:"results"`
}

// apiRecord mirrors the explore API field names, which differ from the CSV
// export headers.
type apiRecord struct {
	CounterID   string          `json:"id_compteur"`
	CounterName string          `json:"nom_compteur"`
	SiteID      json.Number     `json:"id"`
	SiteName    string          `json:"name"`
	SumCounts   float64         `json:"sum_counts"`
	Date        string          `json:"date"`
	InstallDate string          `json:"installation_date"`
	PhotoURL    string          `json:"url_photos_n1"`
	Coordinates json.RawMessage `json:"coordinates"`
	TechnicalID string          `json:"counter"`
	PhotoID     string          `json:"photos"`
	MonthYear   string          `json:"mois_annee_comptage"`
}

// coordinateString renders the API coordinate field as the canonical
// "<lat>,<lon>" string. The API has published both a plain string and a
// {lon, lat} object over time.
func (r apiRecord) coordinateString() string {
	if len(r.Coordinates) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(r.Coordinates, &asString); err == nil {
		return asString
	}
	var asPoint struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.Unmarshal(r.Coordinates, &asPoint); err == nil {
		return fmt.Sprintf("%f,%f", asPoint.Lat, asPoint.Lon)
	}
	return ""
}

// FetchRange fetches all counter records with dates in [start, end],
// paginating with limit/offset until total_count is reached. The explore
// API expects YYYY/MM/DD in where clauses.
func (c *OpenDataClient) FetchRange(ctx context.Context, start, end time.Time) ([]model.CounterRecord, error) {
	where := fmt.Sprintf("date >= date'%s' AND date <= date'%s'",
		start.Format("2006/01/02"), end.Format("2006/01/02"))

	var records []model.CounterRecord
	offset := 0
	for {
		q := url.Values{}
		q.Set("where", where)
		q.Set("limit", fmt.Sprintf("%d", c.pageSize))
		q.Set("offset", fmt.Sprintf("%d", offset))
		reqURL := fmt.Sprintf("%s/catalog/datasets/%s/records?%s", c.baseURL, c.dataset, q.Encode())

		var page recordsResponse
		if err := c.fetcher.GetJSON(ctx, reqURL, &page); err != nil {
			return nil, eris.Wrapf(err, "opendata: fetch offset %d", offset)
		}

		for _, r := range page.Results {
			records = append(records, model.CounterRecord{
				SiteID:        r.SiteID.String(),
				Timestamp:     ParseTimestamp(r.Date),
				HourlyCount:   r.SumCounts,
				RawCoordinate: r.coordinateString(),
				CounterID:     r.CounterID,
				CounterName:   r.CounterName,
				SiteName:      r.SiteName,
				TechnicalID:   r.TechnicalID,
				InstallDate:   r.InstallDate,
				MonthYear:     r.MonthYear,
				PhotoURL:      r.PhotoURL,
				PhotoID:       r.PhotoID,
			})
		}

		offset += len(page.Results)
		zap.L().Debug("opendata page fetched",
			zap.Int("fetched", offset),
			zap.Int("total", page.TotalCount),
		)

		if len(page.Results) == 0 || offset >= page.TotalCount {
			break
		}
	}

	zap.L().Info("opendata fetch complete", zap.Int("records", len(records)))
	return records, nil
}
