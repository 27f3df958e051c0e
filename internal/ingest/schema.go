// Package ingest loads raw counter records from CSV exports and the
// opendata.paris.fr API.
package ingest

import (
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical column names of the raw counter feed. The feed publishes French
// headers with accents; comparison happens on the normalized form.
const (
	ColCounterID   = "identifiant_du_compteur"
	ColCounterName = "nom_du_compteur"
	ColSiteID      = "identifiant_du_site_de_comptage"
	ColSiteName    = "nom_du_site_de_comptage"
	ColCount       = "comptage_horaire"
	ColTimestamp   = "date_et_heure_de_comptage"
	ColInstallDate = "date_d'installation_du_site_de_comptage"
	ColPhotoURL    = "lien_vers_photo_du_site_de_comptage"
	ColCoordinates = "coordonnées_géographiques"
	ColTechnicalID = "identifiant_technique_compteur"
	ColPhotoID     = "id_photos"
	ColPhotoTest   = "test_lien_vers_photos_du_site_de_comptage_"
	ColPhoto1      = "id_photo_1"
	ColSiteURL     = "url_sites"
	ColImageType   = "type_dimage"
	ColMonthYear   = "mois_annee_comptage"
)

// RequiredColumns is the full required input schema. A missing column is a
// hard failure reported before any processing begins.
var RequiredColumns = []string{
	ColCounterID,
	ColCounterName,
	ColSiteID,
	ColSiteName,
	ColCount,
	ColTimestamp,
	ColInstallDate,
	ColPhotoURL,
	ColCoordinates,
	ColTechnicalID,
	ColPhotoID,
	ColPhotoTest,
	ColPhoto1,
	ColSiteURL,
	ColImageType,
	ColMonthYear,
}

// ErrSchema marks a schema-validation failure.
var ErrSchema = eris.New("ingest: input schema invalid")

// normalizeHeader lower-cases a header and strips diacritics, so that
// re-exports that lost their accents still validate.
func normalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(strings.ToLower(h)))
	if err != nil {
		return strings.TrimSpace(strings.ToLower(h))
	}
	return folded
}

// ValidateSchema checks the header row against RequiredColumns and returns
// a column-name → index mapping keyed by canonical names.
func ValidateSchema(header []string) (map[string]int, error) {
	byNormalized := make(map[string]int, len(header))
	for i, h := range header {
		byNormalized[normalizeHeader(h)] = i
	}

	index := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, col := range RequiredColumns {
		i, ok := byNormalized[normalizeHeader(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		index[col] = i
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, eris.Wrapf(ErrSchema, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}
