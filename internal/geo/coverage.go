package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/godal"
)

// CoverageChecker decides whether existing local raw data satisfies a
// requested area of interest and date range, per dataset. It never
// mutates the cache; writers (fetchers) and this reader may run
// concurrently, and a file observed mid-write never appears because
// fetchers rename into place atomically.
type CoverageChecker struct {
	layout Layout
	bounds RasterBoundsReader
}

// NewCoverageChecker builds a checker rooted at dataDir, using reader
// to extract per-file geographic bounds.
func NewCoverageChecker(dataDir string, reader RasterBoundsReader) *CoverageChecker {
	return &CoverageChecker{layout: Layout{DataDir: dataDir}, bounds: reader}
}

// DatasetSummary is the per-dataset entry of a coverage report.
type DatasetSummary struct {
	Covered bool                   `json:"covered"`
	Details map[string]interface{} `json:"details"`
}

// Report mirrors the original get_coverage_summary response shape.
type Report struct {
	Landsat DatasetSummary `json:"landsat"`
	Prism   DatasetSummary `json:"prism"`
	NLDAS   DatasetSummary `json:"nldas"`
	Overall OverallSummary `json:"overall"`
}

type OverallSummary struct {
	DatasetsCovered     int      `json:"datasets_covered"`
	TotalDatasets       int      `json:"total_datasets"`
	CoveragePercentage  float64  `json:"coverage_percentage"`
	NeedsFetching       []string `json:"needs_fetching"`
}

// IsCovered reports whether dataset fully covers aoiGeoJSON for the
// given inclusive date range. An empty geometry is always covered.
func (c *CoverageChecker) IsCovered(dataset string, aoiGeoJSON json.RawMessage, dateFrom, dateTo string) (bool, error) {
	if IsEmpty(aoiGeoJSON) {
		return true, nil
	}
	switch dataset {
	case "landsat":
		return c.landsatCovered(aoiGeoJSON)
	case "prism":
		return c.prismCovered(aoiGeoJSON, dateFrom, dateTo)
	case "nldas":
		return c.nldasCovered(aoiGeoJSON, dateFrom, dateTo)
	default:
		return false, fmt.Errorf("geo: unknown dataset %q", dataset)
	}
}

// Summary builds the full multi-dataset coverage report.
func (c *CoverageChecker) Summary(aoiGeoJSON json.RawMessage, dateFrom, dateTo string) (*Report, error) {
	landsatOK, err := c.landsatCovered(aoiGeoJSON)
	if err != nil {
		return nil, err
	}
	prismOK, err := c.prismCovered(aoiGeoJSON, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}
	nldasOK, err := c.nldasCovered(aoiGeoJSON, dateFrom, dateTo)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Landsat: DatasetSummary{Covered: landsatOK, Details: c.landsatDetails()},
		Prism:   DatasetSummary{Covered: prismOK, Details: c.prismDetails(dateFrom, dateTo)},
		NLDAS:   DatasetSummary{Covered: nldasOK, Details: c.nldasDetails(dateFrom, dateTo)},
	}

	covered := 0
	var needs []string
	for name, ok := range map[string]bool{"landsat": landsatOK, "prism": prismOK, "nldas": nldasOK} {
		if ok {
			covered++
		} else {
			needs = append(needs, name)
		}
	}
	r.Overall = OverallSummary{
		DatasetsCovered:    covered,
		TotalDatasets:      3,
		CoveragePercentage: float64(covered) / 3 * 100,
		NeedsFetching:      needs,
	}
	return r, nil
}

// landsatCovered enumerates every scene in the B4 directory, unions
// their geographic bounds, and tests containment of the AOI. The date
// range is deliberately not part of this check: scenes accumulate
// across requests and are retained indefinitely, so coverage is a
// purely spatial question here. This is preserved as specified even
// though it means a request for a much later date range can be
// reported "covered" by stale scenes.
func (c *CoverageChecker) landsatCovered(aoiGeoJSON json.RawMessage) (bool, error) {
	files, err := listTifs(c.layout.LandsatB4Dir())
	if err != nil {
		return false, err
	}
	if len(files) == 0 {
		return false, nil
	}
	return c.unionContainsAOI(files, aoiGeoJSON)
}

// prismCovered requires a raster to exist for every calendar day in
// [dateFrom, dateTo], using the bounds of the first file encountered
// as the spatial footprint for the whole dataset. That footprint is
// never re-checked against subsequently found files, so a partially
// reprojected or truncated first file silently governs the spatial
// verdict for every other day. Preserved as specified.
func (c *CoverageChecker) prismCovered(aoiGeoJSON json.RawMessage, dateFrom, dateTo string) (bool, error) {
	from, to, err := parseDateRange(dateFrom, dateTo)
	if err != nil {
		return false, err
	}

	var footprintFile string
	foundDays := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dayDir := c.layout.PrismDayDir(d.Format("2006-01-02"))
		files, err := listTifs(dayDir)
		if err != nil {
			return false, err
		}
		if len(files) == 0 {
			continue
		}
		foundDays++
		if footprintFile == "" {
			footprintFile = files[0]
		}
	}

	requiredDays := daysInclusive(from, to)
	if foundDays < requiredDays || footprintFile == "" {
		return false, nil
	}
	return c.unionContainsAOI([]string{footprintFile}, aoiGeoJSON)
}

// nldasCovered requires BOTH a temporal coverage ratio >= 0.9 (hours
// found across the range divided by 24*days) AND the spatial union of
// every found file's bounds to contain the AOI.
func (c *CoverageChecker) nldasCovered(aoiGeoJSON json.RawMessage, dateFrom, dateTo string) (bool, error) {
	from, to, err := parseDateRange(dateFrom, dateTo)
	if err != nil {
		return false, err
	}

	var totalRequired, foundHours int
	var allFiles []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		totalRequired += 24
		dayDir := c.layout.NLDASDayDir(d.Year(), d.Format("2006-01-02"))
		files, err := listTifs(dayDir)
		if err != nil {
			return false, err
		}
		foundHours += len(files)
		allFiles = append(allFiles, files...)
	}

	ratio := 0.0
	if totalRequired > 0 {
		ratio = float64(foundHours) / float64(totalRequired)
	}
	if ratio < 0.9 || len(allFiles) == 0 {
		return false, nil
	}
	return c.unionContainsAOI(allFiles, aoiGeoJSON)
}

func (c *CoverageChecker) landsatDetails() map[string]interface{} {
	b4, _ := listTifs(c.layout.LandsatB4Dir())
	b5, _ := listTifs(c.layout.LandsatB5Dir())
	return map[string]interface{}{
		"b4_scenes": len(b4),
		"b5_scenes": len(b5),
		"file_paths": map[string]string{
			"b4_dir": c.layout.LandsatB4Dir(),
			"b5_dir": c.layout.LandsatB5Dir(),
		},
	}
}

func (c *CoverageChecker) prismDetails(dateFrom, dateTo string) map[string]interface{} {
	from, to, err := parseDateRange(dateFrom, dateTo)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	totalDays := daysInclusive(from, to)
	coveredDays, totalFiles := 0, 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		files, _ := listTifs(c.layout.PrismDayDir(d.Format("2006-01-02")))
		if len(files) > 0 {
			coveredDays++
			totalFiles += len(files)
		}
	}
	pct := 0.0
	if totalDays > 0 {
		pct = float64(coveredDays) / float64(totalDays) * 100
	}
	return map[string]interface{}{
		"covered_days":        coveredDays,
		"total_days":          totalDays,
		"coverage_percentage": pct,
		"total_files":         totalFiles,
		"base_dir":            c.layout.PrismDir(),
	}
}

func (c *CoverageChecker) nldasDetails(dateFrom, dateTo string) map[string]interface{} {
	from, to, err := parseDateRange(dateFrom, dateTo)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	totalDays := daysInclusive(from, to)
	var totalRequired, foundHours, coveredDays int
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		totalRequired += 24
		files, _ := listTifs(c.layout.NLDASDayDir(d.Year(), d.Format("2006-01-02")))
		foundHours += len(files)
		if len(files) >= 20 {
			coveredDays++
		}
	}
	hourPct, dayPct := 0.0, 0.0
	if totalRequired > 0 {
		hourPct = float64(foundHours) / float64(totalRequired) * 100
	}
	if totalDays > 0 {
		dayPct = float64(coveredDays) / float64(totalDays) * 100
	}
	return map[string]interface{}{
		"found_hours":              foundHours,
		"required_hours":           totalRequired,
		"hour_coverage_percentage": hourPct,
		"covered_days":             coveredDays,
		"total_days":               totalDays,
		"day_coverage_percentage":  dayPct,
		"base_dir":                 c.layout.NLDASDir(from.Year()),
	}
}

// unionContainsAOI reads bounds from each file, unions the resulting
// rectangles, and tests containment of the AOI geometry. Files whose
// bounds can't be read are skipped with no error; the skip is not
// logged.
func (c *CoverageChecker) unionContainsAOI(files []string, aoiGeoJSON json.RawMessage) (bool, error) {
	var rects []Bounds
	for _, f := range files {
		b, err := c.bounds.ReadBounds(f)
		if err != nil {
			continue
		}
		rects = append(rects, b)
	}
	if len(rects) == 0 {
		return false, nil
	}
	return unionContains(rects, aoiGeoJSON)
}

// unionContains builds the union of rects as OGR polygons via godal
// and tests whether it contains the AOI geometry.
func unionContains(rects []Bounds, aoiGeoJSON json.RawMessage) (bool, error) {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	aoi, err := godal.NewGeometryFromGeoJSON(string(aoiGeoJSON))
	if err != nil {
		return false, fmt.Errorf("geo: parse aoi geometry: %w", err)
	}
	defer aoi.Close()

	var union *godal.Geometry
	for _, r := range rects {
		poly, err := godal.NewGeometryFromWKT(rectWKT(r), nil)
		if err != nil {
			continue
		}
		if union == nil {
			union = poly
			continue
		}
		merged, err := union.Union(poly)
		poly.Close()
		union.Close()
		if err != nil {
			return false, fmt.Errorf("geo: union bounds: %w", err)
		}
		union = merged
	}
	if union == nil {
		return false, nil
	}
	defer union.Close()

	return union.Contains(aoi), nil
}

func rectWKT(b Bounds) string {
	return fmt.Sprintf(
		"POLYGON((%f %f,%f %f,%f %f,%f %f,%f %f))",
		b.West, b.South,
		b.East, b.South,
		b.East, b.North,
		b.West, b.North,
		b.West, b.South,
	)
}

func listTifs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("geo: list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".tif" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func parseDateRange(dateFrom, dateTo string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", dateFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("geo: invalid date_from %q: %w", dateFrom, err)
	}
	to, err := time.Parse("2006-01-02", dateTo)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("geo: invalid date_to %q: %w", dateTo, err)
	}
	return from, to, nil
}

func daysInclusive(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24) + 1
}
