package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/etmap/rawdata/internal/geo"
)

const earthdataMachine = "urs.earthdata.nasa.gov"

var nldasBandDescriptions = []string{
	"Tair_K", "Qair_kg_per_kg", "PSurf_Pa", "Wind_E_mps", "Wind_N_mps", "SWdown_Wm2",
}

var nldasVariableCandidates = [][]string{
	{"Tair", "Tair_f_inst", "tmp2m", "TMP_2maboveground", "temperature"},
	{"Qair", "Qair_f_inst", "spfh2m", "SPFH_2maboveground", "specific_humidity"},
	{"PSurf", "PSurf_f_inst", "pressfc", "PRES_surface", "pressure"},
	{"Wind_E", "ugrd10m", "UGRD_10maboveground", "wind_u"},
	{"Wind_N", "vgrd10m", "VGRD_10maboveground", "wind_v"},
	{"SWdown", "SWdown_f_inst", "SWdown_f_tavg", "dswrf", "DSWRF_surface", "shortwave_radiation"},
}

// NLDASFetcher downloads hourly NetCDF forcing files and repackages
// each hour into a 6-band GeoTIFF. Grounded on NLDASFetcher in the
// original.
type NLDASFetcher struct {
	HTTPClient *http.Client
	BaseURL    string
	NetrcPath  string
	MaxRetries int
	Layout     geo.Layout
	Log        *slog.Logger

	// Concurrency bounds simultaneous hourly downloads within a single
	// day. Zero means unbounded.
	Concurrency int
}

func (f *NLDASFetcher) FetchData(ctx context.Context, dateFrom, dateTo string, _ json.RawMessage) error {
	creds, err := readNetrc(f.NetrcPath, earthdataMachine)
	if err != nil {
		return err
	}

	start, err := time.Parse("2006-01-02", dateFrom)
	if err != nil {
		return fmt.Errorf("%w: invalid date_from: %v", ErrFatal, err)
	}
	end, err := time.Parse("2006-01-02", dateTo)
	if err != nil {
		return fmt.Errorf("%w: invalid date_to: %v", ErrFatal, err)
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dayDir := f.Layout.NLDASDayDir(d.Year(), d.Format("2006-01-02"))
		if f.dayComplete(dayDir) {
			f.Log.Info("nldas: day already complete, skipping", "date", d.Format("2006-01-02"))
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		if f.Concurrency > 0 {
			g.SetLimit(f.Concurrency)
		}
		for hour := 0; hour < 24; hour++ {
			hour := hour
			g.Go(func() error {
				ts := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
				outName := fmt.Sprintf("NLDAS_FORA_%s00.tif", ts.Format("20060102_15"))
				outPath := filepath.Join(dayDir, outName)
				if exists(outPath) {
					return nil
				}

				if err := f.fetchHour(gctx, ts, creds, outPath); err != nil {
					if errors.Is(err, ErrFatal) || errors.Is(err, ErrConfig) {
						return err
					}
					f.Log.Warn("nldas: hour failed", "hour", ts.Format("2006-01-02T15"), "error", err)
					return nil
				}
				size := "unknown"
				if info, err := os.Stat(outPath); err == nil {
					size = humanize.Bytes(uint64(info.Size()))
				}
				f.Log.Info("nldas: saved hour", "hour", ts.Format("2006-01-02T15"), "size", size)
				return nil
			})
		}
		// ErrFatal/ErrConfig (bad credentials, auth redirect, malformed
		// response) abort the whole fetcher on first occurrence; any
		// other per-hour failure is logged and skipped above.
		if err := g.Wait(); err != nil {
			return fmt.Errorf("nldas: %w", err)
		}
	}
	return nil
}

func (f *NLDASFetcher) dayComplete(dayDir string) bool {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return false
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".tif") {
			count++
		}
	}
	return count >= 24
}

func (f *NLDASFetcher) hourlyURL(ts time.Time) string {
	doy := ts.YearDay()
	return fmt.Sprintf("%s/%s/%03d/NLDAS_FORA0125_H.A%s.%s00.020.nc",
		f.BaseURL, ts.Format("2006"), doy, ts.Format("20060102"), ts.Format("15"))
}

func (f *NLDASFetcher) fetchHour(ctx context.Context, ts time.Time, creds *netrcCredentials, outPath string) error {
	url := f.hourlyURL(ts)

	var ncPath string
	err := withRetry(ctx, f.MaxRetries, func(attempt int) error {
		path, err := f.downloadHourNC(ctx, url, creds)
		if err != nil {
			return err
		}
		ncPath = path
		return nil
	})
	if err != nil {
		return err
	}
	defer os.Remove(ncPath)

	return f.convertToGeoTIFF(ncPath, outPath)
}

func (f *NLDASFetcher) downloadHourNC(ctx context.Context, url string, creds *netrcCredentials) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrFatal, err)
	}
	req.SetBasicAuth(creds.Login, creds.Password)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: http %d — check %s", ErrConfig, resp.StatusCode, earthdataMachine)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrFatal, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "text/html") {
		return "", fmt.Errorf("%w: got HTML instead of NetCDF — likely an auth redirect", ErrFatal)
	}

	tmp, err := os.CreateTemp("", "nldas_*.nc")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", ErrTransient, err)
	}
	defer tmp.Close()

	if _, err := tmp.ReadFrom(resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: write temp file: %v", ErrTransient, err)
	}
	return tmp.Name(), nil
}

// convertToGeoTIFF opens the downloaded hourly NetCDF via GDAL's
// NetCDF driver, picks the six forcing variables by name from the
// candidate lists the original uses, and writes a single 6-band
// GeoTIFF with descriptive band names.
func (f *NLDASFetcher) convertToGeoTIFF(ncPath, outPath string) error {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	var bandData [][]float32
	var width, height int
	var geoTransform [6]float64

	for _, candidates := range nldasVariableCandidates {
		data, w, h, gt, err := openNetCDFVariable(ncPath, candidates)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		width, height, geoTransform = w, h, gt
		bandData = append(bandData, data)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrFatal, err)
	}

	tmpOut := outPath + ".part"
	driver, err := godal.GDALDriver("GTiff")
	if err != nil {
		return fmt.Errorf("%w: gtiff driver: %v", ErrFatal, err)
	}
	ds, err := driver.Create(tmpOut, len(bandData), godal.Float32, width, height,
		godal.CreationOption("COMPRESS=DEFLATE", "PREDICTOR=2", "TILED=YES", "BIGTIFF=YES"))
	if err != nil {
		return fmt.Errorf("%w: create geotiff: %v", ErrFatal, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(geoTransform); err != nil {
		return fmt.Errorf("%w: set geotransform: %v", ErrFatal, err)
	}
	if sr, err := godal.NewSpatialRefFromEPSG(4326); err == nil {
		defer sr.Close()
		_ = ds.SetSpatialRef(sr)
	}

	bands := ds.Bands()
	for i, band := range bands {
		if err := band.Write(0, 0, bandData[i], width, height); err != nil {
			return fmt.Errorf("%w: write band %d: %v", ErrFatal, i+1, err)
		}
		if i < len(nldasBandDescriptions) {
			_ = band.SetDescription(nldasBandDescriptions[i])
		}
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("%w: close geotiff: %v", ErrFatal, err)
	}

	return os.Rename(tmpOut, outPath)
}

// openNetCDFVariable opens the first matching subdataset name from
// candidates and returns its pixel data flipped to north-up row order
// (the original's ds.isel + lat[0]<lat[-1] flip), plus its dimensions
// and geotransform.
func openNetCDFVariable(ncPath string, candidates []string) ([]float32, int, int, [6]float64, error) {
	var lastErr error
	for _, name := range candidates {
		subdataset := fmt.Sprintf("NETCDF:%q:%s", ncPath, name)
		ds, err := godal.Open(subdataset)
		if err != nil {
			lastErr = err
			continue
		}
		defer ds.Close()

		bands := ds.Bands()
		if len(bands) == 0 {
			lastErr = fmt.Errorf("variable %s has no bands", name)
			continue
		}
		structure := ds.Structure()
		width, height := structure.SizeX, structure.SizeY

		buf := make([]float32, width*height)
		if err := bands[0].Read(0, 0, buf, width, height); err != nil {
			lastErr = err
			continue
		}

		gt, err := ds.GeoTransform()
		if err != nil {
			lastErr = err
			continue
		}
		if gt[5] > 0 {
			flipRows(buf, width, height)
			gt[3] += gt[5] * float64(height)
			gt[5] = -gt[5]
		}
		return buf, width, height, gt, nil
	}
	return nil, 0, 0, [6]float64{}, fmt.Errorf("none of %v found: %v", candidates, lastErr)
}

func flipRows(buf []float32, width, height int) {
	rowBuf := make([]float32, width)
	for r := 0; r < height/2; r++ {
		top := buf[r*width : (r+1)*width]
		bottom := buf[(height-1-r)*width : (height-r)*width]
		copy(rowBuf, top)
		copy(top, bottom)
		copy(bottom, rowBuf)
	}
}
