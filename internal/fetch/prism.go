package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/etmap/rawdata/internal/geo"
)

var prismVariables = []string{"ppt", "tmin", "tmax", "tmean", "tdmean", "vpdmin", "vpdmax"}

// PRISMFetcher downloads one raster per (day, variable) from the
// gridded-climate provider. Grounded on PRISMFetcher in the original.
type PRISMFetcher struct {
	HTTPClient *http.Client
	BaseURL    string
	Layout     geo.Layout
	Log        *slog.Logger

	// Concurrency bounds simultaneous variable downloads within a
	// single day. Zero means unbounded (all variables at once).
	Concurrency int
}

func (f *PRISMFetcher) FetchData(ctx context.Context, dateFrom, dateTo string, _ json.RawMessage) error {
	start, err := time.Parse("2006-01-02", dateFrom)
	if err != nil {
		return fmt.Errorf("%w: invalid date_from: %v", ErrFatal, err)
	}
	end, err := time.Parse("2006-01-02", dateTo)
	if err != nil {
		return fmt.Errorf("%w: invalid date_to: %v", ErrFatal, err)
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		yyyymmdd := d.Format("20060102")
		dayDir := f.Layout.PrismDayDir(d.Format("2006-01-02"))

		g, gctx := errgroup.WithContext(ctx)
		if f.Concurrency > 0 {
			g.SetLimit(f.Concurrency)
		}
		for _, variable := range prismVariables {
			variable := variable
			g.Go(func() error {
				outPath := filepath.Join(dayDir, fmt.Sprintf("prism_%s_%s.tif", variable, yyyymmdd))
				if exists(outPath) {
					return nil
				}
				url := fmt.Sprintf("%s/%s/%s", f.BaseURL, variable, yyyymmdd)
				if err := f.downloadVariable(gctx, url, outPath); err != nil {
					f.Log.Warn("prism: download variable failed", "variable", variable, "date", yyyymmdd, "error", err)
					return nil
				}
				size := "unknown"
				if info, err := os.Stat(outPath); err == nil {
					size = humanize.Bytes(uint64(info.Size()))
				}
				f.Log.Info("prism: saved variable", "variable", variable, "date", yyyymmdd, "size", size)
				return nil
			})
		}
		// errors are logged and swallowed inside each goroutine, so Wait
		// never returns non-nil here.
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (f *PRISMFetcher) downloadVariable(ctx context.Context, url, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrFatal, err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: download: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrFatal, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<30))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	contentType := resp.Header.Get("Content-Type")
	data := raw
	if strings.Contains(contentType, "zip") || isZipMagic(raw) {
		extracted, err := extractFirstTif(raw)
		if err != nil {
			return fmt.Errorf("%w: extract zip: %v", ErrFatal, err)
		}
		data = extracted
	}

	return writeAtomic(outPath, bytes.NewReader(data))
}

func isZipMagic(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 0x03 && b[3] == 0x04
}

func extractFirstTif(zipBytes []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, err
	}
	for _, file := range r.File {
		if strings.HasSuffix(strings.ToLower(file.Name), ".tif") {
			rc, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("no .tif member in archive")
}
