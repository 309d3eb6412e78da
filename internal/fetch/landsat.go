package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/etmap/rawdata/internal/geo"
)

// LandsatFetcher downloads full scene bands (red/nir08) for the
// requested date range from a STAC catalog, falling back to the
// nearest date with coverage (±window, +side first on ties) when the
// exact day has no scenes. Grounded on LandsatFetcher in the original.
type LandsatFetcher struct {
	HTTPClient   *http.Client
	CatalogURL   string
	Collection   string
	WindowDays   int
	MaxScenes    int
	Layout       geo.Layout
	Log          *slog.Logger

	// Concurrency bounds simultaneous band downloads across the scenes
	// found for one search. Zero means unbounded.
	Concurrency int
}

func (f *LandsatFetcher) stac() *stacClient {
	return &stacClient{httpClient: f.HTTPClient, baseURL: f.CatalogURL}
}

func (f *LandsatFetcher) FetchData(ctx context.Context, dateFrom, dateTo string, geometry json.RawMessage) error {
	start, err := time.Parse("2006-01-02", dateFrom)
	if err != nil {
		return fmt.Errorf("%w: invalid date_from: %v", ErrFatal, err)
	}
	end, err := time.Parse("2006-01-02", dateTo)
	if err != nil {
		return fmt.Errorf("%w: invalid date_to: %v", ErrFatal, err)
	}

	var intersects json.RawMessage
	if !geo.IsEmpty(geometry) {
		intersects = geometry
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format("2006-01-02")
		items, err := f.searchDay(ctx, dateStr, intersects)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			f.downloadAll(ctx, items, dateStr)
			continue
		}

		used, err := f.fetchNearest(ctx, d, intersects)
		if err != nil {
			return err
		}
		if used == "" {
			f.Log.Info("landsat: no scenes within window", "date", dateStr, "window_days", f.WindowDays)
		}
	}
	return nil
}

func (f *LandsatFetcher) searchDay(ctx context.Context, dateStr string, intersects json.RawMessage) ([]stacItem, error) {
	dayStart := dateStr + "T00:00:00Z"
	dayEnd := dateStr + "T23:59:59Z"
	items, err := f.stac().search(ctx, f.Collection, dayStart, dayEnd, intersects, f.MaxScenes)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// fetchNearest walks +1,-1,+2,-2,... up to WindowDays, downloading the
// first date that has any scenes and returning the date string used.
func (f *LandsatFetcher) fetchNearest(ctx context.Context, target time.Time, intersects json.RawMessage) (string, error) {
	for d := 1; d <= f.WindowDays; d++ {
		plusDate := target.AddDate(0, 0, d).Format("2006-01-02")
		items, err := f.searchDay(ctx, plusDate, intersects)
		if err != nil {
			return "", err
		}
		if len(items) > 0 {
			f.downloadAll(ctx, items, plusDate)
			return plusDate, nil
		}

		minusDate := target.AddDate(0, 0, -d).Format("2006-01-02")
		items, err = f.searchDay(ctx, minusDate, intersects)
		if err != nil {
			return "", err
		}
		if len(items) > 0 {
			f.downloadAll(ctx, items, minusDate)
			return minusDate, nil
		}
	}
	return "", nil
}

func (f *LandsatFetcher) downloadAll(ctx context.Context, items []stacItem, labelDate string) {
	g, gctx := errgroup.WithContext(ctx)
	if f.Concurrency > 0 {
		g.SetLimit(f.Concurrency)
	}
	for _, item := range items {
		item := item
		itemDate := labelDate
		if item.Datetime != "" {
			if t, err := time.Parse(time.RFC3339, item.Datetime); err == nil {
				itemDate = t.Format("2006-01-02")
			}
		}
		if asset, ok := item.Assets["red"]; ok {
			asset := asset
			g.Go(func() error {
				f.downloadBand(gctx, asset.Href, "B4", item.ID, itemDate, f.Layout.LandsatB4Dir())
				return nil
			})
		}
		if asset, ok := item.Assets["nir08"]; ok {
			asset := asset
			g.Go(func() error {
				f.downloadBand(gctx, asset.Href, "B5", item.ID, itemDate, f.Layout.LandsatB5Dir())
				return nil
			})
		}
	}
	// downloadBand logs and swallows its own errors, so Wait never
	// returns non-nil here; the return value is ignored accordingly.
	_ = g.Wait()
}

func (f *LandsatFetcher) downloadBand(ctx context.Context, href, bandName, sceneID, dateStr, outDir string) {
	filename := fmt.Sprintf("%s_%s_%s.tif", bandName, sceneID, dateStr)
	outPath := filepath.Join(outDir, filename)
	if exists(outPath) {
		f.Log.Debug("landsat: band already present, skipping", "file", filename)
		return
	}

	signed, err := signAssetHref(ctx, f.HTTPClient, href)
	if err != nil {
		f.Log.Warn("landsat: sign asset href failed", "scene", sceneID, "band", bandName, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		f.Log.Warn("landsat: build download request failed", "scene", sceneID, "error", err)
		return
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		f.Log.Warn("landsat: download band failed", "scene", sceneID, "band", bandName, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.Log.Warn("landsat: download band non-200", "scene", sceneID, "status", resp.StatusCode)
		return
	}

	if err := writeAtomic(outPath, io.LimitReader(resp.Body, 1<<34)); err != nil {
		f.Log.Warn("landsat: write band failed", "scene", sceneID, "error", err)
		return
	}
	size := "unknown"
	if info, err := os.Stat(outPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	f.Log.Info("landsat: saved band", "file", filename, "size", size)
}
