// Package geo implements geometry canonicalization and the coverage
// checking logic that decides which raw datasets already satisfy a
// requested area of interest.
package geo

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
)

// gdalMu serializes all calls into GDAL. GDAL/libtiff carry internal
// global state that is not safe for concurrent access from multiple
// goroutines, so every call that touches a *godal.Dataset or
// *godal.Geometry must hold this lock.
var gdalMu sync.Mutex

var registerOnce sync.Once

func ensureRegistered() {
	registerOnce.Do(godal.RegisterAll)
}

// Bounds is an axis-aligned bounding box in geographic (EPSG:4326)
// coordinates: west/south/east/north in degrees.
type Bounds struct {
	West, South, East, North float64
}

// RasterBoundsReader reads the geographic bounds of a raster file.
// Abstracted so coverage tests can supply fixtures without invoking
// GDAL.
type RasterBoundsReader interface {
	ReadBounds(path string) (Bounds, error)
}

// GDALBoundsReader reads bounds via godal, reprojecting to EPSG:4326
// when the source raster's CRS differs, mirroring the bounds-extraction
// step the teacher's DEM importer performs for GLO-90 tiles.
type GDALBoundsReader struct{}

// NewGDALBoundsReader returns a GDAL-backed RasterBoundsReader.
func NewGDALBoundsReader() *GDALBoundsReader {
	ensureRegistered()
	return &GDALBoundsReader{}
}

func (r *GDALBoundsReader) ReadBounds(path string) (Bounds, error) {
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path)
	if err != nil {
		return Bounds{}, fmt.Errorf("geo: open %s: %w", path, err)
	}
	defer ds.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return Bounds{}, fmt.Errorf("geo: epsg:4326 spatial ref: %w", err)
	}
	defer wgs84.Close()

	bbox, err := ds.Bounds(godal.WithSR(wgs84))
	if err != nil {
		return Bounds{}, fmt.Errorf("geo: bounds %s: %w", path, err)
	}
	// godal reports bounds as [xmin, ymin, xmax, ymax].
	return Bounds{West: bbox[0], South: bbox[1], East: bbox[2], North: bbox[3]}, nil
}
