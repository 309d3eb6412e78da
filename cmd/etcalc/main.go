// Command etcalc is the downstream compute step invoked by the
// orchestrator once a job's raw data is fully fetched. It does NOT
// implement evapotranspiration physics — that is explicitly out of
// scope (the ET calculation algorithm itself is a Non-goal). When
// --db-dsn is given, this stub validates that the job exists in the
// store (without it the check is skipped), then produces
// placeholder result artifacts in the shape the HTTP front-end expects
// to serve, so the end-to-end pipeline is exercisable without a real
// physics engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	uuid := flag.String("uuid", "", "job request id")
	dbDSN := flag.String("db-dsn", "", "Postgres connection string for the job store")
	resultsDir := flag.String("results-dir", getenv("ETMAP_RESULTS_DIR", "./results"), "root directory for compute artifacts")
	flag.Parse()

	if *uuid == "" {
		log.Fatal("etcalc: --uuid is required")
	}

	if err := run(*uuid, *dbDSN, *resultsDir); err != nil {
		log.Printf("etcalc: %v", err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func run(uuid, dbDSN, resultsDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if dbDSN != "" {
		if err := confirmJobExists(ctx, dbDSN, uuid); err != nil {
			return err
		}
	} else {
		log.Printf("etcalc: no --db-dsn given, skipping job-existence check for %s", uuid)
	}

	outDir := filepath.Join(resultsDir, uuid)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writePlaceholderPNG(filepath.Join(outDir, "result.png")); err != nil {
		return fmt.Errorf("write result.png: %w", err)
	}
	if err := writePlaceholderTIFF(filepath.Join(outDir, "result.tif")); err != nil {
		return fmt.Errorf("write result.tif: %w", err)
	}

	log.Printf("etcalc: wrote placeholder artifacts for %s to %s", uuid, outDir)
	return nil
}

func confirmJobExists(ctx context.Context, dbDSN, uuid string) error {
	pool, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		return fmt.Errorf("connect to job store: %w", err)
	}
	defer pool.Close()

	var requestID string
	err = pool.QueryRow(ctx, `SELECT request_id FROM etmap_jobs WHERE request_id = $1`, uuid).Scan(&requestID)
	if err != nil {
		return fmt.Errorf("job %s not found in store: %w", uuid, err)
	}
	return nil
}

// minimalPNG is a single-pixel, valid PNG file used as a stand-in for
// a rendered preview image.
var minimalPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
	0xde, 0x00, 0x00, 0x00, 0x0c, 0x49, 0x44, 0x41,
	0x54, 0x08, 0xd7, 0x63, 0xf8, 0xcf, 0xc0, 0x00,
	0x00, 0x03, 0x01, 0x01, 0x00, 0x18, 0xdd, 0x8d,
	0xb0, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
	0x44, 0xae, 0x42, 0x60, 0x82,
}

func writePlaceholderPNG(path string) error {
	return os.WriteFile(path, minimalPNG, 0o644)
}

// writePlaceholderTIFF writes a minimal, structurally valid
// single-strip grayscale TIFF so downstream raster readers have
// something real to open, without depending on GDAL for a stub.
func writePlaceholderTIFF(path string) error {
	const width, height = 1, 1
	pixel := []byte{0}

	var buf []byte
	buf = append(buf, 'I', 'I', 42, 0) // little-endian TIFF magic
	ifdOffset := uint32(8)
	buf = append(buf, le32(ifdOffset)...)

	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	entries := []entry{
		{256, 3, 1, width},        // ImageWidth
		{257, 3, 1, height},       // ImageLength
		{258, 3, 1, 8},            // BitsPerSample
		{259, 3, 1, 1},            // Compression: none
		{262, 3, 1, 1},            // PhotometricInterpretation: BlackIsZero
		{273, 4, 1, 0},            // StripOffsets, patched below
		{277, 3, 1, 1},            // SamplesPerPixel
		{278, 3, 1, height},       // RowsPerStrip
		{279, 4, 1, uint32(len(pixel))}, // StripByteCounts
	}

	stripOffsetIdx := 5
	ifdSize := 2 + len(entries)*12 + 4
	stripOffset := ifdOffset + uint32(ifdSize)
	entries[stripOffsetIdx].value = stripOffset

	var ifd []byte
	ifd = append(ifd, le16(uint16(len(entries)))...)
	for _, e := range entries {
		ifd = append(ifd, le16(e.tag)...)
		ifd = append(ifd, le16(e.typ)...)
		ifd = append(ifd, le32(e.count)...)
		ifd = append(ifd, le32(e.value)...)
	}
	ifd = append(ifd, le32(0)...) // next IFD offset: none

	buf = append(buf, ifd...)
	buf = append(buf, pixel...)

	return os.WriteFile(path, buf, 0o644)
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
