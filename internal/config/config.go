// Package config loads the ET map service's environment-derived
// configuration into a single frozen struct at process start.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the complete set of tunables read from ETMAP_* (and a few
// well-known third-party) environment variables. It is built once in
// main and passed down by value/pointer; nothing re-reads the
// environment after FromEnv returns.
type Config struct {
	Addr       string
	DataDir    string
	ResultsDir string

	DBDSN string // ETMAP_DB_DSN, falls back to ETMAP_DB_PATH

	RedisURL string // empty disables the result cache

	S3Bucket  string
	AWSRegion string

	NetrcPath string

	LandsatCatalogURL  string
	LandsatCollection  string
	LandsatWindowDays  int
	PrismBaseURL       string
	NLDASBaseURL       string

	FetchConcurrency       int
	DownloadTimeout        time.Duration
	MaxRetries             int
	AutoCalculationEnabled bool
	CalcBinaryPath         string
}

// FromEnv builds a Config from the process environment, applying the
// documented defaults for anything unset.
func FromEnv() (*Config, error) {
	home, _ := os.UserHomeDir()
	defaultNetrc := filepath.Join(home, ".netrc")

	dbDSN := getenv("ETMAP_DB_DSN", "")
	if dbDSN == "" {
		dbDSN = getenv("ETMAP_DB_PATH", "")
	}

	cfg := &Config{
		Addr:       getenv("ETMAP_ADDR", ":8080"),
		DataDir:    getenv("ETMAP_DATA_DIR", "./data"),
		ResultsDir: getenv("ETMAP_RESULTS_DIR", "./results"),

		DBDSN: dbDSN,

		RedisURL: getenv("ETMAP_REDIS_URL", ""),

		S3Bucket:  getenv("ETMAP_S3_BUCKET", ""),
		AWSRegion: getenv("AWS_REGION", ""),

		NetrcPath: getenv("NLDAS_NETRC_PATH", defaultNetrc),

		LandsatCatalogURL: getenv("ETMAP_LANDSAT_CATALOG_URL", "https://planetarycomputer.microsoft.com/api/stac/v1"),
		LandsatCollection: getenv("ETMAP_LANDSAT_COLLECTION", "landsat-c2-l2"),
		PrismBaseURL:      getenv("ETMAP_PRISM_BASE_URL", "https://services.nacse.org/prism/data/get/us/4km"),
		NLDASBaseURL:      getenv("ETMAP_NLDAS_BASE_URL", "https://hydro1.gesdisc.eosdis.nasa.gov/data/NLDAS/NLDAS_FORA0125_H.2.0"),

		CalcBinaryPath: getenv("ETMAP_CALC_BINARY_PATH", ""),
	}

	var err error
	if cfg.FetchConcurrency, err = getint("ETMAP_FETCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getint("ETMAP_MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.LandsatWindowDays, err = getint("ETMAP_LANDSAT_WINDOW_DAYS", 45); err != nil {
		return nil, err
	}
	timeoutSecs, err := getint("ETMAP_DOWNLOAD_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	cfg.DownloadTimeout = time.Duration(timeoutSecs) * time.Second

	if cfg.AutoCalculationEnabled, err = getbool("ETMAP_AUTO_CALCULATION", true); err != nil {
		return nil, err
	}

	if cfg.CalcBinaryPath == "" {
		exe, err := os.Executable()
		if err == nil {
			cfg.CalcBinaryPath = filepath.Join(filepath.Dir(exe), "etcalc")
		} else {
			cfg.CalcBinaryPath = "etcalc"
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid int for %s: %w", key, err)
	}
	return n, nil
}

func getbool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid bool for %s: %w", key, err)
	}
	return b, nil
}
