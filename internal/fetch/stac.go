package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// signGroup dedupes concurrent sign requests for the same asset href:
// when two bands from different in-flight jobs reference the same
// scene asset, only one signing round-trip is made.
var signGroup singleflight.Group

// stacClient is a minimal STAC API search client sufficient for the
// scene-archive fetcher's date-windowed search, grounded on the
// original's pystac_client.Client.search usage against the Planetary
// Computer STAC API.
type stacClient struct {
	httpClient *http.Client
	baseURL    string
}

type stacSearchRequest struct {
	Collections []string        `json:"collections"`
	Datetime    string          `json:"datetime"`
	Limit       int             `json:"limit"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
}

type stacItem struct {
	ID         string                     `json:"id"`
	Datetime   string                     `json:"-"`
	Properties map[string]json.RawMessage `json:"properties"`
	Assets     map[string]stacAsset       `json:"assets"`
}

type stacAsset struct {
	Href string `json:"href"`
}

type stacSearchResponse struct {
	Features []stacItem `json:"features"`
}

// search performs a single-window STAC search. dayStart/dayEnd are
// RFC3339 timestamps bounding the requested day.
func (c *stacClient) search(ctx context.Context, collection, dayStart, dayEnd string, intersects json.RawMessage, limit int) ([]stacItem, error) {
	reqBody := stacSearchRequest{
		Collections: []string{collection},
		Datetime:    dayStart + "/" + dayEnd,
		Limit:       limit,
		Intersects:  intersects,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encode stac search: %v", ErrFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build stac request: %v", ErrFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: stac search: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: stac search status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: stac search status %d", ErrFatal, resp.StatusCode)
	}

	var out stacSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode stac response: %v", ErrFatal, err)
	}
	for i := range out.Features {
		if dt, ok := out.Features[i].Properties["datetime"]; ok {
			var s string
			if json.Unmarshal(dt, &s) == nil {
				out.Features[i].Datetime = s
			}
		}
	}
	return out.Features, nil
}

// signAssetHref resolves a provider-signed download URL for a Planetary
// Computer asset href, mirroring planetary_computer.sign_url.
func signAssetHref(ctx context.Context, client *http.Client, href string) (string, error) {
	v, err, _ := signGroup.Do(href, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			"https://planetarycomputer.microsoft.com/api/sas/v1/sign?href="+href, nil)
		if err != nil {
			return "", fmt.Errorf("%w: build sign request: %v", ErrFatal, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: sign asset href: %v", ErrTransient, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("%w: sign asset href status %d", ErrTransient, resp.StatusCode)
		}
		var out struct {
			Href string `json:"href"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("%w: decode sign response: %v", ErrFatal, err)
		}
		return out.Href, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
