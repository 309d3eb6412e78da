package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/etmap/rawdata/internal/geo"
	"github.com/etmap/rawdata/internal/models"
)

const dateLayout = "2006-01-02"

// validateCreateRequest enforces spec.md §6.1's POST /etmap contract:
// both dates well-formed, date_to >= date_from, geometry present and
// parseable as a JSON value (possibly null, meaning "no AOI").
func validateCreateRequest(req models.CreateRequest) error {
	from, err := time.Parse(dateLayout, req.DateFrom)
	if err != nil {
		return fmt.Errorf("date_from must be YYYY-MM-DD: %w", err)
	}
	to, err := time.Parse(dateLayout, req.DateTo)
	if err != nil {
		return fmt.Errorf("date_to must be YYYY-MM-DD: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("date_to must be on or after date_from")
	}
	if len(req.Geometry) == 0 {
		return fmt.Errorf("geometry is required")
	}
	var probe interface{}
	if err := json.Unmarshal(req.Geometry, &probe); err != nil {
		return fmt.Errorf("geometry must be valid JSON: %w", err)
	}
	if !geo.IsEmpty(req.Geometry) {
		if _, err := geo.Canonicalize(req.Geometry); err != nil {
			return fmt.Errorf("geometry is not a valid GeoJSON object: %w", err)
		}
	}
	return nil
}

func parseRequestID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed identifier: %w", err)
	}
	return id.String(), nil
}
