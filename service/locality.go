package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/golang/geo/s2"

	"sahayak/authority"
	"sahayak/metrics"
	"sahayak/models"
	"sahayak/osm"
)

// Display addresses used when no geocoded address is available.
const (
	AddressNotProvided = "Location not provided."
	AddressUnavailable = "Could not fetch address."
	AddressNotFound    = "Address not found."
)

// Geocoder reverse-geocodes a coordinate pair. *osm.Client implements it.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*osm.Place, error)
}

// LocationInfo is what the review page knows about where the photo was taken.
type LocationInfo struct {
	// City is the registry key when the detected place matched one, otherwise the
	// detected place name. Empty when nothing was detected.
	City           string
	DisplayAddress string
	Authority      *authority.Record
}

// Resolver maps coordinates to an address and a suggested civic authority.
type Resolver struct {
	geocoder Geocoder
	store    *authority.Store
}

func NewResolver(geocoder Geocoder, store *authority.Store) *Resolver {
	return &Resolver{geocoder: geocoder, store: store}
}

// Resolve never fails. Missing, unparseable or out-of-range coordinates skip the
// geocoder entirely; geocoder errors degrade to AddressUnavailable.
func (r *Resolver) Resolve(ctx context.Context, lat, lon string) LocationInfo {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if isNotProvided(lat) || isNotProvided(lon) {
		metrics.GeocodeTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return LocationInfo{DisplayAddress: AddressNotProvided}
	}

	latDeg, lonDeg, err := parseCoordinates(lat, lon)
	if err != nil {
		log.WithError(err).Warn("Rejecting coordinates before geocoding")
		metrics.GeocodeTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return LocationInfo{DisplayAddress: AddressUnavailable}
	}

	place, err := r.geocoder.ReverseGeocode(ctx, latDeg, lonDeg)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"lat": lat, "lon": lon}).Warn("Reverse geocoding failed")
		metrics.GeocodeTotal.WithLabelValues(metrics.ResultError).Inc()
		return LocationInfo{DisplayAddress: AddressUnavailable}
	}
	metrics.GeocodeTotal.WithLabelValues(metrics.ResultOK).Inc()

	info := LocationInfo{DisplayAddress: strings.TrimSpace(place.DisplayName)}
	if info.DisplayAddress == "" {
		info.DisplayAddress = AddressNotFound
	}

	detected := place.Address.Locality()
	if detected == "" {
		return info
	}
	info.City = detected

	if rec, ok := r.store.Registry().Match(detected); ok {
		metrics.AuthorityMatchesTotal.WithLabelValues("true").Inc()
		info.City = rec.City
		info.Authority = rec
		log.Debugf("Matched detected place %q to authority %q", detected, rec.City)
	} else {
		metrics.AuthorityMatchesTotal.WithLabelValues("false").Inc()
	}
	return info
}

func isNotProvided(s string) bool {
	return s == "" || strings.EqualFold(s, models.LocationNotProvided)
}

// parseCoordinates parses decimal degrees and rejects points outside the valid
// latitude/longitude ranges.
func parseCoordinates(lat, lon string) (float64, float64, error) {
	latDeg, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", lat, err)
	}
	lonDeg, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", lon, err)
	}
	if !s2.LatLngFromDegrees(latDeg, lonDeg).IsValid() {
		return 0, 0, fmt.Errorf("coordinates out of range: %s,%s", lat, lon)
	}
	return latDeg, lonDeg, nil
}
