package config

import (
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-ingestion/internal/weather/providers"
)

// geocodeFunc resolves a city name to coordinates.
type geocodeFunc func(apiKey, city string) (providers.LatLon, error)

var geocoderMu sync.Mutex

// geocode looks city up with the Google Geocoding API. The geocoder package
// keeps its key in a package variable, so calls are serialized.
func geocode(apiKey, city string) (providers.LatLon, error) {
	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city})
	if err != nil {
		return providers.LatLon{}, err
	}
	return providers.LatLon{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}

// enrichCoordinates fills in coordinates for tracked cities missing from
// coords and returns one warning per city it could not resolve. It runs once
// at load time; an unresolved city stays missing and fails fast at fetch time.
func enrichCoordinates(coords providers.Coordinates, cities []string, apiKey string, lookup geocodeFunc) []string {
	var warnings []string
	for _, city := range cities {
		if _, ok := coords.Lookup(city); ok {
			continue
		}
		ll, err := lookup(apiKey, city)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not geocode %q: %v", city, err))
			continue
		}
		coords[city] = ll
	}
	return warnings
}
