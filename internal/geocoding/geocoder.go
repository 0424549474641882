package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// Geocoder resolves UK addresses to coordinates with Nominatim, backed by a
// bounded cache so repeated runs over the same search area stay cheap.
type Geocoder struct {
	logger  *logrus.Logger
	cache   *Cache
	client  *http.Client
	baseURL string
}

func NewGeocoder(logger *logrus.Logger, cache *Cache) *Geocoder {
	return &Geocoder{
		logger:  logger,
		cache:   cache,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://nominatim.openstreetmap.org/search",
	}
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves street + postcode to a point.
func (g *Geocoder) Geocode(ctx context.Context, street, postcode string) (*orb.Point, error) {
	cacheKey := street + "|" + postcode
	if pt, ok := g.cache.Get(cacheKey); ok {
		return &pt, nil
	}

	fullAddress := fmt.Sprintf("%s, %s, United Kingdom", street, postcode)
	g.logger.WithField("address", fullAddress).Debug("Geocoding address with Nominatim")

	// Respect Nominatim's usage policy
	time.Sleep(time.Second)

	params := url.Values{
		"q":            []string{fullAddress},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"gb"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", g.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "HomeFinder Rental Pipeline/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no results found for address: %s", fullAddress)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", result[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", result[0].Lon, err)
	}

	pt := orb.Point{lon, lat}
	g.cache.Put(cacheKey, pt)

	g.logger.WithFields(logrus.Fields{
		"address":   fullAddress,
		"latitude":  lat,
		"longitude": lon,
	}).Debug("Geocoded address")

	return &pt, nil
}
