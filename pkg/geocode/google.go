package geocode

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/closest-tornado/internal/resilience"
)

const (
	googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"
	googleName       = "google"
)

// DefaultGoogleSchedule is 0, 0.5, 1 seconds.
var DefaultGoogleSchedule = resilience.DoublingSchedule(3, 500*time.Millisecond)

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// GoogleProvider geocodes with the Google Geocoding API. It is only added to
// the chain when an API key is configured.
type GoogleProvider struct {
	base
	apiKey string
}

// NewGoogleProvider creates a GoogleProvider for the given API key.
func NewGoogleProvider(apiKey string, opts ...Option) *GoogleProvider {
	return &GoogleProvider{
		base:   newBase(googleGeocodeURL, DefaultGoogleSchedule, opts),
		apiKey: apiKey,
	}
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return googleName }

// Attempt implements Provider.
func (p *GoogleProvider) Attempt(ctx context.Context, query string) (*Match, error) {
	if p.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	params := url.Values{
		"address":    {query},
		"components": {"country:US"},
		"key":        {p.apiKey},
	}

	var resp googleGeocodeResponse
	if err := p.getJSON(ctx, googleName, p.baseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, eris.Wrap(ErrNoMatch, "geocode: google")
	case "UNKNOWN_ERROR":
		return nil, resilience.NewTransientError(eris.Errorf("geocode: google status %s", resp.Status), 0)
	default:
		return nil, eris.Errorf("geocode: google status %s", resp.Status)
	}
	if len(resp.Results) == 0 {
		return nil, eris.Wrap(ErrNoMatch, "geocode: google")
	}

	best := resp.Results[0]
	return &Match{
		Point:     Point{Lat: best.Geometry.Location.Lat, Lon: best.Geometry.Location.Lng},
		Provider:  googleName,
		MatchType: googleLocationTypeToQuality(best.Geometry.LocationType),
	}, nil
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
