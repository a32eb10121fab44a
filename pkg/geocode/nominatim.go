package geocode

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/closest-tornado/internal/resilience"
)

const (
	nominatimSearchURL = "https://nominatim.openstreetmap.org/search"
	nominatimName      = "nominatim"
	nominatimUserAgent = "closest-tornado (+https://github.com/sells-group/closest-tornado)"
)

// DefaultNominatimSchedule is 0, 0.5, 1, 2 seconds.
var DefaultNominatimSchedule = resilience.DoublingSchedule(4, 500*time.Millisecond)

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
}

// NominatimProvider geocodes place names and loose queries with the
// OpenStreetMap Nominatim search API. Nominatim's usage policy requires an
// identifying User-Agent and at most one request per second.
type NominatimProvider struct {
	base
	userAgent string
	email     string
}

// NewNominatimProvider creates a NominatimProvider. The outbound rate
// defaults to one request per second; pass WithRateLimit to change it.
func NewNominatimProvider(userAgent, email string, opts ...Option) *NominatimProvider {
	if userAgent == "" {
		userAgent = nominatimUserAgent
	}
	opts = append([]Option{WithRateLimit(1)}, opts...)
	return &NominatimProvider{
		base:      newBase(nominatimSearchURL, DefaultNominatimSchedule, opts),
		userAgent: userAgent,
		email:     email,
	}
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return nominatimName }

// Attempt implements Provider.
func (p *NominatimProvider) Attempt(ctx context.Context, query string) (*Match, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"limit":          {"1"},
		"addressdetails": {"0"},
		"countrycodes":   {"us"},
	}
	if p.email != "" {
		params.Set("email", p.email)
	}
	header := http.Header{"User-Agent": {p.userAgent}}

	var results []nominatimResult
	if err := p.getJSON(ctx, nominatimName, p.baseURL+"?"+params.Encode(), header, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, eris.Wrap(ErrNoMatch, "geocode: nominatim")
	}

	best := results[0]
	lat, err := strconv.ParseFloat(best.Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lat")
	}
	lon, err := strconv.ParseFloat(best.Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lon")
	}

	return &Match{
		Point:     Point{Lat: lat, Lon: lon},
		Provider:  nominatimName,
		MatchType: best.Type,
	}, nil
}
