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
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
	censusVintage    = "Current_Current"
	censusName       = "us_census"
)

// DefaultCensusSchedule is 0, 0.5, 1, 2, 4 seconds.
var DefaultCensusSchedule = resilience.DoublingSchedule(5, 500*time.Millisecond)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchType      string `json:"matchType"`
	MatchedAddress string `json:"matchedAddress"`
}

// CensusProvider geocodes structured street addresses with the US Census
// one-line address geocoder.
type CensusProvider struct {
	base
	benchmark string
	vintage   string
}

// NewCensusProvider creates a CensusProvider. Empty benchmark or vintage
// select the current public release.
func NewCensusProvider(benchmark, vintage string, opts ...Option) *CensusProvider {
	if benchmark == "" {
		benchmark = censusBenchmark
	}
	if vintage == "" {
		vintage = censusVintage
	}
	return &CensusProvider{
		base:      newBase(censusOneLineURL, DefaultCensusSchedule, opts),
		benchmark: benchmark,
		vintage:   vintage,
	}
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return censusName }

// Attempt implements Provider.
func (p *CensusProvider) Attempt(ctx context.Context, query string) (*Match, error) {
	params := url.Values{
		"address":   {query},
		"benchmark": {p.benchmark},
		"vintage":   {p.vintage},
		"format":    {"json"},
	}

	var resp censusOneLineResponse
	if err := p.getJSON(ctx, censusName, p.baseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Result.AddressMatches) == 0 {
		return nil, eris.Wrap(ErrNoMatch, "geocode: census")
	}

	best := resp.Result.AddressMatches[0]
	return &Match{
		Point:     Point{Lat: best.Coordinates.Y, Lon: best.Coordinates.X},
		Provider:  censusName,
		MatchType: strings.TrimSpace(best.MatchType),
	}, nil
}
