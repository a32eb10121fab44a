// Package geocode resolves free-text addresses to coordinates through an
// ordered chain of geocoding providers (US Census first, then OpenStreetMap
// Nominatim, optionally Google), each with its own retry schedule.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/closest-tornado/internal/resilience"
)

// ErrNoMatch means a provider answered successfully but found nothing.
var ErrNoMatch = eris.New("geocode: no match")

// ErrUnavailable means a provider could not produce a usable answer within
// its retry schedule.
var ErrUnavailable = eris.New("geocode: provider unavailable")

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within latitude [-90, 90] and
// longitude [-180, 180].
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Match is the best geocode a provider returned for a query.
type Match struct {
	Point
	Provider  string `json:"provider"`
	MatchType string `json:"match_type,omitempty"`
}

// Provider is a single geocoding backend. Attempt performs exactly one
// request and classifies the outcome:
//   - a *Match on success,
//   - an error wrapping ErrNoMatch when the upstream found nothing,
//   - a *resilience.TransientError when the request may be retried,
//   - any other error when the provider cannot answer this query.
type Provider interface {
	Name() string
	Schedule() resilience.Schedule
	Attempt(ctx context.Context, query string) (*Match, error)
}

// Option configures a provider.
type Option func(*base)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *base) {
		b.httpClient = hc
	}
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(b *base) {
		if u != "" {
			b.baseURL = u
		}
	}
}

// WithSchedule overrides the provider's retry schedule.
func WithSchedule(s resilience.Schedule) Option {
	return func(b *base) {
		if len(s) > 0 {
			b.schedule = s
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero or negative disables
// the limit.
func WithRateLimit(rps float64) Option {
	return func(b *base) {
		if rps <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// base carries what every HTTP provider needs.
type base struct {
	httpClient *http.Client
	baseURL    string
	schedule   resilience.Schedule
	limiter    *rate.Limiter
}

func newBase(defURL string, defSchedule resilience.Schedule, opts []Option) base {
	b := base{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defURL,
		schedule:   defSchedule,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Schedule implements Provider.
func (b *base) Schedule() resilience.Schedule { return b.schedule }
