// Package lookup answers "which recorded tornado passed closest to here?"
// for an address or a coordinate pair. It owns admission control and result
// caching in front of geocoding, the spatial store and the ranker.
package lookup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/closest-tornado/internal/guard"
	"github.com/sells-group/closest-tornado/internal/rank"
	"github.com/sells-group/closest-tornado/internal/track"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

var (
	// ErrRateLimited means the client has used its request budget.
	ErrRateLimited = eris.New("lookup: rate limited")
	// ErrInvalidInput means the query itself was malformed.
	ErrInvalidInput = eris.New("lookup: invalid input")
)

// Cache namespaces. Bump the suffix whenever the response shape changes.
const (
	AddressNamespace = "closest_v3"
	CoordsNamespace  = "closest_coords_v1"
)

// SharedLinkProvider is reported for coordinate lookups, which come from
// share links rather than a geocoder.
const SharedLinkProvider = "shared_link"

const (
	DefaultTopK           = 5
	DefaultCandidateLimit = 250
)

// Geocoder resolves a free-text address. *geocode.Resolver implements it.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (*geocode.Match, error)
}

// CacheKey identifies a cached response. Coordinates are rounded to four
// decimals (about 11 m) so nearby repeat queries share an entry.
type CacheKey struct {
	Namespace string
	Lat       float64
	Lon       float64
	Units     Units
}

// NewCacheKey builds a normalized key.
func NewCacheKey(namespace string, p geocode.Point, units Units) CacheKey {
	return CacheKey{Namespace: namespace, Lat: round4(p.Lat), Lon: round4(p.Lon), Units: units}
}

func round4(v float64) float64 {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		return 0 // fold -0
	}
	return r
}

// AddressQuery is a lookup by free-text address.
type AddressQuery struct {
	ClientID string
	Address  string
	Units    Units
	// BaseURL is the page the share link points at.
	BaseURL string
}

// CoordsQuery is a lookup by coordinates.
type CoordsQuery struct {
	ClientID string
	Point    geocode.Point
	Units    Units
	BaseURL  string
}

// Config sizes a Service.
type Config struct {
	TopK           int
	CandidateLimit int
}

// Service runs lookups. It is safe for concurrent use.
type Service struct {
	limiter  *guard.RateLimiter
	cache    *guard.ResultCache[CacheKey, Response]
	geocoder Geocoder
	store    track.Store
	ranker   *rank.Ranker

	topK           int
	candidateLimit int
}

// NewService wires a Service. A nil limiter admits everything; a nil cache
// disables caching.
func NewService(
	limiter *guard.RateLimiter,
	cache *guard.ResultCache[CacheKey, Response],
	geocoder Geocoder,
	store track.Store,
	ranker *rank.Ranker,
	cfg Config,
) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.CandidateLimit < cfg.TopK {
		cfg.CandidateLimit = cfg.TopK
	}
	if ranker == nil {
		ranker = rank.New()
	}
	return &Service{
		limiter:        limiter,
		cache:          cache,
		geocoder:       geocoder,
		store:          store,
		ranker:         ranker,
		topK:           cfg.TopK,
		candidateLimit: cfg.CandidateLimit,
	}
}

// ByAddress geocodes q.Address and returns the nearest tracks to it.
func (s *Service) ByAddress(ctx context.Context, q AddressQuery) (*Response, error) {
	if !s.admit(q.ClientID) {
		return nil, ErrRateLimited
	}
	if strings.TrimSpace(q.Address) == "" {
		return nil, eris.Wrap(ErrInvalidInput, "lookup: empty address")
	}
	if s.geocoder == nil {
		return nil, eris.Wrap(geocode.ErrUnavailable, "lookup: no geocoder configured")
	}

	match, err := s.geocoder.Resolve(ctx, q.Address)
	if err != nil {
		return nil, err
	}

	echo := QueryEcho{
		Lat:       match.Lat,
		Lon:       match.Lon,
		Provider:  match.Provider,
		MatchType: optString(match.MatchType),
	}
	if echo.Provider == "" {
		echo.Provider = "unknown"
	}
	return s.lookup(ctx, NewCacheKey(AddressNamespace, match.Point, q.Units), echo, q.Units, q.BaseURL)
}

// ByCoords returns the nearest tracks to q.Point.
func (s *Service) ByCoords(ctx context.Context, q CoordsQuery) (*Response, error) {
	if !s.admit(q.ClientID) {
		return nil, ErrRateLimited
	}
	if !q.Point.Valid() {
		return nil, eris.Wrapf(ErrInvalidInput, "lookup: coordinate %v out of range", q.Point)
	}

	echo := QueryEcho{Lat: q.Point.Lat, Lon: q.Point.Lon, Provider: SharedLinkProvider}
	return s.lookup(ctx, NewCacheKey(CoordsNamespace, q.Point, q.Units), echo, q.Units, q.BaseURL)
}

func (s *Service) admit(clientID string) bool {
	if s.limiter == nil {
		return true
	}
	if clientID == "" {
		clientID = "unknown"
	}
	return s.limiter.Allow(clientID)
}

// Remaining reports the client's unused request budget, or -1 when
// admission control is off.
func (s *Service) Remaining(clientID string) int {
	if s.limiter == nil {
		return -1
	}
	if clientID == "" {
		clientID = "unknown"
	}
	return s.limiter.Remaining(clientID)
}

func (s *Service) lookup(ctx context.Context, key CacheKey, echo QueryEcho, units Units, baseURL string) (*Response, error) {
	if units == "" {
		units = Miles
		key.Units = Miles
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			zap.L().Debug("lookup: cache hit", zap.String("namespace", key.Namespace))
			return &cached, nil
		}
	}

	p := geocode.Point{Lat: echo.Lat, Lon: echo.Lon}
	candidates, err := s.store.Nearest(ctx, p, s.candidateLimit)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: load candidates")
	}

	ranked, err := s.ranker.Rank(p, candidates, s.topK)
	if err != nil {
		return nil, err
	}

	top := make([]TornadoResult, 0, len(ranked))
	for _, r := range ranked {
		tr, err := serialize(r, units)
		if err != nil {
			return nil, err
		}
		top = append(top, tr)
	}

	resp := Response{
		Query:      echo,
		Result:     top[0],
		TopResults: top,
		ShareURL:   ShareURL(baseURL, p, units),
	}
	if s.cache != nil {
		s.cache.Set(key, resp)
	}
	return &resp, nil
}

// ShareURL links back to a coordinate lookup of p.
func ShareURL(baseURL string, p geocode.Point, units Units) string {
	return fmt.Sprintf("%s?lat=%.6f&lon=%.6f&units=%s", strings.TrimRight(baseURL, "/"), p.Lat, p.Lon, units)
}

// Meta reports the loaded dataset.
func (s *Service) Meta(ctx context.Context) (*track.DatasetMeta, error) {
	m, err := s.store.Meta(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "lookup: dataset meta")
	}
	return m, nil
}

// Health summarizes in-memory state for the health endpoint.
type Health struct {
	OK          bool              `json:"ok"`
	TrackedIPs  int               `json:"rate_limited_clients"`
	Cache       *guard.CacheStats `json:"cache,omitempty"`
	Geocoders   map[string]string `json:"geocoders,omitempty"`
	StoreOnline bool              `json:"store_online"`
}

// Health reports service state. ok stays true when the store is
// unreachable; store_online reports that separately.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{OK: true}
	if s.limiter != nil {
		h.TrackedIPs = s.limiter.Len()
	}
	if s.cache != nil {
		st := s.cache.Stats()
		h.Cache = &st
	}
	if r, ok := s.geocoder.(interface{ BreakerStates() map[string]string }); ok {
		h.Geocoders = r.BreakerStates()
	}
	h.StoreOnline = s.store != nil && s.store.Ping(ctx) == nil
	return h
}
