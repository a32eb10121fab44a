package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/closest-tornado/internal/config"
	"github.com/sells-group/closest-tornado/internal/guard"
	"github.com/sells-group/closest-tornado/internal/lookup"
	"github.com/sells-group/closest-tornado/internal/rank"
	"github.com/sells-group/closest-tornado/internal/resilience"
	"github.com/sells-group/closest-tornado/internal/track"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

// lookupEnv holds everything the serve and lookup commands share.
type lookupEnv struct {
	Store    track.Store
	Resolver *geocode.Resolver
	Service  *lookup.Service
}

// Close releases resources held by the environment.
func (e *lookupEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

var storeConnectSchedule = resilience.DoublingSchedule(4, time.Second)

func initStore(ctx context.Context, c *config.Config) (track.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		return track.NewSQLite(c.SQLitePath())
	case "postgres":
		// The database may still be starting alongside the service.
		var st *track.PostgresStore
		err := resilience.Do(ctx, resilience.RetryConfig{
			Schedule: storeConnectSchedule,
			OnRetry:  resilience.RetryLogger("postgres", "connect"),
		}, func(ctx context.Context) error {
			var err error
			st, err = track.NewPostgres(ctx, c.Store.DatabaseURL, &track.PoolConfig{
				MaxConns: c.Store.MaxConns,
				MinConns: c.Store.MinConns,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openMigratedStore opens the configured store and applies pending
// migrations.
func openMigratedStore(ctx context.Context, c *config.Config) (track.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initResolver builds the provider chain: Census, then Nominatim, then
// Google when a key is configured.
func initResolver(c config.GeocodeConfig) *geocode.Resolver {
	census := geocode.NewCensusProvider(c.Census.Benchmark, c.Census.Vintage,
		geocode.WithBaseURL(c.Census.BaseURL),
		geocode.WithSchedule(resilience.FromRetryConfig(c.Census.DelaysMs, geocode.DefaultCensusSchedule).Schedule),
	)
	nominatim := geocode.NewNominatimProvider(c.Nominatim.UserAgent, c.Nominatim.Email,
		geocode.WithBaseURL(c.Nominatim.BaseURL),
		geocode.WithSchedule(resilience.FromRetryConfig(c.Nominatim.DelaysMs, geocode.DefaultNominatimSchedule).Schedule),
		geocode.WithRateLimit(c.Nominatim.RPS),
	)
	providers := []geocode.Provider{census, nominatim}

	if c.Google.APIKey != "" {
		providers = append(providers, geocode.NewGoogleProvider(c.Google.APIKey,
			geocode.WithBaseURL(c.Google.BaseURL),
			geocode.WithSchedule(resilience.FromRetryConfig(c.Google.DelaysMs, geocode.DefaultGoogleSchedule).Schedule),
		))
	}

	opts := []geocode.ResolverOption{
		geocode.WithCircuitBreaker(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)),
	}
	if c.RequestTimeoutSecs > 0 {
		opts = append(opts, geocode.WithRequestTimeout(time.Duration(c.RequestTimeoutSecs)*time.Second))
	}

	r := geocode.NewResolver(providers, opts...)
	zap.L().Debug("geocode providers configured", zap.Strings("providers", r.Providers()))
	return r
}

// buildService wires the lookup pipeline. guarded enables the rate limiter
// and result cache, which only make sense for a long-lived server.
func buildService(c *config.Config, st track.Store, geocoder lookup.Geocoder, guarded bool) *lookup.Service {
	var (
		limiter *guard.RateLimiter
		cache   *guard.ResultCache[lookup.CacheKey, lookup.Response]
	)
	if guarded {
		limiter = guard.NewRateLimiter(guard.RateLimitConfig{
			MaxRequests: c.Guard.RateLimitMaxRequests,
			Window:      time.Duration(c.Guard.RateLimitWindowSecs) * time.Second,
		})
		cache = guard.NewResultCache[lookup.CacheKey, lookup.Response](guard.CacheConfig{
			TTL:      time.Duration(c.Guard.CacheTTLSecs) * time.Second,
			MaxItems: c.Guard.CacheMaxItems,
		})
	}
	ranker := rank.New(rank.WithQuadrantSegments(c.Rank.CorridorSegments))
	return lookup.NewService(limiter, cache, geocoder, st, ranker, lookup.Config{
		TopK:           c.Rank.TopK,
		CandidateLimit: c.Rank.CandidateLimit,
	})
}

// initLookup validates config for mode, then opens the store and builds
// the service. Callers should defer env.Close().
func initLookup(ctx context.Context, c *config.Config, mode string) (*lookupEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openMigratedStore(ctx, c)
	if err != nil {
		return nil, err
	}

	resolver := initResolver(c.Geocode)
	return &lookupEnv{
		Store:    st,
		Resolver: resolver,
		Service:  buildService(c, st, resolver, mode == "serve"),
	}, nil
}
