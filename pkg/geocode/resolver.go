package geocode

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/closest-tornado/internal/resilience"
)

// DefaultRequestTimeout bounds every individual HTTP attempt.
const DefaultRequestTimeout = 20 * time.Second

// Resolver tries providers strictly in order and returns the first match.
// A provider that reports no match or runs out of retries hands the query to
// the next provider; when every provider fails, the last provider's error
// kind is returned.
type Resolver struct {
	providers      []Provider
	requestTimeout time.Duration
	breakers       *resilience.ServiceBreakers
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRequestTimeout sets the per-attempt timeout.
func WithRequestTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.requestTimeout = d
		}
	}
}

// WithCircuitBreaker guards each provider with its own circuit breaker.
// Only unavailability counts as a failure; a clean "no match" does not, and
// neither does a query abandoned by its caller.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) ResolverOption {
	return func(r *Resolver) {
		cfg.ShouldTrip = func(err error) bool { return !errors.Is(err, ErrNoMatch) }
		r.breakers = resilience.NewServiceBreakers(cfg, logBreakerChange)
	}
}

func logBreakerChange(provider string, from, to resilience.CircuitState) {
	log := zap.L().With(zap.String("provider", provider), zap.String("from", from.String()), zap.String("to", to.String()))
	if to == resilience.CircuitOpen {
		log.Warn("geocode: provider circuit opened")
		return
	}
	log.Info("geocode: provider circuit state changed")
}

// NewResolver creates a Resolver over the given providers.
func NewResolver(providers []Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		providers:      providers,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breakers != nil {
		for _, p := range providers {
			r.breakers.Get(p.Name())
		}
	}
	return r
}

// Providers returns the provider names in fallback order.
func (r *Resolver) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// BreakerStates reports the circuit state per provider, or nil when circuit
// breaking is disabled.
func (r *Resolver) BreakerStates() map[string]string {
	if r.breakers == nil {
		return nil
	}
	states := make(map[string]string, len(r.providers))
	for name, st := range r.breakers.States() {
		states[name] = st.String()
	}
	return states
}

// Resolve geocodes address. The returned error wraps ErrNoMatch or
// ErrUnavailable.
func (r *Resolver) Resolve(ctx context.Context, address string) (*Match, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, eris.Wrap(ErrNoMatch, "geocode: empty address")
	}
	if len(r.providers) == 0 {
		return nil, eris.Wrap(ErrUnavailable, "geocode: no providers configured")
	}

	log := zap.L().With(zap.String("component", "geocode.resolver"))

	var lastErr error
	for _, p := range r.providers {
		m, err := r.resolveWith(ctx, p, address)
		if err == nil {
			log.Debug("geocode matched", zap.String("provider", m.Provider), zap.String("match_type", m.MatchType))
			return m, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrapf(ErrUnavailable, "geocode: %s: %v", p.Name(), ctx.Err())
		}
		log.Debug("geocode provider failed, trying next", zap.String("provider", p.Name()), zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

// resolveWith runs one provider through its retry schedule and maps the
// outcome onto ErrNoMatch or ErrUnavailable.
func (r *Resolver) resolveWith(ctx context.Context, p Provider, address string) (*Match, error) {
	retry := resilience.RetryConfig{
		Schedule:    p.Schedule(),
		ShouldRetry: resilience.IsTransient,
		OnRetry:     resilience.RetryLogger(p.Name(), "geocode"),
	}

	call := func(ctx context.Context) (*Match, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*Match, error) {
			reqCtx, cancel := context.WithTimeout(ctx, r.requestTimeout)
			defer cancel()
			return p.Attempt(reqCtx, address)
		})
	}

	var (
		m   *Match
		err error
	)
	if r.breakers != nil {
		m, err = resilience.ExecuteVal(ctx, r.breakers.Get(p.Name()), call)
	} else {
		m, err = call(ctx)
	}

	switch {
	case err == nil && m != nil:
		if m.Provider == "" {
			m.Provider = p.Name()
		}
		return m, nil
	case err == nil:
		return nil, eris.Wrapf(ErrNoMatch, "geocode: %s returned no result", p.Name())
	case errors.Is(err, ErrNoMatch):
		return nil, err
	default:
		return nil, eris.Wrapf(ErrUnavailable, "geocode: %s: %v", p.Name(), err)
	}
}
