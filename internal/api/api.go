// Package api exposes the lookup service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/closest-tornado/internal/lookup"
	"github.com/sells-group/closest-tornado/internal/track"
)

// Lookup is the part of *lookup.Service the handlers use.
type Lookup interface {
	ByAddress(ctx context.Context, q lookup.AddressQuery) (*lookup.Response, error)
	ByCoords(ctx context.Context, q lookup.CoordsQuery) (*lookup.Response, error)
	Meta(ctx context.Context) (*track.DatasetMeta, error)
	Health(ctx context.Context) lookup.Health
	Remaining(clientID string) int
}

// Options configures the router.
type Options struct {
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string
	// PublicBaseURL overrides the share link base derived from the request.
	PublicBaseURL string
	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Off, the socket peer is the client.
	TrustProxyHeaders bool
}

const maxBodyBytes = 8 << 10

type server struct {
	svc  Lookup
	opts Options
}

// NewRouter builds the HTTP handler.
func NewRouter(svc Lookup, opts Options) http.Handler {
	s := &server{svc: svc, opts: opts}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	if opts.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, remainingHeader},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(timeout(opts.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/meta", s.handleMeta)
	r.Post("/closest-tornado", s.handleClosest)
	r.Get("/closest-tornado-by-coords", s.handleClosestByCoords)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})
	return r
}
