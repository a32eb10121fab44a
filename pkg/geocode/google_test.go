package geocode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/closest-tornado/internal/resilience"
)

func TestGoogleAttempt_Rooftop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 35.4676, "lng": -97.5164},
					"location_type": "ROOFTOP"
				},
				"formatted_address": "100 N Broadway Ave, Oklahoma City, OK 73102"
			}]
		}`)
	}))
	defer srv.Close()

	p := NewGoogleProvider("test-key", WithHTTPClient(newRewriteClient(srv.URL, googleGeocodeURL)))
	m, err := p.Attempt(context.Background(), "100 N Broadway Ave, Oklahoma City, OK")
	require.NoError(t, err)
	assert.InDelta(t, 35.4676, m.Lat, 1e-6)
	assert.Equal(t, "google", m.Provider)
	assert.Equal(t, "rooftop", m.MatchType)
}

func TestGoogleAttempt_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	p := NewGoogleProvider("k", WithBaseURL(srv.URL))
	_, err := p.Attempt(context.Background(), "nowhere")
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestGoogleAttempt_StatusClassification(t *testing.T) {
	tests := []struct {
		status    string
		transient bool
	}{
		{"UNKNOWN_ERROR", true},
		{"REQUEST_DENIED", false},
		{"OVER_QUERY_LIMIT", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"status": "`+tt.status+`", "results": []}`)
			}))
			defer srv.Close()

			p := NewGoogleProvider("k", WithBaseURL(srv.URL))
			_, err := p.Attempt(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
			assert.False(t, errors.Is(err, ErrNoMatch))
		})
	}
}

func TestGoogleAttempt_MissingKey(t *testing.T) {
	p := NewGoogleProvider("")
	_, err := p.Attempt(context.Background(), "q")
	require.Error(t, err)
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	assert.Equal(t, "rooftop", googleLocationTypeToQuality("ROOFTOP"))
	assert.Equal(t, "range", googleLocationTypeToQuality("range_interpolated"))
	assert.Equal(t, "centroid", googleLocationTypeToQuality("GEOMETRIC_CENTER"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("APPROXIMATE"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality(""))
}
