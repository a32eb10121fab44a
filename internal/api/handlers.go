package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/closest-tornado/internal/lookup"
	"github.com/sells-group/closest-tornado/internal/rank"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

// Client-facing error messages.
const (
	msgRateLimited = "Too many requests. Please try again shortly."
	msgNoMatch     = "No geocoding match found for that input."
	msgUnavailable = "Geocoding services are temporarily unavailable."
	msgNoData      = "No tornado data loaded."
	msgInvalid     = "Invalid request."
	msgInvalidBody = "Request body must be a JSON object with an address."
	msgUnexpected  = "Unexpected error while processing the request."
	msgMetaFailed  = "Dataset metadata is unavailable."
	msgTimeout     = "The request took too long to process."
)

type closestRequest struct {
	Address string `json:"address"`
	Units   string `json:"units"`
}

type detailBody struct {
	Detail string `json:"detail"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health(r.Context()))
}

func (s *server) handleMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := s.svc.Meta(r.Context())
	if err != nil {
		zap.L().Error("api: dataset meta", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeDetail(w, http.StatusServiceUnavailable, msgMetaFailed)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *server) handleClosest(w http.ResponseWriter, r *http.Request) {
	var req closestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	address, err := normalizeAddress(req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	units, err := parseUnits(req.Units)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	client := clientID(r)
	resp, err := s.svc.ByAddress(r.Context(), lookup.AddressQuery{
		ClientID: client,
		Address:  address,
		Units:    units,
		BaseURL:  s.baseURL(r),
	})
	s.setRemaining(w, client)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleClosestByCoords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := parsePoint(q.Get("lat"), q.Get("lon"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	units, err := parseUnits(q.Get("units"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	client := clientID(r)
	resp, err := s.svc.ByCoords(r.Context(), lookup.CoordsQuery{
		ClientID: client,
		Point:    p,
		Units:    units,
		BaseURL:  s.baseURL(r),
	})
	s.setRemaining(w, client)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) setRemaining(w http.ResponseWriter, client string) {
	if n := s.svc.Remaining(client); n >= 0 {
		w.Header().Set(remainingHeader, strconv.Itoa(n))
	}
}

// baseURL is the page share links return to: the configured public URL, or
// the scheme and host the request arrived on.
func (s *server) baseURL(r *http.Request) string {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// writeError maps lookup failures onto status codes. Only unclassified
// errors are logged.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *inputError
	switch {
	case errors.As(err, &ie):
		writeDetail(w, http.StatusBadRequest, ie.msg)
	case errors.Is(err, lookup.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, msgRateLimited)
	case errors.Is(err, lookup.ErrInvalidInput):
		writeDetail(w, http.StatusBadRequest, msgInvalid)
	case errors.Is(err, geocode.ErrNoMatch):
		writeDetail(w, http.StatusBadRequest, msgNoMatch)
	case errors.Is(err, geocode.ErrUnavailable):
		writeDetail(w, http.StatusServiceUnavailable, msgUnavailable)
	case errors.Is(err, rank.ErrNoCandidates):
		writeDetail(w, http.StatusNotFound, msgNoData)
	default:
		zap.L().Error("api: lookup failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeDetail(w, http.StatusInternalServerError, msgUnexpected)
	}
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detailBody{Detail: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
