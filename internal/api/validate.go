package api

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/closest-tornado/internal/lookup"
	"github.com/sells-group/closest-tornado/pkg/geocode"
)

const (
	minAddressLen = 5
	maxAddressLen = 200
)

// inputError carries a message safe to return to the client.
type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func invalid(msg string) error { return &inputError{msg: msg} }

// normalizeAddress folds compatibility forms, trims, rejects anything outside
// printable ASCII and collapses whitespace runs to single spaces.
func normalizeAddress(raw string) (string, error) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return "", invalid("Address cannot be empty.")
	}
	for _, r := range s {
		if !printableASCII(r) {
			return "", invalid("Address contains non-printable characters.")
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) < minAddressLen || len(s) > maxAddressLen {
		return "", invalid("Address must be between 5 and 200 characters.")
	}
	return s, nil
}

// printableASCII mirrors the classic printable set: visible ASCII, space and
// the ASCII whitespace controls.
func printableASCII(r rune) bool {
	switch {
	case r >= 0x20 && r <= 0x7e:
		return true
	case r == '\t', r == '\n', r == '\r', r == '\v', r == '\f':
		return true
	}
	return false
}

func parseUnits(s string) (lookup.Units, error) {
	u, err := lookup.ParseUnits(s)
	if err != nil {
		return "", invalid(`units must be "miles" or "km".`)
	}
	return u, nil
}

func parseCoord(name, raw string, limit float64) (float64, error) {
	if raw == "" {
		return 0, invalid(name + " is required.")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(name + " must be a number.")
	}
	if v < -limit || v > limit {
		return 0, invalid(name + " must be between -" + strconv.Itoa(int(limit)) + " and " + strconv.Itoa(int(limit)) + ".")
	}
	return v, nil
}

func parsePoint(lat, lon string) (geocode.Point, error) {
	la, err := parseCoord("lat", lat, 90)
	if err != nil {
		return geocode.Point{}, err
	}
	lo, err := parseCoord("lon", lon, 180)
	if err != nil {
		return geocode.Point{}, err
	}
	return geocode.Point{Lat: la, Lon: lo}, nil
}
