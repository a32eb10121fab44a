package lookup

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Units selects the distance unit echoed as selected_distance.
type Units string

const (
	Miles      Units = "miles"
	Kilometers Units = "km"
)

const metersPerMile = 1609.344

// ParseUnits accepts "miles" or "km"; empty means miles.
func ParseUnits(s string) (Units, error) {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case "", Miles:
		return Miles, nil
	case Kilometers:
		return Kilometers, nil
	default:
		return "", eris.Wrapf(ErrInvalidInput, "lookup: units must be %q or %q", Miles, Kilometers)
	}
}

// Convert returns meters expressed in u.
func (u Units) Convert(meters float64) float64 {
	if u == Kilometers {
		return meters / 1000
	}
	return meters / metersPerMile
}
