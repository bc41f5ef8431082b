// Package eligibility decides whether courier delivery is offered for a
// dropoff point at a given time.
package eligibility

import (
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/samber/lo"

	"github.com/angelmondragon/misterfood-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
)

// Reason identifies the first failing check.
type Reason string

const (
	ReasonSchedule   Reason = "schedule"
	ReasonPostalCode Reason = "postal_code"
	ReasonDistance   Reason = "distance"
	ReasonLocation   Reason = "location"

	// FallbackPickup is offered whenever delivery is refused.
	FallbackPickup = "pickup"

	earthRadiusKm = 6371.0
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Point is a dropoff to evaluate. Lat and Lng are set together or not at all.
type Point struct {
	Address    string
	PostalCode string
	Lat        *float64
	Lng        *float64
}

func (p Point) coordinates() (Coordinates, bool) {
	if p.Lat == nil || p.Lng == nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *p.Lat, Lng: *p.Lng}, true
}

// Result is the evaluation outcome.
type Result struct {
	Eligible bool
	Reason   Reason
	Message  string
	Fallback string
}

// Err converts a refusal into a DELIVERY_INELIGIBLE error; nil when eligible.
func (r Result) Err() error {
	if r.Eligible {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeIneligible, r.Message).WithDetails(map[string]any{
		"reason":   string(r.Reason),
		"message":  r.Message,
		"fallback": r.Fallback,
	})
}

// Evaluator holds the parsed delivery rules. It is immutable and safe for
// concurrent use.
type Evaluator struct {
	scheduleRaw   string
	windows       []Window
	location      *time.Location
	postalCodes   []string
	origin        *Coordinates
	maxDistanceKm float64
}

// NewEvaluator parses the delivery rules once.
func NewEvaluator(cfg config.DeliveryConfig) (*Evaluator, error) {
	tzName := strings.TrimSpace(cfg.Timezone)
	if tzName == "" {
		tzName = "Europe/Paris"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load delivery timezone %q: %w", tzName, err)
	}

	e := &Evaluator{
		scheduleRaw:   cfg.Schedule(),
		location:      loc,
		maxDistanceKm: cfg.MaxDistanceKm,
	}
	e.windows = ParseSchedule(e.scheduleRaw)
	for _, code := range cfg.AllowedPostalCodes {
		if normalized := normalizePostalCode(code); normalized != "" {
			e.postalCodes = append(e.postalCodes, normalized)
		}
	}
	if cfg.OriginLat != nil && cfg.OriginLng != nil {
		e.origin = &Coordinates{Lat: *cfg.OriginLat, Lng: *cfg.OriginLng}
	}
	return e, nil
}

// Evaluate runs the schedule, postal code and distance checks in order and
// stops at the first failure.
func (e *Evaluator) Evaluate(p Point, now time.Time) Result {
	if !withinWindows(e.windows, now.In(e.location)) {
		msg := "Livraison indisponible pour le moment."
		if e.scheduleRaw != "" {
			msg = fmt.Sprintf("Livraison disponible uniquement pendant les créneaux: %s.", e.scheduleRaw)
		}
		return refuse(ReasonSchedule, msg)
	}

	if len(e.postalCodes) > 0 {
		normalized := normalizePostalCode(p.PostalCode)
		if !lo.Contains(e.postalCodes, normalized) {
			return refuse(ReasonPostalCode, fmt.Sprintf("Livraison limitée aux codes postaux: %s.", strings.Join(e.postalCodes, ", ")))
		}
	}

	if e.origin != nil && e.maxDistanceKm > 0 {
		dropoff, ok := p.coordinates()
		if !ok {
			return refuse(ReasonLocation, "Coordonnées de livraison manquantes pour valider la zone.")
		}
		if HaversineKm(*e.origin, dropoff) > e.maxDistanceKm {
			return refuse(ReasonDistance, fmt.Sprintf("Adresse hors zone de livraison (max %.1f km).", e.maxDistanceKm))
		}
	}

	return Result{Eligible: true}
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Coordinates) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*sinLng*sinLng
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func refuse(reason Reason, message string) Result {
	return Result{Reason: reason, Message: message, Fallback: FallbackPickup}
}

func normalizePostalCode(code string) string {
	return strings.Join(strings.Fields(strings.ToLower(code)), "")
}
