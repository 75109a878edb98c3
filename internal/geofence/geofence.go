package geofence

import (
	"fmt"
	"math"
)

// earthRadiusM is the mean Earth radius in metres, used by the haversine
// formula. Metre-level accuracy is sufficient for lab geofences; geodesic
// ellipsoid precision is not required.
const earthRadiusM = 6371000.0

// Coordinate bounds.
const (
	minLatitude  = -90.0
	maxLatitude  = 90.0
	minLongitude = -180.0
	maxLongitude = 180.0
)

// Tolerance band boundaries and caps (metres). Small geofences demand
// precision (indoor rooms); large ones must absorb consumer GPS error
// without becoming gameable, so tolerance is bounded both absolutely and
// relative to the nominal radius.
const (
	strictRadiusM = 15.0 // at or below: no tolerance
	smallRadiusM  = 25.0 // at or below: fixed small tolerance
	mediumRadiusM = 50.0 // at or below: fraction of radius, capped

	smallToleranceM   = 3.0
	mediumToleranceM  = 8.0
	largeToleranceM   = 20.0
	toleranceFraction = 0.2
)

// Point is a WGS84 coordinate. (0,0) is a valid location: distinguishing
// "absent" from the null island is the caller's responsibility.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Result is the outcome of a geofence evaluation.
type Result struct {
	// DistanceM is the great-circle distance between the two points in metres.
	DistanceM float64 `json:"distance_m"`

	// WithinRadius is true when the distance is inside the nominal radius.
	WithinRadius bool `json:"within_radius"`

	// WithinTolerance is true when the distance is inside the nominal
	// radius extended by the tolerance band.
	WithinTolerance bool `json:"within_tolerance"`

	// EffectiveRadiusM is the radius actually compared against (nominal + tolerance).
	EffectiveRadiusM float64 `json:"effective_radius_m"`

	// ToleranceM is the tolerance amount applied.
	ToleranceM float64 `json:"tolerance_m"`
}

// Policy maps a nominal radius to a GPS-accuracy tolerance in metres.
// Implementations must be monotonically non-decreasing in the radius.
type Policy func(radiusM float64) float64

// BandedTolerance is the default tolerance policy:
//
//	radius ≤ 15m  →  0m   (strict: indoor rooms)
//	radius ≤ 25m  →  3m
//	radius ≤ 50m  →  min(8m, 20% of radius)
//	radius > 50m  →  min(20m, 20% of radius)
func BandedTolerance(radiusM float64) float64 {
	switch {
	case radiusM <= strictRadiusM:
		return 0
	case radiusM <= smallRadiusM:
		return smallToleranceM
	case radiusM <= mediumRadiusM:
		return math.Min(mediumToleranceM, radiusM*toleranceFraction)
	default:
		return math.Min(largeToleranceM, radiusM*toleranceFraction)
	}
}

// Evaluate computes the distance between a reported location and a geofence
// centre and determines whether the location falls inside the fence, using
// the default banded tolerance policy.
func Evaluate(location, center Point, radiusM float64) (*Result, error) {
	return EvaluateWithPolicy(location, center, radiusM, BandedTolerance)
}

// EvaluateWithPolicy is Evaluate with a caller-supplied tolerance policy.
//
// Both points are validated against coordinate bounds; out-of-range input
// fails with ErrInvalidLocation and is never coerced. The radius must be
// positive.
func EvaluateWithPolicy(location, center Point, radiusM float64, policy Policy) (*Result, error) {
	if err := ValidatePoint(location); err != nil {
		return nil, err
	}
	if err := ValidatePoint(center); err != nil {
		return nil, err
	}
	if radiusM <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidRadius, radiusM)
	}
	if policy == nil {
		policy = BandedTolerance
	}

	distance := Distance(location, center)
	tolerance := policy(radiusM)
	effective := radiusM + tolerance

	return &Result{
		DistanceM:        distance,
		WithinRadius:     distance <= radiusM,
		WithinTolerance:  distance <= effective,
		EffectiveRadiusM: effective,
		ToleranceM:       tolerance,
	}, nil
}

// Distance returns the great-circle distance between two points in metres,
// computed with the haversine formula. Callers needing validation should
// use Evaluate; Distance assumes in-range coordinates.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// ValidatePoint checks that a coordinate is within WGS84 bounds.
func ValidatePoint(p Point) error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return fmt.Errorf("%w: coordinate is NaN", ErrInvalidLocation)
	}
	if p.Latitude < minLatitude || p.Latitude > maxLatitude {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidLocation, p.Latitude)
	}
	if p.Longitude < minLongitude || p.Longitude > maxLongitude {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidLocation, p.Longitude)
	}
	return nil
}

// radians converts degrees to radians.
func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
