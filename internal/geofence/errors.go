package geofence

import "errors"

var (
	// ErrInvalidLocation is returned when a coordinate is outside WGS84
	// bounds. Note that (0,0) is a valid coordinate, not an error.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidRadius is returned when the nominal radius is not positive.
	ErrInvalidRadius = errors.New("invalid radius")
)
