package auth

import (
	"context"

	"github.com/labgate/labgate-core/internal/geofence"
)

// LabDirectory resolves lab geofences by display name, as declared in
// desktop registrations. It backs the relay's advisory server-side check.
type LabDirectory struct {
	labs LabRepository
}

// NewLabDirectory creates a directory over the lab repository.
func NewLabDirectory(labs LabRepository) *LabDirectory {
	return &LabDirectory{labs: labs}
}

// LabGeofence returns the configured geofence for the named lab. Unknown
// names report ok=false; lookup failures are treated the same since the
// caller's check is advisory.
func (d *LabDirectory) LabGeofence(ctx context.Context, labName string) (geofence.Point, float64, bool) {
	lab, err := d.labs.GetByName(ctx, labName)
	if err != nil {
		return geofence.Point{}, 0, false
	}
	return geofence.Point{Latitude: lab.Latitude, Longitude: lab.Longitude}, lab.RadiusM, true
}

// LabSlug returns the stable slug for the named lab, for topic and
// telemetry tagging.
func (d *LabDirectory) LabSlug(ctx context.Context, labName string) (string, bool) {
	lab, err := d.labs.GetByName(ctx, labName)
	if err != nil {
		return "", false
	}
	return lab.Slug, true
}
