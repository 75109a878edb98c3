package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementResolution is the measurement name for pairing resolutions.
const measurementResolution = "pairing_resolution"

// Resolution is one resolved pairing session, recorded for dashboards:
// grant rates per lab, time-to-resolve, geofence distances.
type Resolution struct {
	LabSlug    string
	Mode       string
	Granted    bool
	DistanceM  *float64
	DurationMs int64
	DecidedAt  time.Time
}

// WriteResolution records a pairing resolution. Non-blocking; the point
// is batched and sent asynchronously, and dropped when disconnected.
func (c *Client) WriteResolution(res Resolution) {
	if !c.IsConnected() {
		return
	}

	tags, fields := resolutionPoint(res)
	ts := res.DecidedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurementResolution, tags, fields, ts))
}

// resolutionPoint maps a resolution onto InfluxDB tags (low cardinality,
// indexed) and fields (data).
func resolutionPoint(res Resolution) (map[string]string, map[string]any) {
	outcome := "denied"
	if res.Granted {
		outcome = "granted"
	}

	tags := map[string]string{
		"lab":     res.LabSlug,
		"outcome": outcome,
		"mode":    res.Mode,
	}

	fields := map[string]any{
		"duration_ms": res.DurationMs,
	}
	if res.DistanceM != nil {
		fields["distance_m"] = *res.DistanceM
	}

	return tags, fields
}
