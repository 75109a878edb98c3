package telemetry

import (
	"testing"
	"time"

	"github.com/labgate/labgate-core/internal/infrastructure/config"
)

func TestResolutionPointGranted(t *testing.T) {
	distance := 12.4
	tags, fields := resolutionPoint(Resolution{
		LabSlug:    "bio-lab-a",
		Mode:       "login",
		Granted:    true,
		DistanceM:  &distance,
		DurationMs: 4200,
		DecidedAt:  time.Now(),
	})

	if tags["outcome"] != "granted" {
		t.Errorf("outcome tag = %s", tags["outcome"])
	}
	if tags["lab"] != "bio-lab-a" || tags["mode"] != "login" {
		t.Errorf("unexpected tags: %v", tags)
	}
	if fields["duration_ms"] != int64(4200) {
		t.Errorf("duration field = %v", fields["duration_ms"])
	}
	if fields["distance_m"] != 12.4 {
		t.Errorf("distance field = %v", fields["distance_m"])
	}
}

func TestResolutionPointDeniedOmitsDistance(t *testing.T) {
	tags, fields := resolutionPoint(Resolution{
		LabSlug:    "bio-lab-a",
		Mode:       "login",
		Granted:    false,
		DurationMs: 900,
	})

	if tags["outcome"] != "denied" {
		t.Errorf("outcome tag = %s", tags["outcome"])
	}
	if _, ok := fields["distance_m"]; ok {
		t.Error("distance field present without a reported distance")
	}
}

func TestWriteResolutionDisconnectedIsNoop(t *testing.T) {
	// A zero client is disconnected; the write must silently drop rather
	// than panic on the nil write API.
	c := &Client{}
	c.WriteResolution(Resolution{LabSlug: "bio-lab-a", Granted: true})
}

func TestConnectDisabled(t *testing.T) {
	if _, err := Connect(config.InfluxDBConfig{Enabled: false}); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
