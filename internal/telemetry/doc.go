// Package telemetry records pairing resolutions to InfluxDB.
//
// Each resolved session becomes one pairing_resolution point tagged by
// lab, outcome and mode, carrying the time-to-resolve and the geofence
// distance when one was reported. Writes are batched and asynchronous;
// telemetry is optional and its absence never affects the protocol.
package telemetry
