// Package mqtt provides the MQTT client for access-event publication.
//
// When a pairing session resolves, the decision is published to the
// per-lab access topic (labgate/access/<lab-slug>) so door controllers
// and lab integrations can react without polling the API. The client
// also maintains a retained service status topic with a Last Will for
// crash detection.
//
// Publication is optional: when no broker is configured the service runs
// without it and decisions are only persisted to the audit trail.
package mqtt
