package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB). Aligns with typical
// broker limits.
const maxPayloadSize = 1 << 20

// AccessEvent is the payload published to the per-lab access topic when a
// pairing session resolves. Door controllers act on granted=true.
type AccessEvent struct {
	SessionID string    `json:"session_id"`
	UserEmail string    `json:"user_email,omitempty"`
	LabSlug   string    `json:"lab_slug"`
	Mode      string    `json:"mode"`
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	DistanceM *float64  `json:"distance_m,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Publish sends a message to the specified MQTT topic.
//
// QoS levels: 0 at most once, 1 at least once, 2 exactly once. Retained
// messages are stored by the broker and delivered to new subscribers; use
// them for state topics only, never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAccess publishes an access decision to the lab's access topic
// with the configured default QoS. Not retained: access decisions are
// events, not state.
func (c *Client) PublishAccess(ev AccessEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding access event: %w", err)
	}
	return c.Publish(Topics{}.Access(ev.LabSlug), payload, byte(c.cfg.QoS), false)
}
