package mqtt

import "errors"

// Sentinel errors for MQTT operations.
var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt client not connected")
	ErrInvalidTopic     = errors.New("invalid mqtt topic")
	ErrInvalidQoS       = errors.New("invalid qos level")
	ErrPublishFailed    = errors.New("mqtt publish failed")
)
