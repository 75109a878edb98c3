package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message types.
const (
	MsgRegisterDesktop       = "register_desktop"
	MsgRegisterMobile        = "register_mobile"
	MsgPasskeyAuthSuccess    = "passkey_auth_success"
	MsgPasskeyCreated        = "passkey_created"
	MsgRequestLocation       = "request_location"
	MsgLocationReceived      = "location_received"
	MsgLocationCheckComplete = "location_check_complete"
	MsgPing                  = "ping"
)

// Outbound message types. MsgPasskeyCreated, MsgRequestLocation and
// MsgLocationReceived are reused on the outbound side: the relay forwards
// them under the same name.
const (
	MsgConnected                = "connected"
	MsgDesktopRegistered        = "desktop_registered"
	MsgMobileRegistered         = "mobile_registered"
	MsgMobileConnected          = "mobile_connected"
	MsgPasskeyVerified          = "passkey_verified"
	MsgPasskeyVerifiedConfirmed = "passkey_verified_confirmed"
	MsgPasskeyCreatedConfirmed  = "passkey_created_confirmed"
	MsgRequestLocationFromMobile = "request_location_from_mobile"
	MsgAccessGranted            = "access_granted"
	MsgAccessDenied             = "access_denied"
	MsgPong                     = "pong"
	MsgError                    = "error"
)

// Envelope is the bidirectional message frame. Outbound envelopes are
// server-stamped with a timestamp; inbound timestamps are ignored.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// RegisterDesktopData is the payload of a register_desktop message.
type RegisterDesktopData struct {
	SessionID string `json:"sessionId"`
	UserEmail string `json:"userEmail"`
	LabName   string `json:"labName"`
}

// RegisterMobileData is the payload of a register_mobile message.
type RegisterMobileData struct {
	SessionID       string `json:"sessionId"`
	UserEmail       string `json:"userEmail"`
	Challenge       string `json:"challenge"`
	RequireLocation bool   `json:"requireLocation"`
	Mode            string `json:"mode"`
}

// ProofData is the payload of passkey_auth_success and passkey_created.
// AuthData is the opaque result of the external passkey ceremony; the relay
// records and forwards it without validating its content.
type ProofData struct {
	AuthData json.RawMessage `json:"authData"`
}

// proofDescriptor holds the loosely-typed fields the relay extracts from
// authData for the audit trail. Anything else in the payload stays opaque.
type proofDescriptor struct {
	UserEmail string `json:"userEmail"`
	Device    string `json:"device"`
}

// RequestLocationData is the payload of a desktop's request_location message.
type RequestLocationData struct {
	AuthData  json.RawMessage `json:"authData"`
	RequestID string          `json:"requestId"`
}

// LocationReceivedData is the payload of a mobile's location_received message.
type LocationReceivedData struct {
	Location *Location       `json:"location"`
	AuthData json.RawMessage `json:"authData"`
}

// CheckCompleteData is the payload of a desktop's location_check_complete
// message: the desktop-side geofence verdict reported back to the relay.
type CheckCompleteData struct {
	Success  bool      `json:"success"`
	Distance *float64  `json:"distance,omitempty"`
	Location *Location `json:"location,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// encodeMessage builds an outbound envelope with a server timestamp.
func encodeMessage(msgType string, data any, now time.Time) ([]byte, error) {
	env := Envelope{
		Type:      msgType,
		Timestamp: now.UTC().Format(time.RFC3339),
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		env.Data = raw
	}

	encoded, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", msgType, err)
	}
	return encoded, nil
}

// decodeData unmarshals an envelope payload into the given struct.
func decodeData(env Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: missing data for %s", ErrMalformedMessage, env.Type)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, env.Type, err)
	}
	return nil
}
