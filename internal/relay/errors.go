package relay

import "errors"

// Sentinel errors for relay operations. All are local to a single inbound
// message: they are answered with an error envelope to the sender and never
// affect other sessions or the relay process.
var (
	// ErrSessionNotFound is returned when a referenced session id is
	// unknown to the store.
	ErrSessionNotFound = errors.New("relay: session not found")

	// ErrPeerNotConnected is returned when the target role's connection
	// slot is empty at forward time.
	ErrPeerNotConnected = errors.New("relay: peer not connected")

	// ErrMalformedMessage is returned when an envelope cannot be decoded
	// or a required field is missing.
	ErrMalformedMessage = errors.New("relay: malformed message")

	// ErrNotSessionPeer is returned when a message arrives from a
	// connection that is not bound to the role it claims.
	ErrNotSessionPeer = errors.New("relay: connection is not the session's peer for this operation")

	// ErrProofNotAttached is returned when a location-stage message
	// arrives before any authentication proof has been recorded.
	ErrProofNotAttached = errors.New("relay: authentication proof not attached")

	// ErrSessionResolved is returned for protocol messages arriving after
	// the session reached a terminal outcome.
	ErrSessionResolved = errors.New("relay: session already resolved")
)
