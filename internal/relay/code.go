package relay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// sessionCodePrefix marks ids minted by this service. Ids supplied by
// desktops are accepted as-is; the prefix only applies to codes we mint.
const sessionCodePrefix = "labgate-"

// NewSessionCode mints a session id suitable for QR display: a service
// prefix plus a random token. Collisions are negligible at 16 random
// bytes.
func NewSessionCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session code: %w", err)
	}
	return sessionCodePrefix + hex.EncodeToString(buf), nil
}

// IsMintedSessionCode reports whether the id carries the service prefix.
func IsMintedSessionCode(id string) bool {
	return strings.HasPrefix(id, sessionCodePrefix)
}
