package mqtt

import "fmt"

// topicPrefix is the root of all LabGate topics.
const topicPrefix = "labgate"

// Topics builds the topic strings LabGate publishes to. A struct rather
// than free functions so call sites read as mqtt.Topics{}.Access(...).
type Topics struct{}

// Access is the per-lab access decision topic, consumed by door
// controllers and lab integrations: labgate/access/<lab-slug>
func (Topics) Access(labSlug string) string {
	return fmt.Sprintf("%s/access/%s", topicPrefix, labSlug)
}

// SystemStatus is the retained service status topic: labgate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", topicPrefix)
}
