package models

// EventType classifies a detection event's position in its lifecycle.
type EventType string

const (
	EventNew    EventType = "new"
	EventUpdate EventType = "update"
	EventEnd    EventType = "end"
)

// DetectionEvent is one motion/object observation received from the event
// source. It is immutable after receipt; only its derived Match is persisted.
type DetectionEvent struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Camera string    `json:"camera"`
	Label  string    `json:"label"`
	Zones  []string  `json:"zones"`
	Area   float64   `json:"area"`
	// Topic identifies which upstream endpoint issued the event and is used
	// to resolve the source URL for snapshot fetches and sub-label pushes.
	Topic string `json:"topic"`
}

// HasZone reports whether the event's zone set contains the given zone.
func (e DetectionEvent) HasZone(zone string) bool {
	for _, z := range e.Zones {
		if z == zone {
			return true
		}
	}
	return false
}
