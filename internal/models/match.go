package models

import (
	"encoding/json"
	"time"
)

// Box is a bounding box in source-image pixel coordinates.
type Box struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area in pixels.
func (b Box) Area() float64 {
	return float64(b.Width) * float64(b.Height)
}

// AgeRange is a vendor-reported age estimate.
type AgeRange struct {
	Low         int     `json:"low"`
	High        int     `json:"high"`
	Probability float64 `json:"probability"`
}

// Attribute is a vendor-reported value with its own probability (gender, mask).
type Attribute struct {
	Value       string  `json:"value"`
	Probability float64 `json:"probability"`
}

// NormalizedFace is the canonical recognition result, one per candidate.
// Confidence is nil for the vendor "face found, no probability" case so the
// query engine can distinguish it from 0.
type NormalizedFace struct {
	Name       string          `json:"name"`
	Confidence *float64        `json:"confidence"`
	Match      bool            `json:"match"`
	Box        Box             `json:"box"`
	Age        *AgeRange       `json:"age,omitempty"`
	Gender     *Attribute      `json:"gender,omitempty"`
	Mask       *Attribute      `json:"mask,omitempty"`
	Pose       json.RawMessage `json:"pose,omitempty"`
	// Checks lists failed match-policy checks; nil means every check passed.
	Checks []string `json:"checks,omitempty"`
}

// DetectorResponse is one detector's contribution to a Match. Results is
// empty (never absent) when the detector failed or found nothing.
type DetectorResponse struct {
	Detector string           `json:"detector"`
	Duration float64          `json:"duration"`
	Results  []NormalizedFace `json:"results"`
}

// MatchEvent is the persisted subset of the originating DetectionEvent.
type MatchEvent struct {
	Camera string   `json:"camera"`
	Type   string   `json:"type"`
	Zones  []string `json:"zones"`
}

// Match is the persisted outcome of processing one admitted event.
type Match struct {
	ID        int64              `json:"id"`
	Filename  string             `json:"filename"`
	Event     MatchEvent         `json:"event"`
	Response  []DetectorResponse `json:"response"`
	IsTrained bool               `json:"isTrained"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt *time.Time         `json:"updatedAt"`
}

// Train is one stored face sample registered with the detectors. Meta holds
// vendor-specific training output (e.g. Rekognition face records) needed for
// later removal.
type Train struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Filename  string          `json:"filename"`
	Detector  string          `json:"detector"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Result is the normalized outcome published downstream after a Match is
// persisted: the event plus the cross-detector deduplicated candidate list.
type Result struct {
	ID        int64            `json:"id"`
	Event     MatchEvent       `json:"event"`
	EventID   string           `json:"eventId"`
	Filename  string           `json:"filename"`
	Matches   []NormalizedFace `json:"matches"`
	Unknowns  []NormalizedFace `json:"unknowns"`
	CreatedAt time.Time        `json:"createdAt"`
}
