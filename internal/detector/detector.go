package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// RawResponse is one vendor's opaque recognition payload plus call metadata.
// It is embedded into the Match record's response array, never persisted on
// its own.
type RawResponse struct {
	Detector string          `json:"detector"`
	Status   int             `json:"status"`
	Body     json.RawMessage `json:"body"`
	Elapsed  time.Duration   `json:"-"`
}

// RemoveRefs identifies previously trained samples for removal. Name-based
// backends use Name; id-based backends (Rekognition) use FaceIDs.
type RemoveRefs struct {
	Name    string
	FaceIDs []string
}

// Adapter is one face-recognition backend. Recognize/Train/Remove perform
// network calls; Normalize is a pure function over a RawResponse.
type Adapter interface {
	Name() string
	Timeout() time.Duration
	Recognize(ctx context.Context, image []byte) (RawResponse, error)
	Train(ctx context.Context, name string, image []byte) (json.RawMessage, error)
	Remove(ctx context.Context, refs RemoveRefs) error
	Normalize(camera string, raw RawResponse) ([]models.NormalizedFace, error)
}

// PolicyResolver returns the match/unknown thresholds for a camera.
type PolicyResolver func(camera string) config.DetectSettings

// FaceNameLookup resolves a vendor-assigned face id to a trained name.
type FaceNameLookup func(faceID string) (string, bool)

// UnavailableError is a transport-level failure (timeout, connection refused,
// unexpected status) for one backend. It is isolated per detector and never
// aborts the event's pipeline.
type UnavailableError struct {
	Detector string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("detector %s unavailable: %v", e.Detector, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ProtocolError is a malformed success payload from one backend. A vendor
// "no faces detected" response is a valid empty result, not a ProtocolError.
type ProtocolError struct {
	Detector string
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("detector %s protocol error: %s", e.Detector, e.Reason)
}

// FromConfig builds the closed set of configured adapters. An empty result is
// a reportable configuration state, handled by the caller.
func FromConfig(cfg config.DetectorsConfig, detect PolicyResolver, lookup FaceNameLookup) []Adapter {
	var adapters []Adapter
	if cfg.CompreFace != nil {
		adapters = append(adapters, NewCompreFace(*cfg.CompreFace, detect))
	}
	if cfg.DeepStack != nil {
		adapters = append(adapters, NewDeepStack(*cfg.DeepStack, detect))
	}
	if cfg.Rekognition != nil {
		adapters = append(adapters, NewRekognition(*cfg.Rekognition, detect, lookup))
	}
	return adapters
}
