package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// RejectionError is the expected, non-fatal outcome of a failed admission
// check. No Match is created for a rejected event.
type RejectionError struct {
	EventID string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s - %s", e.EventID, e.Reason)
}

// StatusProber checks the event source's liveness. The probe result never
// changes the admission decision.
type StatusProber interface {
	Status(ctx context.Context, topic string) error
}

// Gate applies admission policy to inbound detection events. The in-flight
// map and seen-id set are process-wide state; both are updated under one
// mutex so two concurrent deliveries for the same camera or id cannot race
// through.
type Gate struct {
	cfg    config.SourceConfig
	prober StatusProber

	mu         sync.Mutex
	processing map[string]bool
	seen       *seenSet
}

func New(cfg config.SourceConfig, prober StatusProber) *Gate {
	return &Gate{
		cfg:        cfg,
		prober:     prober,
		processing: make(map[string]bool),
		seen:       newSeenSet(cfg.SeenIDs),
	}
}

// Admit runs the admission checks in order and, on success, atomically marks
// the camera in-flight and the event id as seen. The caller must Release the
// camera when the event's pipeline finishes, admitted or not completed.
func (g *Gate) Admit(ctx context.Context, ev models.DetectionEvent) error {
	g.mu.Lock()

	if err := g.check(ev); err != nil {
		g.mu.Unlock()
		return err
	}

	g.processing[ev.Camera] = true
	g.seen.add(ev.ID)
	g.mu.Unlock()

	// Best-effort source liveness probe, decoupled from the decision.
	if g.prober != nil {
		if err := g.prober.Status(ctx, ev.Topic); err != nil {
			slog.Warn("event source status probe failed", "topic", ev.Topic, "error", err)
		}
	}

	return nil
}

func (g *Gate) check(ev models.DetectionEvent) error {
	reject := func(format string, args ...any) error {
		return &RejectionError{EventID: ev.ID, Reason: fmt.Sprintf(format, args...)}
	}

	override, hasOverride := g.zoneOverride(ev.Camera)

	if len(g.cfg.Cameras) > 0 && !contains(g.cfg.Cameras, ev.Camera) && !hasOverride {
		return reject("camera %s not on approved list", ev.Camera)
	}

	if hasOverride {
		matched := false
		for _, z := range override {
			if ev.HasZone(z.Zone) {
				matched = true
				break
			}
		}
		if !matched {
			return reject("camera %s zone not on approved list", ev.Camera)
		}
	}

	if g.processing[ev.Camera] && ev.Type == models.EventUpdate {
		return reject("still processing previous event for %s", ev.Camera)
	}

	if ev.Type == models.EventEnd {
		return reject("skip processing on %s events", ev.Type)
	}

	if !contains(g.cfg.Labels, ev.Label) {
		return reject("label %s not in approved list", ev.Label)
	}

	if ev.Area < g.cfg.MinArea {
		return reject("object area %.0f smaller than %.0f", ev.Area, g.cfg.MinArea)
	}

	if g.seen.has(ev.ID) {
		return reject("already processed")
	}

	return nil
}

// Release clears the camera's in-flight flag.
func (g *Gate) Release(camera string) {
	g.mu.Lock()
	delete(g.processing, camera)
	g.mu.Unlock()
}

func (g *Gate) zoneOverride(camera string) ([]config.CameraZone, bool) {
	var zones []config.CameraZone
	for _, z := range g.cfg.Zones {
		if z.Camera == camera {
			zones = append(zones, z)
		}
	}
	return zones, len(zones) > 0
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
