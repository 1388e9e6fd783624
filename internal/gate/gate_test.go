package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

func testConfig() config.SourceConfig {
	return config.SourceConfig{
		Labels:  []string{"person"},
		MinArea: 1000,
		SeenIDs: 10,
	}
}

func testEvent(id string) models.DetectionEvent {
	return models.DetectionEvent{
		ID:     id,
		Type:   models.EventNew,
		Camera: "front",
		Label:  "person",
		Area:   5000,
	}
}

func wantRejection(t *testing.T, err error, reason string) {
	t.Helper()
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("error = %v, want RejectionError", err)
	}
	if rej.Reason != reason {
		t.Errorf("Reason = %q, want %q", rej.Reason, reason)
	}
}

func TestGateAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("clean event admitted", func(t *testing.T) {
		g := New(testConfig(), nil)
		if err := g.Admit(ctx, testEvent("a")); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	})

	t.Run("end events always rejected", func(t *testing.T) {
		g := New(testConfig(), nil)
		ev := testEvent("a")
		ev.Type = models.EventEnd
		wantRejection(t, g.Admit(ctx, ev), "skip processing on end events")
	})

	t.Run("label not approved", func(t *testing.T) {
		g := New(testConfig(), nil)
		ev := testEvent("a")
		ev.Label = "car"
		wantRejection(t, g.Admit(ctx, ev), "label car not in approved list")
	})

	t.Run("area too small", func(t *testing.T) {
		g := New(testConfig(), nil)
		ev := testEvent("a")
		ev.Area = 999
		wantRejection(t, g.Admit(ctx, ev), "object area 999 smaller than 1000")
	})

	t.Run("camera not on approved list", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cameras = []string{"back"}
		g := New(cfg, nil)
		wantRejection(t, g.Admit(ctx, testEvent("a")), "camera front not on approved list")
	})

	t.Run("zone override admits off-list camera in zone", func(t *testing.T) {
		cfg := testConfig()
		cfg.Cameras = []string{"back"}
		cfg.Zones = []config.CameraZone{{Camera: "front", Zone: "porch"}}
		g := New(cfg, nil)

		ev := testEvent("a")
		ev.Zones = []string{"porch", "driveway"}
		if err := g.Admit(ctx, ev); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	})

	t.Run("zone override rejects disjoint zones", func(t *testing.T) {
		cfg := testConfig()
		cfg.Zones = []config.CameraZone{{Camera: "front", Zone: "porch"}}
		g := New(cfg, nil)

		ev := testEvent("a")
		ev.Zones = []string{"driveway"}
		wantRejection(t, g.Admit(ctx, ev), "camera front zone not on approved list")
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		g := New(testConfig(), nil)
		if err := g.Admit(ctx, testEvent("dup")); err != nil {
			t.Fatalf("first Admit() error = %v", err)
		}
		g.Release("front")

		ev := testEvent("dup")
		wantRejection(t, g.Admit(ctx, ev), "already processed")
	})

	t.Run("update rejected while camera in flight", func(t *testing.T) {
		g := New(testConfig(), nil)
		if err := g.Admit(ctx, testEvent("a")); err != nil {
			t.Fatalf("first Admit() error = %v", err)
		}

		ev := testEvent("b")
		ev.Type = models.EventUpdate
		wantRejection(t, g.Admit(ctx, ev), "still processing previous event for front")

		// New ids for the same camera are not blocked by the in-flight flag.
		if err := g.Admit(ctx, testEvent("c")); err != nil {
			t.Fatalf("new event Admit() error = %v", err)
		}
	})

	t.Run("release clears in-flight flag", func(t *testing.T) {
		g := New(testConfig(), nil)
		if err := g.Admit(ctx, testEvent("a")); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		g.Release("front")

		ev := testEvent("b")
		ev.Type = models.EventUpdate
		if err := g.Admit(ctx, ev); err != nil {
			t.Fatalf("Admit() after release error = %v", err)
		}
	})
}

func TestGateSeenEviction(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.SeenIDs = 3
	g := New(cfg, nil)

	for i := 0; i < 4; i++ {
		ev := testEvent(fmt.Sprintf("ev-%d", i))
		if err := g.Admit(ctx, ev); err != nil {
			t.Fatalf("Admit(ev-%d) error = %v", i, err)
		}
		g.Release(ev.Camera)
	}

	// ev-0 was evicted when ev-3 arrived, so it is admissible again.
	if err := g.Admit(ctx, testEvent("ev-0")); err != nil {
		t.Fatalf("Admit(evicted id) error = %v", err)
	}
	g.Release("front")

	wantRejection(t, g.Admit(ctx, testEvent("ev-3")), "already processed")
}

func TestGateConcurrentAdmit(t *testing.T) {
	ctx := context.Background()
	g := New(testConfig(), nil)

	const n = 50
	var wg sync.WaitGroup
	admitted := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := testEvent("same-id")
			if err := g.Admit(ctx, ev); err == nil {
				admitted <- ev.ID
			}
		}(i)
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 1 {
		t.Errorf("admitted %d events for one id, want 1", count)
	}
}
