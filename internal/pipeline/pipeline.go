package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/detector"
	"github.com/your-org/facegate/internal/gate"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// ConfigurationError reports a deployment state that makes processing
// impossible, distinct from transient detector failures.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// StorageError wraps a persistence failure. Unlike detector failures it is
// fatal to the event: no Result is published for an unpersisted Match.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MatchStore persists match records.
type MatchStore interface {
	SaveMatch(ctx context.Context, filename string, event models.MatchEvent, response []models.DetectorResponse) (models.Match, error)
	UpdateMatch(ctx context.Context, id int64, response []models.DetectorResponse) (models.Match, error)
}

// MediaStore holds the snapshot images match records reference.
type MediaStore interface {
	PutMatch(ctx context.Context, filename string, data []byte) error
	GetMatch(ctx context.Context, filename string) ([]byte, error)
}

// ImageSource fetches event snapshots and receives sub-label pushes.
type ImageSource interface {
	Snapshot(ctx context.Context, topic, eventID string) ([]byte, error)
	PushSubLabel(ctx context.Context, topic, eventID string, names []string) error
}

// Notifier publishes processed results downstream.
type Notifier interface {
	PublishResult(ctx context.Context, camera string, res models.Result) error
}

// Broadcaster pushes newly persisted matches to live UI subscribers.
type Broadcaster interface {
	BroadcastMatch(m models.Match)
}

// Pipeline drives one admitted detection event through snapshot fetch,
// concurrent recognition, normalization, persistence and notification.
type Pipeline struct {
	gate     *gate.Gate
	adapters []detector.Adapter
	detect   config.DetectConfig
	source   ImageSource
	store    MatchStore
	media    MediaStore
	notifier Notifier
	hub      Broadcaster
}

func New(
	g *gate.Gate,
	adapters []detector.Adapter,
	detect config.DetectConfig,
	source ImageSource,
	store MatchStore,
	media MediaStore,
	notifier Notifier,
	hub Broadcaster,
) *Pipeline {
	return &Pipeline{
		gate:     g,
		adapters: adapters,
		detect:   detect,
		source:   source,
		store:    store,
		media:    media,
		notifier: notifier,
		hub:      hub,
	}
}

// Process handles one inbound detection event end to end. A RejectionError is
// the expected outcome for filtered events and carries no side effects beyond
// the gate's own bookkeeping.
func (p *Pipeline) Process(ctx context.Context, ev models.DetectionEvent) error {
	observability.EventsReceived.WithLabelValues(ev.Camera).Inc()

	if err := p.gate.Admit(ctx, ev); err != nil {
		observability.EventsRejected.WithLabelValues(ev.Camera).Inc()
		return err
	}
	defer p.gate.Release(ev.Camera)

	observability.EventsAdmitted.WithLabelValues(ev.Camera).Inc()

	if len(p.adapters) == 0 {
		return &ConfigurationError{Reason: "no detectors configured"}
	}

	img, err := p.source.Snapshot(ctx, ev.Topic, ev.ID)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}

	filename := uuid.NewString() + ".jpg"
	if err := p.media.PutMatch(ctx, filename, img); err != nil {
		return &StorageError{Op: "put media", Err: err}
	}

	responses := p.dispatch(ctx, ev.Camera, img)

	event := models.MatchEvent{Camera: ev.Camera, Type: string(ev.Type), Zones: ev.Zones}
	match, err := p.store.SaveMatch(ctx, filename, event, responses)
	if err != nil {
		return &StorageError{Op: "save match", Err: err}
	}
	observability.MatchesSaved.WithLabelValues(ev.Camera).Inc()

	p.publish(ctx, ev, match)
	return nil
}

// Reprocess re-runs recognition over a stored match's snapshot and replaces
// its response in place. No downstream result is published.
func (p *Pipeline) Reprocess(ctx context.Context, match models.Match) (models.Match, error) {
	if len(p.adapters) == 0 {
		return models.Match{}, &ConfigurationError{Reason: "no detectors configured"}
	}

	img, err := p.media.GetMatch(ctx, match.Filename)
	if err != nil {
		return models.Match{}, &StorageError{Op: "get media", Err: err}
	}

	responses := p.dispatch(ctx, match.Event.Camera, img)

	updated, err := p.store.UpdateMatch(ctx, match.ID, responses)
	if err != nil {
		return models.Match{}, &StorageError{Op: "update match", Err: err}
	}
	return updated, nil
}

// dispatch fans the image out to every configured detector concurrently and
// collects one DetectorResponse per detector, in adapter order. A failed
// detector contributes an empty result set rather than aborting the event.
func (p *Pipeline) dispatch(ctx context.Context, camera string, img []byte) []models.DetectorResponse {
	responses := make([]models.DetectorResponse, len(p.adapters))

	var wg sync.WaitGroup
	for i, a := range p.adapters {
		wg.Add(1)
		go func(i int, a detector.Adapter) {
			defer wg.Done()
			responses[i] = p.recognizeOne(ctx, a, camera, img)
		}(i, a)
	}
	wg.Wait()

	return responses
}

func (p *Pipeline) recognizeOne(ctx context.Context, a detector.Adapter, camera string, img []byte) models.DetectorResponse {
	observability.DetectorRequests.WithLabelValues(a.Name()).Inc()

	callCtx := ctx
	if t := a.Timeout(); t > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.Recognize(callCtx, img)
	observability.DetectorDuration.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())

	resp := models.DetectorResponse{
		Detector: a.Name(),
		Duration: round2(time.Since(start).Seconds()),
		Results:  []models.NormalizedFace{},
	}
	if err != nil {
		observability.DetectorFailures.WithLabelValues(a.Name()).Inc()
		slog.Warn("detector call failed", "detector", a.Name(), "camera", camera, "error", err)
		return resp
	}

	faces, err := a.Normalize(camera, raw)
	if err != nil {
		var perr *detector.ProtocolError
		if errors.As(err, &perr) {
			observability.DetectorFailures.WithLabelValues(a.Name()).Inc()
			slog.Warn("detector response rejected", "detector", a.Name(), "camera", camera, "error", err)
			return resp
		}
		observability.DetectorFailures.WithLabelValues(a.Name()).Inc()
		slog.Warn("normalize failed", "detector", a.Name(), "camera", camera, "error", err)
		return resp
	}

	settings := p.detect.ForCamera(camera)
	faces = dedupeByName(faces)
	faces = rewriteUnknowns(faces, settings)

	for _, f := range faces {
		if f.Match {
			observability.FacesMatched.WithLabelValues(a.Name()).Inc()
		}
	}

	resp.Results = faces
	return resp
}

// publish fans the persisted match out: results topic, live UI feed, and the
// sub-label push back to the source. All three are best effort.
func (p *Pipeline) publish(ctx context.Context, ev models.DetectionEvent, match models.Match) {
	matches, unknowns := splitResults(match.Response)

	result := models.Result{
		ID:        match.ID,
		Event:     match.Event,
		EventID:   ev.ID,
		Filename:  match.Filename,
		Matches:   matches,
		Unknowns:  unknowns,
		CreatedAt: match.CreatedAt,
	}

	if p.notifier != nil {
		if err := p.notifier.PublishResult(ctx, ev.Camera, result); err != nil {
			slog.Error("publish result", "camera", ev.Camera, "error", err)
		}
	}

	if p.hub != nil {
		p.hub.BroadcastMatch(match)
	}

	if len(matches) > 0 {
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		// Detached from the event's context: a slow source must not hold the
		// camera in-flight.
		go func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.source.PushSubLabel(pushCtx, ev.Topic, ev.ID, names); err != nil {
				slog.Warn("push sub_label", "event", ev.ID, "error", err)
			}
		}()
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
