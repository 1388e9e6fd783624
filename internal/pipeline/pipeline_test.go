package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/detector"
	"github.com/your-org/facegate/internal/gate"
	"github.com/your-org/facegate/internal/models"
)

type fakeAdapter struct {
	name         string
	recognizeErr error
	normalizeErr error
	faces        []models.NormalizedFace
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) Timeout() time.Duration { return time.Second }

func (f *fakeAdapter) Recognize(ctx context.Context, image []byte) (detector.RawResponse, error) {
	if f.recognizeErr != nil {
		return detector.RawResponse{}, f.recognizeErr
	}
	return detector.RawResponse{Detector: f.name, Status: 200, Body: json.RawMessage(`{}`)}, nil
}

func (f *fakeAdapter) Train(ctx context.Context, name string, image []byte) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeAdapter) Remove(ctx context.Context, refs detector.RemoveRefs) error { return nil }

func (f *fakeAdapter) Normalize(camera string, raw detector.RawResponse) ([]models.NormalizedFace, error) {
	if f.normalizeErr != nil {
		return nil, f.normalizeErr
	}
	return append([]models.NormalizedFace(nil), f.faces...), nil
}

type fakeStore struct {
	saveErr  error
	saved    []models.DetectorResponse
	updated  []models.DetectorResponse
	updateID int64
}

func (s *fakeStore) SaveMatch(ctx context.Context, filename string, event models.MatchEvent, response []models.DetectorResponse) (models.Match, error) {
	if s.saveErr != nil {
		return models.Match{}, s.saveErr
	}
	s.saved = response
	return models.Match{ID: 1, Filename: filename, Event: event, Response: response, CreatedAt: time.Now()}, nil
}

func (s *fakeStore) UpdateMatch(ctx context.Context, id int64, response []models.DetectorResponse) (models.Match, error) {
	s.updateID = id
	s.updated = response
	return models.Match{ID: id, Response: response}, nil
}

type fakeMedia struct {
	objects map[string][]byte
}

func newFakeMedia() *fakeMedia { return &fakeMedia{objects: map[string][]byte{}} }

func (m *fakeMedia) PutMatch(ctx context.Context, filename string, data []byte) error {
	m.objects[filename] = data
	return nil
}

func (m *fakeMedia) GetMatch(ctx context.Context, filename string) ([]byte, error) {
	data, ok := m.objects[filename]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

type fakeSource struct {
	snapshots int
	snapErr   error
	subLabels chan []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{subLabels: make(chan []string, 1)}
}

func (s *fakeSource) Snapshot(ctx context.Context, topic, eventID string) ([]byte, error) {
	s.snapshots++
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return []byte("jpeg"), nil
}

func (s *fakeSource) PushSubLabel(ctx context.Context, topic, eventID string, names []string) error {
	s.subLabels <- names
	return nil
}

type fakeNotifier struct {
	results []models.Result
}

func (n *fakeNotifier) PublishResult(ctx context.Context, camera string, res models.Result) error {
	n.results = append(n.results, res)
	return nil
}

func matchedFace(name string, confidence float64) models.NormalizedFace {
	c := confidence
	return models.NormalizedFace{
		Name:       name,
		Confidence: &c,
		Match:      true,
		Box:        models.Box{Width: 200, Height: 200},
	}
}

func testDetect() config.DetectConfig {
	return config.DetectConfig{
		Match:   config.MatchPolicy{Confidence: 60, MinArea: 100},
		Unknown: config.UnknownPolicy{Confidence: 40},
	}
}

func newTestPipeline(adapters []detector.Adapter, store *fakeStore, media *fakeMedia, src *fakeSource, notifier *fakeNotifier) *Pipeline {
	g := gate.New(config.SourceConfig{Labels: []string{"person"}, SeenIDs: 10}, nil)
	return New(g, adapters, testDetect(), src, store, media, notifier, nil)
}

func newEvent(id string) models.DetectionEvent {
	return models.DetectionEvent{
		ID:     id,
		Type:   models.EventNew,
		Camera: "front",
		Label:  "person",
		Area:   5000,
		Topic:  "frigate/events",
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		adapters := []detector.Adapter{
			&fakeAdapter{name: "compreface", faces: []models.NormalizedFace{matchedFace("jane", 85)}},
			&fakeAdapter{name: "deepstack", faces: []models.NormalizedFace{matchedFace("jane", 91)}},
		}
		store := &fakeStore{}
		src := newFakeSource()
		notifier := &fakeNotifier{}
		p := newTestPipeline(adapters, store, newFakeMedia(), src, notifier)

		if err := p.Process(ctx, newEvent("ev-1")); err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		if len(store.saved) != 2 {
			t.Fatalf("stored %d detector responses, want 2", len(store.saved))
		}
		if store.saved[0].Detector != "compreface" || store.saved[1].Detector != "deepstack" {
			t.Errorf("detector order = %s, %s", store.saved[0].Detector, store.saved[1].Detector)
		}

		if len(notifier.results) != 1 {
			t.Fatalf("published %d results, want 1", len(notifier.results))
		}
		res := notifier.results[0]
		if res.EventID != "ev-1" || len(res.Matches) != 1 || res.Matches[0].Name != "jane" {
			t.Errorf("result = %+v", res)
		}
		if *res.Matches[0].Confidence != 91 {
			t.Errorf("merged confidence = %v, want 91", *res.Matches[0].Confidence)
		}

		select {
		case names := <-src.subLabels:
			if len(names) != 1 || names[0] != "jane" {
				t.Errorf("sub-label names = %v", names)
			}
		case <-time.After(2 * time.Second):
			t.Error("sub-label push never happened")
		}
	})

	t.Run("failed detector contributes empty results", func(t *testing.T) {
		adapters := []detector.Adapter{
			&fakeAdapter{name: "compreface", recognizeErr: errors.New("connection refused")},
			&fakeAdapter{name: "deepstack", faces: []models.NormalizedFace{matchedFace("bob", 70)}},
		}
		store := &fakeStore{}
		p := newTestPipeline(adapters, store, newFakeMedia(), newFakeSource(), &fakeNotifier{})

		if err := p.Process(ctx, newEvent("ev-2")); err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		if store.saved[0].Results == nil || len(store.saved[0].Results) != 0 {
			t.Errorf("failed detector results = %v, want empty non-nil", store.saved[0].Results)
		}
		if len(store.saved[1].Results) != 1 {
			t.Errorf("healthy detector results = %v", store.saved[1].Results)
		}
	})

	t.Run("rejected event has no side effects", func(t *testing.T) {
		store := &fakeStore{}
		src := newFakeSource()
		p := newTestPipeline([]detector.Adapter{&fakeAdapter{name: "compreface"}}, store, newFakeMedia(), src, &fakeNotifier{})

		ev := newEvent("ev-3")
		ev.Type = models.EventEnd

		err := p.Process(ctx, ev)
		var rej *gate.RejectionError
		if !errors.As(err, &rej) {
			t.Fatalf("error = %v, want RejectionError", err)
		}
		if src.snapshots != 0 {
			t.Error("snapshot fetched for rejected event")
		}
		if store.saved != nil {
			t.Error("match stored for rejected event")
		}
	})

	t.Run("no detectors is a configuration error", func(t *testing.T) {
		p := newTestPipeline(nil, &fakeStore{}, newFakeMedia(), newFakeSource(), &fakeNotifier{})

		err := p.Process(ctx, newEvent("ev-4"))
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("error = %v, want ConfigurationError", err)
		}

		// The camera must not stay in flight after the failure.
		ev := newEvent("ev-5")
		ev.Type = models.EventUpdate
		err = p.Process(ctx, ev)
		if !errors.As(err, &cfgErr) {
			t.Fatalf("second event error = %v, want ConfigurationError", err)
		}
	})

	t.Run("save failure is a storage error", func(t *testing.T) {
		store := &fakeStore{saveErr: errors.New("connection lost")}
		p := newTestPipeline([]detector.Adapter{&fakeAdapter{name: "compreface"}}, store, newFakeMedia(), newFakeSource(), &fakeNotifier{})

		err := p.Process(ctx, newEvent("ev-6"))
		var serr *StorageError
		if !errors.As(err, &serr) {
			t.Fatalf("error = %v, want StorageError", err)
		}
	})

	t.Run("low confidence rewritten to unknown", func(t *testing.T) {
		low := matchedFace("jane", 20)
		low.Match = false
		low.Checks = []string{"confidence below match threshold"}

		adapters := []detector.Adapter{&fakeAdapter{name: "compreface", faces: []models.NormalizedFace{low}}}
		store := &fakeStore{}
		p := newTestPipeline(adapters, store, newFakeMedia(), newFakeSource(), &fakeNotifier{})

		if err := p.Process(ctx, newEvent("ev-7")); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if got := store.saved[0].Results[0].Name; got != "unknown" {
			t.Errorf("name = %q, want unknown", got)
		}
		if got := *store.saved[0].Results[0].Confidence; got != 20 {
			t.Errorf("confidence = %v, want 20", got)
		}
	})
}

func TestReprocess(t *testing.T) {
	ctx := context.Background()

	store := &fakeStore{}
	media := newFakeMedia()
	media.objects["abc.jpg"] = []byte("jpeg")

	adapters := []detector.Adapter{
		&fakeAdapter{name: "compreface", faces: []models.NormalizedFace{matchedFace("bob", 77)}},
	}
	p := newTestPipeline(adapters, store, media, newFakeSource(), &fakeNotifier{})

	match := models.Match{ID: 9, Filename: "abc.jpg", Event: models.MatchEvent{Camera: "front"}}
	updated, err := p.Reprocess(ctx, match)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if store.updateID != 9 {
		t.Errorf("updated id = %d, want 9", store.updateID)
	}
	if updated.Response[0].Results[0].Name != "bob" {
		t.Errorf("response = %+v", updated.Response)
	}
}

func TestReprocessNoDetectors(t *testing.T) {
	p := newTestPipeline(nil, &fakeStore{}, newFakeMedia(), newFakeSource(), &fakeNotifier{})

	_, err := p.Reprocess(context.Background(), models.Match{ID: 1, Filename: "x.jpg"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
}
