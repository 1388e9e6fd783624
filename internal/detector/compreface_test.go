package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/your-org/facegate/internal/config"
)

func testResolver() PolicyResolver {
	return func(string) config.DetectSettings { return testSettings() }
}

func TestCompreFaceNormalize(t *testing.T) {
	cf := NewCompreFace(config.CompreFaceConfig{}, testResolver())

	t.Run("recognized subject", func(t *testing.T) {
		body := `{"result":[{
			"subjects":[{"subject":"Jane","similarity":0.9234}],
			"box":{"x_min":100,"y_min":50,"x_max":300,"y_max":250},
			"age":{"low":25,"high":32,"probability":0.89},
			"gender":{"value":"female","probability":0.97}
		}]}`

		faces, err := cf.Normalize("front", RawResponse{Detector: "compreface", Status: 200, Body: []byte(body)})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(faces) != 1 {
			t.Fatalf("got %d faces, want 1", len(faces))
		}

		f := faces[0]
		if f.Name != "jane" {
			t.Errorf("Name = %q, want jane", f.Name)
		}
		if f.Confidence == nil || *f.Confidence != 92.34 {
			t.Errorf("Confidence = %v, want 92.34", f.Confidence)
		}
		if f.Box.Left != 100 || f.Box.Top != 50 || f.Box.Width != 200 || f.Box.Height != 200 {
			t.Errorf("Box = %+v", f.Box)
		}
		if !f.Match || f.Checks != nil {
			t.Errorf("Match = %v, Checks = %v, want matched with no checks", f.Match, f.Checks)
		}
		if f.Age == nil || f.Age.Low != 25 || f.Age.Probability != 89 {
			t.Errorf("Age = %+v", f.Age)
		}
		if f.Gender == nil || f.Gender.Value != "female" || f.Gender.Probability != 97 {
			t.Errorf("Gender = %+v", f.Gender)
		}
	})

	t.Run("no subjects becomes unknown", func(t *testing.T) {
		body := `{"result":[{"subjects":[],"box":{"x_min":0,"y_min":0,"x_max":200,"y_max":200}}]}`

		faces, err := cf.Normalize("front", RawResponse{Body: []byte(body)})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		f := faces[0]
		if f.Name != Unknown {
			t.Errorf("Name = %q, want %q", f.Name, Unknown)
		}
		if f.Confidence == nil || *f.Confidence != 0 {
			t.Errorf("Confidence = %v, want 0", f.Confidence)
		}
		if f.Match {
			t.Error("unknown candidate must not match")
		}
		if len(f.Checks) != 1 || f.Checks[0] != "no identity match found" {
			t.Errorf("Checks = %v", f.Checks)
		}
	})

	t.Run("no faces code is a valid empty result", func(t *testing.T) {
		body := `{"code":28,"message":"No face is found in the given image"}`

		faces, err := cf.Normalize("front", RawResponse{Body: []byte(body)})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(faces) != 0 {
			t.Errorf("got %d faces, want 0", len(faces))
		}
	})

	t.Run("missing result is a protocol error", func(t *testing.T) {
		body := `{"code":401,"message":"bad api key"}`

		_, err := cf.Normalize("front", RawResponse{Body: []byte(body)})
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want ProtocolError", err)
		}
		if perr.Reason != "bad api key" {
			t.Errorf("Reason = %q", perr.Reason)
		}
	})

	t.Run("unparseable body is a protocol error", func(t *testing.T) {
		_, err := cf.Normalize("front", RawResponse{Body: []byte("not json")})
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want ProtocolError", err)
		}
	})
}

func TestCompreFaceRecognize(t *testing.T) {
	var gotKey string
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotQuery = r.URL.RawQuery
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": []any{}})
	}))
	defer srv.Close()

	cf := NewCompreFace(config.CompreFaceConfig{
		URL:              srv.URL,
		Key:              "secret",
		DetProbThreshold: 0.8,
		FacePlugins:      "age,gender",
	}, testResolver())

	raw, err := cf.Recognize(context.Background(), []byte("jpegbytes"))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if raw.Status != http.StatusOK {
		t.Errorf("Status = %d", raw.Status)
	}
	if gotKey != "secret" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotQuery != "face_plugins=age,gender&det_prob_threshold=0.8" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestCompreFaceRecognizeUnavailable(t *testing.T) {
	cf := NewCompreFace(config.CompreFaceConfig{URL: "http://127.0.0.1:1"}, testResolver())

	_, err := cf.Recognize(context.Background(), []byte("x"))
	var uerr *UnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
	if uerr.Detector != "compreface" {
		t.Errorf("Detector = %q", uerr.Detector)
	}
}
