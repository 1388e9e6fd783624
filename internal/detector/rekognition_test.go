package detector

import (
	"testing"
)

func testLookup(names map[string]string) FaceNameLookup {
	return func(faceID string) (string, bool) {
		n, ok := names[faceID]
		return n, ok
	}
}

func TestRekognitionNormalize(t *testing.T) {
	newAdapter := func(names map[string]string) *Rekognition {
		return &Rekognition{
			detect: testResolver(),
			lookup: testLookup(names),
		}
	}

	t.Run("face match resolved to trained name", func(t *testing.T) {
		r := newAdapter(map[string]string{"face-1": "jane"})

		body := `{
			"FaceMatches":[{"Similarity":99.54321,"Face":{"FaceId":"face-1"}}],
			"SearchedFaceBoundingBox":{"Top":0.1,"Left":0.2,"Width":0.5,"Height":0.5},
			"source":{"width":1000,"height":800}
		}`

		faces, err := r.Normalize("front", RawResponse{Body: []byte(body)})
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
		if f.Confidence == nil || *f.Confidence != 99.54 {
			t.Errorf("Confidence = %v, want 99.54", f.Confidence)
		}
		// Relative box scaled by the dimensions recorded at recognize time.
		if f.Box.Top != 80 || f.Box.Left != 200 || f.Box.Width != 500 || f.Box.Height != 400 {
			t.Errorf("Box = %+v", f.Box)
		}
		if !f.Match {
			t.Errorf("Match = false, checks = %v", f.Checks)
		}
	})

	t.Run("unresolvable face id becomes unknown", func(t *testing.T) {
		r := newAdapter(nil)

		body := `{
			"FaceMatches":[{"Similarity":95,"Face":{"FaceId":"face-9"}}],
			"SearchedFaceBoundingBox":{"Top":0,"Left":0,"Width":0.5,"Height":0.5},
			"source":{"width":1000,"height":800}
		}`

		faces, err := r.Normalize("front", RawResponse{Body: []byte(body)})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		f := faces[0]
		if f.Name != Unknown {
			t.Errorf("Name = %q, want %q", f.Name, Unknown)
		}
		if f.Match {
			t.Error("unknown candidate must not match")
		}
	})

	t.Run("searched face without collection match", func(t *testing.T) {
		r := newAdapter(nil)

		body := `{
			"FaceMatches":[],
			"SearchedFaceBoundingBox":{"Top":0.25,"Left":0.25,"Width":0.25,"Height":0.25},
			"source":{"width":400,"height":400}
		}`

		faces, err := r.Normalize("front", RawResponse{Body: []byte(body)})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(faces) != 1 {
			t.Fatalf("got %d faces, want 1", len(faces))
		}

		f := faces[0]
		if f.Name != Unknown {
			t.Errorf("Name = %q, want %q", f.Name, Unknown)
		}
		if f.Confidence != nil {
			t.Errorf("Confidence = %v, want nil", *f.Confidence)
		}
		if f.Box.Top != 100 || f.Box.Left != 100 || f.Box.Width != 100 || f.Box.Height != 100 {
			t.Errorf("Box = %+v", f.Box)
		}
	})

	t.Run("no faces at all", func(t *testing.T) {
		r := newAdapter(nil)

		faces, err := r.Normalize("front", RawResponse{Body: []byte(`{"FaceMatches":[]}`)})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if len(faces) != 0 {
			t.Errorf("got %d faces, want 0", len(faces))
		}
	})
}
