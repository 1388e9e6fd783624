package detector

import (
	"reflect"
	"testing"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

func testSettings() config.DetectSettings {
	return config.DetectSettings{
		Match:   config.MatchPolicy{Confidence: 60, MinArea: 10000},
		Unknown: config.UnknownPolicy{Confidence: 40},
	}
}

func TestApplyMatchPolicy(t *testing.T) {
	tests := []struct {
		name        string
		face        models.NormalizedFace
		hasIdentity bool
		wantMatch   bool
		wantChecks  []string
	}{
		{
			name: "all checks pass",
			face: models.NormalizedFace{
				Name:       "jane",
				Confidence: ptr(85),
				Box:        models.Box{Width: 200, Height: 200},
			},
			hasIdentity: true,
			wantMatch:   true,
			wantChecks:  nil,
		},
		{
			name: "no identity",
			face: models.NormalizedFace{
				Name:       Unknown,
				Confidence: ptr(85),
				Box:        models.Box{Width: 200, Height: 200},
			},
			hasIdentity: false,
			wantMatch:   false,
			wantChecks:  []string{"no identity match found"},
		},
		{
			name: "confidence below threshold",
			face: models.NormalizedFace{
				Name:       "jane",
				Confidence: ptr(59.99),
				Box:        models.Box{Width: 200, Height: 200},
			},
			hasIdentity: true,
			wantMatch:   false,
			wantChecks:  []string{"confidence below match threshold"},
		},
		{
			name: "box too small",
			face: models.NormalizedFace{
				Name:       "jane",
				Confidence: ptr(85),
				Box:        models.Box{Width: 99, Height: 99},
			},
			hasIdentity: true,
			wantMatch:   false,
			wantChecks:  []string{"box area below match minimum"},
		},
		{
			name: "only first failing check recorded",
			face: models.NormalizedFace{
				Name:       "jane",
				Confidence: ptr(10),
				Box:        models.Box{Width: 1, Height: 1},
			},
			hasIdentity: true,
			wantMatch:   false,
			wantChecks:  []string{"confidence below match threshold"},
		},
		{
			name: "nil confidence treated as zero",
			face: models.NormalizedFace{
				Name:       "jane",
				Confidence: nil,
				Box:        models.Box{Width: 200, Height: 200},
			},
			hasIdentity: true,
			wantMatch:   false,
			wantChecks:  []string{"confidence below match threshold"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.face
			applyMatchPolicy(&f, tt.hasIdentity, testSettings())

			if f.Match != tt.wantMatch {
				t.Errorf("Match = %v, want %v", f.Match, tt.wantMatch)
			}
			if !reflect.DeepEqual(f.Checks, tt.wantChecks) {
				t.Errorf("Checks = %v, want %v", f.Checks, tt.wantChecks)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{91.234, 91.23},
		{91.236, 91.24},
		{100, 100},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
