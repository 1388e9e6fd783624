package detector

import (
	"math"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// Unknown is the sentinel identity for low-confidence or unmatched candidates.
const Unknown = "unknown"

// applyMatchPolicy evaluates the match checks for one candidate, in order:
// an identity match exists, confidence meets the match threshold, and the
// bounding box meets the minimum area. The first failing check is recorded
// on the candidate; Match is true only when none fail. Checks stays nil when
// all pass so "checked and passed" is distinguishable from "not evaluated".
func applyMatchPolicy(f *models.NormalizedFace, hasIdentity bool, s config.DetectSettings) {
	confidence := 0.0
	if f.Confidence != nil {
		confidence = *f.Confidence
	}

	switch {
	case !hasIdentity || f.Name == Unknown:
		f.Checks = []string{"no identity match found"}
	case confidence < s.Match.Confidence:
		f.Checks = []string{"confidence below match threshold"}
	case f.Box.Area() < s.Match.MinArea:
		f.Checks = []string{"box area below match minimum"}
	}
	f.Match = f.Checks == nil
}

// round2 rounds to two decimal places, matching the vendors' reported
// precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 { return &v }
