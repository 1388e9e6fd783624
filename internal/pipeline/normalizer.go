package pipeline

import (
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/detector"
	"github.com/your-org/facegate/internal/models"
)

// dedupeByName collapses one detector's candidate list so each name appears
// once. The first occurrence wins; vendor result order is preserved.
func dedupeByName(faces []models.NormalizedFace) []models.NormalizedFace {
	seen := make(map[string]struct{}, len(faces))
	out := make([]models.NormalizedFace, 0, len(faces))
	for _, f := range faces {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		out = append(out, f)
	}
	return out
}

// rewriteUnknowns renames low-confidence candidates to the unknown identity.
// Confidence and box are kept as reported so the record still shows what the
// vendor saw.
func rewriteUnknowns(faces []models.NormalizedFace, settings config.DetectSettings) []models.NormalizedFace {
	for i := range faces {
		if faces[i].Name == detector.Unknown {
			continue
		}
		if faces[i].Confidence != nil && *faces[i].Confidence < settings.Unknown.Confidence {
			faces[i].Name = detector.Unknown
		}
	}
	return faces
}

// splitResults merges candidates across detectors into the downstream result
// lists. Named candidates are keyed by name with the highest confidence
// winning; unknown candidates are never merged with each other.
func splitResults(responses []models.DetectorResponse) (matches, unknowns []models.NormalizedFace) {
	best := make(map[string]models.NormalizedFace)
	var order []string

	for _, resp := range responses {
		for _, f := range resp.Results {
			if f.Name == detector.Unknown {
				unknowns = append(unknowns, f)
				continue
			}
			if !f.Match {
				continue
			}
			prev, ok := best[f.Name]
			if !ok {
				best[f.Name] = f
				order = append(order, f.Name)
				continue
			}
			if confidence(f) > confidence(prev) {
				best[f.Name] = f
			}
		}
	}

	matches = make([]models.NormalizedFace, 0, len(order))
	for _, name := range order {
		matches = append(matches, best[name])
	}
	return matches, unknowns
}

func confidence(f models.NormalizedFace) float64 {
	if f.Confidence == nil {
		return -1
	}
	return *f.Confidence
}
