package store

import (
	"fmt"
	"strings"
)

// MatchFilter is the parsed query-string filter for match listings. Slice
// fields are conjunctive dimensions matched against one candidate: a match
// row qualifies when at least one (detector, candidate) pair inside its
// response satisfies every set predicate. Nil or empty slices leave their
// dimension unfiltered.
type MatchFilter struct {
	Names      []string `json:"names"`
	Matches    []string `json:"matches"`
	Detectors  []string `json:"detectors"`
	Cameras    []string `json:"cameras"`
	Types      []string `json:"types"`
	Confidence *float64 `json:"confidence"`
	Width      *int     `json:"width"`
	Height     *int     `json:"height"`
}

// buildMatchWhere compiles a filter into a parameterized WHERE clause over
// the match table (aliased m). Candidate predicates are anchored on one
// (response element r, result element c) pair via EXISTS so all of them must
// hold for the same candidate.
func buildMatchWhere(f MatchFilter, sinceID int64) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Cameras) > 0 {
		where = append(where, fmt.Sprintf("m.event->>'camera' = ANY(%s)", arg(f.Cameras)))
	}
	if len(f.Types) > 0 {
		where = append(where, fmt.Sprintf("m.event->>'type' = ANY(%s)", arg(f.Types)))
	}
	if sinceID > 0 {
		where = append(where, fmt.Sprintf("m.id > %s", arg(sinceID)))
	}

	var cand []string
	if len(f.Detectors) > 0 {
		cand = append(cand, fmt.Sprintf("r->>'detector' = ANY(%s)", arg(f.Detectors)))
	}
	if len(f.Names) > 0 {
		cand = append(cand, fmt.Sprintf("lower(c->>'name') = ANY(%s)", arg(lowerAll(f.Names))))
	}
	if len(f.Matches) > 0 {
		includeMatch := containsFold(f.Matches, "match")
		includeMiss := containsFold(f.Matches, "miss")
		switch {
		case includeMatch && includeMiss:
			// Both outcomes requested, no constraint.
		case includeMatch:
			cand = append(cand, "c->'match' = 'true'::jsonb")
		case includeMiss:
			cand = append(cand, "c->'match' = 'false'::jsonb")
		default:
			cand = append(cand, "FALSE")
		}
	}
	if f.Confidence != nil {
		// A zero threshold also admits candidates that carry no confidence
		// at all (JSON null).
		if *f.Confidence == 0 {
			cand = append(cand, fmt.Sprintf(
				"((c->>'confidence')::float >= %s OR c->'confidence' = 'null'::jsonb)",
				arg(*f.Confidence)))
		} else {
			cand = append(cand, fmt.Sprintf(
				"(c->'confidence' <> 'null'::jsonb AND (c->>'confidence')::float >= %s)",
				arg(*f.Confidence)))
		}
	}
	if f.Width != nil {
		cand = append(cand, fmt.Sprintf("(c->'box'->>'width')::int >= %s", arg(*f.Width)))
	}
	if f.Height != nil {
		cand = append(cand, fmt.Sprintf("(c->'box'->>'height')::int >= %s", arg(*f.Height)))
	}

	if len(cand) > 0 {
		where = append(where, fmt.Sprintf(
			`EXISTS (
				SELECT 1
				FROM jsonb_array_elements(m.response) AS r,
				     jsonb_array_elements(r->'results') AS c
				WHERE %s
			)`, strings.Join(cand, " AND ")))
	}

	if len(where) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(where, " AND "), args
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
