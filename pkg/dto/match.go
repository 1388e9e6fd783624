package dto

import (
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/store"
)

// MatchListResponse is one page of matches. Limit is the fixed server-side
// page size so clients can compute page counts.
type MatchListResponse struct {
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Matches []models.Match `json:"matches"`
}

// FilterOptionsResponse carries the distinct filter values for the match UI.
type FilterOptionsResponse = store.FilterOptions

// DeleteMatchesRequest names the match rows to remove.
type DeleteMatchesRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// TrainResult is one detector's outcome for a training upload.
type TrainResult struct {
	Detector string `json:"detector"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// TrainResponse summarizes a training upload across detectors.
type TrainResponse struct {
	Name     string        `json:"name"`
	Filename string        `json:"filename"`
	Results  []TrainResult `json:"results"`
}

// WSMatch is the live-feed frame pushed to WebSocket subscribers when a match
// record is persisted.
type WSMatch struct {
	Type  string       `json:"type"`
	Match models.Match `json:"match"`
}
