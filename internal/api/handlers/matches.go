package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/pipeline"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/store"
	"github.com/your-org/facegate/pkg/dto"
)

// Reprocessor re-runs recognition over a stored match.
type Reprocessor interface {
	Reprocess(ctx context.Context, match models.Match) (models.Match, error)
}

type MatchHandler struct {
	db    *store.PostgresStore
	media *storage.MediaStore
	pipe  Reprocessor
	limit int
}

func NewMatchHandler(db *store.PostgresStore, media *storage.MediaStore, pipe Reprocessor, limit int) *MatchHandler {
	return &MatchHandler{db: db, media: media, pipe: pipe, limit: limit}
}

// List returns one page of matches. Filters arrive as a JSON object in the
// filters query parameter; page is 1-indexed; sinceId restricts to rows newer
// than the given id.
func (h *MatchHandler) List(c *gin.Context) {
	var filter store.MatchFilter
	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filters: " + err.Error()})
			return
		}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	sinceID, _ := strconv.ParseInt(c.DefaultQuery("sinceId", "0"), 10, 64)

	matches, total, err := h.db.ListMatches(c.Request.Context(), filter, page, sinceID, h.limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if matches == nil {
		matches = []models.Match{}
	}

	c.JSON(http.StatusOK, dto.MatchListResponse{
		Total:   total,
		Limit:   h.limit,
		Matches: matches,
	})
}

// Filters returns the distinct values present in stored matches.
func (h *MatchHandler) Filters(c *gin.Context) {
	opts, err := h.db.FilterOptions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *MatchHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	m, err := h.db.GetMatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// Delete removes match rows and their snapshots.
func (h *MatchHandler) Delete(c *gin.Context) {
	var req dto.DeleteMatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filenames, err := h.db.DeleteMatches(c.Request.Context(), req.IDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(filenames) > 0 {
		if err := h.media.DeleteMatches(c.Request.Context(), filenames); err != nil {
			slog.Warn("delete match media", "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"deleted": len(filenames)})
}

// Reprocess re-runs recognition over a stored match's snapshot and replaces
// its response in place.
func (h *MatchHandler) Reprocess(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	m, err := h.db.GetMatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	updated, err := h.pipe.Reprocess(c.Request.Context(), *m)
	if err != nil {
		var cfgErr *pipeline.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": cfgErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}
