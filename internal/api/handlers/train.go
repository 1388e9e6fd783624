package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/detector"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/store"
	"github.com/your-org/facegate/pkg/dto"
)

type TrainHandler struct {
	db       *store.PostgresStore
	media    *storage.MediaStore
	adapters []detector.Adapter
}

func NewTrainHandler(db *store.PostgresStore, media *storage.MediaStore, adapters []detector.Adapter) *TrainHandler {
	return &TrainHandler{db: db, media: media, adapters: adapters}
}

// Train registers an uploaded face sample with every configured detector and
// records the per-detector training output.
func (h *TrainHandler) Train(c *gin.Context) {
	name := strings.ToLower(strings.TrimSpace(c.Param("name")))
	if name == "" || name == detector.Unknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return
	}
	if len(h.adapters) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no detectors configured"})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	defer file.Close()

	img, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file: " + err.Error()})
		return
	}

	filename := uuid.NewString() + ".jpg"
	if err := h.media.PutTrain(c.Request.Context(), name, filename, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.TrainResponse{Name: name, Filename: filename}
	for _, a := range h.adapters {
		result := dto.TrainResult{Detector: a.Name()}

		meta, err := a.Train(c.Request.Context(), name, img)
		if err != nil {
			result.Error = err.Error()
			resp.Results = append(resp.Results, result)
			continue
		}

		if _, err := h.db.SaveTrain(c.Request.Context(), name, filename, a.Name(), meta); err != nil {
			result.Error = err.Error()
			resp.Results = append(resp.Results, result)
			continue
		}

		result.Success = true
		resp.Results = append(resp.Results, result)
	}

	c.JSON(http.StatusOK, resp)
}

// List returns training records, optionally for one name.
func (h *TrainHandler) List(c *gin.Context) {
	records, err := h.db.ListTrain(c.Request.Context(), strings.ToLower(c.Query("name")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// Names returns the distinct trained identity names.
func (h *TrainHandler) Names(c *gin.Context) {
	names, err := h.db.TrainedNames(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"names": names})
}

// Untrain removes a name from every detector, the training records and the
// stored samples.
func (h *TrainHandler) Untrain(c *gin.Context) {
	name := strings.ToLower(strings.TrimSpace(c.Param("name")))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return
	}

	// Collect vendor face ids before the records go away.
	faceIDs, err := h.db.FaceIDsByName(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	records, err := h.db.DeleteTrainByName(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	refs := detector.RemoveRefs{Name: name, FaceIDs: faceIDs}
	for _, a := range h.adapters {
		if err := a.Remove(c.Request.Context(), refs); err != nil {
			slog.Warn("untrain detector", "detector", a.Name(), "name", name, "error", err)
		}
	}

	if err := h.media.DeleteTrain(c.Request.Context(), name); err != nil {
		slog.Warn("delete train media", "name", name, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"deleted": len(records)})
}
