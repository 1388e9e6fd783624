package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/storage"
)

// MediaHandler proxies snapshot images out of the media store.
type MediaHandler struct {
	media *storage.MediaStore
}

func NewMediaHandler(media *storage.MediaStore) *MediaHandler {
	return &MediaHandler{media: media}
}

func (h *MediaHandler) Match(c *gin.Context) {
	data, err := h.media.GetMatch(c.Request.Context(), c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *MediaHandler) Train(c *gin.Context) {
	data, err := h.media.GetTrain(c.Request.Context(), c.Param("name"), c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sample not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
