package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/Abhinavsb985/Smart-Traffic-Control/database"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// GetImage serves a stored report image by bucket and key.
func (h *Handlers) GetImage(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if c.Param("bucket") != h.images.Bucket() || key == "" {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "image not found"})
		return
	}

	obj, err := h.images.Get(c.Request.Context(), key)
	if errors.Is(err, database.ErrObjectNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "image not found"})
		return
	}
	if err != nil {
		log.WithError(err).WithField("key", key).Error("Failed to load image")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load image"})
		return
	}

	// Keys are timestamped and never overwritten.
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}
