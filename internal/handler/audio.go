package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"damdam/internal/pkg/ctxutil"
	httputil "damdam/internal/pkg/http"
	"damdam/internal/pkg/id"
	"damdam/internal/pkg/storage"
)

// AudioHandler stores uploaded voice recordings and returns durable
// URLs. The URL is what clients send back as the audio reference of a
// voice message.
type AudioHandler struct {
	store storage.Storage
}

// NewAudioHandler creates the audio upload handler.
func NewAudioHandler(store storage.Storage) *AudioHandler {
	return &AudioHandler{store: store}
}

// Upload stores one audio file from multipart form data.
// @Summary      Upload a voice recording
// @Tags         resources
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "audio file"
// @Success      201   {object}  httputil.SuccessResponse
// @Failure      400   {object}  httputil.ErrorResponse
// @Router       /api/v1/resources/audio [post]
func (h *AudioHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(40001, "Invalid file", err.Error()))
		return
	}

	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(40101, "Unauthorized"))
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(40002, "Failed to open file", err.Error()))
		return
	}
	defer src.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("audio/%s/%s.%s", userID, id.New(), ext)

	url, err := h.store.Upload(c.Request.Context(), key, src, contentType)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("audio upload failed")
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(50001, "Upload failed", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, httputil.NewSuccessResponse("audio uploaded", gin.H{
		"audioUrl": url,
		"key":      key,
		"fileName": file.Filename,
		"fileSize": file.Size,
	}))
}
