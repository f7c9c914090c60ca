package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"damdam/internal/ai"
	"damdam/internal/pkg/ctxutil"
	httputil "damdam/internal/pkg/http"
	"damdam/internal/repository"
	"damdam/internal/service"
)

// ChatRequest is one inbound chat message over REST. Voice messages
// carry the uploaded audio URL; their emotion resolves later through
// the voice endpoint.
type ChatRequest struct {
	Message  string `json:"message" binding:"required"`
	IsVoice  bool   `json:"isVoice"`
	AudioURL string `json:"audioUrl"`
	// Client clock, informational only. Record timestamps are assigned
	// server-side so per-room ordering never depends on client clocks.
	ClientTimestamp string `json:"clientTimestamp,omitempty"`
}

// VoiceRequest correlates an uploaded audio file with the voice
// placeholder already recorded in the room log.
type VoiceRequest struct {
	MessageOrder int    `json:"messageOrder" binding:"required"`
	AudioURL     string `json:"audioUrl" binding:"required"`
}

// CounselHandler exposes the counseling session pipeline over REST.
type CounselHandler struct {
	svc *service.CounselService
}

// NewCounselHandler creates the counseling handler.
func NewCounselHandler(svc *service.CounselService) *CounselHandler {
	return &CounselHandler{svc: svc}
}

// Chat handles one inbound message for a room.
// @Summary      Send a chat message
// @Description  Appends the message to the room, runs emotion analysis and returns the counselor reply event
// @Tags         counsels
// @Accept       json
// @Produce      json
// @Param        room_id  path      string       true  "room id"
// @Param        request  body      ChatRequest  true  "message"
// @Success      200      {object}  httputil.SuccessResponse
// @Failure      400      {object}  httputil.ErrorResponse
// @Router       /api/v1/counsels/{room_id}/chat [post]
func (h *CounselHandler) Chat(c *gin.Context) {
	roomID := c.Param("room_id")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(40101, "Unauthorized"))
		return
	}

	ctx := c.Request.Context()

	if req.IsVoice {
		audioRef := req.AudioURL
		if audioRef == "" {
			audioRef = req.Message
		}
		order, err := h.svc.HandleVoicePlaceholder(ctx, roomID, userID, audioRef)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, httputil.NewSuccessResponse("voice message recorded", gin.H{
			"messageOrder": order,
		}))
		return
	}

	event, err := h.svc.HandleTextMessage(ctx, roomID, userID, req.Message)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("message processed", event))
}

// Voice resolves a voice placeholder with its analyzed emotion and the
// counselor reply.
// @Summary      Resolve a voice message
// @Tags         counsels
// @Accept       json
// @Produce      json
// @Param        room_id  path      string        true  "room id"
// @Param        request  body      VoiceRequest  true  "correlation"
// @Success      200      {object}  httputil.SuccessResponse
// @Failure      404      {object}  httputil.ErrorResponse
// @Router       /api/v1/counsels/{room_id}/voice [post]
func (h *CounselHandler) Voice(c *gin.Context) {
	roomID := c.Param("room_id")

	var req VoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	userID, ok := ctxutil.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httputil.NewErrorResponse(40101, "Unauthorized"))
		return
	}

	event, err := h.svc.HandleVoiceMessage(c.Request.Context(), roomID, userID, req.MessageOrder, req.AudioURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("voice message processed", event))
}

// Close freezes the room, archives its transcript and returns the
// archive reference. Closing an already closed room returns the same
// reference again.
// @Summary      Close a counseling session
// @Tags         counsels
// @Produce      json
// @Param        room_id  path      string  true  "room id"
// @Success      200      {object}  httputil.SuccessResponse
// @Failure      404      {object}  httputil.ErrorResponse
// @Router       /api/v1/counsels/{room_id}/close [post]
func (h *CounselHandler) Close(c *gin.Context) {
	roomID := c.Param("room_id")

	ref, err := h.svc.CloseSession(c.Request.Context(), roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("session closed", gin.H{
		"reportRef": ref,
	}))
}

// Delete discards the room's live state without archiving.
// @Summary      Delete a counseling session
// @Tags         counsels
// @Produce      json
// @Param        room_id  path      string  true  "room id"
// @Success      200      {object}  httputil.SuccessResponse
// @Failure      404      {object}  httputil.ErrorResponse
// @Router       /api/v1/counsels/{room_id} [delete]
func (h *CounselHandler) Delete(c *gin.Context) {
	roomID := c.Param("room_id")

	if err := h.svc.DeleteSession(c.Request.Context(), roomID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("session deleted", nil))
}

// Report returns the archived transcript and summary of a closed room.
// @Summary      Read a session report
// @Tags         counsels
// @Produce      json
// @Param        room_id  path      string  true  "room id"
// @Success      200      {object}  httputil.SuccessResponse
// @Failure      404      {object}  httputil.ErrorResponse
// @Router       /api/v1/counsels/{room_id}/report [get]
func (h *CounselHandler) Report(c *gin.Context) {
	roomID := c.Param("room_id")

	transcript, err := h.svc.GetTranscript(c.Request.Context(), roomID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httputil.NewSuccessResponse("report", transcript))
}

// respondError maps pipeline sentinels to HTTP statuses.
func (h *CounselHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse(40401, "Session not found"))
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse(40402, "Message not found"))
	case errors.Is(err, service.ErrMessageResolved):
		c.JSON(http.StatusConflict, httputil.NewErrorResponse(40901, "Voice message already resolved"))
	case errors.Is(err, repository.ErrArchiveNotFound):
		c.JSON(http.StatusNotFound, httputil.NewErrorResponse(40403, "Report not found"))
	case errors.Is(err, ai.ErrAnalysisUnavailable):
		c.JSON(http.StatusBadGateway, httputil.NewErrorResponse(50201, "Analysis service unavailable", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(50001, "Internal server error", err.Error()))
	}
}
