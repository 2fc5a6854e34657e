package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/arbiter"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/queue"
	"github.com/your-org/playerid/pkg/dto"
)

type SessionHandler struct {
	producer *queue.Producer
}

func NewSessionHandler(producer *queue.Producer) *SessionHandler {
	return &SessionHandler{producer: producer}
}

// Start opens a resolution session on the worker. Anchors arrive in
// the tagging tool's export format (frame-keyed map) and are validated
// and flattened before the command goes out.
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var anchors []models.AnchorAssignment
	if len(req.Anchors) > 0 {
		raw, err := json.Marshal(req.Anchors)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		anchors, err = arbiter.LoadAnchors(bytes.NewReader(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctrl := models.SessionControl{
		Type:    models.SessionControlStart,
		VideoID: req.VideoID,
		Anchors: anchors,
	}
	if err := publishControl(h.producer, ctrl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send start command"})
		return
	}

	c.JSON(http.StatusAccepted, dto.SessionResponse{
		VideoID: req.VideoID,
		Status:  "starting",
		Anchors: len(anchors),
	})
}

// SubmitFrame queues one frame's observations for resolution.
func (h *SessionHandler) SubmitFrame(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	var req dto.SubmitFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := models.FrameTask{
		VideoID:      videoID,
		FrameNum:     req.FrameNum,
		Observations: req.Observations,
	}
	if err := h.producer.PublishObservations(c.Request.Context(), videoID.String(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue frame"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":       "queued",
		"video_id":     videoID,
		"frame_num":    req.FrameNum,
		"observations": len(req.Observations),
	})
}

// Finish closes a session; the worker flushes its gallery checkpoint.
func (h *SessionHandler) Finish(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	ctrl := models.SessionControl{
		Type:    models.SessionControlFinish,
		VideoID: videoID,
	}
	if err := publishControl(h.producer, ctrl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send finish command"})
		return
	}

	c.JSON(http.StatusAccepted, dto.SessionResponse{VideoID: videoID, Status: "finishing"})
}

func publishControl(producer *queue.Producer, ctrl models.SessionControl) error {
	data, err := json.Marshal(ctrl)
	if err != nil {
		return err
	}
	return producer.PublishSessionControl(data)
}
