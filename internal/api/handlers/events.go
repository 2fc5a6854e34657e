package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/storage"
	"github.com/your-org/playerid/pkg/dto"
)

type EventHandler struct {
	db    *storage.PostgresStore
	snaps *storage.SnapshotStore
}

func NewEventHandler(db *storage.PostgresStore, snaps *storage.SnapshotStore) *EventHandler {
	return &EventHandler{db: db, snaps: snaps}
}

// List pages a video's archived identity decisions, optionally filtered
// by player, frame range or review flag (flagged=true returns only
// decisions awaiting human review).
func (h *EventHandler) List(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	var playerID *uuid.UUID
	if pidStr := c.Query("player_id"); pidStr != "" {
		if id, err := uuid.Parse(pidStr); err == nil {
			playerID = &id
		}
	}

	var fromFrame, toFrame *int
	if fromStr := c.Query("from_frame"); fromStr != "" {
		if n, err := strconv.Atoi(fromStr); err == nil {
			fromFrame = &n
		}
	}
	if toStr := c.Query("to_frame"); toStr != "" {
		if n, err := strconv.Atoi(toStr); err == nil {
			toFrame = &n
		}
	}

	var flagged *bool
	if flaggedStr := c.Query("flagged"); flaggedStr != "" {
		b := flaggedStr == "true" || flaggedStr == "1"
		flagged = &b
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.db.QueryIdentityEvents(c.Request.Context(), videoID, playerID, fromFrame, toFrame, flagged, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, EventToResponse(ev))
	}

	c.JSON(http.StatusOK, dto.IdentityEventListResponse{Events: resp, Total: total})
}

// Snapshot proxies the detection crop behind an archived decision.
func (h *EventHandler) Snapshot(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ev, err := h.db.GetIdentityEvent(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if ev.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "event has no snapshot"})
		return
	}

	data, err := h.snaps.GetSnapshot(c.Request.Context(), ev.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

// PurgeSnapshots deletes every stored crop for a video, typically
// after review is done.
func (h *EventHandler) PurgeSnapshots(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	if err := h.snaps.DeleteVideoSnapshots(c.Request.Context(), videoID.String()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "purged", "video_id": videoID})
}

// EventToResponse converts an archived decision to its API shape.
func EventToResponse(ev models.IdentityEvent) dto.IdentityEventResponse {
	r := dto.IdentityEventResponse{
		ID:         ev.ID,
		VideoID:    ev.VideoID,
		FrameNum:   ev.FrameNum,
		TrackID:    ev.TrackID,
		PlayerID:   ev.PlayerID,
		PlayerName: ev.PlayerName,
		Confidence: ev.Confidence,
		Source:     string(ev.Source),
		Flagged:    ev.Flagged,
		CreatedAt:  ev.CreatedAt.Format(time.RFC3339),
	}
	if ev.SnapshotKey != "" {
		r.SnapshotURL = "/v1/events/" + ev.ID.String() + "/snapshot"
	}
	return r
}
