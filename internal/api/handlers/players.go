package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/queue"
	"github.com/your-org/playerid/internal/storage"
	"github.com/your-org/playerid/pkg/dto"
)

type PlayerHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewPlayerHandler(db *storage.PostgresStore, producer *queue.Producer) *PlayerHandler {
	return &PlayerHandler{db: db, producer: producer}
}

// Create registers a player profile in the archive. The worker's
// in-memory gallery picks the player up lazily through anchor
// ingestion; this endpoint exists so rosters can be preloaded.
func (h *PlayerHandler) Create(c *gin.Context) {
	var req dto.CreatePlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := &gallery.PlayerProfile{
		ID:           uuid.New(),
		Name:         req.Name,
		JerseyNumber: req.JerseyNumber,
		Team:         req.Team,
		ShoeColor:    req.ShoeColor,
		UpdatedAt:    time.Now(),
	}

	if err := h.db.UpsertPlayer(c.Request.Context(), profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.PlayerResponse{
		ID:           profile.ID,
		Name:         profile.Name,
		JerseyNumber: profile.JerseyNumber,
		Team:         profile.Team,
		ShoeColor:    profile.ShoeColor,
		UpdatedAt:    profile.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *PlayerHandler) List(c *gin.Context) {
	players, err := h.db.ListPlayers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PlayerResponse, 0, len(players))
	for _, p := range players {
		resp = append(resp, playerToResponse(p))
	}

	c.JSON(http.StatusOK, dto.PlayerListResponse{Players: resp, Total: len(resp)})
}

func (h *PlayerHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}

	player, err := h.db.GetPlayer(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if player == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}

	c.JSON(http.StatusOK, playerToResponse(*player))
}

// Breadcrumb forwards a user-confirmed track correction to the worker
// owning the session's gallery.
func (h *PlayerHandler) Breadcrumb(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}

	var req dto.BreadcrumbRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	player, err := h.db.GetPlayer(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if player == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
		return
	}

	ctrl := models.SessionControl{
		Type:     models.SessionControlBreadcrumb,
		VideoID:  req.VideoID,
		TrackID:  req.TrackID,
		PlayerID: &id,
	}
	if err := publishControl(h.producer, ctrl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send breadcrumb"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "recorded", "player_id": id})
}

// Search finds the closest archived profiles for a body embedding,
// across every video.
func (h *PlayerHandler) Search(c *gin.Context) {
	var req dto.SearchPlayersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = 0.4
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	matches, err := h.db.SearchPlayers(c.Request.Context(), req.Embedding, threshold, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			PlayerID: m.PlayerID,
			Name:     m.Name,
			Score:    m.Score,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

func playerToResponse(p storage.PlayerRecord) dto.PlayerResponse {
	return dto.PlayerResponse{
		ID:             p.ID,
		Name:           p.Name,
		JerseyNumber:   p.JerseyNumber,
		Team:           p.Team,
		ShoeColor:      p.ShoeColor,
		ReferenceCount: p.ReferenceCount,
		Diversity:      p.Diversity,
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
}
