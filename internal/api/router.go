package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/playerid/internal/api/handlers"
	"github.com/your-org/playerid/internal/api/ws"
	"github.com/your-org/playerid/internal/auth"
	"github.com/your-org/playerid/internal/queue"
	"github.com/your-org/playerid/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	Snaps    *storage.SnapshotStore
	Producer *queue.Producer
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Snaps, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAPIKey(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Players
	playerH := handlers.NewPlayerHandler(cfg.DB, cfg.Producer)
	v1.POST("/players", playerH.Create)
	v1.GET("/players", playerH.List)
	v1.GET("/players/:id", playerH.Get)
	v1.POST("/players/:id/breadcrumbs", playerH.Breadcrumb)
	v1.POST("/search", playerH.Search)

	// Sessions
	sessionH := handlers.NewSessionHandler(cfg.Producer)
	v1.POST("/sessions", sessionH.Start)
	v1.POST("/sessions/:id/frames", sessionH.SubmitFrame)
	v1.POST("/sessions/:id/finish", sessionH.Finish)

	// Identity events
	eventH := handlers.NewEventHandler(cfg.DB, cfg.Snaps)
	v1.GET("/videos/:id/events", eventH.List)
	v1.GET("/events/:id/snapshot", eventH.Snapshot)
	v1.DELETE("/videos/:id/snapshots", eventH.PurgeSnapshots)

	return r
}
