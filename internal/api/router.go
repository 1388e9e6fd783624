package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/detector"
	"github.com/your-org/facegate/internal/notify"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/store"
)

type RouterConfig struct {
	APIKey          string
	DB              *store.PostgresStore
	Media           *storage.MediaStore
	Publisher       *notify.Publisher
	Hub             *ws.Hub
	Adapters        []detector.Adapter
	Reprocessor     handlers.Reprocessor
	PaginationLimit int
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Media, cfg.Publisher)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API (with auth)
	apiGroup := r.Group("/api")
	apiGroup.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket live feed
	apiGroup.GET("/ws", cfg.Hub.HandleWS)

	// Matches
	matchH := handlers.NewMatchHandler(cfg.DB, cfg.Media, cfg.Reprocessor, cfg.PaginationLimit)
	apiGroup.GET("/match", matchH.List)
	apiGroup.GET("/match/filters", matchH.Filters)
	apiGroup.GET("/match/:id", matchH.Get)
	apiGroup.DELETE("/match", matchH.Delete)
	apiGroup.POST("/match/:id/reprocess", matchH.Reprocess)

	// Training
	trainH := handlers.NewTrainHandler(cfg.DB, cfg.Media, cfg.Adapters)
	apiGroup.GET("/train", trainH.List)
	apiGroup.GET("/train/names", trainH.Names)
	apiGroup.POST("/train/:name", trainH.Train)
	apiGroup.DELETE("/train/:name", trainH.Untrain)

	// Media
	mediaH := handlers.NewMediaHandler(cfg.Media)
	apiGroup.GET("/storage/matches/:filename", mediaH.Match)
	apiGroup.GET("/storage/train/:name/:filename", mediaH.Train)

	return r
}
