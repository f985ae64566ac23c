package router

import (
	"log/slog"

	"FileShare/internal/handler"
	"FileShare/internal/metrics"
	"FileShare/utils"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Shares      *handler.ShareHandler
	Logger      *slog.Logger
	CORSOrigins []string
}

// InitRouter builds API routes.
func InitRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		utils.RequestID(),
		utils.RequestLogger(deps.Logger),
		metrics.Middleware(),
		utils.CORSMiddleware(deps.CORSOrigins),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/upload", deps.Shares.Upload)
		api.GET("/info/:accessKey", deps.Shares.Info)
		api.GET("/download/:accessKey", deps.Shares.Download)
		api.DELETE("/files/:accessKey", deps.Shares.Delete)
	}
	return r
}
