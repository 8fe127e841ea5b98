package routes

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cppla/attachguard/config"
	"github.com/cppla/attachguard/controllers"
	"github.com/cppla/attachguard/middleware"
	"github.com/cppla/attachguard/models"
	"github.com/cppla/attachguard/pipeline"
	"github.com/cppla/attachguard/progress"
	"github.com/cppla/attachguard/utils"
)

// Services are the long-lived collaborators the HTTP layer depends on.
type Services struct {
	DB       *gorm.DB
	Runner   *pipeline.Runner
	Hub      *progress.Hub
	Registry *progress.Registry
	Syncer   controllers.SyncerFactory
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(svc Services) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = "./static"
	}
	indexFile := filepath.Join(staticDir, "index.html")
	r.Static("/static", staticDir)
	r.GET("/", func(c *gin.Context) {
		c.File(indexFile)
	})

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	siteController := controllers.NewSiteController(svc.DB)
	attachmentController := controllers.NewAttachmentController(svc.DB)
	statsController := controllers.NewStatsController(svc.DB)
	syncController := controllers.NewSyncController(svc.Syncer)
	processController := controllers.NewProcessController(models.NewAttachmentStore(svc.DB), svc.Runner, svc.Registry)
	progressController := controllers.NewProgressController(svc.Hub, svc.Registry, svc.Runner)

	r.GET("/ws/:ws_id", progressController.Progress)

	api := r.Group("/api")
	api.GET("/sites", siteController.ListSites)
	api.GET("/sites/:id", siteController.GetSite)
	api.GET("/attachments", attachmentController.ListAttachments)
	api.GET("/attachments/:id", attachmentController.GetAttachment)
	api.GET("/stats", statsController.GetStats)

	heavy := api.Group("")
	heavy.Use(middleware.RateLimitMiddleware())
	heavy.POST("/sync-sites", syncController.SyncSites)
	heavy.POST("/sync-attachments", syncController.SyncAttachments)
	heavy.POST("/sync", syncController.SyncAll)
	heavy.POST("/process-attachment/:id", processController.ProcessAttachment)
	heavy.POST("/process-attachment-ai/:id", processController.ProcessAttachmentAI)
	heavy.POST("/process-site/:site_owner", processController.ProcessSite)
	heavy.POST("/detect-site/:site_owner", processController.DetectSite)
	heavy.POST("/download-site/:site_owner", processController.DownloadSite)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// everything else falls back to the SPA entry
		ctx.Status(http.StatusOK)
		ctx.File(indexFile)
	})

	return r
}
