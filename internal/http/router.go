package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/config"
	"github.com/applifix/backend/internal/http/handlers"
	"github.com/applifix/backend/internal/http/middleware"
	"github.com/applifix/backend/internal/service"

	_ "github.com/applifix/backend/docs"
)

// Deps are the services the HTTP layer dispatches to.
type Deps struct {
	Store     handlers.TaskStore
	Chat      *service.ChatService
	Resolver  *classify.Resolver
	Processor handlers.Processor
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := cfg.CORSOrigins()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:       deps.Store,
		ChatService: deps.Chat,
		Resolver:    deps.Resolver,
		Processor:   deps.Processor,
		Validator:   service.NewValidator(),
		Logger:      logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/chat", h.Chat)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/classify", h.Classify)
		admin.GET("/tasks", h.TasksList)
		admin.POST("/tasks", h.TaskCreate)
		admin.GET("/tasks/:id", h.TaskDetails)
		admin.PATCH("/tasks/:id/status", h.TaskStatus)
		admin.POST("/process", h.Process)
		admin.GET("/runs/latest", h.RunsLatest)
		admin.GET("/sessions/:id", h.SessionDetails)
		admin.DELETE("/sessions/:id", h.SessionDelete)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
