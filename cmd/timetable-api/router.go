package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth      *handler.AuthHandler
	timetable *handler.TimetableHandler
	metrics   *handler.MetricsHandler
	tokens    internalmiddleware.TokenValidator
	observer  internalmiddleware.RequestObserver
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.observer))

	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	planners := []models.UserRole{models.RoleSuperAdmin, models.RoleTimetableAdmin, models.RoleHOD}
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleTimetableAdmin}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", deps.auth.Login)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(deps.tokens))
	secured.GET("/metrics/summary", internalmiddleware.RequireRoles(admins...), deps.metrics.Summary)

	timetables := secured.Group("/timetables")
	timetables.POST("/generate", internalmiddleware.RequireRoles(planners...), deps.timetable.Generate)
	timetables.POST("/generate/jobs", internalmiddleware.RequireRoles(planners...), deps.timetable.SubmitJob)
	timetables.GET("/generate/jobs/:id", internalmiddleware.RequireRoles(planners...), deps.timetable.GetJob)
	timetables.POST("/validate", deps.timetable.Validate)
	timetables.GET("", deps.timetable.List)
	timetables.GET("/:id", deps.timetable.Get)
	timetables.GET("/:id/export", deps.timetable.Export)
	timetables.POST("/:id/approve", internalmiddleware.RequireRoles(planners...), deps.timetable.Approve)
	timetables.DELETE("/:id", internalmiddleware.RequireRoles(admins...), deps.timetable.Delete)

	return r
}
