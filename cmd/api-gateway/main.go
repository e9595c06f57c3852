package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/escolaware/escola-api/internal/handler"
	"github.com/escolaware/escola-api/internal/middleware"
	"github.com/escolaware/escola-api/internal/models"
	"github.com/escolaware/escola-api/internal/repository"
	"github.com/escolaware/escola-api/internal/service"
	"github.com/escolaware/escola-api/pkg/cache"
	"github.com/escolaware/escola-api/pkg/config"
	"github.com/escolaware/escola-api/pkg/database"
	"github.com/escolaware/escola-api/pkg/logger"
	corsmiddleware "github.com/escolaware/escola-api/pkg/middleware/cors"
	reqidmiddleware "github.com/escolaware/escola-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Reports.CacheTTL, logr, cfg.Redis.Enabled && cfg.Reports.CacheEnabled)

	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	justificationRepo := repository.NewJustificationRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo, nil, cfg.Attendance.RiskThreshold, validate, logr)
	reportSvc := service.NewReportService(attendanceSvc, cacheSvc, cfg.Reports.CacheTTL, logr)
	sessionSvc := service.NewSessionService(sessionRepo, slotRepo, reportSvc, validate, logr)
	justificationSvc := service.NewJustificationService(justificationRepo, attendanceRepo, reportSvc, validate, logr)
	slotSvc := service.NewSlotService(slotRepo, sessionRepo, validate, logr)

	// The attendance service needs the report service for invalidation and
	// vice versa for aggregation, so the invalidator is attached after both
	// exist.
	attendanceSvc.SetInvalidator(reportSvc)

	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	justificationHandler := handler.NewJustificationHandler(justificationSvc)
	slotHandler := handler.NewSlotHandler(slotSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	sessions := api.Group("/sessions")
	{
		sessions.POST("", middleware.RequireCapability(models.CapabilitySessionManage), sessionHandler.Create)
		sessions.PATCH("/:id", middleware.RequireCapability(models.CapabilitySessionManage), sessionHandler.Reschedule)
		sessions.POST("/:id/hold", middleware.RequireCapability(models.CapabilitySessionManage), sessionHandler.Hold)
		sessions.POST("/:id/makeup", middleware.RequireCapability(models.CapabilitySessionManage), sessionHandler.MarkMakeup)
		sessions.POST("/:id/cancel", middleware.RequireCapability(models.CapabilitySessionManage), sessionHandler.Cancel)
		sessions.DELETE("/:id", middleware.RequireCapability(models.CapabilitySessionManage), sessionHandler.Delete)
		sessions.POST("/:id/attendance", middleware.RequireCapability(models.CapabilityAttendanceRecord), attendanceHandler.Record)
		sessions.GET("/:id/attendance", middleware.RequireCapability(models.CapabilityReportRead), attendanceHandler.SessionAttendance)
	}

	classes := api.Group("/classes")
	{
		classes.GET("/:id/sessions", middleware.RequireCapability(models.CapabilityReportRead), sessionHandler.ListByClass)
		classes.GET("/:id/slots/:subjectId", middleware.RequireCapability(models.CapabilityReportRead), slotHandler.GetForClassSubject)
		classes.DELETE("/:id/slots/:subjectId", middleware.RequireCapability(models.CapabilitySlotAllocate), slotHandler.DeallocateForClassSubject)
	}

	justifications := api.Group("/justifications")
	{
		justifications.POST("", middleware.RequireCapability(models.CapabilityJustificationManage), justificationHandler.Create)
		justifications.GET("/pending", middleware.RequireCapability(models.CapabilityJustificationManage), justificationHandler.ListPending)
		justifications.GET("/:id", middleware.RequireCapability(models.CapabilityJustificationManage), justificationHandler.Get)
		justifications.PATCH("/:id", middleware.RequireCapability(models.CapabilityJustificationManage), justificationHandler.Update)
		justifications.DELETE("/:id", middleware.RequireCapability(models.CapabilityJustificationManage), justificationHandler.Delete)
		justifications.POST("/:id/decision", middleware.RequireCapability(models.CapabilityJustificationDecide), justificationHandler.Decide)
		justifications.POST("/:id/rewrite", middleware.RequireCapability(models.CapabilityJustificationDecide), justificationHandler.RetryRewrite)
	}

	slots := api.Group("/slots")
	{
		slots.POST("", middleware.RequireCapability(models.CapabilitySlotAllocate), slotHandler.Allocate)
		slots.GET("/:id", middleware.RequireCapability(models.CapabilityReportRead), slotHandler.Get)
		slots.PATCH("/:id", middleware.RequireCapability(models.CapabilitySlotAllocate), slotHandler.Reassign)
		slots.DELETE("/:id", middleware.RequireCapability(models.CapabilitySlotAllocate), slotHandler.Deallocate)
	}

	teachers := api.Group("/teachers")
	{
		teachers.GET("/:id/slots", middleware.RequireCapability(models.CapabilityReportRead), slotHandler.ListByTeacher)
	}

	reports := api.Group("/reports")
	reports.Use(middleware.RequireCapability(models.CapabilityReportRead))
	{
		reports.GET("/students/:id/attendance", reportHandler.StudentAttendance)
		reports.GET("/classes/:id/attendance", reportHandler.ClassAttendance)
		reports.GET("/system", metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
