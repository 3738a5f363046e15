package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fire-routing/backend/internal/classify"
	"github.com/fire-routing/backend/internal/config"
	"github.com/fire-routing/backend/internal/db"
	"github.com/fire-routing/backend/internal/geocode"
	"github.com/fire-routing/backend/internal/http/handlers"
	"github.com/fire-routing/backend/internal/http/middleware"
	"github.com/fire-routing/backend/internal/routing"

	_ "github.com/fire-routing/backend/docs"
)

func Router(cfg config.Config, store *db.Store, oracle classify.Oracle, geocoder geocode.Geocoder, state *routing.FairnessState, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:            store,
		Oracle:           oracle,
		Geocoder:         geocoder,
		State:            state,
		Validator:        validator.New(),
		Logger:           logger,
		AdminKey:         cfg.AdminKey,
		CountryDefault:   cfg.CountryDefault,
		Fallbacks:        cfg.Fallbacks(),
		ClassifyAttempts: cfg.ClassifyAttempts,
		GeoCachePath:     cfg.GeoCachePath,
		AttachmentDir:    cfg.AttachmentDir,
		ResetPerRun:      cfg.FairnessResetPerRun,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/tickets", h.TicketsList)
		api.GET("/tickets/:id", h.TicketDetails)
		api.GET("/managers", h.ManagersList)
		api.GET("/offices", h.OfficesList)
		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/import", h.Import)
		admin.POST("/process", h.Process)
		admin.POST("/tickets/:id/reassign", h.Reassign)
		admin.POST("/offices/regeocode", h.RegeocodeOffices)
		admin.GET("/debug/eligibility", h.DebugEligibility)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
