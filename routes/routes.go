package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"price_digest/controllers"
	"price_digest/middleware"
)

// Dependencies are the collaborators the HTTP layer needs. Tokens, Runs and
// Archive may be nil.
type Dependencies struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	FormLimiter *middleware.RateLimiter
	Tokens      middleware.TokenParser
	Runs        controllers.RunHistory
	LastRun     controllers.LastRunner
	Archive     controllers.StatusReporter
}

// SetupRoutes sets up all routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthController := controllers.NewHealthController(deps.DB, deps.Archive)
	subscriberController := controllers.NewSubscriberController(deps.DB, deps.Logger)
	assetDataController := controllers.NewAssetDataController(deps.DB)

	router.GET("/health", healthController.Health)
	router.GET("/ready", healthController.Ready)

	// Subscriber forms
	forms := router.Group("")
	if deps.FormLimiter != nil {
		forms.Use(middleware.FormRateLimitMiddleware(deps.FormLimiter))
	}
	{
		forms.POST("/signup", subscriberController.Signup)
		forms.POST("/unsubscribe", subscriberController.Unsubscribe)
		if deps.Tokens != nil {
			forms.GET("/unsubscribe", middleware.UnsubscribeTokenMiddleware(deps.Tokens), subscriberController.UnsubscribeByToken)
		}
	}

	// API v1 group
	api := router.Group("/api/v1")
	{
		api.GET("/data/:ticker/:date", assetDataController.GetClose)
		api.GET("/alldata/:date", assetDataController.GetAllCloses)
		api.GET("/compare/:ticker/:date1/:date2", assetDataController.Compare)

		if deps.LastRun != nil {
			runController := controllers.NewRunController(deps.Runs, deps.LastRun)
			api.GET("/runs", runController.GetRuns)
			api.GET("/runs/last", runController.GetLastRun)
		}
	}
}
