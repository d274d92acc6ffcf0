package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StatusReporter describes an optional dependency for readiness output
type StatusReporter interface {
	Status() map[string]interface{}
}

// HealthController serves liveness and readiness probes
type HealthController struct {
	db      *gorm.DB
	archive StatusReporter
}

// NewHealthController creates a new health controller. archive may be nil.
func NewHealthController(db *gorm.DB, archive StatusReporter) *HealthController {
	return &HealthController{db: db, archive: archive}
}

// Health reports that the process is up
// GET /health
func (hc *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "price digest is running",
	})
}

// Ready reports whether the database answers
// GET /ready
func (hc *HealthController) Ready(c *gin.Context) {
	resp := gin.H{"status": "ready"}
	if hc.archive != nil {
		resp["archive"] = hc.archive.Status()
	}

	sqlDB, err := hc.db.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		resp["status"] = "unavailable"
		resp["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	resp["database"] = "ok"
	c.JSON(http.StatusOK, resp)
}
