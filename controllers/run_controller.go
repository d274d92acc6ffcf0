package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"price_digest/services/dispatcher"
)

// RunHistory lists archived digest runs, newest first
type RunHistory interface {
	IsConfigured() bool
	Latest(ctx context.Context, limit int64) ([]dispatcher.RunSummary, error)
}

// LastRunner exposes the most recent in-process run
type LastRunner interface {
	LastRun() *dispatcher.RunSummary
}

// RunController reports digest run summaries
type RunController struct {
	history RunHistory
	current LastRunner
}

// NewRunController creates a new run controller. history may be nil.
func NewRunController(history RunHistory, current LastRunner) *RunController {
	return &RunController{history: history, current: current}
}

// GetRuns returns recent run summaries
// GET /api/v1/runs?limit=10
func (rc *RunController) GetRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	if rc.history != nil && rc.history.IsConfigured() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		runs, err := rc.history.Latest(ctx, int64(limit))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": "archive", "data": runs})
		return
	}

	runs := []dispatcher.RunSummary{}
	if last := rc.current.LastRun(); last != nil {
		runs = append(runs, *last)
	}
	c.JSON(http.StatusOK, gin.H{"source": "memory", "data": runs})
}

// GetLastRun returns the most recent run of this process
// GET /api/v1/runs/last
func (rc *RunController) GetLastRun(c *gin.Context) {
	last := rc.current.LastRun()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No run has finished yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": last})
}
