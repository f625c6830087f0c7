package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/newrality/transcribe/cmd/server/internal/config"
	"github.com/newrality/transcribe/cmd/server/internal/lifecycle"
)

// HealthResponse reports service liveness and engine readiness.
type HealthResponse struct {
	Status  string `json:"status"` // healthy, loading, failed
	Model   string `json:"model"`
	Device  string `json:"device"`
	State   string `json:"state"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Failure string `json:"failure,omitempty"`
}

// HandleHealth handles GET /health (unauthenticated). The endpoint always
// answers 200; the body distinguishes a warming-up service from one whose
// model load failed terminally.
func HandleHealth(manager *lifecycle.Manager, cfg *config.Config, version string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := manager.Snapshot()

		status := "loading"
		switch snap.State {
		case lifecycle.StateReady:
			status = "healthy"
		case lifecycle.StateFailed:
			status = "failed"
		}

		c.JSON(http.StatusOK, HealthResponse{
			Status:  status,
			Model:   cfg.Whisper.Model,
			Device:  cfg.Whisper.Device,
			State:   string(snap.State),
			Version: version,
			Uptime:  time.Since(startTime).Truncate(time.Second).String(),
			Failure: snap.Failure,
		})
	}
}

// HandleReadiness handles GET /readiness: 200 once the engine is Ready,
// 503 otherwise, for load balancers that gate traffic on readiness.
func HandleReadiness(manager *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := manager.Snapshot()
		if snap.State == lifecycle.StateReady {
			c.JSON(http.StatusOK, gin.H{"ready": true})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ready": false,
			"state": string(snap.State),
		})
	}
}
