package handlers

import (
	"net/http"

	"sevaboard/utils"

	"github.com/gin-gonic/gin"
)

// SubscriberCounter reports how many clients are on the live channel.
type SubscriberCounter interface {
	Count() int
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	monitor     *utils.HealthMonitor
	subscribers SubscriberCounter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(monitor *utils.HealthMonitor, subscribers SubscriberCounter) *HealthHandler {
	return &HealthHandler{monitor: monitor, subscribers: subscribers}
}

// HealthCheckHandler responds 200 while the store is reachable and 503 otherwise.
func (h *HealthHandler) HealthCheckHandler(c *gin.Context) {
	status := h.monitor.Status()

	code, state := http.StatusOK, "ok"
	if !status.Store {
		code, state = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(code, gin.H{
		"status":      state,
		"message":     "Hari Bol, Seva Board is running",
		"subscribers": h.subscribers.Count(),
		"checks":      status,
	})
}
