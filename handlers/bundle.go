// File: sevaboard/handlers/bundle.go
package handlers

import (
	"sevaboard/utils"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	TokenIssuer *utils.TokenIssuer

	// Live channel
	SocketHandler gin.HandlerFunc

	// Admin endpoints
	AdminLoginHandler           gin.HandlerFunc
	ScheduleNotificationHandler gin.HandlerFunc
	ListNotificationsHandler    gin.HandlerFunc
	TriggerSweepHandler         gin.HandlerFunc

	// Health
	HealthCheckHandler gin.HandlerFunc
}
