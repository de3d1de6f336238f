package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"sevaboard/cron"
	"sevaboard/models"
	"sevaboard/services/notification"
	"sevaboard/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SweepRunner runs one delivery sweep on demand.
type SweepRunner interface {
	Sweep(ctx context.Context) (cron.SweepResult, error)
}

// NotificationHandler exposes scheduling and delivery to administrators.
type NotificationHandler struct {
	Service notification.NotificationService
	Sweeper SweepRunner
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(svc notification.NotificationService, sweeper SweepRunner) *NotificationHandler {
	return &NotificationHandler{Service: svc, Sweeper: sweeper}
}

// ScheduleNotificationHandler stores a notification to be broadcast at scheduledTime.
func (h *NotificationHandler) ScheduleNotificationHandler(c *gin.Context) {
	logger := getLogger(c)

	var req models.ScheduleNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	n, err := h.Service.Schedule(c.Request.Context(), req.Message, req.ScheduledTime)
	if err != nil {
		if errors.Is(err, notification.ErrInvalidNotification) {
			utils.JSONError(c, http.StatusBadRequest, "Invalid notification", err.Error())
			return
		}
		logger.Error("Failed to schedule notification", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to schedule notification", "")
		return
	}
	c.JSON(http.StatusCreated, n)
}

// ListNotificationsHandler returns pending notifications, or all with ?includeSent=true.
func (h *NotificationHandler) ListNotificationsHandler(c *gin.Context) {
	includeSent := false
	if raw := c.Query("includeSent"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, "Invalid includeSent value", err.Error())
			return
		}
		includeSent = v
	}

	list, err := h.Service.List(c.Request.Context(), includeSent)
	if err != nil {
		getLogger(c).Error("Failed to list notifications", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Failed to list notifications", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}

// TriggerSweepHandler runs a sweep immediately instead of waiting for the next tick.
func (h *NotificationHandler) TriggerSweepHandler(c *gin.Context) {
	res, err := h.Sweeper.Sweep(c.Request.Context())
	switch {
	case errors.Is(err, cron.ErrSweepInProgress):
		utils.JSONError(c, http.StatusConflict, "Sweep already in progress", "")
		return
	case err != nil:
		getLogger(c).Error("Manual sweep failed", zap.Error(err))
		utils.JSONError(c, http.StatusServiceUnavailable, "Sweep failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}
