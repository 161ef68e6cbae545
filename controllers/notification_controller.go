package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mzeidan/adboard_notifications/logging"
	"github.com/mzeidan/adboard_notifications/middleware"
	"github.com/mzeidan/adboard_notifications/models"
	"github.com/mzeidan/adboard_notifications/repositories"
	"github.com/mzeidan/adboard_notifications/websocket"
)

type NotificationController struct {
	repo *repositories.NotificationRepository
	hub  *websocket.Hub
}

func NewNotificationController(repo *repositories.NotificationRepository, hub *websocket.Hub) *NotificationController {
	return &NotificationController{repo: repo, hub: hub}
}

// GetNotifications returns the authenticated user's deliveries, newest
// first. The response body is the bare array consumed by the feed store.
func (nc *NotificationController) GetNotifications(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	deliveries, err := nc.repo.ListByUser(c.Request().Context(), userID)
	if err != nil {
		logging.Logger.Errorf("Error listing notifications for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch notifications",
		})
	}

	return c.JSON(http.StatusOK, deliveries)
}

// GetUnreadCount returns the user's unread count as a bare integer
func (nc *NotificationController) GetUnreadCount(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	count, err := nc.repo.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		logging.Logger.Errorf("Error counting unread notifications for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch unread count",
		})
	}

	return c.JSON(http.StatusOK, count)
}

// MarkNotificationsRead marks the listed notification ids read for the
// authenticated user. Re-marking already-read ids is a no-op.
func (nc *NotificationController) MarkNotificationsRead(c echo.Context) error {
	userID := middleware.GetUserIDFromToken(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Unauthorized",
		})
	}

	var req models.MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "id list is required",
		})
	}

	if err := nc.repo.MarkRead(c.Request().Context(), userID, req.ID); err != nil {
		logging.Logger.Errorf("Error marking notifications read for user %s: %v", userID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to mark notifications read",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Notifications marked read",
	})
}

// SendNotification persists a delivery per addressed user and broadcasts the
// event to role-matching connections. Stand-in for the workflow systems that
// originate notifications.
func (nc *NotificationController) SendNotification(c echo.Context) error {
	var req models.SendNotificationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "userIds, role and message are required",
		})
	}

	payload := models.NotificationPayload{
		Message:     req.Message,
		Image:       req.Image,
		RedirectURL: req.RedirectURL,
	}

	deliveries, err := nc.repo.CreateDeliveries(c.Request().Context(), req.UserIDs, req.Role, payload)
	if err != nil {
		logging.Logger.Errorf("Error creating notifications: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create notifications",
		})
	}

	nc.hub.BroadcastToRoles(models.BroadcastPayload{
		Role: req.Role,
		Data: deliveries,
	})

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Notification sent",
		Data:    deliveries,
	})
}
