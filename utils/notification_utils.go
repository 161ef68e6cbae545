package utils

import (
	"context"

	"github.com/mzeidan/adboard_notifications/models"
	"github.com/mzeidan/adboard_notifications/repositories"
	"github.com/mzeidan/adboard_notifications/websocket"
)

// NotifyUsers persists one delivery per addressed user and broadcasts the
// event to role-matching connections. Convenience entry point for backend
// workflows (offer approvals, block requests, banner status changes) that
// originate notifications outside the HTTP surface.
func NotifyUsers(ctx context.Context, repo *repositories.NotificationRepository, hub *websocket.Hub, userIDs []string, roles []string, payload models.NotificationPayload) error {
	deliveries, err := repo.CreateDeliveries(ctx, userIDs, roles, payload)
	if err != nil {
		return err
	}

	hub.BroadcastToRoles(models.BroadcastPayload{
		Role: roles,
		Data: deliveries,
	})
	return nil
}
