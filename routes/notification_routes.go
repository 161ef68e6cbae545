package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mzeidan/adboard_notifications/controllers"
	"github.com/mzeidan/adboard_notifications/middleware"
	"github.com/mzeidan/adboard_notifications/repositories"
	"github.com/mzeidan/adboard_notifications/websocket"
)

// RegisterNotificationRoutes registers all notification-related routes
func RegisterNotificationRoutes(e *echo.Echo, db *mongo.Client, redisClient *redis.Client, hub *websocket.Hub) {
	repo := repositories.NewNotificationRepository(db, redisClient)
	notificationController := controllers.NewNotificationController(repo, hub)

	// Boundary endpoints consumed by the client core
	notificationGroup := e.Group("/notification")
	notificationGroup.Use(middleware.JWTMiddleware())
	notificationGroup.GET("", notificationController.GetNotifications)
	notificationGroup.GET("/unread-count", notificationController.GetUnreadCount)
	notificationGroup.PATCH("/read-notification", notificationController.MarkNotificationsRead)

	// Collaborator stand-in for the systems that originate notifications
	notificationGroup.POST("/send", notificationController.SendNotification, middleware.RequireRole("admin"))

	// Push channel endpoint; authenticates from the token query parameter
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(c, hub, repo)
	})
}
