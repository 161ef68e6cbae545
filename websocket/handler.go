package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/mzeidan/adboard_notifications/logging"
	"github.com/mzeidan/adboard_notifications/middleware"
	"github.com/mzeidan/adboard_notifications/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BroadcastStore persists the deliveries of an inbound broadcast before the
// hub fans them out
type BroadcastStore interface {
	SaveBroadcast(ctx context.Context, payload models.BroadcastPayload) (models.BroadcastPayload, error)
}

// HandleWebSocket upgrades the connection, authenticates it from the token
// query parameter and relays inbound broadcast envelopes. Collaborators emit
// send-notification-to-business-owner; the persisted payload is re-broadcast
// to role-matching connections as receive-user-notification.
func HandleWebSocket(c echo.Context, hub *Hub, store BroadcastStore) error {
	claims, err := middleware.ValidateToken(c.QueryParam("token"))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid or expired token",
		})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		UserID: claims.UserID,
		Role:   claims.Role,
		Conn:   conn,
	}

	hub.Register(client)

	// Confirm the connection so the client knows it is registered
	client.WriteEnvelope(models.Envelope{Event: "connected"})

	go readLoop(client, hub, store)

	return nil
}

func readLoop(client *Client, hub *Hub, store BroadcastStore) {
	defer hub.Unregister(client)

	for {
		var env models.Envelope
		if err := client.Conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Logger.Warnf("WebSocket read error for user %s: %v", client.UserID, err)
			}
			return
		}

		if env.Event != models.EventSendToBusinessOwner {
			// Unknown events are ignored, not answered
			continue
		}
		if len(env.Payload.Role) == 0 || len(env.Payload.Data) == 0 {
			logging.Logger.Warnf("Discarding malformed broadcast from user %s", client.UserID)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		persisted, err := store.SaveBroadcast(ctx, env.Payload)
		cancel()
		if err != nil {
			logging.Logger.Errorf("Error saving broadcast from user %s: %v", client.UserID, err)
			continue
		}

		hub.BroadcastToRoles(persisted)
	}
}
