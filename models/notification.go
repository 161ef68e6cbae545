package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Push channel event names
const (
	EventReceiveUserNotification = "receive-user-notification"
	EventSendToBusinessOwner     = "send-notification-to-business-owner"
)

// NotificationPayload is the display payload of a notification
type NotificationPayload struct {
	Message     string `json:"message" bson:"message"`
	Image       string `json:"image,omitempty" bson:"image,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty" bson:"redirectUrl,omitempty"`
}

// Delivery is one notification addressed to one user, joined with its payload.
// This is the shape returned by GET /notification and carried in broadcasts.
type Delivery struct {
	NotificationID string              `json:"notification_id" bson:"-"`
	UserID         string              `json:"user_id" bson:"userId"`
	IsRead         bool                `json:"is_read" bson:"isRead"`
	CreatedAt      time.Time           `json:"created_at" bson:"createdAt"`
	Notification   NotificationPayload `json:"Notification" bson:"notification"`
}

// DeliveryDocument is the Mongo representation of a Delivery
type DeliveryDocument struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty"`
	UserID       string              `bson:"userId"`
	TargetRoles  []string            `bson:"targetRoles"`
	IsRead       bool                `bson:"isRead"`
	CreatedAt    time.Time           `bson:"createdAt"`
	Notification NotificationPayload `bson:"notification"`
}

// ToDelivery converts the stored document to the boundary shape
func (d *DeliveryDocument) ToDelivery() Delivery {
	return Delivery{
		NotificationID: d.ID.Hex(),
		UserID:         d.UserID,
		IsRead:         d.IsRead,
		CreatedAt:      d.CreatedAt,
		Notification:   d.Notification,
	}
}

// BroadcastPayload is the payload of a push channel event. Role targets the
// broadcast; each Delivery in Data still has to be matched against the
// session's user id on the client side.
type BroadcastPayload struct {
	Role []string   `json:"role"`
	Data []Delivery `json:"data"`
}

// Envelope wraps every message on the push channel. EventID identifies one
// physical broadcast for tracing; re-delivery dedup is keyed on the
// notification ids in the payload, not on it.
type Envelope struct {
	Event   string           `json:"event"`
	EventID string           `json:"event_id,omitempty"`
	Payload BroadcastPayload `json:"payload"`
}

// MarkReadRequest is the body of PATCH /notification/read-notification
type MarkReadRequest struct {
	ID []string `json:"id" validate:"required,min=1,dive,required"`
}

// SendNotificationRequest is the body of POST /notification/send
type SendNotificationRequest struct {
	UserIDs     []string `json:"userIds" validate:"required,min=1,dive,required"`
	Role        []string `json:"role" validate:"required,min=1"`
	Message     string   `json:"message" validate:"required"`
	Image       string   `json:"image,omitempty"`
	RedirectURL string   `json:"redirectUrl,omitempty"`
}

// Response is the standard JSON envelope for non-boundary endpoints
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
