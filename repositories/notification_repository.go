package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mzeidan/adboard_notifications/config"
	"github.com/mzeidan/adboard_notifications/logging"
	"github.com/mzeidan/adboard_notifications/models"
)

const unreadCountTTL = 5 * time.Minute

type NotificationRepository struct {
	collection *mongo.Collection
	redis      *redis.Client
}

func NewNotificationRepository(db *mongo.Client, redisClient *redis.Client) *NotificationRepository {
	return &NotificationRepository{
		collection: config.GetCollection(db, "notifications"),
		redis:      redisClient,
	}
}

// ListByUser returns all deliveries addressed to the user, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string) ([]models.Delivery, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.DeliveryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	deliveries := make([]models.Delivery, 0, len(docs))
	for i := range docs {
		deliveries = append(deliveries, docs[i].ToDelivery())
	}
	return deliveries, nil
}

// UnreadCount returns the number of unread deliveries for the user. The
// count is cached in Redis and recomputed from Mongo on a miss.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int64, error) {
	cacheKey := unreadCacheKey(userID)

	if r.redis != nil {
		if cached, err := r.redis.Get(ctx, cacheKey).Int64(); err == nil {
			return cached, nil
		}
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"userId": userID, "isRead": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	if r.redis != nil {
		if err := r.redis.Set(ctx, cacheKey, count, unreadCountTTL).Err(); err != nil {
			logging.Logger.Warnf("Error caching unread count for user %s: %v", userID, err)
		}
	}

	return count, nil
}

// MarkRead flips isRead to true for the given notification ids owned by the
// user. Already-read ids are unaffected, so the operation is idempotent.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, ids []string) error {
	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		objID, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			// Unknown ids are skipped, not fatal
			logging.Logger.Warnf("Skipping invalid notification id %q", id)
			continue
		}
		objectIDs = append(objectIDs, objID)
	}
	if len(objectIDs) == 0 {
		return nil
	}

	filter := bson.M{
		"_id":    bson.M{"$in": objectIDs},
		"userId": userID,
	}
	update := bson.M{"$set": bson.M{"isRead": true}}

	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}

	r.invalidateUnreadCount(ctx, userID)
	return nil
}

// CreateDeliveries persists one unread delivery per addressed user and
// returns them in boundary shape
func (r *NotificationRepository) CreateDeliveries(ctx context.Context, userIDs []string, roles []string, payload models.NotificationPayload) ([]models.Delivery, error) {
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(userIDs))
	deliveries := make([]models.Delivery, 0, len(userIDs))

	for _, userID := range userIDs {
		doc := models.DeliveryDocument{
			ID:           primitive.NewObjectID(),
			UserID:       userID,
			TargetRoles:  roles,
			IsRead:       false,
			CreatedAt:    now,
			Notification: payload,
		}
		docs = append(docs, doc)
		deliveries = append(deliveries, doc.ToDelivery())
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to insert notifications: %w", err)
	}

	for _, userID := range userIDs {
		r.invalidateUnreadCount(ctx, userID)
	}

	return deliveries, nil
}

// SaveBroadcast persists the deliveries of an inbound push broadcast and
// returns the payload with assigned ids and timestamps. Implements
// websocket.BroadcastStore.
func (r *NotificationRepository) SaveBroadcast(ctx context.Context, payload models.BroadcastPayload) (models.BroadcastPayload, error) {
	persisted := models.BroadcastPayload{Role: payload.Role}

	for _, d := range payload.Data {
		if d.UserID == "" {
			continue
		}
		created, err := r.CreateDeliveries(ctx, []string{d.UserID}, payload.Role, d.Notification)
		if err != nil {
			return models.BroadcastPayload{}, err
		}
		persisted.Data = append(persisted.Data, created...)
	}

	return persisted, nil
}

func (r *NotificationRepository) invalidateUnreadCount(ctx context.Context, userID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, unreadCacheKey(userID)).Err(); err != nil {
		logging.Logger.Warnf("Error invalidating unread count for user %s: %v", userID, err)
	}
}

func unreadCacheKey(userID string) string {
	return "unread:" + userID
}
