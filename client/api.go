// Package client implements the session-scoped notification core consumed by
// the presentation surfaces: the push channel client, the unread counter
// reconciler, the feed store and the read-state marker.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/mzeidan/adboard_notifications/models"
)

// API is the REST client for the notification boundary. All calls go through
// a circuit breaker so a dead backend fails fast instead of piling up
// requests; callers treat every failure as transient and retry on the next
// natural trigger.
type API struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

func NewAPI(baseURL, token string, log *logrus.Logger) *API {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-api",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &API{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: breaker,
		log:     log,
	}
}

// FetchNotifications calls GET /notification
func (a *API) FetchNotifications(ctx context.Context) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	if err := a.do(ctx, http.MethodGet, "/notification", nil, &deliveries); err != nil {
		return nil, err
	}
	return deliveries, nil
}

// FetchUnreadCount calls GET /notification/unread-count
func (a *API) FetchUnreadCount(ctx context.Context) (int, error) {
	var count int
	if err := a.do(ctx, http.MethodGet, "/notification/unread-count", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead calls PATCH /notification/read-notification. The backend call is
// idempotent, so re-sending already-read ids is safe.
func (a *API) MarkRead(ctx context.Context, ids []string) error {
	body := models.MarkReadRequest{ID: ids}
	return a.do(ctx, http.MethodPatch, "/notification/read-notification", body, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := a.breaker.Execute(func() (interface{}, error) {
		var reqBody *bytes.Buffer
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			reqBody = bytes.NewBuffer(encoded)
		} else {
			reqBody = &bytes.Buffer{}
		}

		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.token)

		resp, err := a.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil, nil
	})
	return err
}
