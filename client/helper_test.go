package client

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mzeidan/adboard_notifications/models"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// stubBackend fakes the three REST endpoints with controllable behavior
type stubBackend struct {
	t *testing.T

	mu         sync.Mutex
	deliveries []models.Delivery
	markCalls  [][]string
	failMark   bool
	failList   bool
	failCount  bool

	// when set, GET /notification blocks until the channel is closed
	loadGate chan struct{}

	srv *httptest.Server
}

func newStubBackend(t *testing.T) *stubBackend {
	b := &stubBackend{t: t}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *stubBackend) URL() string { return b.srv.URL }

func (b *stubBackend) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/notification/unread-count":
		b.mu.Lock()
		fail := b.failCount
		count := 0
		for _, d := range b.deliveries {
			if !d.IsRead {
				count++
			}
		}
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(count)

	case r.Method == http.MethodGet && r.URL.Path == "/notification":
		b.mu.Lock()
		gate := b.loadGate
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		b.mu.Lock()
		fail := b.failList
		out := make([]models.Delivery, len(b.deliveries))
		copy(out, b.deliveries)
		b.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(out)

	case r.Method == http.MethodPatch && r.URL.Path == "/notification/read-notification":
		var req models.MarkReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		if b.failMark {
			b.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		b.markCalls = append(b.markCalls, req.ID)
		for _, id := range req.ID {
			for i := range b.deliveries {
				if b.deliveries[i].NotificationID == id {
					b.deliveries[i].IsRead = true
				}
			}
		}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(models.Response{Status: http.StatusOK, Message: "ok"})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *stubBackend) addDelivery(d models.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = append([]models.Delivery{d}, b.deliveries...)
}

func (b *stubBackend) setFailMark(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failMark = fail
}

func (b *stubBackend) setFailList(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failList = fail
}

func (b *stubBackend) setLoadGate(gate chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadGate = gate
}

func (b *stubBackend) markedIDs() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]string, len(b.markCalls))
	copy(out, b.markCalls)
	return out
}

func (b *stubBackend) allMarked() []string {
	var out []string
	for _, call := range b.markedIDs() {
		out = append(out, call...)
	}
	return out
}

func delivery(id, userID string, read bool, createdAt time.Time) models.Delivery {
	return models.Delivery{
		NotificationID: id,
		UserID:         userID,
		IsRead:         read,
		CreatedAt:      createdAt,
		Notification: models.NotificationPayload{
			Message: "notification " + id,
		},
	}
}

func broadcast(roles []string, deliveries ...models.Delivery) models.Envelope {
	return models.Envelope{
		Event: models.EventReceiveUserNotification,
		Payload: models.BroadcastPayload{
			Role: roles,
			Data: deliveries,
		},
	}
}
