package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mzeidan/adboard_notifications/models"
)

// DrawerState is the shared open/closed flag read by both the counter
// ingestion path and the feed store
type DrawerState int32

const (
	DrawerClosed DrawerState = iota
	DrawerOpen
)

const defaultResyncInterval = time.Minute

// Options configures a Session
type Options struct {
	// BaseURL is the REST endpoint root, WebSocketURL the push channel URL
	BaseURL      string
	WebSocketURL string
	Token        string

	// UserID and Role identify the session for client-side broadcast
	// filtering; broadcasts are role-scoped by the transport and user-scoped
	// here
	UserID string
	Role   string

	// ResyncInterval overrides the periodic counter resync cadence
	ResyncInterval time.Duration

	Logger *logrus.Logger
}

// Session owns the process-wide notification state for one authenticated
// session: the counter, the feed, the read marker and the push channel
// client, constructed once at login and torn down at logout. It is the
// single ingestion point for push events - the role/user filter predicate
// lives here and nowhere else.
type Session struct {
	userID string
	role   string

	api     *API
	push    *PushClient
	Counter *UnreadCounter
	Feed    *FeedStore
	Marker  *ReadMarker
	log     *logrus.Logger

	resyncInterval time.Duration

	mu      sync.Mutex
	drawer  DrawerState
	seenIDs map[string]struct{}
	unsubs  []func()
	stopCh  chan struct{}
	started bool
}

func NewSession(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	interval := opts.ResyncInterval
	if interval <= 0 {
		interval = defaultResyncInterval
	}

	api := NewAPI(opts.BaseURL, opts.Token, log)
	counter := NewUnreadCounter(api, log)
	marker := NewReadMarker(api, log)
	feed := NewFeedStore(api, counter, marker, log)
	push := NewPushClient(opts.WebSocketURL, opts.Token, log)

	return &Session{
		userID:         opts.UserID,
		role:           opts.Role,
		api:            api,
		push:           push,
		Counter:        counter,
		Feed:           feed,
		Marker:         marker,
		log:            log,
		resyncInterval: interval,
		seenIDs:        make(map[string]struct{}),
	}
}

// Start connects the push channel, hooks the ingestion handler and begins
// the periodic counter resync
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if err := s.push.Connect(ctx); err != nil {
		// Leave the session startable again; a wedged started flag would
		// make every retry a silent no-op
		s.mu.Lock()
		s.started = false
		s.stopCh = nil
		s.mu.Unlock()
		return err
	}

	unsubEvents := s.push.Subscribe(s.handleEnvelope)
	// Push delivery gives no guarantee across reconnects; resync on every
	// reconnect and on a timer to correct drift
	unsubReconnect := s.push.SubscribeReconnect(func() {
		s.resync()
	})

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubEvents, unsubReconnect)
	s.mu.Unlock()

	go s.resyncLoop(stopCh)

	// A failed initial hydrate is transient like any other fetch failure;
	// the resync loop corrects it
	s.Counter.Hydrate(ctx)
	return nil
}

// Stop tears the session down
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.push.Close()
}

// OpenDrawer flips the drawer flag before loading, so broadcasts arriving
// during the load go to the feed (or its replay buffer) instead of the
// counter. It also retries any mark-read ids left pending by earlier
// failures.
func (s *Session) OpenDrawer(ctx context.Context) error {
	s.setDrawer(DrawerOpen)
	s.Marker.Retry()
	return s.Feed.Load(ctx)
}

// CloseDrawer flips the flag back; the feed is only materialized again on
// the next open
func (s *Session) CloseDrawer() {
	s.setDrawer(DrawerClosed)
}

// Drawer returns the current drawer state
func (s *Session) Drawer() DrawerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawer
}

func (s *Session) setDrawer(state DrawerState) {
	s.mu.Lock()
	s.drawer = state
	s.mu.Unlock()
}

// handleEnvelope is the single ingestion point for push events. The filter
// runs here once: role scoping first, then user matching, then dedup by
// notification id. Malformed envelopes are discarded without effect.
func (s *Session) handleEnvelope(env models.Envelope) {
	if env.Event != models.EventReceiveUserNotification {
		return
	}
	matching := s.filterDeliveries(env.Payload)
	if len(matching) == 0 {
		return
	}
	s.log.Debugf("Broadcast %s matched %d deliveries", env.EventID, len(matching))

	if s.Drawer() == DrawerOpen {
		// Visible immediately, so it must never be counted
		for _, d := range matching {
			s.Feed.ApplyBroadcast(d)
		}
		return
	}

	s.Counter.Add(len(matching))
}

// filterDeliveries applies the broadcast-then-filter discipline: the event
// must target the session's role and carry at least one delivery addressed
// to the session's user. Re-delivered notification ids are dropped so a
// duplicate broadcast never double-counts.
func (s *Session) filterDeliveries(payload models.BroadcastPayload) []models.Delivery {
	if !roleMatch(s.role, payload.Role) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matching []models.Delivery
	for _, d := range payload.Data {
		if d.UserID != s.userID || d.NotificationID == "" {
			continue
		}
		if _, seen := s.seenIDs[d.NotificationID]; seen {
			continue
		}
		s.seenIDs[d.NotificationID] = struct{}{}
		matching = append(matching, d)
	}
	return matching
}

func (s *Session) resyncLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(s.resyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.resync()
		case <-stopCh:
			return
		}
	}
}

// resync re-runs Hydrate unless the drawer is open, in which case the feed
// is authoritative and the counter is pinned at zero anyway
func (s *Session) resync() {
	if s.Drawer() == DrawerOpen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Counter.Hydrate(ctx); err != nil {
		s.log.Debugf("Periodic resync failed: %v", err)
	}
}

func roleMatch(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
