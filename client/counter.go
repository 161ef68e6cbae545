package client

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// UnreadCounter is the single source of truth for the badge count within a
// session. Hydrate sets it from the backend; Add applies push-driven
// increments while the drawer is closed; Reset clamps it back to zero after
// a full feed reconciliation. The value never goes negative.
type UnreadCounter struct {
	api *API
	log *logrus.Logger

	mu     sync.Mutex
	value  int
	subs   map[int]func(int)
	nextID int
}

func NewUnreadCounter(api *API, log *logrus.Logger) *UnreadCounter {
	return &UnreadCounter{
		api:  api,
		log:  log,
		subs: make(map[int]func(int)),
	}
}

// Hydrate fetches the authoritative unread count and sets (not adds) the
// counter to it. On failure the counter keeps its last-known-good value.
func (u *UnreadCounter) Hydrate(ctx context.Context) error {
	count, err := u.api.FetchUnreadCount(ctx)
	if err != nil {
		u.log.Warnf("Unread count hydrate failed, keeping current value: %v", err)
		return err
	}
	u.set(count)
	return nil
}

// Add increments the counter by n matching deliveries
func (u *UnreadCounter) Add(n int) {
	if n <= 0 {
		return
	}
	u.mu.Lock()
	v := u.value + n
	u.applyLocked(v)
}

// Reset clamps the counter to zero
func (u *UnreadCounter) Reset() {
	u.set(0)
}

// Value returns the current counter value
func (u *UnreadCounter) Value() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.value
}

// Subscribe registers an observer invoked with the new value on every
// change. The returned function unsubscribes.
func (u *UnreadCounter) Subscribe(fn func(int)) func() {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := u.nextID
	u.nextID++
	u.subs[id] = fn
	return func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		delete(u.subs, id)
	}
}

func (u *UnreadCounter) set(v int) {
	u.mu.Lock()
	u.applyLocked(v)
}

// applyLocked clamps, stores and notifies. Takes the lock held and releases
// it before invoking observers so they can read the counter freely.
func (u *UnreadCounter) applyLocked(v int) {
	if v < 0 {
		v = 0
	}
	if v == u.value {
		u.mu.Unlock()
		return
	}
	u.value = v
	subs := make([]func(int), 0, len(u.subs))
	for _, fn := range u.subs {
		subs = append(subs, fn)
	}
	u.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}
