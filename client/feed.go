package client

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mzeidan/adboard_notifications/models"
)

// FeedStore owns the ordered delivery list shown in the drawer: newest
// first, no duplicate notification ids. Load replaces the list wholesale
// from the backend; ApplyBroadcast prepends live pushes while the drawer is
// open. Everything that enters the feed is marked read immediately, since it
// is visible the moment it renders.
//
// Load vs push race: broadcasts arriving while a Load is in flight are
// buffered and replayed on top of the replaced list, so the fetch result
// never erases a concurrently pushed delivery. A second Load while one is
// pending coalesces onto the in-flight result.
type FeedStore struct {
	api     *API
	counter *UnreadCounter
	marker  *ReadMarker
	log     *logrus.Logger

	mu       sync.Mutex
	list     []models.Delivery
	loading  bool
	buffered []models.Delivery
	waiters  []chan error
	subs     map[int]func([]models.Delivery)
	nextID   int
}

func NewFeedStore(api *API, counter *UnreadCounter, marker *ReadMarker, log *logrus.Logger) *FeedStore {
	return &FeedStore{
		api:     api,
		counter: counter,
		marker:  marker,
		log:     log,
		subs:    make(map[int]func([]models.Delivery)),
	}
}

// Load fetches the full history, replaces the local list, hands the set of
// unread ids to the read marker and resets the counter. On fetch failure the
// last-known-good list is kept and any broadcasts buffered during the flight
// are replayed on top of it.
func (f *FeedStore) Load(ctx context.Context) error {
	f.mu.Lock()
	if f.loading {
		// Coalesce onto the in-flight load
		ch := make(chan error, 1)
		f.waiters = append(f.waiters, ch)
		f.mu.Unlock()
		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.loading = true
	f.buffered = nil
	f.mu.Unlock()

	fetched, err := f.api.FetchNotifications(ctx)

	f.mu.Lock()
	f.loading = false

	if err != nil {
		// Broadcasts buffered during the flight arrived intact; only the
		// fetch failed. They replay onto the last-known-good list so an
		// open drawer never drops a push.
		replayed := f.buffered
		f.buffered = nil
		unread := make([]string, 0, len(replayed))
		for _, d := range replayed {
			if f.containsLocked(d.NotificationID) {
				continue
			}
			d.IsRead = true
			f.list = append([]models.Delivery{d}, f.list...)
			unread = append(unread, d.NotificationID)
		}

		waiters := f.takeWaitersLocked()
		var listCopy []models.Delivery
		var subs []func([]models.Delivery)
		if len(unread) > 0 {
			listCopy = f.copyLocked()
			subs = f.subsLocked()
		}
		f.mu.Unlock()

		f.log.Warnf("Feed load failed, keeping current list: %v", err)
		if len(unread) > 0 {
			f.marker.MarkRead(unread)
			for _, fn := range subs {
				fn(listCopy)
			}
		}
		for _, ch := range waiters {
			ch <- err
		}
		return err
	}

	// Last full replace wins for the base list
	sort.SliceStable(fetched, func(i, j int) bool {
		return fetched[i].CreatedAt.After(fetched[j].CreatedAt)
	})
	f.list = fetched

	// Replay broadcasts received since the load was issued on top of the
	// result. When the fetch already contains the id, the fetched copy stays
	// where it is and the replayed one is dropped.
	for _, d := range f.buffered {
		if !f.containsLocked(d.NotificationID) {
			f.list = append([]models.Delivery{d}, f.list...)
		}
	}
	f.buffered = nil

	unread := make([]string, 0)
	for i := range f.list {
		if !f.list[i].IsRead {
			unread = append(unread, f.list[i].NotificationID)
			f.list[i].IsRead = true
		}
	}

	waiters := f.takeWaitersLocked()
	listCopy := f.copyLocked()
	subs := f.subsLocked()
	f.mu.Unlock()

	// Everything just fetched is visible and about to be read-marked, so the
	// badge drops to zero
	if len(unread) > 0 {
		f.marker.MarkRead(unread)
	}
	f.counter.Reset()

	for _, ch := range waiters {
		ch <- nil
	}
	for _, fn := range subs {
		fn(listCopy)
	}
	return nil
}

// ApplyBroadcast applies one matching live delivery while the drawer is
// open: prepend unless the id is already present, then mark it read. During
// an in-flight Load the delivery is buffered for replay instead.
func (f *FeedStore) ApplyBroadcast(d models.Delivery) {
	f.mu.Lock()
	if f.loading {
		f.buffered = append(f.buffered, d)
		f.mu.Unlock()
		return
	}

	if f.containsLocked(d.NotificationID) {
		// Re-delivery, not an error
		f.mu.Unlock()
		return
	}

	d.IsRead = true
	f.list = append([]models.Delivery{d}, f.list...)
	listCopy := f.copyLocked()
	subs := f.subsLocked()
	f.mu.Unlock()

	f.marker.MarkRead([]string{d.NotificationID})

	for _, fn := range subs {
		fn(listCopy)
	}
}

// List returns a copy of the current delivery list
func (f *FeedStore) List() []models.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyLocked()
}

// Subscribe registers an observer invoked with the new list on every change.
// The returned function unsubscribes.
func (f *FeedStore) Subscribe(fn func([]models.Delivery)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *FeedStore) containsLocked(id string) bool {
	for i := range f.list {
		if f.list[i].NotificationID == id {
			return true
		}
	}
	return false
}

func (f *FeedStore) copyLocked() []models.Delivery {
	out := make([]models.Delivery, len(f.list))
	copy(out, f.list)
	return out
}

func (f *FeedStore) subsLocked() []func([]models.Delivery) {
	subs := make([]func([]models.Delivery), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (f *FeedStore) takeWaitersLocked() []chan error {
	waiters := f.waiters
	f.waiters = nil
	return waiters
}
