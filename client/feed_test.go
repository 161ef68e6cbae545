package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzeidan/adboard_notifications/models"
)

func newFeedFixture(t *testing.T) (*stubBackend, *FeedStore, *UnreadCounter, *ReadMarker) {
	backend := newStubBackend(t)
	log := newTestLogger()
	api := NewAPI(backend.URL(), "token", log)
	counter := NewUnreadCounter(api, log)
	marker := NewReadMarker(api, log)
	feed := NewFeedStore(api, counter, marker, log)
	return backend, feed, counter, marker
}

func TestFeedLoadReplacesAndMarksUnread(t *testing.T) {
	backend, feed, counter, marker := newFeedFixture(t)
	base := time.Now().Add(-time.Hour)
	backend.addDelivery(delivery("n1", "u1", true, base))
	backend.addDelivery(delivery("n2", "u1", false, base.Add(time.Minute)))
	backend.addDelivery(delivery("n3", "u1", false, base.Add(2*time.Minute)))

	counter.Add(2)
	require.NoError(t, feed.Load(context.Background()))

	list := feed.List()
	require.Len(t, list, 3)
	// Newest first
	assert.Equal(t, "n3", list[0].NotificationID)
	assert.Equal(t, "n2", list[1].NotificationID)
	assert.Equal(t, "n1", list[2].NotificationID)

	// Everything rendered is read
	for _, d := range list {
		assert.True(t, d.IsRead)
	}

	// The two unread ids were handed to the marker and the counter reset
	assert.Equal(t, 0, counter.Value())
	require.Eventually(t, func() bool {
		return marker.PendingCount() == 0 && len(backend.allMarked()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"n2", "n3"}, backend.allMarked())
}

func TestFeedBroadcastPrependAndDedup(t *testing.T) {
	backend, feed, _, _ := newFeedFixture(t)
	base := time.Now().Add(-time.Hour)
	backend.addDelivery(delivery("n1", "u1", true, base))
	require.NoError(t, feed.Load(context.Background()))

	d := delivery("n2", "u1", false, time.Now())
	feed.ApplyBroadcast(d)

	list := feed.List()
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].NotificationID)
	assert.True(t, list[0].IsRead, "seen the instant it was rendered")

	// Re-delivery of the same id is ignored, not appended twice
	feed.ApplyBroadcast(d)
	assert.Len(t, feed.List(), 2)

	require.Eventually(t, func() bool { return len(backend.allMarked()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"n2"}, backend.allMarked())
}

// The single most bug-prone point in the system: a broadcast arriving while
// a load is in flight must still be applied once the replace completes.
func TestFeedBuffersBroadcastsDuringLoad(t *testing.T) {
	backend, feed, counter, _ := newFeedFixture(t)
	base := time.Now().Add(-time.Hour)
	backend.addDelivery(delivery("n1", "u1", false, base))

	gate := make(chan struct{})
	backend.setLoadGate(gate)

	loadErr := make(chan error, 1)
	go func() { loadErr <- feed.Load(context.Background()) }()

	// Wait until the load is in flight
	require.Eventually(t, func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.loading
	}, 2*time.Second, 5*time.Millisecond)

	// Broadcast lands mid-load: it must be buffered, not lost
	pushed := delivery("n2", "u1", false, time.Now())
	feed.ApplyBroadcast(pushed)
	assert.Empty(t, feed.List(), "broadcast must not apply before the replace")

	backend.setLoadGate(nil)
	close(gate)
	require.NoError(t, <-loadErr)

	list := feed.List()
	require.Len(t, list, 2)
	assert.Equal(t, "n2", list[0].NotificationID, "replayed broadcast goes on top")
	assert.Equal(t, "n1", list[1].NotificationID)
	assert.Equal(t, 0, counter.Value())

	require.Eventually(t, func() bool { return len(backend.allMarked()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"n1", "n2"}, backend.allMarked())
}

func TestFeedBufferedDuplicateOfFetchedEntryIsDropped(t *testing.T) {
	backend, feed, _, _ := newFeedFixture(t)
	raced := delivery("n1", "u1", false, time.Now())
	backend.addDelivery(raced)

	gate := make(chan struct{})
	backend.setLoadGate(gate)

	loadErr := make(chan error, 1)
	go func() { loadErr <- feed.Load(context.Background()) }()
	require.Eventually(t, func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.loading
	}, 2*time.Second, 5*time.Millisecond)

	// The same delivery arrives over push while the fetch that already
	// contains it is in flight
	feed.ApplyBroadcast(raced)

	backend.setLoadGate(nil)
	close(gate)
	require.NoError(t, <-loadErr)

	assert.Len(t, feed.List(), 1, "fetch copy and buffered push copy must dedup to one entry")
}

func TestFeedConcurrentLoadsCoalesce(t *testing.T) {
	backend, feed, _, _ := newFeedFixture(t)
	backend.addDelivery(delivery("n1", "u1", false, time.Now()))

	gate := make(chan struct{})
	backend.setLoadGate(gate)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = feed.Load(context.Background())
		}(i)
	}

	// Only one fetch should be issued; release it and all callers resolve
	time.Sleep(100 * time.Millisecond)
	backend.setLoadGate(nil)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, feed.List(), 1)
}

func TestFeedLoadFailureKeepsLastKnownGood(t *testing.T) {
	backend, feed, _, _ := newFeedFixture(t)
	backend.addDelivery(delivery("n1", "u1", true, time.Now()))
	require.NoError(t, feed.Load(context.Background()))
	require.Len(t, feed.List(), 1)

	backend.setFailList(true)
	require.Error(t, feed.Load(context.Background()))
	assert.Len(t, feed.List(), 1, "failed load must keep the last-known-good list")
}

// A broadcast that lands while a load is in flight arrived intact even when
// the fetch then fails; it must survive onto the last-known-good list.
func TestFeedFailedLoadReplaysBufferedBroadcasts(t *testing.T) {
	backend, feed, _, _ := newFeedFixture(t)
	backend.addDelivery(delivery("n1", "u1", true, time.Now().Add(-time.Hour)))
	require.NoError(t, feed.Load(context.Background()))
	require.Len(t, feed.List(), 1)

	backend.setFailList(true)
	gate := make(chan struct{})
	backend.setLoadGate(gate)

	loadErr := make(chan error, 1)
	go func() { loadErr <- feed.Load(context.Background()) }()
	require.Eventually(t, func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.loading
	}, 2*time.Second, 5*time.Millisecond)

	pushed := delivery("n2", "u1", false, time.Now())
	feed.ApplyBroadcast(pushed)

	backend.setLoadGate(nil)
	close(gate)
	require.Error(t, <-loadErr)

	list := feed.List()
	require.Len(t, list, 2, "buffered broadcast must not be lost to the failed fetch")
	assert.Equal(t, "n2", list[0].NotificationID)
	assert.True(t, list[0].IsRead)
	assert.Equal(t, "n1", list[1].NotificationID)

	// It rendered, so it gets read-marked like any applied broadcast
	require.Eventually(t, func() bool { return len(backend.allMarked()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"n2"}, backend.allMarked())
}

func TestFeedSubscribeNotifiesOnChange(t *testing.T) {
	backend, feed, _, _ := newFeedFixture(t)
	backend.addDelivery(delivery("n1", "u1", true, time.Now()))

	var mu sync.Mutex
	var renders [][]models.Delivery
	unsub := feed.Subscribe(func(list []models.Delivery) {
		mu.Lock()
		renders = append(renders, list)
		mu.Unlock()
	})

	require.NoError(t, feed.Load(context.Background()))
	feed.ApplyBroadcast(delivery("n2", "u1", false, time.Now()))

	mu.Lock()
	require.Len(t, renders, 2)
	assert.Len(t, renders[0], 1)
	assert.Len(t, renders[1], 2)
	mu.Unlock()

	unsub()
	feed.ApplyBroadcast(delivery("n3", "u1", false, time.Now()))
	mu.Lock()
	assert.Len(t, renders, 2, "unsubscribed observer must not fire")
	mu.Unlock()
}
