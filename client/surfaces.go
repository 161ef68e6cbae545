package client

import (
	"context"
	"sync"

	"github.com/mzeidan/adboard_notifications/models"
)

// Surfaces are pure consumers: they mirror counter and feed state for
// rendering and relay open/close intents back into the session. They never
// see fault states - only a counter value and a feed list.

// Badge mirrors the unread counter for the header badge
type Badge struct {
	mu    sync.Mutex
	count int
	unsub func()
}

// MountBadge subscribes a badge to the counter and hydrates it, as every
// surface mount does
func MountBadge(ctx context.Context, s *Session) *Badge {
	b := &Badge{count: s.Counter.Value()}
	b.unsub = s.Counter.Subscribe(func(v int) {
		b.mu.Lock()
		b.count = v
		b.mu.Unlock()
	})
	s.Counter.Hydrate(ctx)
	b.mu.Lock()
	b.count = s.Counter.Value()
	b.mu.Unlock()
	return b
}

// Count returns the rendered badge value
func (b *Badge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Unmount stops re-rendering. Pending requests keep updating session state
// regardless; the state is session-scoped, not surface-scoped.
func (b *Badge) Unmount() {
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
}

// AdminBadge is the admin-header variant of the badge. It renders the same
// session counter.
type AdminBadge struct {
	*Badge
}

func MountAdminBadge(ctx context.Context, s *Session) *AdminBadge {
	return &AdminBadge{Badge: MountBadge(ctx, s)}
}

// Drawer mirrors the feed list and counter for the slide-out history drawer
// and relays the open/close intents
type Drawer struct {
	session *Session

	mu      sync.Mutex
	entries []models.Delivery
	count   int
	unsubs  []func()
}

func MountDrawer(ctx context.Context, s *Session) *Drawer {
	d := &Drawer{
		session: s,
		entries: s.Feed.List(),
		count:   s.Counter.Value(),
	}
	unsubFeed := s.Feed.Subscribe(func(list []models.Delivery) {
		d.mu.Lock()
		d.entries = list
		d.mu.Unlock()
	})
	unsubCounter := s.Counter.Subscribe(func(v int) {
		d.mu.Lock()
		d.count = v
		d.mu.Unlock()
	})
	d.unsubs = []func(){unsubFeed, unsubCounter}
	s.Counter.Hydrate(ctx)
	return d
}

// Open reports the "opened" intent: the feed loads, unread entries get
// marked read and the counter resets
func (d *Drawer) Open(ctx context.Context) error {
	return d.session.OpenDrawer(ctx)
}

// Close reports the "closed" intent
func (d *Drawer) Close() {
	d.session.CloseDrawer()
}

// Entries returns the rendered delivery list
func (d *Drawer) Entries() []models.Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Delivery, len(d.entries))
	copy(out, d.entries)
	return out
}

// Count returns the rendered badge value
func (d *Drawer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Unmount stops re-rendering
func (d *Drawer) Unmount() {
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.unsubs = nil
}
