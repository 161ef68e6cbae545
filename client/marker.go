package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReadMarker batches and deduplicates mark-as-read requests. At most one
// PATCH is in flight at a time; ids submitted during a flight are queued and
// sent in a follow-up batch once it resolves. Confirmed ids are never sent
// again. Failures are logged and the ids return to the pending batch, to be
// retried on the next trigger (drawer open or next push) - nothing is
// surfaced to the presentation layer.
type ReadMarker struct {
	api *API
	log *logrus.Logger

	mu        sync.Mutex
	pending   map[string]struct{}
	confirmed map[string]struct{}
	inflight  bool
}

func NewReadMarker(api *API, log *logrus.Logger) *ReadMarker {
	return &ReadMarker{
		api:       api,
		log:       log,
		pending:   make(map[string]struct{}),
		confirmed: make(map[string]struct{}),
	}
}

// MarkRead merges the ids into the pending batch and flushes if no request
// is in flight. Overlapping calls are safe: already-confirmed ids are
// dropped, already-pending ids merge into one entry.
func (m *ReadMarker) MarkRead(ids []string) {
	m.mu.Lock()
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, done := m.confirmed[id]; done {
			continue
		}
		m.pending[id] = struct{}{}
	}
	m.flushLocked()
}

// Retry re-triggers delivery of ids left pending by an earlier failure
func (m *ReadMarker) Retry() {
	m.mu.Lock()
	m.flushLocked()
}

// PendingCount reports how many ids await delivery
func (m *ReadMarker) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// flushLocked starts a flush goroutine when one is needed and none is
// running. Releases the lock.
func (m *ReadMarker) flushLocked() {
	if m.inflight {
		m.mu.Unlock()
		return
	}
	batch := m.takeBatchLocked()
	if len(batch) == 0 {
		m.mu.Unlock()
		return
	}
	m.inflight = true
	m.mu.Unlock()

	go m.flush(batch)
}

func (m *ReadMarker) flush(batch []string) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := m.api.MarkRead(ctx, batch)
		cancel()

		m.mu.Lock()
		if err != nil {
			// The whole batch returns to pending; the backend op is
			// idempotent so re-sending partially applied ids is safe
			for _, id := range batch {
				m.pending[id] = struct{}{}
			}
			m.inflight = false
			m.mu.Unlock()
			m.log.Warnf("Mark-read batch of %d failed, will retry: %v", len(batch), err)
			return
		}

		for _, id := range batch {
			m.confirmed[id] = struct{}{}
		}

		// Ids queued while the batch was in flight go out as a follow-up
		batch = m.takeBatchLocked()
		if len(batch) == 0 {
			m.inflight = false
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
	}
}

// takeBatchLocked drains the pending set, dropping ids confirmed in the
// meantime so an id is never re-sent after its batch succeeded
func (m *ReadMarker) takeBatchLocked() []string {
	batch := make([]string, 0, len(m.pending))
	for id := range m.pending {
		if _, done := m.confirmed[id]; done {
			continue
		}
		batch = append(batch, id)
	}
	m.pending = make(map[string]struct{})
	return batch
}
