package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mzeidan/adboard_notifications/models"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

type subscription struct {
	id int
	fn func(models.Envelope)
}

// PushClient maintains the one websocket connection shared by every surface
// in a session and fans each broadcast envelope out to local subscribers.
// Handlers run on the single read goroutine, so they observe events in
// arrival order. Delivery is at-most-once: a dropped connection redelivers
// nothing, and the client re-dials with capped backoff. Reconnect observers
// let the session trigger a resync, which is the only defense against events
// missed while disconnected.
type PushClient struct {
	wsURL  string
	dialer *websocket.Dialer
	log    *logrus.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	subs          []subscription
	reconnectSubs map[int]func()
	nextID        int
	closed        bool
}

// NewPushClient prepares a client for the given websocket URL. The token is
// carried as a query parameter, matching the server's upgrade handler.
func NewPushClient(wsURL, token string, log *logrus.Logger) *PushClient {
	if token != "" {
		if u, err := url.Parse(wsURL); err == nil {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
			wsURL = u.String()
		}
	}
	return &PushClient{
		wsURL:         wsURL,
		dialer:        websocket.DefaultDialer,
		log:           log,
		reconnectSubs: make(map[int]func()),
	}
}

// Connect dials the push channel and starts the read loop
func (p *PushClient) Connect(ctx context.Context) error {
	conn, _, err := p.dialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	go p.run(conn)
	return nil
}

// Subscribe registers a handler invoked once per broadcast envelope, in
// arrival order. The returned function unsubscribes.
func (p *PushClient) Subscribe(fn func(models.Envelope)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs = append(p.subs, subscription{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i := range p.subs {
			if p.subs[i].id == id {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeReconnect registers a handler invoked after every successful
// re-dial. The returned function unsubscribes.
func (p *PushClient) SubscribeReconnect(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.reconnectSubs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.reconnectSubs, id)
	}
}

// Close tears the connection down and stops reconnecting
func (p *PushClient) Close() error {
	p.mu.Lock()
	p.closed = true
	conn := p.conn
	p.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (p *PushClient) run(conn *websocket.Conn) {
	for {
		p.readLoop(conn)

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		next := p.redial()
		if next == nil {
			return
		}
		conn = next
	}
}

func (p *PushClient) readLoop(conn *websocket.Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if !closed {
				p.log.Warnf("Push channel read error: %v", err)
			}
			conn.Close()
			return
		}
		p.dispatch(env)
	}
}

func (p *PushClient) dispatch(env models.Envelope) {
	p.mu.Lock()
	subs := make([]subscription, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, s := range subs {
		s.fn(env)
	}
}

// redial reconnects with capped exponential backoff, then notifies
// reconnect observers
func (p *PushClient) redial() *websocket.Conn {
	delay := reconnectBaseDelay
	for {
		time.Sleep(delay)

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		conn, _, err := p.dialer.Dial(p.wsURL, nil)
		if err != nil {
			p.log.Warnf("Push channel redial failed, retrying in %s: %v", delay, err)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		p.mu.Lock()
		p.conn = conn
		reconnectSubs := make([]func(), 0, len(p.reconnectSubs))
		for _, fn := range p.reconnectSubs {
			reconnectSubs = append(reconnectSubs, fn)
		}
		p.mu.Unlock()

		p.log.Info("Push channel reconnected")
		for _, fn := range reconnectSubs {
			fn()
		}
		return conn
	}
}
