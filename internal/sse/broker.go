// Package sse implements a Server-Sent Events broker that streams each
// user's own capture and journal events.
package sse

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Event types.
const (
	EventCaptureCreated       = "capture.created"
	EventCaptureDeleted       = "capture.deleted"
	EventJournalCreated       = "journal.created"
	EventTaskCommitted        = "task.committed"
	EventInteractionCommitted = "interaction.committed"
	EventUsageUpdated         = "usage.updated"
)

// Event is delivered only to subscribers of OwnerID.
type Event struct {
	OwnerID string `json:"-"`
	Type    string `json:"type"`
	Data    any    `json:"data"`
}

type subscription struct {
	owner string
	ch    chan []byte
}

// Broker manages SSE client connections and routes events to their owner.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-owner usage throttle). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	usageMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	usageCh       chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits usage.updated at most once per
// usageThrottle for each owner.
func NewBroker(usageThrottle time.Duration) *Broker {
	if usageThrottle <= 0 {
		usageThrottle = 2 * time.Second
	}

	b := &Broker{
		usageMin:      usageThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		usageCh:       make(chan string, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastUsage := make(map[string]time.Time)

	deliver := func(event Event) {
		raw, err := encode(event)
		if err != nil {
			return
		}
		for ch, owner := range clients {
			if owner != event.OwnerID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.owner

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			deliver(event)

		case owner := <-b.usageCh:
			now := time.Now()
			if now.Sub(lastUsage[owner]) >= b.usageMin {
				lastUsage[owner] = now
				deliver(Event{OwnerID: owner, Type: EventUsageUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client for ownerID and returns its channel.
func (b *Broker) Subscribe(ownerID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{owner: ownerID, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the owner's connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishUsage notifies the owner that their usage changed, throttled.
func (b *Broker) PublishUsage(ownerID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.usageCh <- ownerID:
	case <-b.stopped:
	}
}

// Serve streams ownerID's events until the client disconnects.
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, ownerID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(ownerID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
