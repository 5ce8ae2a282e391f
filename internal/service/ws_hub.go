package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"whatscrm/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const (
	wsSubscriberBuffer = 16
	wsWriteTimeout     = 5 * time.Second
)

type wsSubscriber struct {
	events    chan models.IntegrationEvent
	closeSlow func()
}

// WSHub fans integration events out to connected UI clients. A
// subscriber that cannot keep up with its buffer is disconnected so a
// stalled browser tab can never apply backpressure to ingestion.
type WSHub struct {
	mu          sync.RWMutex
	subscribers map[*wsSubscriber]struct{}
	logger      *logrus.Logger
}

func NewWSHub(logger *logrus.Logger) *WSHub {
	return &WSHub{
		subscribers: make(map[*wsSubscriber]struct{}),
		logger:      logger,
	}
}

// Broadcast queues an event for every connected subscriber. Never
// blocks: full subscriber buffers trigger an async disconnect instead.
func (h *WSHub) Broadcast(event models.IntegrationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			go sub.closeSlow()
		}
	}
}

// SubscriberCount returns the number of connected clients
func (h *WSHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeWS upgrades the request and streams events until the client
// disconnects or falls behind.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	err := h.subscribe(w, r)
	if err == nil ||
		websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if errorIsClosed(err) {
		return
	}
	h.logger.WithError(err).Debug("Websocket subscriber ended")
}

func (h *WSHub) subscribe(w http.ResponseWriter, r *http.Request) error {
	var mu sync.Mutex
	var conn *websocket.Conn
	var closed bool

	sub := &wsSubscriber{
		events: make(chan models.IntegrationEvent, wsSubscriberBuffer),
		closeSlow: func() {
			mu.Lock()
			defer mu.Unlock()
			closed = true
			if conn != nil {
				conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with events")
			}
		},
	}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub)

	accepted, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	mu.Lock()
	if closed {
		mu.Unlock()
		return net.ErrClosed
	}
	conn = accepted
	mu.Unlock()
	defer conn.CloseNow()

	// Clients only listen; CloseRead reaps the reader and cancels the
	// context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case event := <-sub.events:
			if err := writeWithTimeout(ctx, conn, event); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHub) addSubscriber(sub *wsSubscriber) {
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	h.logger.WithField("subscribers", h.SubscriberCount()).Debug("Websocket client connected")
}

func (h *WSHub) removeSubscriber(sub *wsSubscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	h.logger.WithField("subscribers", h.SubscriberCount()).Debug("Websocket client disconnected")
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, event models.IntegrationEvent) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}

func errorIsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}
