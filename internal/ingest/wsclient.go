package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSConsumer connects to an upstream message feed over websocket and
// pushes decoded events into the shared pipeline channel. It reconnects
// with exponential backoff and keeps the connection alive with pings.
type WSConsumer struct {
	endpoint string
	events   chan<- Event

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pingInterval      time.Duration
	readTimeout       time.Duration

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWSConsumer creates a websocket message consumer.
func NewWSConsumer(endpoint string, events chan<- Event) *WSConsumer {
	return &WSConsumer{
		endpoint:          endpoint,
		events:            events,
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
		pingInterval:      30 * time.Second,
		readTimeout:       90 * time.Second,
		done:              make(chan struct{}),
	}
}

// Start connects and launches the read and ping loops.
func (c *WSConsumer) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	log.Info().Str("endpoint", c.endpoint).Msg("websocket consumer started")
	return nil
}

// Close shuts the consumer down.
func (c *WSConsumer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *WSConsumer) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *WSConsumer) readLoop() {
	defer c.wg.Done()

	delay := c.reconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect(delay) {
				return
			}
			delay *= 2
			if delay > c.maxReconnectDelay {
				delay = c.maxReconnectDelay
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			log.Warn().Err(err).Msg("websocket read failed, reconnecting")
			c.connMu.Lock()
			c.conn.Close()
			c.conn = nil
			c.connMu.Unlock()
			continue
		}

		delay = c.reconnectDelay
		c.dispatch(message)
	}
}

// reconnect waits out the backoff delay then redials. Returns false
// when the consumer is shutting down.
func (c *WSConsumer) reconnect(delay time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		log.Warn().Err(err).Msg("websocket reconnect failed")
	}
	return true
}

func (c *WSConsumer) dispatch(message []byte) {
	var ev Event
	if err := json.Unmarshal(message, &ev); err != nil {
		log.Warn().Err(err).Msg("unparseable websocket frame dropped")
		return
	}
	if ev.Text == "" {
		return
	}
	ev.Normalize()

	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *WSConsumer) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
