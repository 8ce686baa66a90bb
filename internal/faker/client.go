package faker

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
	"github.com/dgnsrekt/gex-live/internal/token"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Subscription batches can be large.
	maxMessageSize = 4 * 1024 * 1024

	// Send buffer size per client.
	sendBufferSize = 512

	// Events per FEED_DATA message.
	feedBatchSize = 100

	feedChannel = 1
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins for faker
}

// Client is one feed connection and its dxLink session state.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	connID string
	logger *zap.Logger

	mu          sync.Mutex
	closed      bool
	authorized  bool
	stalled     bool
	channelOpen bool
	subs        []dxlink.Subscription
	subscribed  map[dxlink.Subscription]bool
}

// HandleRealtime upgrades the request and serves one dxLink session.
func (s *Server) HandleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		server:     s,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		connID:     uuid.New().String(),
		logger:     s.logger,
		subscribed: make(map[dxlink.Subscription]bool),
	}

	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.server.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump writes queued messages and streams feed data on every tick.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.server.interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.tick()
		}
	}
}

// handleMessage processes an incoming client message.
func (c *Client) handleMessage(data []byte) {
	msg, err := parseUpstreamMessage(data)
	if err != nil {
		c.logger.Debug("failed to parse upstream message",
			zap.String("connID", c.connID),
			zap.Error(err),
		)
		c.enqueue(buildErrorMessage(0, "BAD_ACTION", err.Error()))
		return
	}

	switch msg.Type {
	case dxlink.TypeSetup:
		c.enqueue(buildSetupMessage())
		if c.server.stall {
			c.mu.Lock()
			c.stalled = true
			c.mu.Unlock()
			return
		}
		c.enqueue(buildAuthStateMessage(dxlink.AuthStateUnauthorized))

	case dxlink.TypeAuth:
		if !c.server.validToken(msg.Token) {
			c.logger.Debug("auth rejected",
				zap.String("connID", c.connID),
				zap.String("token", token.MaskToken(msg.Token)),
			)
			c.enqueue(buildErrorMessage(0, "UNAUTHORIZED", "invalid token"))
			c.enqueue(buildAuthStateMessage(dxlink.AuthStateUnauthorized))
			return
		}
		c.mu.Lock()
		c.authorized = true
		c.mu.Unlock()
		c.enqueue(buildAuthStateMessage(dxlink.AuthStateAuthorized))

	case dxlink.TypeChannelRequest:
		c.mu.Lock()
		authorized := c.authorized
		c.channelOpen = authorized && msg.Service == "FEED"
		open := c.channelOpen
		c.mu.Unlock()

		if !open {
			c.enqueue(buildErrorMessage(msg.Channel, "UNAUTHORIZED", "channel requires an authorized FEED request"))
			return
		}
		c.enqueue(buildChannelOpenedMessage(msg.Channel))

	case dxlink.TypeFeedSubscription:
		added := c.addSubscriptions(msg.Add)
		if added == nil {
			c.enqueue(buildErrorMessage(msg.Channel, "BAD_ACTION", "feed channel is not open"))
			return
		}
		c.logger.Debug("feed subscription",
			zap.String("connID", c.connID),
			zap.Int("added", len(added)),
		)
		c.publish(added)

	case dxlink.TypeKeepalive:
		// nothing to do

	default:
		c.enqueue(buildErrorMessage(msg.Channel, "UNSUPPORTED_PROTOCOL", "unknown message type "+msg.Type))
	}
}

// addSubscriptions records new pairs and returns them; nil when the channel
// is not open.
func (c *Client) addSubscriptions(subs []dxlink.Subscription) []dxlink.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.channelOpen {
		return nil
	}

	added := make([]dxlink.Subscription, 0, len(subs))
	for _, sub := range subs {
		if c.subscribed[sub] {
			continue
		}
		c.subscribed[sub] = true
		c.subs = append(c.subs, sub)
		added = append(added, sub)
	}
	return added
}

// tick streams the current market state for every subscription.
func (c *Client) tick() {
	c.mu.Lock()
	stalled := c.stalled
	subs := append([]dxlink.Subscription(nil), c.subs...)
	c.mu.Unlock()

	if stalled {
		c.enqueue(buildKeepaliveMessage())
		return
	}
	c.publish(subs)
}

// publish sends FEED_DATA batches for the given subscriptions.
func (c *Client) publish(subs []dxlink.Subscription) {
	batch := make([]dxlink.Event, 0, feedBatchSize)
	for _, sub := range subs {
		ev, ok := c.server.market.Event(sub)
		if !ok {
			continue
		}
		batch = append(batch, ev)
		if len(batch) == feedBatchSize {
			c.enqueue(buildFeedDataMessage(feedChannel, batch))
			batch = make([]dxlink.Event, 0, feedBatchSize)
		}
	}
	if len(batch) > 0 {
		c.enqueue(buildFeedDataMessage(feedChannel, batch))
	}
}

// enqueue queues a message; a full buffer disconnects the client.
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		// Buffer full, schedule disconnect
		go c.server.hub.Unregister(c)
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
