package dxlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for each handshake reply.
	handshakeTimeout = 10 * time.Second

	// Handshake replies read before giving up on AUTHORIZED / CHANNEL_OPENED.
	maxHandshakeMessages = 16

	// Maximum message size allowed from peer. FEED_DATA batches can be large.
	maxMessageSize = 4 * 1024 * 1024

	// Buffered server messages awaiting a Next call.
	incomingBufferSize = 1024
)

// State is the session's position in the handshake.
type State int

const (
	StateDisconnected State = iota
	StateNegotiating
	StateUnauthenticated
	StateAuthorized
	StateChannelOpen
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateNegotiating:
		return "negotiating"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorized:
		return "authorized"
	case StateChannelOpen:
		return "channel_open"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Session is one dxLink connection. It is owned by a single consumer; only
// the read pump runs concurrently with it. Close and State may be called
// from any goroutine.
type Session struct {
	conn   *websocket.Conn
	logger *zap.Logger

	incoming chan []byte
	done     chan struct{} // closed when the read pump exits
	closing  chan struct{}
	readErr  error

	closeOnce sync.Once
	state     atomic.Int32
	pending   *Message
	lastWrite time.Time
}

// Dial opens the websocket connection and starts the read pump. The session
// still has to go through Setup, Authorize and OpenChannel.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	conn.SetReadLimit(maxMessageSize)

	s := &Session{
		conn:     conn,
		logger:   logger,
		incoming: make(chan []byte, incomingBufferSize),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	go s.readPump()

	logger.Debug("dxlink connected", zap.String("url", url))
	return s, nil
}

// Connect dials and runs the full handshake: SETUP, AUTH, CHANNEL_REQUEST.
// Any failure closes the connection.
func Connect(ctx context.Context, url, token string, logger *zap.Logger) (*Session, error) {
	s, err := Dial(ctx, url, logger)
	if err != nil {
		return nil, err
	}

	if err := s.Setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.Authorize(ctx, token); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.OpenChannel(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// State returns the current handshake state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// readPump moves frames off the socket so Next can time out without
// touching the connection's read deadline.
func (s *Session) readPump() {
	defer close(s.done)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr = err
			return
		}

		select {
		case s.incoming <- message:
		case <-s.closing:
			return
		}
	}
}

// Setup declares the protocol version and keepalive and waits for the
// server's acknowledgement.
func (s *Session) Setup(ctx context.Context) error {
	s.setState(StateNegotiating)

	err := s.send(setupMessage{
		Type:                   TypeSetup,
		Channel:                controlChannel,
		KeepaliveTimeout:       keepaliveTimeout,
		AcceptKeepaliveTimeout: keepaliveTimeout,
		Version:                protocolVersion,
	})
	if err != nil {
		return fmt.Errorf("%w: sending setup: %v", ErrHandshake, err)
	}

	msg, err := s.handshakeNext(ctx)
	if err != nil {
		return fmt.Errorf("%w: waiting for setup ack: %v", ErrHandshake, err)
	}

	switch msg.Type {
	case TypeError:
		return fmt.Errorf("%w: setup refused: %s", ErrHandshake, msg.describe())
	case TypeAuthState:
		// Some servers skip the SETUP echo; keep the notice for Authorize.
		s.pending = &msg
	}

	s.setState(StateUnauthenticated)
	s.logger.Debug("dxlink setup acknowledged", zap.String("reply", msg.Type))
	return nil
}

// Authorize waits for AUTH_STATE notices, sending token once when the
// server reports UNAUTHORIZED, until AUTHORIZED is observed.
func (s *Session) Authorize(ctx context.Context, token string) error {
	sent := false

	for i := 0; i < maxHandshakeMessages; i++ {
		msg, err := s.handshakeNext(ctx)
		if err != nil {
			return fmt.Errorf("%w: waiting for auth state: %v", ErrHandshake, err)
		}

		switch msg.Type {
		case TypeAuthState:
			switch msg.State {
			case AuthStateAuthorized:
				s.setState(StateAuthorized)
				s.logger.Debug("dxlink authorized")
				return nil

			case AuthStateUnauthorized:
				if sent {
					return fmt.Errorf("%w: token not accepted", ErrAuthRejected)
				}
				if err := s.send(authMessage{Type: TypeAuth, Channel: controlChannel, Token: token}); err != nil {
					return fmt.Errorf("%w: sending auth: %v", ErrHandshake, err)
				}
				sent = true

			default:
				return fmt.Errorf("%w: unexpected auth state %q", ErrAuthRejected, msg.State)
			}

		case TypeError:
			return fmt.Errorf("%w: %s", ErrAuthRejected, msg.describe())
		}
	}

	return fmt.Errorf("%w: not authorized after %d messages", ErrHandshake, maxHandshakeMessages)
}

// OpenChannel requests the FEED service on channel 1. Any confirmation on
// that channel counts; its payload is not inspected.
func (s *Session) OpenChannel(ctx context.Context) error {
	err := s.send(channelRequestMessage{
		Type:       TypeChannelRequest,
		Channel:    feedChannel,
		Service:    "FEED",
		Parameters: channelParameters{Contract: "AUTO"},
	})
	if err != nil {
		return fmt.Errorf("%w: sending channel request: %v", ErrHandshake, err)
	}

	for i := 0; i < maxHandshakeMessages; i++ {
		msg, err := s.handshakeNext(ctx)
		if err != nil {
			return fmt.Errorf("%w: waiting for channel: %v", ErrHandshake, err)
		}

		switch {
		case msg.Type == TypeError:
			return fmt.Errorf("%w: channel refused: %s", ErrHandshake, msg.describe())
		case msg.Type == TypeChannelOpened || msg.Channel == feedChannel:
			s.setState(StateChannelOpen)
			s.logger.Debug("dxlink feed channel open", zap.String("reply", msg.Type))
			return nil
		}
	}

	return fmt.Errorf("%w: channel not confirmed after %d messages", ErrHandshake, maxHandshakeMessages)
}

// Subscribe adds subscriptions on the feed channel. It may be called any
// number of times once the channel is open.
func (s *Session) Subscribe(ctx context.Context, subs []Subscription) error {
	if s.State() < StateChannelOpen {
		return fmt.Errorf("subscribing in state %s: %w", s.State(), ErrHandshake)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	err := s.send(feedSubscriptionMessage{
		Type:    TypeFeedSubscription,
		Channel: feedChannel,
		Add:     subs,
	})
	if err != nil {
		return fmt.Errorf("sending subscription: %w", err)
	}

	s.setState(StateSubscribed)
	s.logger.Debug("dxlink subscribed", zap.Int("subscriptions", len(subs)))
	return nil
}

// Next returns the next decoded server message. KEEPALIVE messages are
// answered and skipped. It returns ErrReadTimeout when nothing else arrives
// within timeout (no limit when timeout <= 0), and ErrClosed once the
// connection is gone and its buffer is drained.
func (s *Session) Next(ctx context.Context, timeout time.Duration) (Message, error) {
	if s.pending != nil {
		msg := *s.pending
		s.pending = nil
		return msg, nil
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	for {
		var raw []byte

		select {
		case raw = <-s.incoming:

		case <-s.done:
			select {
			case raw = <-s.incoming:
			default:
				return Message{}, s.closedErr()
			}

		case <-timeoutC:
			s.maybeKeepalive()
			return Message{}, ErrReadTimeout

		case <-ctx.Done():
			return Message{}, ctx.Err()
		}

		msg, err := s.decode(raw)
		if err != nil {
			return Message{}, err
		}
		if msg.Type == TypeKeepalive {
			continue
		}
		return msg, nil
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
		s.setState(StateDisconnected)
	})
	return err
}

func (s *Session) decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if msg.Type == TypeKeepalive {
		if err := s.send(keepaliveMessage{Type: TypeKeepalive, Channel: controlChannel}); err != nil {
			s.logger.Debug("dxlink keepalive reply failed", zap.Error(err))
		}
	} else {
		s.maybeKeepalive()
	}
	return msg, nil
}

// handshakeNext reads one handshake reply. Unlike collection loops, the
// handshake treats timeouts and malformed frames as fatal.
func (s *Session) handshakeNext(ctx context.Context) (Message, error) {
	return s.Next(ctx, handshakeTimeout)
}

// maybeKeepalive keeps the server's idle timer fed on long quiet windows.
func (s *Session) maybeKeepalive() {
	if s.State() < StateAuthorized || time.Since(s.lastWrite) < keepaliveTimeout*time.Second/2 {
		return
	}
	if err := s.send(keepaliveMessage{Type: TypeKeepalive, Channel: controlChannel}); err != nil {
		s.logger.Debug("dxlink keepalive failed", zap.Error(err))
	}
}

func (s *Session) send(v any) error {
	select {
	case <-s.done:
		return s.closedErr()
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %T: %w", v, err)
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.lastWrite = time.Now()
	return nil
}

func (s *Session) closedErr() error {
	if s.readErr == nil || websocket.IsCloseError(s.readErr, websocket.CloseNormalClosure) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %v", ErrClosed, s.readErr)
}
