package collab

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pairprep/pkg/utils/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChannelState is the explicit connection lifecycle.
type ChannelState int32

const (
	StateConnecting ChannelState = iota
	StateOpen
	StateClosed
)

const (
	sendQueueSize = 100
	writeDeadline = 5 * time.Second
)

// Channel owns exactly one stream connection for a
// (sessionID, userID, username) triple. Closing is terminal: there is no
// reconnect or backoff, re-entering a room creates a new Channel.
//
// Send is best-effort at-most-once: envelopes are silently dropped when the
// channel is not open. Callers must not assume delivery.
type Channel struct {
	sessionID string
	userID    string
	username  string

	conn    *websocket.Conn
	sendCh  chan []byte
	state   atomic.Int32
	done    chan struct{}
	ctx     context.Context
	once    sync.Once
	handler func(Envelope)
}

// Open dials the collaboration stream for a session and starts the read and
// write loops. The handler receives every decoded inbound envelope from a
// single goroutine, in delivery order. An introduce envelope is queued
// before anything else so peers can resolve identity first.
func Open(ctx context.Context, wsBaseURL, sessionID, userID, username string, handler func(Envelope)) (*Channel, error) {
	endpoint, err := streamEndpoint(wsBaseURL, sessionID, userID, username)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		sessionID: sessionID,
		userID:    userID,
		username:  username,
		sendCh:    make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		handler:   handler,
		ctx:       logger.WithSessionID(logger.WithUserID(context.Background(), userID), sessionID),
	}
	c.state.Store(int32(StateConnecting))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("dial collaboration stream failed: %w", err)
	}
	c.conn = conn
	c.state.Store(int32(StateOpen))

	// Queue introduce before the writer starts so it is the first frame out.
	if data, err := Encode(&Introduce{UserID: userID, Username: username}); err == nil {
		c.sendCh <- data
	}

	go c.writeLoop()
	go c.readLoop()

	logger.Info(c.ctx, "collaboration channel open", zap.String("endpoint", endpoint))
	return c, nil
}

func streamEndpoint(wsBaseURL, sessionID, userID, username string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(wsBaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid stream base URL: %w", err)
	}
	base.Path += "/ws/collab/" + url.PathEscape(sessionID)
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("username", username)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// State returns the current lifecycle state.
func (c *Channel) State() ChannelState {
	return ChannelState(c.state.Load())
}

// Ready reports whether envelopes can currently be sent.
func (c *Channel) Ready() bool {
	return c.State() == StateOpen
}

// Send encodes and queues one outbound envelope. It is a silent no-op when
// the channel is not open, and drops rather than blocks when the outbound
// queue is full.
func (c *Channel) Send(env Envelope) {
	if !c.Ready() {
		logger.Debug(c.ctx, "dropping send on non-open channel", zap.String("kind", string(env.Kind())))
		return
	}
	data, err := Encode(env)
	if err != nil {
		logger.Warn(c.ctx, "encode envelope failed", zap.String("kind", string(env.Kind())), zap.Error(err))
		return
	}
	select {
	case c.sendCh <- data:
	default:
		logger.Debug(c.ctx, "outbound queue full, dropping envelope", zap.String("kind", string(env.Kind())))
	}
}

// Close tears the channel down. Safe to call more than once; only the first
// call has effect.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		logger.Info(c.ctx, "collaboration channel closed")
	})
}

// Done is closed when the channel reaches the closed state.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// writeLoop is the single socket writer. Serializing writes through one
// goroutine keeps gorilla's one-writer constraint.
func (c *Channel) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				c.fail("set write deadline failed", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail("stream write failed", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop decodes inbound frames and hands envelopes to the handler.
// Malformed payloads are logged and skipped; they never close the channel.
func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail("stream read failed", err)
			return
		}
		env, err := Decode(data)
		if err != nil {
			logger.Warn(c.ctx, "malformed envelope dropped", zap.Error(err))
			continue
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

// fail flips ready off and closes the channel on transport error. Errors
// after a local Close are expected and only logged at debug.
func (c *Channel) fail(msg string, err error) {
	if c.State() == StateClosed {
		logger.Debug(c.ctx, msg, zap.Error(err))
		return
	}
	logger.Warn(c.ctx, msg, zap.Error(err))
	c.Close()
}
