package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/termmux-dev/termmux/pkg/envelope"
	"github.com/termmux-dev/termmux/pkg/protocol"
)

// Client errors.
var (
	ErrClientClosed    = errors.New("mux: client closed")
	ErrUnexpectedReply = errors.New("mux: reply has unexpected envelope type")
)

// NotificationHandler receives one unsolicited request from the peer.
// Handlers for the same kind run sequentially in registration order.
type NotificationHandler func(*envelope.Request)

type subscriber struct {
	id uint64
	fn NotificationHandler
}

// Client correlates requests with responses and fans notifications out
// to listeners, all over one PacketStream.
//
// Pending requests have no expiry of their own. A caller that stops
// waiting cancels its context; the pending entry is removed on the way
// out, and a response arriving later is dropped as an orphan.
type Client struct {
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	stream     *PacketStream
	translator *envelope.Translator
	sessionID  string
	newID      func() string

	mu        sync.Mutex
	pending   map[string]chan envelope.Message
	listeners map[envelope.PayloadKind][]subscriber
	nextSub   uint64
	closed    bool
	done      chan struct{}
}

// NewClient creates a client speaking over the given socket.
func NewClient(socket Socket, opts ...Option) *Client {
	cfg := config{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var metrics *Metrics
	if cfg.registry != nil {
		metrics = NewMetrics(cfg.registry)
	}

	c := &Client{
		logger:     cfg.logger,
		metrics:    metrics,
		stream:     NewPacketStream(cfg.logger, metrics),
		translator: envelope.NewTranslator(envelope.WithGzip(cfg.gzip)),
		sessionID:  cfg.sessionID,
		newID:      cfg.newID,
		pending:    make(map[string]chan envelope.Message),
		listeners:  make(map[envelope.PayloadKind][]subscriber),
		done:       make(chan struct{}),
	}
	if cfg.tracerTP != nil {
		c.tracer = cfg.tracerTP.Tracer(tracerName)
	}

	c.stream.OnFrame(c.handleFrame)
	c.stream.SetSocket(socket)
	return c
}

// SetSocket swaps the transport, for reconnecting after the host
// restarts. In-flight Call and Ping waiters keep waiting and are
// answered over the new socket.
func (c *Client) SetSocket(s Socket) {
	c.stream.SetSocket(s)
}

// session resolves the session id for one operation: the caller's id
// when given, the client default otherwise.
func (c *Client) session(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return c.sessionID
}

// Send fires a request for the given session without waiting for a
// response. The peer may still answer; the response is then dropped as
// an orphan. An empty sessionID falls back to the client default.
func (c *Client) Send(sessionID string, payload envelope.Payload) error {
	return c.sendMessage(&envelope.Request{
		SessionID: c.session(sessionID),
		MessageID: c.newID(),
		Payload:   payload,
	})
}

// Call sends a request for the given session and waits for the
// correlated response payload. An empty sessionID falls back to the
// client default. Cancel the context to stop waiting; the response slot
// is cleaned up either way.
func (c *Client) Call(ctx context.Context, sessionID string, payload envelope.Payload) (envelope.Payload, error) {
	ctx, end := c.startSpan(ctx, "mux.Call",
		attribute.String("payload.kind", payload.Kind().String()))

	reply, err := c.roundTrip(ctx, func(id string) envelope.Message {
		return &envelope.Request{
			SessionID: c.session(sessionID),
			MessageID: id,
			Payload:   payload,
		}
	})
	if err != nil {
		end(err)
		return nil, err
	}

	resp, ok := reply.(*envelope.Response)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Tag())
		end(err)
		return nil, err
	}
	end(nil)
	return resp.Payload, nil
}

// Ping probes the peer and waits for the matching pong.
func (c *Client) Ping(ctx context.Context) error {
	ctx, end := c.startSpan(ctx, "mux.Ping")

	reply, err := c.roundTrip(ctx, func(id string) envelope.Message {
		return &envelope.Ping{MessageID: id}
	})
	if err != nil {
		end(err)
		return err
	}
	if _, ok := reply.(*envelope.Pong); !ok {
		err := fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Tag())
		end(err)
		return err
	}
	end(nil)
	return nil
}

// roundTrip inserts the pending entry, sends, and waits. The entry goes
// into the map before any bytes hit the socket, so a reply cannot
// arrive before the bookkeeping exists.
func (c *Client) roundTrip(ctx context.Context, build func(id string) envelope.Message) (envelope.Message, error) {
	id := c.newID()
	ch := make(chan envelope.Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.metrics.requestStarted()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.metrics.requestFinished()
	}()

	if err := c.sendMessage(build(id)); err != nil {
		return nil, err
	}

	select {
	case m := <-ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// OnNotification subscribes to unsolicited requests of one payload
// kind. The returned function unsubscribes and may be called more than
// once.
func (c *Client) OnNotification(kind envelope.PayloadKind, fn NotificationHandler) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.listeners[kind] = append(c.listeners[kind], subscriber{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		subs := c.listeners[kind]
		for i, s := range subs {
			if s.id == id {
				c.listeners[kind] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}
}

func (c *Client) sendMessage(m envelope.Message) error {
	frame, err := c.translator.Encode(m)
	if err != nil {
		return err
	}
	return c.stream.Write(frame)
}

// handleFrame runs on the socket delivery goroutine for every decoded
// frame.
func (c *Client) handleFrame(f *protocol.Frame) {
	m, err := c.translator.Decode(f)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "error", err)
		return
	}

	switch v := m.(type) {
	case *envelope.Response:
		c.fulfill(v.MessageID, v)

	case *envelope.Pong:
		c.fulfill(v.MessageID, v)

	case *envelope.Request:
		c.dispatchNotification(v)

	case *envelope.Ping:
		// Hosts answer pings; a ping reaching the client side is peer
		// confusion, not an error.
		c.logger.Debug("ignoring inbound ping", "message_id", v.MessageID)

	default:
		c.logger.Warn("dropping envelope with unknown tag", "tag", uint8(m.Tag()))
	}
}

// fulfill hands a reply to the waiter, exactly once. A reply with no
// waiter, including a duplicate for an already fulfilled id, is dropped.
func (c *Client) fulfill(id string, m envelope.Message) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping orphan reply", "message_id", id, "tag", m.Tag().String())
		c.metrics.recordOrphanResponse()
		return
	}
	ch <- m
}

func (c *Client) dispatchNotification(req *envelope.Request) {
	kind := req.Payload.Kind()

	if _, unknown := req.Payload.(*envelope.UnknownPayload); unknown {
		c.logger.Warn("dropping notification with unknown kind",
			"kind", uint8(kind), "message_id", req.MessageID)
		return
	}

	c.mu.Lock()
	subs := make([]subscriber, len(c.listeners[kind]))
	copy(subs, c.listeners[kind])
	c.mu.Unlock()

	if len(subs) == 0 {
		c.logger.Debug("no listeners for notification", "kind", kind.String())
		return
	}

	c.metrics.recordNotification(kind.String())
	for _, s := range subs {
		s.fn(req)
	}
}

// Close shuts the client down. Pending waiters return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.stream.Close()
}
