package mux

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/termmux-dev/termmux/pkg/protocol"
)

// PacketStream turns a byte Socket into a stream of whole frames. It
// feeds received chunks through an incremental line decoder, skips
// malformed lines, and fans decoded frames out to registered handlers.
//
// The socket can be replaced at any time with SetSocket. The swap
// discards whatever partial line the old socket left behind; chunks
// still in flight from the old socket are ignored.
type PacketStream struct {
	logger  *slog.Logger
	metrics *Metrics

	// writeMu serializes writes so concurrent senders cannot interleave
	// their line bytes.
	writeMu sync.Mutex

	mu         sync.Mutex
	socket     Socket
	dec        *protocol.LineDecoder
	generation uint64
	handlers   []func(*protocol.Frame)
	closed     bool
}

// NewPacketStream creates a stream with no socket attached. Writes fail
// with ErrNoSocket until SetSocket is called.
func NewPacketStream(logger *slog.Logger, metrics *Metrics) *PacketStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &PacketStream{
		logger:  logger,
		metrics: metrics,
		dec:     protocol.NewLineDecoder(),
	}
}

// OnFrame registers a handler for every decoded frame. Handlers run
// sequentially in registration order on the socket's delivery
// goroutine.
func (ps *PacketStream) OnFrame(fn func(*protocol.Frame)) {
	ps.mu.Lock()
	ps.handlers = append(ps.handlers, fn)
	ps.mu.Unlock()
}

// Write encodes the frame as one line and sends it on the current
// socket.
func (ps *PacketStream) Write(f *protocol.Frame) error {
	line := protocol.EncodeLine(f)

	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()

	ps.mu.Lock()
	sock := ps.socket
	closed := ps.closed
	ps.mu.Unlock()

	if closed {
		return ErrSocketClosed
	}
	if sock == nil {
		return ErrNoSocket
	}
	if err := sock.Send(line); err != nil {
		return err
	}
	ps.metrics.recordFrameSent()
	return nil
}

// SetSocket replaces the transport. The previous socket is closed, the
// receive buffer is discarded wholesale, and late chunks from the old
// socket no longer reach the decoder. Nothing else resets; in
// particular, whoever is waiting on request/response correlation above
// this stream keeps waiting.
func (ps *PacketStream) SetSocket(s Socket) {
	ps.mu.Lock()
	old := ps.socket
	ps.socket = s
	ps.generation++
	gen := ps.generation
	ps.dec.Reset()
	ps.mu.Unlock()

	if old != nil {
		old.Close()
		ps.metrics.recordSocketSwap()
	}

	s.Bind(func(chunk []byte) {
		ps.ingest(gen, chunk)
	})
}

// ingest feeds one received chunk through the decoder and dispatches
// any completed frames. Chunks from a superseded socket are dropped.
func (ps *PacketStream) ingest(gen uint64, chunk []byte) {
	ps.mu.Lock()
	if gen != ps.generation || ps.closed {
		ps.mu.Unlock()
		return
	}

	ps.dec.Feed(chunk)

	var frames []*protocol.Frame
	var errs []error
	for {
		f, err := ps.dec.Next()
		if f == nil && err == nil {
			break
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, f)
	}

	handlers := make([]func(*protocol.Frame), len(ps.handlers))
	copy(handlers, ps.handlers)
	ps.mu.Unlock()

	for _, err := range errs {
		code := "unknown"
		var fe *protocol.FramingError
		if errors.As(err, &fe) {
			code = fe.Code.String()
		}
		ps.logger.Warn("skipping malformed line", "error", err)
		ps.metrics.recordFramingError(code)
	}

	for _, f := range frames {
		ps.metrics.recordFrameReceived()
		for _, h := range handlers {
			h(f)
		}
	}
}

// Close shuts the stream down and closes the current socket.
func (ps *PacketStream) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	sock := ps.socket
	ps.socket = nil
	ps.mu.Unlock()

	if sock != nil {
		return sock.Close()
	}
	return nil
}
