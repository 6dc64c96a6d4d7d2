package mux

import "sync"

// PipeSocket is one end of an in-process socket pair. Delivery is
// synchronous: Send on one end invokes the peer's bound callback before
// returning. Used by tests and by hosts embedding a client in-process.
type PipeSocket struct {
	mu     sync.Mutex
	peer   *PipeSocket
	onData func(chunk []byte)
	closed bool
}

// Pipe creates two connected in-process sockets.
func Pipe() (*PipeSocket, *PipeSocket) {
	a := &PipeSocket{}
	b := &PipeSocket{}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers the line to the peer's callback. The line is copied, so
// the caller may reuse the buffer immediately.
func (p *PipeSocket) Send(line []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrSocketClosed
	}
	peer := p.peer
	p.mu.Unlock()

	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return ErrSocketClosed
	}
	onData := peer.onData
	peer.mu.Unlock()

	if onData != nil {
		chunk := make([]byte, len(line))
		copy(chunk, line)
		onData(chunk)
	}
	return nil
}

// Bind registers the receive callback.
func (p *PipeSocket) Bind(onData func(chunk []byte)) {
	p.mu.Lock()
	p.onData = onData
	p.mu.Unlock()
}

// Close marks this end closed. Sends from either end fail afterwards.
func (p *PipeSocket) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
