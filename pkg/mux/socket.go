package mux

import "errors"

// Socket errors.
var (
	ErrSocketClosed = errors.New("mux: socket closed")
	ErrNoSocket     = errors.New("mux: no socket attached")
)

// Socket is a byte transport carrying encoded frame lines. Chunk
// boundaries on the receive side carry no meaning; a line may arrive
// split across chunks or share a chunk with its neighbors.
type Socket interface {
	// Send writes one encoded line. Implementations must be safe for
	// concurrent use.
	Send(line []byte) error

	// Bind registers the receive callback and starts delivery. Chunks
	// are delivered sequentially, never concurrently. Bind replaces any
	// previously bound callback.
	Bind(onData func(chunk []byte))

	// Close tears the transport down. Send returns ErrSocketClosed
	// afterwards.
	Close() error
}
