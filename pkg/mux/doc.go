// Package mux multiplexes request/response and notification traffic over
// a single line-framed duplex connection.
//
// The layers stack bottom-up:
//
//	Socket       byte transport (in-process pipe or WebSocket)
//	PacketStream line framing, incremental decode, socket swapping
//	Client       message correlation, pings, notification fan-out
//
// A PacketStream owns exactly one Socket at a time. Swapping the socket
// with SetSocket discards any partially received line but leaves
// in-flight requests pending, so a reconnect does not fail callers that
// are still waiting; their responses arrive over the new socket.
//
// Client.Call correlates responses by message id. The pending entry is
// inserted before the request bytes reach the socket, so a response
// cannot race the bookkeeping no matter how fast the peer answers.
package mux
