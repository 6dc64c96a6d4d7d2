package protocol

import (
	"bytes"
	"encoding/base64"
)

// lineEnding is appended to every encoded frame. Receivers also accept
// "\r\n" because some transports rewrite line endings in transit.
const lineEnding = '\n'

// EncodeLine encodes a frame as one printable wire line: base64 of the
// binary frame plus exactly one terminating newline. The base64 alphabet
// contains no terminator bytes, so the token/terminator split is
// unambiguous. Callers that share a transport must serialize calls so
// each line is appended atomically.
func EncodeLine(f *Frame) []byte {
	raw := f.Encode()
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw))+1)
	base64.StdEncoding.Encode(out, raw)
	out[len(out)-1] = lineEnding
	return out
}

// LineDecoder incrementally decodes a stream of wire lines into frames.
//
// The decoder owns an append-only buffer: Feed adds received chunks and
// Next scans the cumulative buffer for the earliest line terminator.
// Tokens are validated and structurally decoded; a malformed token
// yields a FramingError and the decoder still advances past it, so a
// single bad line never stalls the stream.
//
// LineDecoder is not safe for concurrent use.
type LineDecoder struct {
	buf []byte
}

// NewLineDecoder creates an empty incremental decoder.
func NewLineDecoder() *LineDecoder {
	return &LineDecoder{}
}

// Feed appends a received chunk to the decode buffer. The chunk is
// copied; the caller may reuse p.
func (ld *LineDecoder) Feed(p []byte) {
	ld.buf = append(ld.buf, p...)
}

// Buffered returns the number of bytes waiting for a terminator.
func (ld *LineDecoder) Buffered() int {
	return len(ld.buf)
}

// Reset discards all buffered bytes. Called when the underlying
// transport is replaced: partial input from the old transport must never
// combine with input from the new one.
func (ld *LineDecoder) Reset() {
	ld.buf = nil
}

// Next returns the next complete frame from the buffer.
//
// Return states:
//   - (frame, nil): one complete, valid frame; buffer advanced past it.
//   - (nil, err): a complete but malformed line; buffer advanced past it.
//     err is always a *FramingError.
//   - (nil, nil): no complete line buffered yet. This is a non-blocking
//     "needs more data" signal; the buffer is left untouched.
func (ld *LineDecoder) Next() (*Frame, error) {
	i := bytes.IndexAny(ld.buf, "\r\n")
	if i < 0 {
		if len(ld.buf) > MaxLineLength {
			// No terminator within the ceiling. Drop what we have so a
			// runaway or hostile peer cannot grow the buffer without
			// bound; the stream resyncs at the next terminator.
			ld.buf = nil
			return nil, newFramingError(FramingLineTooLong, nil)
		}
		return nil, nil
	}

	end := i + 1
	if ld.buf[i] == '\r' {
		if i+1 >= len(ld.buf) {
			// A trailing '\r' may be the first half of a "\r\n" split
			// across two chunks. Wait for the next byte.
			return nil, nil
		}
		if ld.buf[i+1] == '\n' {
			end = i + 2
		}
	}

	token := ld.buf[:i]
	frame, err := decodeToken(token)

	// Advance past the consumed terminator in every case; the remainder
	// keeps its backing array since it is consumed before the next Feed.
	ld.buf = ld.buf[end:]
	return frame, err
}

// decodeToken validates and decodes one extracted line token.
func decodeToken(token []byte) (*Frame, error) {
	if len(token) == 0 {
		return nil, newFramingError(FramingEmptyLine, nil)
	}
	if len(token) > MaxLineLength {
		return nil, newFramingError(FramingLineTooLong, nil)
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(token)))
	n, err := base64.StdEncoding.Decode(raw, token)
	if err != nil {
		return nil, newFramingError(FramingBadAlphabet, err)
	}

	return DecodeFrame(raw[:n])
}
