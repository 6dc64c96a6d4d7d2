// Package protocol implements the binary wire protocol for termmux.
//
// The protocol carries multiplexed session traffic between a front-end
// client and a host process over any duplex text transport. Every frame
// travels as one printable line, so the stream survives transports that
// normalize or re-chunk text (web terminals, PTYs, line-buffered pipes).
//
// # Wire Format
//
// A frame is binary-encoded, then base64-encoded, then terminated with a
// single newline. Receivers accept both "\n" and "\r\n" terminators.
//
// Binary layout before base64:
//
//	┌─────────────┬──────────────┬───────────────┬───────────────┐
//	│ Version     │ Compression  │ Nonce         │ Inner         │
//	│ (u16, BE)   │ (1 byte)     │ (len-prefixed)│ (len-prefixed)│
//	└─────────────┴──────────────┴───────────────┴───────────────┘
//
// The codec never interprets Inner; higher layers attach and validate
// the application envelope (see package envelope).
//
// # Encoding
//
//   - Varint: compact encoding for small integers (protobuf-style)
//   - ZigZag: signed integers encoded as unsigned varints
//   - Length-prefixed: strings and byte arrays prefixed with varint length
//   - Big-endian: fixed-width integers (uint16)
//
// # Incremental Decoding
//
// LineDecoder accumulates received chunks and yields complete frames as
// terminators arrive. A terminator split across two chunks is recognized
// once both chunks are buffered. A malformed line produces a FramingError
// and the decoder advances past it; one bad line never stalls the stream.
//
//	dec := protocol.NewLineDecoder()
//	dec.Feed(chunk)
//	for {
//	    frame, err := dec.Next()
//	    if frame == nil && err == nil {
//	        break // needs more data
//	    }
//	    if err != nil {
//	        // record and continue; decoder already advanced
//	        continue
//	    }
//	    handle(frame)
//	}
//
// # File Structure
//
//   - varint.go: varint encoding/decoding
//   - encoder.go: binary encoder
//   - decoder.go: binary decoder
//   - frame.go: frame record and structural codec
//   - linecodec.go: printable line layer and incremental decoder
//   - error.go: framing error taxonomy
//   - limits.go: allocation ceilings
package protocol
