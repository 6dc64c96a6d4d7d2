package protocol

import "io"

// WireVersion is the frame format version this package produces.
// Receivers reject other versions at the envelope layer; the structural
// codec here carries the field without judging it.
const WireVersion uint16 = 1

// Compression identifies how a frame's inner payload is compressed.
type Compression uint8

const (
	CompressionNone Compression = 0x00 // Inner is raw
	CompressionGzip Compression = 0x01 // Inner is gzip-compressed
)

// String returns the string representation of the compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionGzip:
		return "Gzip"
	default:
		return "Unknown"
	}
}

// Frame is the outermost wire envelope. The codec treats Nonce and Inner
// as opaque bytes; Nonce is unique per frame and attached by the sender.
//
// Binary layout (before the base64 line encoding):
//
//	┌─────────────┬──────────────┬───────────────┬───────────────┐
//	│ Version     │ Compression  │ Nonce         │ Inner         │
//	│ (u16, BE)   │ (1 byte)     │ (len-prefixed)│ (len-prefixed)│
//	└─────────────┴──────────────┴───────────────┴───────────────┘
type Frame struct {
	Version     uint16
	Compression Compression
	Nonce       []byte
	Inner       []byte
}

// EncodeTo encodes the frame using the provided encoder.
func (f *Frame) EncodeTo(e *Encoder) {
	e.WriteUint16(f.Version)
	e.WriteByte(byte(f.Compression))
	e.WriteLenBytes(f.Nonce)
	e.WriteLenBytes(f.Inner)
}

// Encode encodes the frame to its binary representation.
func (f *Frame) Encode() []byte {
	e := NewEncoderWithCap(8 + len(f.Nonce) + len(f.Inner))
	f.EncodeTo(e)
	return e.Bytes()
}

// DecodeFrame decodes a binary frame. The input must contain exactly one
// frame; leftover bytes are a framing error because each wire line holds
// a single frame.
func DecodeFrame(data []byte) (*Frame, error) {
	d := NewDecoder(data)

	version, err := d.ReadUint16()
	if err != nil {
		return nil, newFramingError(FramingTruncated, err)
	}

	comp, err := d.ReadByte()
	if err != nil {
		return nil, newFramingError(FramingTruncated, err)
	}

	nonce, err := d.ReadLenBytes()
	if err != nil {
		return nil, newFramingError(FramingTruncated, err)
	}
	if len(nonce) > MaxNonceLength {
		return nil, newFramingError(FramingNonceTooLong, nil)
	}

	inner, err := d.ReadLenBytes()
	if err != nil {
		return nil, newFramingError(FramingTruncated, err)
	}

	if !d.EOF() {
		return nil, newFramingError(FramingTrailingData, io.ErrShortBuffer)
	}

	return &Frame{
		Version:     version,
		Compression: Compression(comp),
		Nonce:       nonce,
		Inner:       inner,
	}, nil
}

// NewFrame creates a frame with the current wire version and no compression.
func NewFrame(nonce, inner []byte) *Frame {
	return &Frame{
		Version:     WireVersion,
		Compression: CompressionNone,
		Nonce:       nonce,
		Inner:       inner,
	}
}
