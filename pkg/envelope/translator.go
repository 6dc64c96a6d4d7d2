package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/termmux-dev/termmux/pkg/protocol"
)

// Translation errors.
var (
	ErrUnknownVersion     = errors.New("envelope: unknown wire version")
	ErrUnknownCompression = errors.New("envelope: unknown compression scheme")
	ErrMissingNonce       = errors.New("envelope: frame has no nonce")
	ErrBadPayload         = errors.New("envelope: malformed message body")
)

// Translator maps messages to protocol frames and back. It owns the
// frame-level concerns messages must not see: nonce generation, wire
// version checks, and optional compression of the serialized body.
//
// A zero-value Translator is not usable; construct with NewTranslator.
type Translator struct {
	gzipOutbound bool
	newNonce     func() []byte
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

// WithGzip enables gzip compression of outbound frame bodies. Inbound
// gzip frames are always accepted regardless of this setting.
func WithGzip(enabled bool) TranslatorOption {
	return func(t *Translator) {
		t.gzipOutbound = enabled
	}
}

// WithNonceSource overrides the nonce generator. Intended for tests
// that need deterministic frames.
func WithNonceSource(fn func() []byte) TranslatorOption {
	return func(t *Translator) {
		t.newNonce = fn
	}
}

// NewTranslator creates a translator. By default outbound frames are
// uncompressed and nonces are fresh random UUIDs.
func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{
		newNonce: func() []byte {
			id := uuid.New()
			return id[:]
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Encode wraps a message in a protocol frame with a fresh nonce.
func (t *Translator) Encode(m Message) (*protocol.Frame, error) {
	inner := EncodeMessage(m)

	compression := protocol.CompressionNone
	if t.gzipOutbound {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(inner); err != nil {
			return nil, fmt.Errorf("envelope: compress body: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("envelope: compress body: %w", err)
		}
		inner = buf.Bytes()
		compression = protocol.CompressionGzip
	}

	return &protocol.Frame{
		Version:     protocol.WireVersion,
		Compression: compression,
		Nonce:       t.newNonce(),
		Inner:       inner,
	}, nil
}

// Decode unwraps a frame into a message, validating the version and
// nonce and decompressing the body if needed.
func (t *Translator) Decode(f *protocol.Frame) (Message, error) {
	if f.Version != protocol.WireVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, f.Version)
	}
	if len(f.Nonce) == 0 {
		return nil, ErrMissingNonce
	}

	inner := f.Inner
	switch f.Compression {
	case protocol.CompressionNone:

	case protocol.CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(inner))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		// Cap the expansion so a tiny frame cannot decompress into an
		// arbitrarily large body.
		expanded, err := io.ReadAll(io.LimitReader(zr, protocol.MaxInnerLength+1))
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if len(expanded) > protocol.MaxInnerLength {
			return nil, fmt.Errorf("%w: decompressed body exceeds %d bytes", ErrBadPayload, protocol.MaxInnerLength)
		}
		inner = expanded

	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownCompression, uint8(f.Compression))
	}

	m, err := DecodeMessage(inner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return m, nil
}
