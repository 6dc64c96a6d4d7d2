package envelope

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/termmux-dev/termmux/pkg/protocol"
)

func TestTranslatorRoundTrip(t *testing.T) {
	for _, gzipOn := range []bool{false, true} {
		name := "plain"
		if gzipOn {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			tr := NewTranslator(WithGzip(gzipOn))
			want := &Request{
				SessionID: "term-1",
				MessageID: "m-9",
				Payload:   &EditBuffer{Text: "echo hello", Cursor: 4},
			}

			frame, err := tr.Encode(want)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if frame.Version != protocol.WireVersion {
				t.Errorf("frame version = %d; want %d", frame.Version, protocol.WireVersion)
			}
			if len(frame.Nonce) == 0 {
				t.Error("frame has empty nonce")
			}

			got, err := tr.Decode(frame)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			req, ok := got.(*Request)
			if !ok {
				t.Fatalf("decoded %T; want *Request", got)
			}
			eb, ok := req.Payload.(*EditBuffer)
			if !ok || eb.Text != "echo hello" || eb.Cursor != 4 {
				t.Errorf("payload = %#v", req.Payload)
			}
		})
	}
}

func TestTranslatorFreshNonces(t *testing.T) {
	tr := NewTranslator()
	msg := &Ping{MessageID: "p"}

	a, err := tr.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tr.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("two frames share a nonce")
	}
}

func TestTranslatorNonceSourceOverride(t *testing.T) {
	tr := NewTranslator(WithNonceSource(func() []byte {
		return []byte("fixed")
	}))

	f, err := tr.Encode(&Ping{MessageID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if string(f.Nonce) != "fixed" {
		t.Errorf("Nonce = %q; want %q", f.Nonce, "fixed")
	}
}

func TestTranslatorRejectsForeignVersion(t *testing.T) {
	tr := NewTranslator()
	f, err := tr.Encode(&Ping{MessageID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	f.Version = 99

	if _, err := tr.Decode(f); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("Decode() error = %v; want ErrUnknownVersion", err)
	}
}

func TestTranslatorRejectsMissingNonce(t *testing.T) {
	tr := NewTranslator()
	f, err := tr.Encode(&Ping{MessageID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	f.Nonce = nil

	if _, err := tr.Decode(f); !errors.Is(err, ErrMissingNonce) {
		t.Errorf("Decode() error = %v; want ErrMissingNonce", err)
	}
}

func TestTranslatorRejectsUnknownCompression(t *testing.T) {
	tr := NewTranslator()
	f, err := tr.Encode(&Ping{MessageID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	f.Compression = protocol.Compression(0x7F)

	if _, err := tr.Decode(f); !errors.Is(err, ErrUnknownCompression) {
		t.Errorf("Decode() error = %v; want ErrUnknownCompression", err)
	}
}

func TestTranslatorRejectsCorruptGzip(t *testing.T) {
	tr := NewTranslator()
	f := &protocol.Frame{
		Version:     protocol.WireVersion,
		Compression: protocol.CompressionGzip,
		Nonce:       []byte("n"),
		Inner:       []byte("definitely not a gzip stream"),
	}

	if _, err := tr.Decode(f); !errors.Is(err, ErrBadPayload) {
		t.Errorf("Decode() error = %v; want ErrBadPayload", err)
	}
}

// TestTranslatorAcceptsGzipWithoutOption checks inbound gzip frames are
// decoded even when the translator never compresses outbound.
func TestTranslatorAcceptsGzipWithoutOption(t *testing.T) {
	sender := NewTranslator(WithGzip(true))
	receiver := NewTranslator()

	f, err := sender.Encode(&Pong{MessageID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := receiver.Decode(f)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if pong, ok := got.(*Pong); !ok || pong.MessageID != "p" {
		t.Errorf("decoded %#v; want Pong p", got)
	}
}

// TestTranslatorDecompressionBomb builds a gzip stream that inflates
// past the inner length cap and verifies decode refuses it.
func TestTranslatorDecompressionBomb(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(make([]byte, protocol.MaxInnerLength+1024)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	tr := NewTranslator()
	f := &protocol.Frame{
		Version:     protocol.WireVersion,
		Compression: protocol.CompressionGzip,
		Nonce:       []byte("n"),
		Inner:       buf.Bytes(),
	}
	if _, err := tr.Decode(f); !errors.Is(err, ErrBadPayload) {
		t.Errorf("Decode() error = %v; want ErrBadPayload", err)
	}
}
