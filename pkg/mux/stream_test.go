package mux

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/termmux-dev/termmux/pkg/protocol"
)

// frameCollector records decoded frames in arrival order.
type frameCollector struct {
	mu     sync.Mutex
	frames []*protocol.Frame
}

func (fc *frameCollector) add(f *protocol.Frame) {
	fc.mu.Lock()
	fc.frames = append(fc.frames, f)
	fc.mu.Unlock()
}

func (fc *frameCollector) all() []*protocol.Frame {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]*protocol.Frame, len(fc.frames))
	copy(out, fc.frames)
	return out
}

func TestPacketStreamWriteWithoutSocket(t *testing.T) {
	ps := NewPacketStream(nil, nil)

	err := ps.Write(protocol.NewFrame([]byte("n"), []byte("i")))
	if !errors.Is(err, ErrNoSocket) {
		t.Fatalf("Write() error = %v; want ErrNoSocket", err)
	}
}

func TestPacketStreamRoundTrip(t *testing.T) {
	near, far := Pipe()
	ps := NewPacketStream(nil, nil)
	fc := &frameCollector{}
	ps.OnFrame(fc.add)
	ps.SetSocket(near)

	want := protocol.NewFrame([]byte("nonce"), []byte("hello"))
	if err := far.Send(protocol.EncodeLine(want)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	frames := fc.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames; want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Inner, want.Inner) {
		t.Errorf("Inner = %q; want %q", frames[0].Inner, want.Inner)
	}
}

// TestPacketStreamChunkedAcrossSends verifies that one line split over
// several socket chunks still decodes as a single frame.
func TestPacketStreamChunkedAcrossSends(t *testing.T) {
	near, far := Pipe()
	ps := NewPacketStream(nil, nil)
	fc := &frameCollector{}
	ps.OnFrame(fc.add)
	ps.SetSocket(near)

	line := protocol.EncodeLine(protocol.NewFrame([]byte("n"), []byte("split me up")))
	for i := 0; i < len(line); i += 3 {
		end := i + 3
		if end > len(line) {
			end = len(line)
		}
		if err := far.Send(line[i:end]); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	if got := len(fc.all()); got != 1 {
		t.Fatalf("got %d frames; want 1", got)
	}
}

func TestPacketStreamSkipsMalformedLines(t *testing.T) {
	near, far := Pipe()
	ps := NewPacketStream(nil, nil)
	fc := &frameCollector{}
	ps.OnFrame(fc.add)
	ps.SetSocket(near)

	far.Send([]byte("%%%garbage%%%\n"))
	want := protocol.NewFrame([]byte("n"), []byte("after garbage"))
	far.Send(protocol.EncodeLine(want))

	frames := fc.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames; want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Inner, want.Inner) {
		t.Errorf("decoded wrong frame after garbage line")
	}
}

// TestSetSocketDiscardsPartialLine swaps sockets while half a line is
// buffered; the leftover must not corrupt frames arriving on the new
// socket.
func TestSetSocketDiscardsPartialLine(t *testing.T) {
	nearA, farA := Pipe()
	ps := NewPacketStream(nil, nil)
	fc := &frameCollector{}
	ps.OnFrame(fc.add)
	ps.SetSocket(nearA)

	want := protocol.NewFrame([]byte("n"), []byte("on the new socket"))
	line := protocol.EncodeLine(want)
	if err := farA.Send(line[:len(line)/2]); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	nearB, farB := Pipe()
	ps.SetSocket(nearB)

	// The old socket is closed by the swap.
	if err := farA.Send(line[len(line)/2:]); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("old socket Send() error = %v; want ErrSocketClosed", err)
	}

	if err := farB.Send(line); err != nil {
		t.Fatalf("new socket Send() error = %v", err)
	}

	frames := fc.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames; want 1", len(frames))
	}
	if !bytes.Equal(frames[0].Inner, want.Inner) {
		t.Errorf("Inner = %q; want %q", frames[0].Inner, want.Inner)
	}
}

// TestStaleGenerationChunkIgnored delivers a chunk stamped with a
// superseded generation straight into the stream, imitating a delivery
// goroutine that lost the swap race.
func TestStaleGenerationChunkIgnored(t *testing.T) {
	nearA, _ := Pipe()
	ps := NewPacketStream(nil, nil)
	fc := &frameCollector{}
	ps.OnFrame(fc.add)
	ps.SetSocket(nearA)

	ps.mu.Lock()
	oldGen := ps.generation
	ps.mu.Unlock()

	nearB, _ := Pipe()
	ps.SetSocket(nearB)

	ps.ingest(oldGen, protocol.EncodeLine(protocol.NewFrame([]byte("n"), []byte("stale"))))
	if got := len(fc.all()); got != 0 {
		t.Fatalf("stale chunk produced %d frames; want 0", got)
	}

	ps.mu.Lock()
	newGen := ps.generation
	ps.mu.Unlock()
	ps.ingest(newGen, protocol.EncodeLine(protocol.NewFrame([]byte("n"), []byte("fresh"))))
	if got := len(fc.all()); got != 1 {
		t.Fatalf("fresh chunk produced %d frames; want 1", got)
	}
}

func TestPacketStreamWriteAfterClose(t *testing.T) {
	near, _ := Pipe()
	ps := NewPacketStream(nil, nil)
	ps.SetSocket(near)

	if err := ps.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ps.Write(protocol.NewFrame([]byte("n"), nil)); !errors.Is(err, ErrSocketClosed) {
		t.Errorf("Write() after Close = %v; want ErrSocketClosed", err)
	}
}
