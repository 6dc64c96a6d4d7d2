package mux

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/termmux-dev/termmux/pkg/envelope"
	"github.com/termmux-dev/termmux/pkg/protocol"
)

// scriptedHost plays the host side of the connection over a pipe
// socket. Every decoded message is handed to handle; the returned
// messages go back to the client.
type scriptedHost struct {
	t    *testing.T
	sock *PipeSocket
	tr   *envelope.Translator

	mu     sync.Mutex
	dec    *protocol.LineDecoder
	handle func(envelope.Message) []envelope.Message
}

func newScriptedHost(t *testing.T, sock *PipeSocket, handle func(envelope.Message) []envelope.Message) *scriptedHost {
	t.Helper()
	h := &scriptedHost{
		t:      t,
		sock:   sock,
		tr:     envelope.NewTranslator(),
		dec:    protocol.NewLineDecoder(),
		handle: handle,
	}
	sock.Bind(h.onData)
	return h
}

func (h *scriptedHost) onData(chunk []byte) {
	h.mu.Lock()
	h.dec.Feed(chunk)
	var msgs []envelope.Message
	for {
		f, err := h.dec.Next()
		if f == nil && err == nil {
			break
		}
		if err != nil {
			h.t.Errorf("host decoder error: %v", err)
			continue
		}
		m, err := h.tr.Decode(f)
		if err != nil {
			h.t.Errorf("host translate error: %v", err)
			continue
		}
		msgs = append(msgs, m)
	}
	handle := h.handle
	h.mu.Unlock()

	for _, m := range msgs {
		for _, reply := range handle(m) {
			h.send(reply)
		}
	}
}

func (h *scriptedHost) send(m envelope.Message) {
	f, err := h.tr.Encode(m)
	if err != nil {
		h.t.Errorf("host encode error: %v", err)
		return
	}
	if err := h.sock.Send(protocol.EncodeLine(f)); err != nil {
		h.t.Errorf("host send error: %v", err)
	}
}

// echoProcessHost answers RunProcess requests with a canned result and
// pings with pongs.
func echoProcessHost(m envelope.Message) []envelope.Message {
	switch v := m.(type) {
	case *envelope.Request:
		if _, ok := v.Payload.(*envelope.RunProcess); ok {
			return []envelope.Message{&envelope.Response{
				MessageID: v.MessageID,
				Payload:   &envelope.RunProcessResult{ExitCode: 0, Stdout: "done"},
			}}
		}
	case *envelope.Ping:
		return []envelope.Message{&envelope.Pong{MessageID: v.MessageID}}
	}
	return nil
}

func TestClientCall(t *testing.T) {
	near, far := Pipe()
	newScriptedHost(t, far, echoProcessHost)
	c := NewClient(near)
	defer c.Close()

	got, err := c.Call(context.Background(), "", &envelope.RunProcess{Executable: "true"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	res, ok := got.(*envelope.RunProcessResult)
	if !ok {
		t.Fatalf("Call() payload = %T; want *RunProcessResult", got)
	}
	if res.Stdout != "done" || res.ExitCode != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestClientPing(t *testing.T) {
	near, far := Pipe()
	newScriptedHost(t, far, echoProcessHost)
	c := NewClient(near)
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

// TestClientResponsesOutOfOrder holds both replies until both requests
// have arrived, then answers in reverse order. Each caller must still
// receive its own result.
func TestClientResponsesOutOfOrder(t *testing.T) {
	near, far := Pipe()

	var (
		hostMu  sync.Mutex
		parked  []*envelope.Request
		replies = make(chan struct{})
	)
	host := newScriptedHost(t, far, nil)
	host.handle = func(m envelope.Message) []envelope.Message {
		req, ok := m.(*envelope.Request)
		if !ok {
			return nil
		}
		hostMu.Lock()
		parked = append(parked, req)
		ready := len(parked) == 2
		hostMu.Unlock()
		if ready {
			close(replies)
		}
		return nil
	}

	c := NewClient(near)
	defer c.Close()

	type outcome struct {
		stdout string
		err    error
	}
	results := make(chan outcome, 2)
	callWith := func(exe string) {
		got, err := c.Call(context.Background(), "", &envelope.RunProcess{Executable: exe})
		if err != nil {
			results <- outcome{err: err}
			return
		}
		results <- outcome{stdout: got.(*envelope.RunProcessResult).Stdout}
	}
	go callWith("first")
	go callWith("second")

	select {
	case <-replies:
	case <-time.After(5 * time.Second):
		t.Fatal("requests never reached the host")
	}

	// Answer newest first, echoing each executable back as stdout.
	hostMu.Lock()
	for i := len(parked) - 1; i >= 0; i-- {
		req := parked[i]
		exe := req.Payload.(*envelope.RunProcess).Executable
		host.send(&envelope.Response{
			MessageID: req.MessageID,
			Payload:   &envelope.RunProcessResult{Stdout: exe},
		})
	}
	hostMu.Unlock()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				t.Fatalf("Call() error = %v", r.err)
			}
			seen[r.stdout] = true
		case <-time.After(5 * time.Second):
			t.Fatal("caller never got its response")
		}
	}
	if !seen["first"] || !seen["second"] {
		t.Errorf("responses crossed wires: %v", seen)
	}
}

// TestClientDuplicateResponseDropped answers the same request twice;
// the duplicate must be dropped and the client must stay usable.
func TestClientDuplicateResponseDropped(t *testing.T) {
	near, far := Pipe()
	newScriptedHost(t, far, func(m envelope.Message) []envelope.Message {
		switch v := m.(type) {
		case *envelope.Request:
			resp := &envelope.Response{
				MessageID: v.MessageID,
				Payload:   &envelope.RunProcessResult{Stdout: "once"},
			}
			return []envelope.Message{resp, resp}
		case *envelope.Ping:
			return []envelope.Message{&envelope.Pong{MessageID: v.MessageID}}
		}
		return nil
	})
	c := NewClient(near)
	defer c.Close()

	got, err := c.Call(context.Background(), "", &envelope.RunProcess{Executable: "x"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got.(*envelope.RunProcessResult).Stdout != "once" {
		t.Errorf("payload = %+v", got)
	}

	// Still healthy after the duplicate.
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() after duplicate = %v", err)
	}
}

func TestClientCallContextCancel(t *testing.T) {
	near, far := Pipe()

	var lastID string
	var hostMu sync.Mutex
	host := newScriptedHost(t, far, nil)
	host.handle = func(m envelope.Message) []envelope.Message {
		if req, ok := m.(*envelope.Request); ok {
			hostMu.Lock()
			lastID = req.MessageID
			hostMu.Unlock()
		}
		return nil // never answer
	}

	c := NewClient(near)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Call(ctx, "", &envelope.RunProcess{Executable: "sleep"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call() error = %v; want DeadlineExceeded", err)
	}

	// A late answer for the abandoned call is an orphan: dropped, no
	// crash, client still works.
	hostMu.Lock()
	id := lastID
	hostMu.Unlock()
	host.send(&envelope.Response{MessageID: id, Payload: &envelope.RunProcessResult{}})

	newHandle := echoProcessHost
	host.mu.Lock()
	host.handle = newHandle
	host.mu.Unlock()
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() after orphan = %v", err)
	}
}

func TestClientNotificationFanOut(t *testing.T) {
	near, far := Pipe()
	host := newScriptedHost(t, far, func(envelope.Message) []envelope.Message { return nil })
	c := NewClient(near)
	defer c.Close()

	var mu sync.Mutex
	var order []string
	c.OnNotification(envelope.KindEditBuffer, func(req *envelope.Request) {
		mu.Lock()
		order = append(order, "a:"+req.Payload.(*envelope.EditBuffer).Text)
		mu.Unlock()
	})
	unsubB := c.OnNotification(envelope.KindEditBuffer, func(req *envelope.Request) {
		mu.Lock()
		order = append(order, "b:"+req.Payload.(*envelope.EditBuffer).Text)
		mu.Unlock()
	})

	host.send(&envelope.Request{
		SessionID: "s",
		MessageID: "n-1",
		Payload:   &envelope.EditBuffer{Text: "one", Cursor: 1},
	})

	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	if len(got) != 2 || got[0] != "a:one" || got[1] != "b:one" {
		t.Fatalf("listener order = %v; want [a:one b:one]", got)
	}

	// Unsubscribe is idempotent.
	unsubB()
	unsubB()

	host.send(&envelope.Request{
		SessionID: "s",
		MessageID: "n-2",
		Payload:   &envelope.EditBuffer{Text: "two", Cursor: 1},
	})

	mu.Lock()
	got = append([]string(nil), order...)
	mu.Unlock()
	if len(got) != 3 || got[2] != "a:two" {
		t.Fatalf("after unsubscribe order = %v; want trailing a:two", got)
	}
}

// TestClientUnknownNotificationKindIgnored sends a payload kind this
// build does not know; listeners must not fire and the client must
// keep processing later traffic.
func TestClientUnknownNotificationKindIgnored(t *testing.T) {
	near, far := Pipe()
	host := newScriptedHost(t, far, func(envelope.Message) []envelope.Message { return nil })
	c := NewClient(near)
	defer c.Close()

	fired := false
	c.OnNotification(envelope.KindPrompt, func(*envelope.Request) { fired = true })

	host.send(&envelope.Request{
		MessageID: "n-1",
		Payload:   &envelope.UnknownPayload{RawKind: 0x66, Body: []byte{1, 2}},
	})
	if fired {
		t.Fatal("listener fired for an unknown payload kind")
	}

	host.send(&envelope.Request{
		MessageID: "n-2",
		Payload:   &envelope.Prompt{Shell: "bash"},
	})
	if !fired {
		t.Fatal("listener did not fire for a known kind after an unknown one")
	}
}

// TestClientSocketSwapKeepsPending starts a call, swaps the socket mid
// flight, and answers over the new socket.
func TestClientSocketSwapKeepsPending(t *testing.T) {
	nearA, farA := Pipe()

	requestID := make(chan string, 1)
	newScriptedHost(t, farA, func(m envelope.Message) []envelope.Message {
		if req, ok := m.(*envelope.Request); ok {
			requestID <- req.MessageID
		}
		return nil
	})

	c := NewClient(nearA)
	defer c.Close()

	done := make(chan envelope.Payload, 1)
	errs := make(chan error, 1)
	go func() {
		got, err := c.Call(context.Background(), "", &envelope.RunProcess{Executable: "slow"})
		if err != nil {
			errs <- err
			return
		}
		done <- got
	}()

	var id string
	select {
	case id = <-requestID:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached host A")
	}

	nearB, farB := Pipe()
	hostB := newScriptedHost(t, farB, func(envelope.Message) []envelope.Message { return nil })
	c.SetSocket(nearB)

	hostB.send(&envelope.Response{
		MessageID: id,
		Payload:   &envelope.RunProcessResult{Stdout: "survived"},
	})

	select {
	case got := <-done:
		if got.(*envelope.RunProcessResult).Stdout != "survived" {
			t.Errorf("payload = %+v", got)
		}
	case err := <-errs:
		t.Fatalf("Call() error = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("pending call did not survive the socket swap")
	}
}

func TestClientClose(t *testing.T) {
	near, far := Pipe()
	newScriptedHost(t, far, func(envelope.Message) []envelope.Message { return nil })
	c := NewClient(near)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "", &envelope.RunProcess{Executable: "x"})
		errCh <- err
	}()

	// Give the call a moment to park in its select.
	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClientClosed) {
			t.Errorf("Call() error = %v; want ErrClientClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Call() did not unblock on Close")
	}

	if err := c.Ping(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Ping() after Close = %v; want ErrClientClosed", err)
	}
}

// TestClientMultipleSessionsOneSocket issues calls for two different
// sessions through one client on one socket; each request must carry
// the session id of its own operation, and an empty id must fall back
// to the client default.
func TestClientMultipleSessionsOneSocket(t *testing.T) {
	near, far := Pipe()

	// Echo the request's session id back as stdout.
	newScriptedHost(t, far, func(m envelope.Message) []envelope.Message {
		req, ok := m.(*envelope.Request)
		if !ok {
			return nil
		}
		return []envelope.Message{&envelope.Response{
			MessageID: req.MessageID,
			Payload:   &envelope.RunProcessResult{Stdout: req.SessionID},
		}}
	})

	c := NewClient(near, WithSessionID("default-session"))
	defer c.Close()

	for _, tt := range []struct {
		sessionID string
		want      string
	}{
		{sessionID: "term-a", want: "term-a"},
		{sessionID: "term-b", want: "term-b"},
		{sessionID: "", want: "default-session"},
	} {
		got, err := c.Call(context.Background(), tt.sessionID, &envelope.RunProcess{Executable: "x"})
		if err != nil {
			t.Fatalf("Call(%q) error = %v", tt.sessionID, err)
		}
		if stdout := got.(*envelope.RunProcessResult).Stdout; stdout != tt.want {
			t.Errorf("Call(%q) routed as session %q; want %q", tt.sessionID, stdout, tt.want)
		}
	}
}

// TestClientPingIgnoresMismatchedPong delivers a pong with the wrong
// message id while a ping is in flight: the ping must stay pending, and
// only the matching pong resolves it.
func TestClientPingIgnoresMismatchedPong(t *testing.T) {
	near, far := Pipe()

	pingID := make(chan string, 1)
	host := newScriptedHost(t, far, func(m envelope.Message) []envelope.Message {
		if ping, ok := m.(*envelope.Ping); ok {
			pingID <- ping.MessageID
		}
		return nil
	})

	c := NewClient(near)
	defer c.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Ping(context.Background())
	}()

	var id string
	select {
	case id = <-pingID:
	case <-time.After(5 * time.Second):
		t.Fatal("ping never reached the host")
	}

	host.send(&envelope.Pong{MessageID: "not-" + id})
	select {
	case err := <-errCh:
		t.Fatalf("Ping() resolved by mismatched pong: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	host.send(&envelope.Pong{MessageID: id})
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("matching pong did not resolve the ping")
	}
}

func TestClientSendFireAndForget(t *testing.T) {
	near, far := Pipe()

	got := make(chan *envelope.Request, 1)
	newScriptedHost(t, far, func(m envelope.Message) []envelope.Message {
		if req, ok := m.(*envelope.Request); ok {
			got <- req
		}
		return nil
	})

	c := NewClient(near, WithSessionID("term-42"))
	defer c.Close()

	if err := c.Send("", &envelope.InsertText{Insertion: "ls -la"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case req := <-got:
		if req.SessionID != "term-42" {
			t.Errorf("SessionID = %q; want term-42", req.SessionID)
		}
		if it, ok := req.Payload.(*envelope.InsertText); !ok || it.Insertion != "ls -la" {
			t.Errorf("payload = %#v", req.Payload)
		}
		if req.MessageID == "" {
			t.Error("fire-and-forget request is missing a message id")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request never arrived")
	}
}
