package envelope

import (
	"fmt"

	"github.com/termmux-dev/termmux/pkg/protocol"
)

// OuterTag identifies the outer envelope variant.
type OuterTag uint8

const (
	TagRequest  OuterTag = 0x01
	TagResponse OuterTag = 0x02
	TagPing     OuterTag = 0x03
	TagPong     OuterTag = 0x04
)

// String returns the string representation of the outer tag.
func (t OuterTag) String() string {
	switch t {
	case TagRequest:
		return "Request"
	case TagResponse:
		return "Response"
	case TagPing:
		return "Ping"
	case TagPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// Message is one envelope on the wire.
type Message interface {
	Tag() OuterTag
}

// Request carries a payload toward a peer. The message id correlates a
// later Response; a request whose sender never awaits a response still
// carries an id so the peer can answer if it chooses to.
type Request struct {
	SessionID string
	MessageID string
	Payload   Payload
}

// Response answers a Request with the matching message id.
type Response struct {
	MessageID string
	Payload   Payload
}

// Ping probes liveness. The peer answers with a Pong echoing the id.
type Ping struct {
	MessageID string
}

// Pong answers a Ping.
type Pong struct {
	MessageID string
}

// UnknownMessage preserves an envelope whose outer tag this build does
// not recognize.
type UnknownMessage struct {
	RawTag OuterTag
	Body   []byte
}

func (m *Request) Tag() OuterTag        { return TagRequest }
func (m *Response) Tag() OuterTag       { return TagResponse }
func (m *Ping) Tag() OuterTag           { return TagPing }
func (m *Pong) Tag() OuterTag           { return TagPong }
func (m *UnknownMessage) Tag() OuterTag { return m.RawTag }

// EncodeMessage serializes a message to the binary envelope layout:
// [outer tag][len-prefixed body].
func EncodeMessage(m Message) []byte {
	body := protocol.NewEncoder()

	switch v := m.(type) {
	case *Request:
		body.WriteString(v.SessionID)
		body.WriteString(v.MessageID)
		encodePayloadTo(body, v.Payload)

	case *Response:
		body.WriteString(v.MessageID)
		encodePayloadTo(body, v.Payload)

	case *Ping:
		body.WriteString(v.MessageID)

	case *Pong:
		body.WriteString(v.MessageID)

	case *UnknownMessage:
		body.WriteBytes(v.Body)
	}

	out := protocol.NewEncoderWithCap(body.Len() + protocol.MaxVarintLen + 1)
	out.WriteByte(byte(m.Tag()))
	out.WriteLenBytes(body.Bytes())
	return out.Bytes()
}

// DecodeMessage parses a binary envelope. Unknown outer tags decode to
// UnknownMessage; trailing bytes after the envelope are an error.
func DecodeMessage(data []byte) (Message, error) {
	d := protocol.NewDecoder(data)

	tagByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	tag := OuterTag(tagByte)

	body, err := d.ReadLenBytes()
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, fmt.Errorf("envelope: %d trailing bytes after %s", d.Remaining(), tag)
	}
	bd := protocol.NewDecoder(body)

	switch tag {
	case TagRequest:
		m := &Request{}
		if m.SessionID, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if m.MessageID, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if m.Payload, err = decodePayloadFrom(bd); err != nil {
			return nil, err
		}
		return m, nil

	case TagResponse:
		m := &Response{}
		if m.MessageID, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if m.Payload, err = decodePayloadFrom(bd); err != nil {
			return nil, err
		}
		return m, nil

	case TagPing:
		m := &Ping{}
		if m.MessageID, err = bd.ReadString(); err != nil {
			return nil, err
		}
		return m, nil

	case TagPong:
		m := &Pong{}
		if m.MessageID, err = bd.ReadString(); err != nil {
			return nil, err
		}
		return m, nil

	default:
		return &UnknownMessage{RawTag: tag, Body: body}, nil
	}
}
