package envelope

import (
	"io"
	"sort"

	"github.com/termmux-dev/termmux/pkg/protocol"
)

// PayloadKind identifies the inner message kind.
type PayloadKind uint8

const (
	// Client -> host requests.
	KindInsertText PayloadKind = 0x01 // Insert/delete text in the edit buffer
	KindIntercept  PayloadKind = 0x02 // Change keystroke interception rules
	KindRunProcess PayloadKind = 0x03 // Run a process on the host

	// Host -> client responses.
	KindRunProcessResult PayloadKind = 0x10 // Result of a RunProcess request

	// Host -> client notifications (unsolicited requests, never answered).
	KindEditBuffer     PayloadKind = 0x20 // Edit buffer changed
	KindInterceptedKey PayloadKind = 0x21 // A bound keystroke was intercepted
	KindPreExec        PayloadKind = 0x22 // Command about to execute
	KindPostExec       PayloadKind = 0x23 // Command finished executing
	KindPrompt         PayloadKind = 0x24 // Shell prompt displayed
)

// String returns the string representation of the payload kind.
func (k PayloadKind) String() string {
	switch k {
	case KindInsertText:
		return "InsertText"
	case KindIntercept:
		return "Intercept"
	case KindRunProcess:
		return "RunProcess"
	case KindRunProcessResult:
		return "RunProcessResult"
	case KindEditBuffer:
		return "EditBuffer"
	case KindInterceptedKey:
		return "InterceptedKey"
	case KindPreExec:
		return "PreExec"
	case KindPostExec:
		return "PostExec"
	case KindPrompt:
		return "Prompt"
	default:
		return "Unknown"
	}
}

// Payload is the inner content of a Request or Response. The multiplexer
// routes payloads by kind and never interprets their fields.
type Payload interface {
	Kind() PayloadKind
}

// InsertText asks the host terminal to splice text into its edit buffer.
type InsertText struct {
	Insertion           string
	Deletion            int64 // Characters to delete before inserting
	Offset              int64 // Cursor offset relative to buffer position
	Immediate           bool
	InsertionBuffer     string
	InsertDuringCommand bool
}

// Intercept changes which keystrokes the host forwards instead of handling.
type Intercept struct {
	BoundKeystrokes  bool
	GlobalKeystrokes bool
	Actions          []string
	OverrideActions  bool
}

// RunProcess asks the host to execute a process and report its result.
type RunProcess struct {
	Executable       string
	Arguments        []string
	WorkingDirectory string
	Env              map[string]string
}

// RunProcessResult carries the outcome of a RunProcess request.
type RunProcessResult struct {
	ExitCode int32
	Stdout   string
	Stderr   string
}

// EditBuffer reports the host terminal's edit buffer contents and cursor.
type EditBuffer struct {
	Text   string
	Cursor int64
}

// InterceptedKey reports a keystroke the host intercepted on our behalf.
type InterceptedKey struct {
	Key    string
	Action string
}

// PreExec announces that the shell is about to execute a command.
type PreExec struct {
	Command string
}

// PostExec announces that a command finished executing.
type PostExec struct {
	Command  string
	ExitCode int32
}

// Prompt announces that the shell rendered a fresh prompt.
type Prompt struct {
	WorkingDirectory string
	Hostname         string
	Shell            string
	ExitCode         int32
}

// UnknownPayload preserves a payload whose kind this build does not
// recognize. Dispatchers drop it with a warning; decoding never fails on
// it so newer hosts stay compatible with older clients.
type UnknownPayload struct {
	RawKind PayloadKind
	Body    []byte
}

func (p *InsertText) Kind() PayloadKind       { return KindInsertText }
func (p *Intercept) Kind() PayloadKind        { return KindIntercept }
func (p *RunProcess) Kind() PayloadKind       { return KindRunProcess }
func (p *RunProcessResult) Kind() PayloadKind { return KindRunProcessResult }
func (p *EditBuffer) Kind() PayloadKind       { return KindEditBuffer }
func (p *InterceptedKey) Kind() PayloadKind   { return KindInterceptedKey }
func (p *PreExec) Kind() PayloadKind          { return KindPreExec }
func (p *PostExec) Kind() PayloadKind         { return KindPostExec }
func (p *Prompt) Kind() PayloadKind           { return KindPrompt }
func (p *UnknownPayload) Kind() PayloadKind   { return p.RawKind }

// maxListItems bounds Arguments/Env counts on decode. Process invocations
// never approach this; the bound only blocks hostile length prefixes.
const maxListItems = 4096

// encodePayloadTo writes [kind byte][len-prefixed body] so readers can
// skip bodies of kinds they do not know.
func encodePayloadTo(e *protocol.Encoder, p Payload) {
	body := protocol.NewEncoder()

	switch v := p.(type) {
	case *InsertText:
		body.WriteString(v.Insertion)
		body.WriteSvarint(v.Deletion)
		body.WriteSvarint(v.Offset)
		body.WriteBool(v.Immediate)
		body.WriteString(v.InsertionBuffer)
		body.WriteBool(v.InsertDuringCommand)

	case *Intercept:
		body.WriteBool(v.BoundKeystrokes)
		body.WriteBool(v.GlobalKeystrokes)
		body.WriteUvarint(uint64(len(v.Actions)))
		for _, a := range v.Actions {
			body.WriteString(a)
		}
		body.WriteBool(v.OverrideActions)

	case *RunProcess:
		body.WriteString(v.Executable)
		body.WriteUvarint(uint64(len(v.Arguments)))
		for _, a := range v.Arguments {
			body.WriteString(a)
		}
		body.WriteString(v.WorkingDirectory)
		// Sorted keys keep the encoding deterministic.
		keys := make([]string, 0, len(v.Env))
		for k := range v.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		body.WriteUvarint(uint64(len(keys)))
		for _, k := range keys {
			body.WriteString(k)
			body.WriteString(v.Env[k])
		}

	case *RunProcessResult:
		body.WriteInt32(v.ExitCode)
		body.WriteString(v.Stdout)
		body.WriteString(v.Stderr)

	case *EditBuffer:
		body.WriteString(v.Text)
		body.WriteSvarint(v.Cursor)

	case *InterceptedKey:
		body.WriteString(v.Key)
		body.WriteString(v.Action)

	case *PreExec:
		body.WriteString(v.Command)

	case *PostExec:
		body.WriteString(v.Command)
		body.WriteInt32(v.ExitCode)

	case *Prompt:
		body.WriteString(v.WorkingDirectory)
		body.WriteString(v.Hostname)
		body.WriteString(v.Shell)
		body.WriteInt32(v.ExitCode)

	case *UnknownPayload:
		body.WriteBytes(v.Body)
	}

	e.WriteByte(byte(p.Kind()))
	e.WriteLenBytes(body.Bytes())
}

// decodePayloadFrom reads one payload. Unknown kinds yield UnknownPayload
// with the body preserved; only structural damage is an error.
func decodePayloadFrom(d *protocol.Decoder) (Payload, error) {
	kindByte, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	kind := PayloadKind(kindByte)

	body, err := d.ReadLenBytes()
	if err != nil {
		return nil, err
	}
	bd := protocol.NewDecoder(body)

	switch kind {
	case KindInsertText:
		p := &InsertText{}
		if p.Insertion, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.Deletion, err = bd.ReadSvarint(); err != nil {
			return nil, err
		}
		if p.Offset, err = bd.ReadSvarint(); err != nil {
			return nil, err
		}
		if p.Immediate, err = bd.ReadBool(); err != nil {
			return nil, err
		}
		if p.InsertionBuffer, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.InsertDuringCommand, err = bd.ReadBool(); err != nil {
			return nil, err
		}
		return p, nil

	case KindIntercept:
		p := &Intercept{}
		if p.BoundKeystrokes, err = bd.ReadBool(); err != nil {
			return nil, err
		}
		if p.GlobalKeystrokes, err = bd.ReadBool(); err != nil {
			return nil, err
		}
		actions, err := readStringList(bd)
		if err != nil {
			return nil, err
		}
		p.Actions = actions
		if p.OverrideActions, err = bd.ReadBool(); err != nil {
			return nil, err
		}
		return p, nil

	case KindRunProcess:
		p := &RunProcess{}
		if p.Executable, err = bd.ReadString(); err != nil {
			return nil, err
		}
		args, err := readStringList(bd)
		if err != nil {
			return nil, err
		}
		p.Arguments = args
		if p.WorkingDirectory, err = bd.ReadString(); err != nil {
			return nil, err
		}
		count, err := readCount(bd)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			p.Env = make(map[string]string, count)
			for i := 0; i < count; i++ {
				k, err := bd.ReadString()
				if err != nil {
					return nil, err
				}
				val, err := bd.ReadString()
				if err != nil {
					return nil, err
				}
				p.Env[k] = val
			}
		}
		return p, nil

	case KindRunProcessResult:
		p := &RunProcessResult{}
		if p.ExitCode, err = bd.ReadInt32(); err != nil {
			return nil, err
		}
		if p.Stdout, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.Stderr, err = bd.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case KindEditBuffer:
		p := &EditBuffer{}
		if p.Text, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.Cursor, err = bd.ReadSvarint(); err != nil {
			return nil, err
		}
		return p, nil

	case KindInterceptedKey:
		p := &InterceptedKey{}
		if p.Key, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.Action, err = bd.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case KindPreExec:
		p := &PreExec{}
		if p.Command, err = bd.ReadString(); err != nil {
			return nil, err
		}
		return p, nil

	case KindPostExec:
		p := &PostExec{}
		if p.Command, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.ExitCode, err = bd.ReadInt32(); err != nil {
			return nil, err
		}
		return p, nil

	case KindPrompt:
		p := &Prompt{}
		if p.WorkingDirectory, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.Hostname, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.Shell, err = bd.ReadString(); err != nil {
			return nil, err
		}
		if p.ExitCode, err = bd.ReadInt32(); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return &UnknownPayload{RawKind: kind, Body: body}, nil
	}
}

// readCount reads a collection count and bounds it against maxListItems
// and the remaining buffer.
func readCount(d *protocol.Decoder) (int, error) {
	count, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if count > maxListItems {
		return 0, protocol.ErrAllocationTooLarge
	}
	if count > uint64(d.Remaining()) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(count), nil
}

func readStringList(d *protocol.Decoder) ([]string, error) {
	count, err := readCount(d)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	list := make([]string, count)
	for i := range list {
		if list[i], err = d.ReadString(); err != nil {
			return nil, err
		}
	}
	return list, nil
}
