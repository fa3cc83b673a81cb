// Package relay carries execute requests from the voice client to the local
// execution agent and streams the command lifecycle back.
//
// Wire format, one JSON object per websocket text frame:
//
//	client → agent  {"kind":"execute-command","id":"…","command":"…","cwd":"…","confirm":true}
//	agent → client  {"kind":"event","id":"…","event":{"type":"started","command":"…"}}
//	                {"kind":"event","id":"…","event":{"type":"stdout","chunk":"…"}}
//	                {"kind":"event","id":"…","event":{"type":"stderr","chunk":"…"}}
//	                {"kind":"event","id":"…","event":{"type":"exit","code":0}}
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	KindExecute = "execute-command"
	KindEvent   = "event"
)

var (
	ErrNotExecute   = errors.New("not an execute-command message")
	ErrNotConfirmed = errors.New("command not confirmed")
)

// CommandRequest asks the agent to run one shell command.
type CommandRequest struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
	Confirm bool   `json:"confirm"`
}

// NewRequest returns an unconfirmed request with a fresh id.
func NewRequest(command, cwd string) CommandRequest {
	return CommandRequest{
		Kind:    KindExecute,
		ID:      uuid.NewString(),
		Command: command,
		Cwd:     cwd,
	}
}

// Confirmed marks the request as approved by the user.
func (r CommandRequest) Confirmed() CommandRequest {
	r.Confirm = true
	return r
}

// DecodeRequest parses an incoming frame on the agent side. Anything other
// than a well-formed execute-command with confirm set to JSON true is an
// error.
func DecodeRequest(data []byte) (CommandRequest, error) {
	var req CommandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return CommandRequest{}, fmt.Errorf("unmarshal request: %w", err)
	}
	if req.Kind != KindExecute {
		return CommandRequest{}, ErrNotExecute
	}
	if !req.Confirm {
		return CommandRequest{}, ErrNotConfirmed
	}
	return req, nil
}

// EventType names a CommandEvent variant on the wire.
type EventType string

const (
	EventStarted EventType = "started"
	EventStdout  EventType = "stdout"
	EventStderr  EventType = "stderr"
	EventExit    EventType = "exit"
)

// CommandEvent is one step of a command lifecycle: Started, Stdout, Stderr
// or Exit.
type CommandEvent interface {
	Type() EventType
}

type Started struct {
	Command string
}

type Stdout struct {
	Chunk string
}

type Stderr struct {
	Chunk string
}

// Exit ends a lifecycle. Code is nil when the process died abnormally.
type Exit struct {
	Code *int
}

func (Started) Type() EventType { return EventStarted }
func (Stdout) Type() EventType  { return EventStdout }
func (Stderr) Type() EventType  { return EventStderr }
func (Exit) Type() EventType    { return EventExit }

// ExitCode builds an Exit with a code.
func ExitCode(code int) Exit {
	return Exit{Code: &code}
}

type envelope struct {
	Kind  string          `json:"kind"`
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type wireEvent struct {
	Type    EventType       `json:"type"`
	Command *string         `json:"command,omitempty"`
	Chunk   *string         `json:"chunk,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// EncodeEvent renders one agent → client frame.
func EncodeEvent(id string, ev CommandEvent) ([]byte, error) {
	var body any
	switch e := ev.(type) {
	case Started:
		body = struct {
			Type    EventType `json:"type"`
			Command string    `json:"command"`
		}{EventStarted, e.Command}
	case Stdout:
		body = struct {
			Type  EventType `json:"type"`
			Chunk string    `json:"chunk"`
		}{EventStdout, e.Chunk}
	case Stderr:
		body = struct {
			Type  EventType `json:"type"`
			Chunk string    `json:"chunk"`
		}{EventStderr, e.Chunk}
	case Exit:
		body = struct {
			Type EventType `json:"type"`
			Code *int      `json:"code"`
		}{EventExit, e.Code}
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: KindEvent, ID: id, Event: raw})
}

// DecodeEvent parses one agent → client frame.
func DecodeEvent(data []byte) (string, CommandEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Kind != KindEvent {
		return "", nil, fmt.Errorf("unexpected kind %q", env.Kind)
	}
	if env.ID == "" {
		return "", nil, errors.New("missing id")
	}

	var w wireEvent
	if err := json.Unmarshal(env.Event, &w); err != nil {
		return "", nil, fmt.Errorf("unmarshal event: %w", err)
	}

	switch w.Type {
	case EventStarted:
		if w.Command == nil {
			return "", nil, errors.New("started without command")
		}
		return env.ID, Started{Command: *w.Command}, nil
	case EventStdout, EventStderr:
		if w.Chunk == nil {
			return "", nil, fmt.Errorf("%s without chunk", w.Type)
		}
		if w.Type == EventStdout {
			return env.ID, Stdout{Chunk: *w.Chunk}, nil
		}
		return env.ID, Stderr{Chunk: *w.Chunk}, nil
	case EventExit:
		if len(w.Code) == 0 {
			return "", nil, errors.New("exit without code")
		}
		var code *int
		if err := json.Unmarshal(w.Code, &code); err != nil {
			return "", nil, fmt.Errorf("exit code: %w", err)
		}
		return env.ID, Exit{Code: code}, nil
	default:
		return "", nil, fmt.Errorf("unknown event type %q", w.Type)
	}
}
