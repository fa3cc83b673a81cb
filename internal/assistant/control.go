package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kaia/internal/ipc"
	"kaia/internal/permission"
	"kaia/internal/speech"
)

// Capture is the control surface of speech.Capture.
type Capture interface {
	Start()
	Stop()
	ClearError()
	RequestPermission(ctx context.Context) permission.State
	Listening() bool
	State() speech.State
	Transcript() speech.Transcript
	LastError() *speech.SpeechError
}

// Control answers kaia-ctl requests against a running client.
type Control struct {
	Capture     Capture
	Permissions interface{ Status() permission.State }
	Assistant   *Assistant
}

func (c Control) Handle(msg ipc.ControlMessage) (*ipc.Status, error) {
	slog.Debug("control message", "cmd", msg.Cmd)

	switch msg.Cmd {
	case ipc.CmdStart:
		c.Capture.Start()
	case ipc.CmdStop:
		c.Capture.Stop()
	case ipc.CmdPermission:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st := c.Capture.RequestPermission(ctx)
		slog.Info("microphone permission", "state", st)
	case ipc.CmdClearError:
		c.Capture.ClearError()
	case ipc.CmdStatus:
	default:
		return nil, fmt.Errorf("%w: %q", ipc.ErrUnknownCommand, msg.Cmd)
	}
	return c.Status(), nil
}

// Status snapshots the client.
func (c Control) Status() *ipc.Status {
	t := c.Capture.Transcript()
	st := &ipc.Status{
		State:      string(c.Capture.State()),
		Listening:  c.Capture.Listening(),
		Transcript: t.Text,
		Confidence: t.Confidence,
	}
	if c.Permissions != nil {
		st.Permission = string(c.Permissions.Status())
	}
	if e := c.Capture.LastError(); e != nil {
		st.LastError = e.Error()
	}
	if c.Assistant != nil {
		st.Agent = c.Assistant.ExecutionEnabled()
	}
	return st
}
