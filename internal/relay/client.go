package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultURL is the agent endpoint. It only resolves on the local machine.
const DefaultURL = "ws://127.0.0.1:5111"

var (
	ErrDuplicateID = errors.New("request id already open")
	ErrClosed      = errors.New("relay connection closed")
)

// Sink receives connection notices and command events in arrival order.
type Sink interface {
	Connected()
	Event(id string, ev CommandEvent)
	Disconnected()
}

// Client holds one connection to the execution agent. It never reconnects;
// a new Client is dialed when execution is enabled again.
type Client struct {
	sock *socket
	sink Sink

	mu     sync.Mutex
	open   map[string]bool // id → started seen
	closed bool

	done chan struct{}
}

// Dial connects to the agent and reports Connected to sink.
func Dial(ctx context.Context, url string, sink Sink) (*Client, error) {
	if url == "" {
		url = DefaultURL
	}
	sock, err := dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}

	c := &Client{
		sock: sock,
		sink: sink,
		open: make(map[string]bool),
		done: make(chan struct{}),
	}
	slog.Info("connected to agent", "url", url)
	sink.Connected()
	return c, nil
}

// Send transmits a confirmed request. Unconfirmed requests are refused and
// never reach the wire.
func (c *Client) Send(req CommandRequest) (string, error) {
	if !req.Confirm {
		return "", ErrNotConfirmed
	}
	req.Kind = KindExecute
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if _, ok := c.open[req.ID]; ok {
		c.mu.Unlock()
		return "", ErrDuplicateID
	}
	// registered before writing so that an early reply is not dropped
	c.open[req.ID] = false
	c.mu.Unlock()

	if err := c.sock.write(payload); err != nil {
		c.mu.Lock()
		delete(c.open, req.ID)
		c.mu.Unlock()
		return "", fmt.Errorf("send request: %w", err)
	}

	slog.Info("command sent", "id", req.ID, "command", req.Command)
	return req.ID, nil
}

// Run reads frames until the connection drops, then reports Disconnected.
func (c *Client) Run() {
	defer close(c.done)
	defer c.disconnect()

	for {
		in := c.sock.read()
		switch in.kind {
		case connClosed:
			slog.Info("agent closed connection", "err", in.err)
			return
		case readFailure:
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				slog.Warn("agent read failed", "err", in.err)
			}
			return
		case readOK:
			c.dispatch(in.msg)
		}
	}
}

func (c *Client) dispatch(msg []byte) {
	id, ev, err := DecodeEvent(msg)
	if err != nil {
		slog.Debug("dropping malformed frame", "err", err)
		return
	}

	c.mu.Lock()
	started, ok := c.open[id]
	switch {
	case !ok:
		c.mu.Unlock()
		slog.Debug("dropping event for unknown or finished id", "id", id, "type", ev.Type())
		return
	case ev.Type() == EventStarted && started:
		c.mu.Unlock()
		slog.Debug("dropping duplicate started", "id", id)
		return
	case ev.Type() == EventStarted:
		c.open[id] = true
	case ev.Type() == EventExit:
		delete(c.open, id)
	}
	c.mu.Unlock()

	c.sink.Event(id, ev)
}

func (c *Client) disconnect() {
	c.mu.Lock()
	c.closed = true
	c.open = make(map[string]bool)
	c.mu.Unlock()

	_ = c.sock.conn.Close()
	slog.Info("disconnected from agent")
	c.sink.Disconnected()
}

// Pending returns how many sent requests have not exited yet.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

// Done is closed once Run has returned.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close drops the connection. Run returns and reports Disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if already {
		return nil
	}
	return c.sock.close()
}
