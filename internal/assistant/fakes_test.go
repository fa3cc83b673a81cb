package assistant

import (
	"context"
	"sync"

	"kaia/internal/permission"
	"kaia/internal/relay"
	"kaia/internal/speech"
)

type fakeRelay struct {
	mu     sync.Mutex
	sent   []relay.CommandRequest
	closed bool
	done   chan struct{}
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{done: make(chan struct{})}
}

func (r *fakeRelay) Send(req relay.CommandRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", relay.ErrClosed
	}
	r.sent = append(r.sent, req)
	return "id-1", nil
}

func (r *fakeRelay) Done() <-chan struct{} { return r.done }

func (r *fakeRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

func (r *fakeRelay) requests() []relay.CommandRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relay.CommandRequest(nil), r.sent...)
}

type recorder struct {
	mu     sync.Mutex
	said   []string
	events []string
}

func (r *recorder) Speak(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.said = append(r.said, text)
	return nil
}

func (r *recorder) Play() error { r.note("cue"); return nil }

func (r *recorder) Duck(context.Context) error { r.note("duck"); return nil }

func (r *recorder) Unduck(context.Context) error { r.note("unduck"); return nil }

func (r *recorder) note(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) spoken() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.said...)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeCapture struct {
	calls      []string
	listening  bool
	state      speech.State
	transcript speech.Transcript
	lastErr    *speech.SpeechError
}

func (c *fakeCapture) Start()      { c.calls = append(c.calls, "start"); c.listening = true }
func (c *fakeCapture) Stop()       { c.calls = append(c.calls, "stop"); c.listening = false }
func (c *fakeCapture) ClearError() { c.calls = append(c.calls, "clear"); c.lastErr = nil }

func (c *fakeCapture) RequestPermission(context.Context) permission.State {
	c.calls = append(c.calls, "permission")
	return permission.Granted
}

func (c *fakeCapture) Listening() bool                { return c.listening }
func (c *fakeCapture) State() speech.State            { return c.state }
func (c *fakeCapture) Transcript() speech.Transcript  { return c.transcript }
func (c *fakeCapture) LastError() *speech.SpeechError { return c.lastErr }
