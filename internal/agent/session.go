package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kaia/internal/relay"
)

// session serves one relay connection. Requests are read in order; each
// accepted request runs in its own goroutine and writes are serialized.
type session struct {
	conn      *websocket.Conn
	launcher  Launcher
	running   *atomic.Int64
	waitDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	active  map[string]struct{}
	workers sync.WaitGroup
}

func newSession(conn *websocket.Conn, launcher Launcher, running *atomic.Int64, waitDelay time.Duration) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		conn:      conn,
		launcher:  launcher,
		running:   running,
		waitDelay: waitDelay,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]struct{}),
	}
}

// serve reads requests until the connection drops, then kills whatever is
// still running and waits for it.
func (s *session) serve() {
	defer s.workers.Wait()
	defer s.cancel()
	defer s.conn.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			slog.Debug("relay read ended", "err", err)
			return
		}
		s.handle(data)
	}
}

func (s *session) close() {
	_ = s.conn.Close()
}

func (s *session) handle(data []byte) {
	req, err := relay.DecodeRequest(data)
	switch {
	case errors.Is(err, relay.ErrNotConfirmed):
		RequestsIgnored.WithLabelValues("unconfirmed").Inc()
		slog.Warn("ignoring request without confirm")
		return
	case err != nil:
		RequestsIgnored.WithLabelValues("malformed").Inc()
		slog.Debug("ignoring malformed frame", "err", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	if _, dup := s.active[req.ID]; dup {
		s.mu.Unlock()
		RequestsIgnored.WithLabelValues("duplicate").Inc()
		slog.Warn("ignoring request for an id that is still running", "id", req.ID)
		return
	}
	s.active[req.ID] = struct{}{}
	s.mu.Unlock()

	s.workers.Add(1)
	go s.run(req)
}

// run drives one request through started → output → exit.
func (s *session) run(req relay.CommandRequest) {
	defer s.workers.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, req.ID)
		s.mu.Unlock()
	}()

	log := slog.With("id", req.ID)
	s.send(req.ID, relay.Started{Command: req.Command})

	stdout := &output{send: func(c string) { s.send(req.ID, relay.Stdout{Chunk: c}) }}
	stderr := &output{send: func(c string) { s.send(req.ID, relay.Stderr{Chunk: c}) }}

	cmd := s.launcher.Command(s.ctx, req.Command, req.Cwd)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// bounds Wait when something outside the process group holds the pipes
	cmd.WaitDelay = s.waitDelay

	if err := cmd.Start(); err != nil {
		Commands.WithLabelValues("spawn_error").Inc()
		log.Error("failed to spawn command", "command", req.Command, "err", err)
		s.send(req.ID, relay.ExitCode(-1))
		return
	}

	s.running.Add(1)
	CommandsRunning.Inc()
	log.Info("command started", "command", req.Command, "cwd", req.Cwd, "pid", cmd.Process.Pid)
	start := time.Now()

	// Wait returns once both pipes are drained or WaitDelay expires
	waitErr := cmd.Wait()
	stdout.flush()
	stderr.flush()
	CommandDuration.Observe(time.Since(start).Seconds())
	CommandsRunning.Dec()
	s.running.Add(-1)

	exit := exitEvent(cmd.ProcessState)
	Commands.WithLabelValues(outcome(exit)).Inc()
	log.Info("command exited", "code", codeAttr(exit), "err", waitErr)
	s.send(req.ID, exit)
}

// output turns each write from a command pipe into one event. An
// incomplete UTF-8 sequence at the end of a write is held back until the
// next write so that no chunk splits a character.
type output struct {
	send    func(chunk string)
	pending []byte
}

func (o *output) Write(p []byte) (int, error) {
	data := append(o.pending, p...)
	end := completeRunes(data)
	if end > 0 {
		o.send(string(data[:end]))
	}
	o.pending = append([]byte(nil), data[end:]...)
	return len(p), nil
}

// flush sends whatever is still held back, complete or not.
func (o *output) flush() {
	if len(o.pending) > 0 {
		o.send(string(o.pending))
		o.pending = nil
	}
}

// completeRunes returns the length of p without a trailing incomplete
// UTF-8 sequence.
func completeRunes(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if !utf8.FullRune(p[i:]) {
			return i
		}
		break
	}
	return len(p)
}

func (s *session) send(id string, ev relay.CommandEvent) {
	data, err := relay.EncodeEvent(id, ev)
	if err != nil {
		slog.Error("encode event", "id", id, "err", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("event not delivered", "id", id, "type", ev.Type(), "err", err)
	}
}

// exitEvent maps a finished process to its exit event. A process killed by
// a signal has no code.
func exitEvent(state *os.ProcessState) relay.Exit {
	if state == nil {
		return relay.Exit{}
	}
	code := state.ExitCode()
	if code < 0 {
		return relay.Exit{}
	}
	return relay.ExitCode(code)
}

func outcome(exit relay.Exit) string {
	switch {
	case exit.Code == nil:
		return "killed"
	case *exit.Code == 0:
		return "ok"
	default:
		return "failed"
	}
}

func codeAttr(exit relay.Exit) any {
	if exit.Code == nil {
		return nil
	}
	return *exit.Code
}
