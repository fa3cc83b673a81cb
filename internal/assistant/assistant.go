// Package assistant ties the capture machine to the rest of kaia: committed
// transcripts are classified, commands are confirmed and relayed to the
// agent, answers are spoken.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"kaia/internal/nlu"
	"kaia/internal/relay"
	"kaia/internal/speech"
)

var ErrExecutionDisabled = errors.New("command execution is disabled")

// Relay is the part of relay.Client the assistant drives.
type Relay interface {
	Send(req relay.CommandRequest) (string, error)
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a relay connection that reports to sink.
type Dialer func(ctx context.Context, url string, sink relay.Sink) (Relay, error)

// DialRelay dials the agent and starts the client's read loop.
func DialRelay(ctx context.Context, url string, sink relay.Sink) (Relay, error) {
	c, err := relay.Dial(ctx, url, sink)
	if err != nil {
		return nil, err
	}
	go c.Run()
	return c, nil
}

type Speaker interface {
	Speak(text string) error
}

type Cue interface {
	Play() error
}

type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Config struct {
	Classifier nlu.Classifier
	Confirmer  Confirmer
	Speaker    Speaker // optional
	Cue        Cue     // optional
	Ducker     Ducker  // optional
	Dial       Dialer
	AgentURL   string
	Sink       relay.Sink // relay activity, usually a relay.Display
	Cwd        string
}

// Assistant is a speech.Observer. Observer callbacks only queue work; the
// classification and everything after it runs in Run.
type Assistant struct {
	cfg Config

	queue chan string
	cues  chan speech.State

	mu    sync.Mutex
	seen  string // committed text already handled this session
	state speech.State
	relay Relay
}

func New(cfg Config) *Assistant {
	if cfg.Dial == nil {
		cfg.Dial = DialRelay
	}
	if cfg.Sink == nil {
		cfg.Sink = relay.NewDisplay(nil)
	}
	return &Assistant{
		cfg:   cfg,
		queue: make(chan string, 8),
		cues:  make(chan speech.State, 8),
		state: speech.StateIdle,
	}
}

func (a *Assistant) StateChanged(state speech.State) {
	a.mu.Lock()
	prev := a.state
	a.state = state
	a.mu.Unlock()

	if prev == state {
		return
	}
	select {
	case a.cues <- state:
	default:
		slog.Debug("cue queue full, dropping", "state", state)
	}
}

func (a *Assistant) TranscriptChanged(t speech.Transcript) {
	if t.Final == "" {
		a.mu.Lock()
		a.seen = ""
		a.mu.Unlock()
	}
	slog.Debug("transcript", "text", t.Text, "interim", t.Interim)
}

// SilenceDetected queues the committed text that was not handled yet.
func (a *Assistant) SilenceDetected(t speech.Transcript) {
	a.mu.Lock()
	text := fresh(a.seen, t.Final)
	a.seen = t.Final
	a.mu.Unlock()

	if text == "" {
		return
	}
	select {
	case a.queue <- text:
	default:
		slog.Warn("assistant busy, dropping utterance", "text", text)
	}
}

func (a *Assistant) Error(err speech.SpeechError) {
	slog.Warn("speech error", "code", err.Code, "msg", err.Message, "recoverable", err.Recoverable)
}

// fresh returns what final adds to seen. A final that does not extend seen
// belongs to a new session and is returned whole.
func fresh(seen, final string) string {
	final = strings.TrimSpace(final)
	if rest, ok := strings.CutPrefix(final, strings.TrimSpace(seen)); ok && seen != "" {
		return strings.TrimSpace(rest)
	}
	return final
}

// Run handles queued utterances and cues until ctx is done.
func (a *Assistant) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.unduck()
			return
		case st := <-a.cues:
			a.cue(ctx, st)
		case text := <-a.queue:
			a.Handle(ctx, text)
		}
	}
}

// Handle classifies one utterance and acts on it.
func (a *Assistant) Handle(ctx context.Context, text string) {
	res, err := a.cfg.Classifier.Classify(ctx, text)
	if err != nil && res.Intent == "" {
		slog.Error("failed to classify", "text", text, "err", err)
		return
	}

	slog.Info("utterance", "text", text, "intent", res.Intent, "command", res.Command)

	switch res.Intent {
	case nlu.IntentExecute:
		if _, err := a.Execute(ctx, res.Command); err != nil {
			if errors.Is(err, ErrExecutionDisabled) {
				a.say("A execução de comandos está desativada.")
			}
			slog.Warn("command not run", "command", res.Command, "err", err)
		}
	case nlu.IntentQuestion, nlu.IntentGreeting, nlu.IntentHelp:
		a.say(res.Answer)
	default:
		slog.Debug("nothing to do", "text", text)
	}
}

// Execute asks for confirmation and relays the command. It returns the
// request id, or "" when the user declined.
func (a *Assistant) Execute(ctx context.Context, command string) (string, error) {
	a.mu.Lock()
	r := a.relay
	a.mu.Unlock()
	if r == nil {
		return "", ErrExecutionDisabled
	}

	ok, err := a.cfg.Confirmer.Confirm(ctx, command)
	if err != nil {
		return "", err
	}
	if !ok {
		slog.Info("command declined", "command", command)
		return "", nil
	}
	return r.Send(relay.NewRequest(command, a.cfg.Cwd).Confirmed())
}

// EnableExecution connects to the agent. It is a no-op when connected.
func (a *Assistant) EnableExecution(ctx context.Context) error {
	a.mu.Lock()
	if a.relay != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	r, err := a.cfg.Dial(ctx, a.cfg.AgentURL, a.cfg.Sink)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.relay != nil {
		a.mu.Unlock()
		return r.Close()
	}
	a.relay = r
	a.mu.Unlock()

	go a.watch(r)
	return nil
}

// DisableExecution drops the agent connection.
func (a *Assistant) DisableExecution() error {
	a.mu.Lock()
	r := a.relay
	a.relay = nil
	a.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close()
}

// ExecutionEnabled reports whether an agent connection is up.
func (a *Assistant) ExecutionEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.relay != nil
}

func (a *Assistant) watch(r Relay) {
	<-r.Done()
	a.mu.Lock()
	if a.relay == r {
		a.relay = nil
	}
	a.mu.Unlock()
}

func (a *Assistant) cue(ctx context.Context, st speech.State) {
	switch st {
	case speech.StateListening:
		if a.cfg.Cue != nil {
			if err := a.cfg.Cue.Play(); err != nil {
				slog.Warn("failed to play cue", "err", err)
			}
		}
		if a.cfg.Ducker != nil {
			if err := a.cfg.Ducker.Duck(ctx); err != nil {
				slog.Warn("failed to duck audio", "err", err)
			}
		}
	case speech.StateIdle:
		a.unduck()
	}
}

func (a *Assistant) unduck() {
	if a.cfg.Ducker == nil {
		return
	}
	if err := a.cfg.Ducker.Unduck(context.Background()); err != nil {
		slog.Warn("failed to restore audio", "err", err)
	}
}

func (a *Assistant) say(text string) {
	if text == "" {
		return
	}
	slog.Info("answer", "text", text)
	if a.cfg.Speaker == nil {
		return
	}
	if err := a.cfg.Speaker.Speak(text); err != nil {
		slog.Error("failed to voice out", "err", err)
	}
}
