// Package permission decides whether the microphone may be used.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the microphone authorization state.
type State string

const (
	Checking    State = "checking"
	Prompt      State = "prompt"
	Granted     State = "granted"
	Denied      State = "denied"
	Unavailable State = "unavailable"
)

var (
	// ErrDenied means the user or the OS refused access. Retryable.
	ErrDenied = errors.New("microphone access denied")
	// ErrNoDevice means no capture device is present.
	ErrNoDevice = errors.New("no capture device")
	// ErrUnsupported means capture is categorically absent in this runtime.
	ErrUnsupported = errors.New("audio capture unsupported")
)

// Prober attempts to open the microphone. A nil error means access works.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Classify maps a probe outcome onto a State. Anything that is not clearly a
// missing device or missing capability is treated as a retryable denial.
func Classify(err error) State {
	switch {
	case err == nil:
		return Granted
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrNoDevice):
		return Unavailable
	default:
		return Denied
	}
}

// Gate holds the permission state and fires grant hooks. Each hook runs at
// most once per grant: the latch re-arms only after the state leaves Granted.
type Gate struct {
	prober Prober

	mu      sync.Mutex
	state   State
	latched bool
	hooks   []func()
}

// NewGate returns a gate in Prompt state, or Unavailable when prober is nil.
func NewGate(prober Prober) *Gate {
	state := Prompt
	if prober == nil {
		state = Unavailable
	}
	return &Gate{prober: prober, state: state}
}

// Status returns the last probed state.
func (g *Gate) Status() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// OnGrant registers f to run when a probe grants access.
func (g *Gate) OnGrant(f func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, f)
}

// Request probes the microphone and records the outcome. It never fails.
func (g *Gate) Request(ctx context.Context) State {
	if g.prober == nil {
		return Unavailable
	}

	g.mu.Lock()
	g.state = Checking
	g.mu.Unlock()

	err := g.probe(ctx)
	state := Classify(err)
	if err != nil {
		slog.Warn("microphone probe failed", "state", state, "err", err)
	} else {
		slog.Info("microphone access granted")
	}

	g.mu.Lock()
	g.state = state
	var fire []func()
	if state == Granted && !g.latched {
		g.latched = true
		fire = append(fire, g.hooks...)
	}
	if state != Granted {
		g.latched = false
	}
	g.mu.Unlock()

	for _, f := range fire {
		f()
	}
	return state
}

func (g *Gate) probe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return g.prober.Probe(ctx)
}
