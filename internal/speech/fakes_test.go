package speech

import (
	"context"
	"sort"
	"sync"
	"time"

	"kaia/internal/permission"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		next := c.nextDue(target)
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *fakeClock) nextDue(target time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.fired || t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) {
			best = t
		}
	}
	return best
}

// Pending returns the remaining delays of active timers, shortest first.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at.Sub(c.now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeEngine struct {
	mu        sync.Mutex
	listener  Listener
	starts    int
	stops     int
	startErr  error
	endOnStop bool
}

func (e *fakeEngine) Attach(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

func (e *fakeEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return e.startErr
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	e.stops++
	end := e.endOnStop
	l := e.listener
	e.mu.Unlock()
	if end && l != nil {
		l.OnEnd()
	}
	return nil
}

// Listener returns the listener attached for the latest pass.
func (e *fakeEngine) Listener() Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}

func (e *fakeEngine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *fakeEngine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

type recordingObserver struct {
	mu          sync.Mutex
	states      []State
	transcripts []Transcript
	silences    []Transcript
	errors      []SpeechError
}

func (o *recordingObserver) StateChanged(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) TranscriptChanged(t Transcript) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, t)
}

func (o *recordingObserver) SilenceDetected(t Transcript) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.silences = append(o.silences, t)
}

func (o *recordingObserver) Error(err SpeechError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

func (o *recordingObserver) Errors() []SpeechError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SpeechError(nil), o.errors...)
}

func (o *recordingObserver) Silences() []Transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Transcript(nil), o.silences...)
}

func (o *recordingObserver) Transcripts() []Transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Transcript(nil), o.transcripts...)
}

func (o *recordingObserver) States() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

type fakePermissions struct {
	state permission.State
	probe permission.State
}

func (p *fakePermissions) Status() permission.State { return p.state }

func (p *fakePermissions) Request(context.Context) permission.State {
	p.state = p.probe
	return p.state
}
