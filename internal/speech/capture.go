package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"kaia/internal/permission"
)

// Capture owns one recognition engine and its session. Engine callbacks,
// timer firings and public calls are serialized by a single mutex; the
// engine and the observer are never called while it is held.
type Capture struct {
	cfg    Config
	engine Engine
	perms  Permissions
	clock  Clock
	obs    Observer

	mu        sync.Mutex
	listening bool
	sess      Session
	gen       uint64
	lastError *SpeechError
	notes     []func()

	// pass identifies the engine pass whose callbacks are current;
	// running is set while that pass has not ended.
	pass    uint64
	passSeq uint64
	running bool

	// engineMu pairs each Attach with its Start.
	engineMu sync.Mutex

	silence Timer
	ceiling Timer
	resume  Timer
}

// Option customizes a Capture.
type Option func(*Capture)

func WithClock(clock Clock) Option {
	return func(c *Capture) { c.clock = clock }
}

func WithObserver(obs Observer) Option {
	return func(c *Capture) { c.obs = obs }
}

func WithPermissions(perms Permissions) Option {
	return func(c *Capture) { c.perms = perms }
}

// NewCapture binds a capture machine to engine. A nil engine yields an
// unsupported capture whose operations are no-ops.
func NewCapture(engine Engine, cfg Config, opts ...Option) *Capture {
	c := &Capture{
		cfg:    cfg.withDefaults(),
		engine: engine,
		clock:  SystemClock(),
		obs:    NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sess.State = StateIdle
	c.sess.Backoff = c.cfg.RestartBase
	return c
}

// Supported reports whether a capture engine is available.
func (c *Capture) Supported() bool {
	return c.engine != nil
}

// Start begins a continuous session. It is a no-op when already listening,
// when no engine is available or when microphone permission is not granted.
func (c *Capture) Start() {
	if c.engine == nil {
		slog.Debug("speech capture unsupported, ignoring start")
		return
	}
	if c.perms != nil {
		if st := c.perms.Status(); st != permission.Granted {
			slog.Warn("microphone permission not granted, not listening", "permission", st)
			return
		}
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	prev := c.sess.State
	c.sess = newSession(c.clock.Now(), c.cfg.RestartBase)
	c.sess.State = prev
	c.lastError = nil
	c.listening = true
	c.stopTimers()
	if c.cfg.MaxDuration > 0 {
		c.ceiling = c.clock.AfterFunc(c.cfg.MaxDuration, func() { c.onMaxDuration(gen) })
	}
	c.publishState(StateListening)
	c.publishTranscript()
	p := c.beginPass()
	c.unlockAndNotify()

	slog.Info("listening")
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.engine.Attach(passListener{c: c, id: p.id})
	if err := c.engine.Start(); err != nil {
		slog.Error("failed to start recognition", "err", err)
		serr := Classify(string(ErrUnknown))
		serr.Message = fmt.Sprintf("failed to start recognition: %v", err)
		serr.Recoverable = false

		c.mu.Lock()
		restored := c.abortPass(p)
		if c.gen == gen {
			c.lastError = &serr
			c.note(func(o Observer) { o.Error(serr) })
			c.teardown(StateIdle)
		}
		c.unlockAndNotify()
		if restored && p.prev != 0 {
			c.engine.Attach(passListener{c: c, id: p.prev})
		}
	}
}

// Stop ends the session. listening is cleared before the engine is told to
// stop so that the resulting end callback never triggers an auto restart.
func (c *Capture) Stop() {
	if c.engine == nil {
		return
	}

	c.mu.Lock()
	c.stopTimers()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	if c.running {
		c.listening = false
		c.gen++
		c.publishState(StateFinalizing)
	} else {
		// no pass left to finalize
		c.teardown(StateIdle)
	}
	c.unlockAndNotify()

	slog.Info("stopped listening")
	if err := c.engine.Stop(); err != nil {
		slog.Debug("engine stop", "err", err)
	}
}

// Close tears the component down regardless of state.
func (c *Capture) Close() {
	if c.engine == nil {
		return
	}

	c.mu.Lock()
	c.teardown(StateIdle)
	c.unlockAndNotify()

	if err := c.engine.Stop(); err != nil {
		slog.Debug("engine stop on close", "err", err)
	}
}

// RequestPermission probes microphone access. It never fails; without a
// permission gate the capture is assumed to be authorized.
func (c *Capture) RequestPermission(ctx context.Context) permission.State {
	if c.perms == nil {
		if c.engine == nil {
			return permission.Unavailable
		}
		return permission.Granted
	}
	return c.perms.Request(ctx)
}

// ClearError forgets the last error and resets the retry counter.
func (c *Capture) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = nil
	c.sess.RetryCount = 0
}

func (c *Capture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.State
}

func (c *Capture) Transcript() Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.transcript()
}

func (c *Capture) LastError() *SpeechError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError == nil {
		return nil
	}
	e := *c.lastError
	return &e
}

// Session returns a copy of the current session counters.
func (c *Capture) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// OnResult handles an incremental recognition update of the current pass.
func (c *Capture) OnResult(results []Segment) {
	c.deliver(0, func() { c.result(results) })
}

// OnSpeechStart treats genuine speech as a recovery signal.
func (c *Capture) OnSpeechStart() {
	c.deliver(0, c.speechStart)
}

// OnError classifies an engine error and either schedules a retry or ends
// the session.
func (c *Capture) OnError(code string) {
	c.deliver(0, func() { c.fail(code) })
}

// OnEnd handles the current pass finishing.
func (c *Capture) OnEnd() {
	c.deliver(0, c.end)
}

// passListener forwards the callbacks of one engine pass. Once a newer pass
// has begun they are dropped, so a stopped pass can neither leak its last
// words into the next session nor end it.
type passListener struct {
	c  *Capture
	id uint64
}

func (l passListener) OnResult(results []Segment) {
	l.c.deliver(l.id, func() { l.c.result(results) })
}

func (l passListener) OnError(code string) {
	l.c.deliver(l.id, func() { l.c.fail(code) })
}

func (l passListener) OnSpeechStart() { l.c.deliver(l.id, l.c.speechStart) }
func (l passListener) OnEnd()         { l.c.deliver(l.id, l.c.end) }

// deliver runs f under mu unless it belongs to a superseded pass. An id of
// zero stands for the current pass.
func (c *Capture) deliver(id uint64, f func()) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if id != 0 && id != c.pass {
		slog.Debug("dropping callback of finished pass", "pass", id, "current", c.pass)
		return
	}
	f()
}

type passTicket struct {
	id, prev    uint64
	prevRunning bool
}

// beginPass makes a fresh pass current. Caller holds mu.
func (c *Capture) beginPass() passTicket {
	t := passTicket{prev: c.pass, prevRunning: c.running}
	c.passSeq++
	c.pass = c.passSeq
	c.running = true
	t.id = c.pass
	return t
}

// abortPass undoes beginPass after the engine refused to start, unless a
// newer pass took over meanwhile. Caller holds mu.
func (c *Capture) abortPass(t passTicket) bool {
	if c.pass != t.id {
		return false
	}
	c.pass = t.prev
	c.running = t.prevRunning
	return true
}

func (c *Capture) result(results []Segment) {
	if c.sess.State == StateIdle {
		return
	}

	c.sess.LastSpeechAt = c.clock.Now()
	text := c.sess.apply(results)
	c.publishTranscript()

	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
	if c.cfg.SilenceTimeout > 0 && text != "" {
		gen := c.gen
		c.silence = c.clock.AfterFunc(c.cfg.SilenceTimeout, func() { c.onSilence(gen) })
	}
}

func (c *Capture) speechStart() {
	slog.Debug("speech started")
	c.sess.LastSpeechAt = c.clock.Now()
	c.sess.RetryCount = 0
	c.sess.RestartCount = 0
	c.sess.Backoff = c.cfg.RestartBase
	c.lastError = nil
}

func (c *Capture) fail(code string) {
	serr := Classify(code)
	if !c.listening {
		slog.Debug("recognition error after stop", "code", serr.Code)
		return
	}

	c.sess.RetryCount++
	if serr.Recoverable && c.sess.RetryCount < c.cfg.MaxRetries {
		slog.Warn("recognition error, retrying",
			"code", serr.Code, "attempt", c.sess.RetryCount, "max", c.cfg.MaxRetries)
		c.lastError = &serr
		c.note(func(o Observer) { o.Error(serr) })

		if c.resume != nil {
			c.resume.Stop()
		}
		gen := c.gen
		c.resume = c.clock.AfterFunc(c.cfg.RetryDelay, func() { c.onResume(gen) })
		c.publishState(StateRetrying)
		return
	}

	slog.Error("recognition error, giving up", "code", serr.Code, "msg", serr.Message)
	serr.Recoverable = false
	c.lastError = &serr
	c.note(func(o Observer) { o.Error(serr) })
	c.teardown(StateIdle)

	c.note(func(Observer) {
		if err := c.engine.Stop(); err != nil {
			slog.Debug("engine stop after error", "err", err)
		}
	})
}

func (c *Capture) end() {
	c.running = false
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
	c.sess.endPass()

	if !c.listening {
		c.publishState(StateIdle)
		return
	}
	if c.resume != nil {
		// a retry or restart is already pending
		return
	}
	if !c.cfg.AutoRestart {
		c.teardown(StateIdle)
		return
	}

	c.sess.RestartCount++
	if c.sess.RestartCount > c.cfg.MaxRestarts {
		slog.Warn("max auto-restarts reached, stopping", "max", c.cfg.MaxRestarts)
		c.teardown(StateIdle)
		c.sess.RestartCount = 0
		return
	}

	delay := RestartDelay(c.sess.Backoff, c.sess.RestartCount, c.cfg.RestartCap)
	slog.Debug("auto-restarting recognition",
		"attempt", c.sess.RestartCount, "max", c.cfg.MaxRestarts, "delay", delay)
	gen := c.gen
	c.resume = c.clock.AfterFunc(delay, func() { c.onResume(gen) })
}

func (c *Capture) onResume(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || !c.listening {
		c.mu.Unlock()
		return
	}
	c.resume = nil
	c.publishState(StateListening)
	p := c.beginPass()
	c.unlockAndNotify()

	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.engine.Attach(passListener{c: c, id: p.id})
	if err := c.engine.Start(); err != nil {
		// the engine may still be running
		slog.Debug("engine restart", "err", err)
		c.mu.Lock()
		restored := c.abortPass(p)
		c.mu.Unlock()
		if restored && p.prev != 0 {
			c.engine.Attach(passListener{c: c, id: p.prev})
		}
	}

	c.mu.Lock()
	stopped := c.gen != gen || !c.listening
	c.mu.Unlock()
	if stopped {
		if err := c.engine.Stop(); err != nil {
			slog.Debug("engine stop after resume", "err", err)
		}
	}
}

func (c *Capture) onSilence(gen uint64) {
	c.mu.Lock()
	defer c.unlockAndNotify()

	if c.gen != gen {
		return
	}
	c.silence = nil
	t := c.sess.transcript()
	slog.Debug("silence detected", "text", t.Text)
	c.note(func(o Observer) { o.SilenceDetected(t) })
}

func (c *Capture) onMaxDuration(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || !c.listening {
		c.mu.Unlock()
		return
	}
	slog.Info("max duration reached, stopping recognition", "max", c.cfg.MaxDuration)
	if c.running {
		c.stopTimers()
		c.listening = false
		c.gen++
		c.publishState(StateFinalizing)
	} else {
		c.teardown(StateIdle)
	}
	c.unlockAndNotify()

	if err := c.engine.Stop(); err != nil {
		slog.Debug("engine stop on max duration", "err", err)
	}
}

// teardown ends the session without touching the engine. Caller holds mu.
func (c *Capture) teardown(state State) {
	c.stopTimers()
	c.listening = false
	c.gen++
	c.publishState(state)
}

// stopTimers cancels every pending timer. Caller holds mu.
func (c *Capture) stopTimers() {
	for _, t := range []*Timer{&c.silence, &c.ceiling, &c.resume} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (c *Capture) publishState(state State) {
	if c.sess.State == state {
		return
	}
	c.sess.State = state
	c.note(func(o Observer) { o.StateChanged(state) })
}

func (c *Capture) publishTranscript() {
	t := c.sess.transcript()
	c.note(func(o Observer) { o.TranscriptChanged(t) })
}

// note queues a notification to run once mu is released. Caller holds mu.
func (c *Capture) note(f func(Observer)) {
	obs := c.obs
	c.notes = append(c.notes, func() { f(obs) })
}

func (c *Capture) unlockAndNotify() {
	notes := c.notes
	c.notes = nil
	c.mu.Unlock()
	for _, n := range notes {
		n()
	}
}
