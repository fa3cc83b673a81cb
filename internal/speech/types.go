// Package speech implements the continuous speech capture state machine.
//
// A Capture owns one recognition engine and turns its callbacks into a
// published transcript, with silence detection, a hard duration ceiling,
// bounded retry of recoverable errors and backed-off auto restart when the
// engine ends a pass on its own.
package speech

import (
	"strings"
	"time"
)

// State is the lifecycle state of a capture session.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateRetrying   State = "retrying"
	StateFinalizing State = "finalizing"
)

// SegmentKind tells committed recognition text from provisional text.
type SegmentKind string

const (
	SegmentInterim SegmentKind = "interim"
	SegmentFinal   SegmentKind = "final"
)

// Segment is one buffered recognition result of the current engine pass.
type Segment struct {
	Kind       SegmentKind
	Text       string
	Confidence float64
}

// Final returns a committed segment.
func Final(text string, confidence float64) Segment {
	return Segment{Kind: SegmentFinal, Text: text, Confidence: confidence}
}

// Interim returns a provisional segment.
func Interim(text string) Segment {
	return Segment{Kind: SegmentInterim, Text: text}
}

// Transcript is the published view of a session.
type Transcript struct {
	Text       string  `json:"text"`
	Final      string  `json:"final"`
	Interim    string  `json:"interim"`
	Confidence float64 `json:"confidence"`
}

// Config controls capture timing and retry policy.
type Config struct {
	SilenceTimeout time.Duration
	MaxDuration    time.Duration
	AutoRestart    bool
	MaxRetries     int
	MaxRestarts    int
	RetryDelay     time.Duration
	RestartBase    time.Duration
	RestartCap     time.Duration
}

func DefaultConfig() Config {
	return Config{
		SilenceTimeout: 1500 * time.Millisecond,
		MaxDuration:    30 * time.Second,
		AutoRestart:    true,
		MaxRetries:     3,
		MaxRestarts:    10,
		RetryDelay:     500 * time.Millisecond,
		RestartBase:    100 * time.Millisecond,
		RestartCap:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.RestartBase <= 0 {
		c.RestartBase = def.RestartBase
	}
	if c.RestartCap <= 0 {
		c.RestartCap = def.RestartCap
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	}
	return c
}

// Session is the state of one continuous listening session.
type Session struct {
	State        State
	Interim      string
	Confidence   float64
	RetryCount   int
	RestartCount int
	Backoff      time.Duration
	LastSpeechAt time.Time

	// committed holds finals of engine passes that already ended,
	// pass holds finals of the running pass.
	committed string
	pass      string
}

func newSession(now time.Time, backoff time.Duration) Session {
	return Session{
		Backoff:      backoff,
		LastSpeechAt: now,
	}
}

// FinalTranscript is the accumulated committed text, each final segment
// followed by a separating space.
func (s *Session) FinalTranscript() string {
	return s.committed + s.pass
}

// apply partitions the buffered results of the running pass. It reports the
// trimmed current text.
func (s *Session) apply(results []Segment) string {
	var final, interim strings.Builder
	for _, r := range results {
		switch r.Kind {
		case SegmentFinal:
			final.WriteString(r.Text)
			final.WriteByte(' ')
			if r.Confidence > s.Confidence {
				s.Confidence = r.Confidence
			}
		case SegmentInterim:
			interim.WriteString(r.Text)
		}
	}

	// committed text only ever grows within a pass
	if next := final.String(); strings.HasPrefix(next, s.pass) {
		s.pass = next
	}
	s.Interim = interim.String()
	return s.current()
}

func (s *Session) current() string {
	return strings.TrimSpace(s.FinalTranscript() + s.Interim)
}

func (s *Session) endPass() {
	s.committed += s.pass
	s.pass = ""
	s.Interim = ""
}

func (s *Session) transcript() Transcript {
	return Transcript{
		Text:       s.current(),
		Final:      strings.TrimSpace(s.FinalTranscript()),
		Interim:    s.Interim,
		Confidence: s.Confidence,
	}
}

// RestartDelay is the auto-restart backoff for the given 1-based attempt:
// min(base * 1.5^(attempt-1), limit).
func RestartDelay(base time.Duration, attempt int, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= 1.5
		if d >= float64(limit) {
			return limit
		}
	}
	if time.Duration(d) > limit {
		return limit
	}
	return time.Duration(d)
}
