package speech

import (
	"context"

	"kaia/internal/permission"
)

// Engine is a continuous, interim-capable recognition engine.
//
// Callbacks are delivered to the attached Listener in emission order and may
// be invoked from inside Start or Stop. Stop must not wait for callbacks that
// are running on the engine's own goroutine.
type Engine interface {
	Attach(l Listener)
	Start() error
	Stop() error
}

// Listener receives engine callbacks. results always carries every buffered
// result of the running pass, not only the newest one.
type Listener interface {
	OnResult(results []Segment)
	OnError(code string)
	OnSpeechStart()
	OnEnd()
}

// Observer receives published capture state.
type Observer interface {
	StateChanged(state State)
	TranscriptChanged(t Transcript)
	SilenceDetected(t Transcript)
	Error(err SpeechError)
}

// Permissions gates listening on microphone authorization.
type Permissions interface {
	Status() permission.State
	Request(ctx context.Context) permission.State
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) StateChanged(State)          {}
func (NopObserver) TranscriptChanged(Transcript) {}
func (NopObserver) SilenceDetected(Transcript)   {}
func (NopObserver) Error(SpeechError)            {}
