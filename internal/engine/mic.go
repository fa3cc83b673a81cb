package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"kaia/internal/speech"
)

var (
	ErrNotAttached = errors.New("engine has no listener")
	ErrRunning     = errors.New("engine already running")
)

const frameSize = 320 // 20ms at 16 kHz

type stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

func openDefault(buf []float32, rate int) (stream, error) {
	s, err := portaudio.OpenDefaultStream(1, 0, float64(rate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Mic listens on the default input device. Each Start opens a pass that
// runs until Stop, a device failure, or NoSpeechTimeout of quiet.
type Mic struct {
	tr   Transcriber
	opt  Options
	open func(buf []float32, rate int) (stream, error)

	mu       sync.Mutex
	listener speech.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewMic(tr Transcriber, opt Options) *Mic {
	return &Mic{
		tr:   tr,
		opt:  opt.withDefaults(),
		open: openDefault,
	}
}

// Init brings up the audio backend. Pair with Close.
func (m *Mic) Init() error {
	return portaudio.Initialize()
}

// Close stops the current pass, waits for it and releases the backend.
func (m *Mic) Close() {
	_ = m.Stop()
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
	portaudio.Terminate()
}

func (m *Mic) Attach(l speech.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Start opens a new pass once the previous one has fully wound down.
func (m *Mic) Start() error {
	m.mu.Lock()
	if m.listener == nil {
		m.mu.Unlock()
		return ErrNotAttached
	}
	prev := m.done
	m.mu.Unlock()

	if prev != nil {
		<-prev
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.run(ctx, cancel, m.listener, done)
	return nil
}

// Stop ends the current pass without waiting for it; the listener sees the
// last utterance and then OnEnd.
func (m *Mic) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *Mic) run(ctx context.Context, cancel context.CancelFunc, l speech.Listener, done chan struct{}) {
	p := &pass{tr: m.tr, opt: m.opt, listener: l}
	utterances := make(chan []float32, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go p.worker(utterances, &wg)

	code := m.listen(ctx, l, utterances)
	close(utterances)
	wg.Wait()

	cancel()
	m.mu.Lock()
	if m.done == done {
		m.cancel = nil
	}
	m.mu.Unlock()
	close(done)

	if code != "" {
		l.OnError(string(code))
	}
	l.OnEnd()
}

func (m *Mic) listen(ctx context.Context, l speech.Listener, out chan<- []float32) speech.ErrorCode {
	rate := m.opt.VAD.SampleRate
	buf := make([]float32, frameSize)

	st, err := m.open(buf, rate)
	if err != nil {
		slog.Error("failed to open microphone", "err", err)
		return speech.ErrAudioCapture
	}
	defer st.Close()

	if err := st.Start(); err != nil {
		slog.Error("failed to start microphone", "err", err)
		return speech.ErrAudioCapture
	}
	defer st.Stop()

	seg := NewSegmenter(m.opt.VAD)
	frame := time.Duration(len(buf)) * time.Second / time.Duration(rate)
	limit := int(m.opt.NoSpeechTimeout / frame)

	var (
		heard bool
		quiet int
	)
	for {
		select {
		case <-ctx.Done():
			if utt := seg.Flush(); utt != nil {
				out <- utt
			}
			return ""
		default:
		}

		if err := st.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				slog.Debug("microphone overflow, frames dropped")
				continue
			}
			slog.Error("microphone read failed", "err", err)
			return speech.ErrAudioCapture
		}

		ev, utt := seg.Push(buf)
		switch ev {
		case VADSpeechStart:
			heard = true
			l.OnSpeechStart()
		case VADUtterance:
			out <- utt
		}

		if seg.Speaking() {
			quiet = 0
			continue
		}
		quiet++
		if quiet >= limit {
			if !heard {
				return speech.ErrNoSpeech
			}
			slog.Debug("pass ended after quiet period")
			return ""
		}
	}
}
