package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"kaia/internal/speech"
	"kaia/pkg/stt"
)

func tone(n int, amp float32) []float32 {
	f := make([]float32, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amp
		} else {
			f[i] = -amp
		}
	}
	return f
}

func frames(count int, amp float32) [][]float32 {
	out := make([][]float32, count)
	for i := range out {
		out[i] = tone(frameSize, amp)
	}
	return out
}

type fakeTranscriber struct {
	mu    sync.Mutex
	texts []string
	calls int
	err   error
	delay time.Duration
}

func (f *fakeTranscriber) TranscribePCM(_ context.Context, pcm []float32, _ stt.Options) (stt.Result, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stt.Result{}, f.err
	}
	text := ""
	if f.calls < len(f.texts) {
		text = f.texts[f.calls]
	}
	f.calls++
	return stt.Result{Text: text, Confidence: 0.9}, nil
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scriptStream serves scripted frames, then tail (silence when nil) forever.
type scriptStream struct {
	buf      []float32
	mu       sync.Mutex
	script   [][]float32
	tail     []float32
	readErr  error
	startErr error
	closed   bool
}

func (s *scriptStream) Start() error { return s.startErr }
func (s *scriptStream) Stop() error  { return nil }

func (s *scriptStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptStream) Read() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		if s.readErr != nil {
			return s.readErr
		}
		time.Sleep(time.Millisecond)
		if s.tail != nil {
			copy(s.buf, s.tail)
		} else {
			clear(s.buf)
		}
		return nil
	}
	copy(s.buf, s.script[0])
	s.script = s.script[1:]
	return nil
}

func (s *scriptStream) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script)
}

func (s *scriptStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type recordingListener struct {
	mu      sync.Mutex
	results [][]speech.Segment
	errors  []string
	starts  int
	ended   chan struct{}
	ends    int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ended: make(chan struct{}, 8)}
}

func (l *recordingListener) OnResult(segs []speech.Segment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, segs)
}

func (l *recordingListener) OnError(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, code)
}

func (l *recordingListener) OnSpeechStart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
}

func (l *recordingListener) OnEnd() {
	l.mu.Lock()
	l.ends++
	l.mu.Unlock()
	l.ended <- struct{}{}
}

func (l *recordingListener) waitEnd() error {
	select {
	case <-l.ended:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("no OnEnd")
	}
}

func (l *recordingListener) snapshot() (results [][]speech.Segment, errs []string, starts int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]speech.Segment(nil), l.results...), append([]string(nil), l.errors...), l.starts
}
